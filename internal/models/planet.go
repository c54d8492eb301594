package models

import "time"

// PlanetView планета, построенная по одной истории. Не хранится, строится на каждый цикл.
type PlanetView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Image        string     `json:"image"`
	Color        string     `json:"color"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Theme        string     `json:"theme"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    CreatedAt  `json:"createdAt"`
	StoryID      string     `json:"storyId"`
	DiaryContent *DiaryView `json:"diaryContent,omitempty"`
}

// DiaryView пять слотов текста и иллюстраций плюс фиксированный диалог.
type DiaryView struct {
	Date          string `json:"date"`
	Title         string `json:"title"`
	Story         string `json:"story"`
	Story2        string `json:"story2"`
	Story3        string `json:"story3"`
	Story4        string `json:"story4"`
	Story5        string `json:"story5"`
	Illustration  string `json:"illustration"`
	Illustration2 string `json:"illustration2"`
	Illustration3 string `json:"illustration3"`
	Illustration4 string `json:"illustration4"`
	Illustration5 string `json:"illustration5"`
	Dialog        string `json:"dialog"`
	Dialog2       string `json:"dialog2"`
	Dialog3       string `json:"dialog3"`
	Dialog4       string `json:"dialog4"`
	ColorImage    string `json:"colorImage"`
	TitleImage    string `json:"titleImage"`
}

// Book история в виде книги для ридера.
type Book struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	CoverImage  string     `json:"coverImage"`
	SourceImage string     `json:"sourceImage,omitempty"`
	Pages       []BookPage `json:"pages"`
	CreatedAt   CreatedAt  `json:"createdAt"`
	Color       string     `json:"color"`
}

// BookPage страница книги.
type BookPage struct {
	ID         string `json:"id"`
	ImageURL   string `json:"imageUrl"`
	Text       string `json:"text"`
	PageNumber int    `json:"pageNumber"`
}

// Snapshot состояние агрегатора, которое видят потребители.
// После публикации не изменяется.
type Snapshot struct {
	Loading    bool         `json:"loading"`
	Error      string       `json:"error,omitempty"`
	Planets    []PlanetView `json:"planets"`
	Books      []Book       `json:"books"`
	Generation uint64       `json:"generation"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// FindPlanet ищет планету по ID.
func (s Snapshot) FindPlanet(planetID string) (PlanetView, bool) {
	for _, p := range s.Planets {
		if p.ID == planetID {
			return p, true
		}
	}
	return PlanetView{}, false
}

// FindPlanetByStory ищет планету по ID исходной истории.
func (s Snapshot) FindPlanetByStory(storyID string) (PlanetView, bool) {
	for _, p := range s.Planets {
		if p.StoryID == storyID {
			return p, true
		}
	}
	return PlanetView{}, false
}
