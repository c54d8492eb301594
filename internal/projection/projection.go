// Package projection строит планеты, дневники и книги из историй.
// Все функции чистые и безопасны для конкурентного вызова.
package projection

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"storyteller-server/internal/models"
)

// Статические ассеты веб-клиента
const (
	PlanetImage      = "/cplan.png"
	DiaryTitleImage  = "/draw-09.png"
	PlaceholderImage = "/placeholder.png"
	DefaultBookCover = "/book-cover-default.png"
)

// DefaultRemoteImagePrefix единственный удаленный источник картинок по умолчанию.
const DefaultRemoteImagePrefix = "https://firebasestorage.googleapis.com"

const diaryDateLayout = "2006/01/02"

// Slots число слотов дневника.
const Slots = 5

var themes = [...]string{
	"politeness", "honesty", "kindness", "friendship", "courage",
	"wisdom", "creativity", "empathy", "perseverance", "gratitude",
	"respect", "responsibility", "generosity", "patience", "humility",
}

var titleThemes = [...]string{
	"品格", "智慧", "友誼", "勇氣", "善良",
	"誠實", "禮貌", "創意", "關懷", "感恩",
	"尊重", "責任", "慷慨", "耐心", "謙遜",
}

var slotFillers = [Slots]string{
	"Story begins...",
	"Story continues...",
	"Story climax...",
	"Story resolution...",
	"Story ending...",
}

// Диалог дневника: вопрос, вариант ответа, реакция и итог.
var diaryDialog = [4]string{
	"你從這個故事學到了什麼？",
	"我學到了要勇敢面對困難。",
	"說得真好！你願意和朋友分享嗎？",
	"願意！我會把這個故事講給大家聽。",
}

// Themes возвращает копию списка тем в порядке назначения.
func Themes() []string {
	out := make([]string, len(themes))
	copy(out, themes[:])
	return out
}

// Titles возвращает заголовки планет в порядке назначения.
func Titles() []string {
	out := make([]string, len(titleThemes))
	for i, t := range titleThemes {
		out[i] = t + "星球"
	}
	return out
}

// SlotFiller текст пустого слота k (с единицы).
func SlotFiller(k int) string { return slotFillers[k-1] }

// Options настройки проекции.
type Options struct {
	// Location часовой пояс даты дневника. nil означает UTC.
	Location *time.Location
	// RemoteImagePrefixes разрешенные префиксы удаленных картинок.
	RemoteImagePrefixes []string
}

// Projector строит view-модели. Неизменяем после New.
type Projector struct {
	loc      *time.Location
	prefixes []string
}

// New создает Projector. Пустой список префиксов заменяется DefaultRemoteImagePrefix.
func New(opts Options) *Projector {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	prefixes := make([]string, 0, len(opts.RemoteImagePrefixes))
	for _, p := range opts.RemoteImagePrefixes {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	if len(prefixes) == 0 {
		prefixes = []string{DefaultRemoteImagePrefix}
	}
	return &Projector{loc: loc, prefixes: prefixes}
}

// PrimaryColor hex первого цвета палитры или FallbackColor.
func PrimaryColor(story models.StoryRecord) string {
	if hex := story.PrimaryHex(); hex != "" {
		return hex
	}
	return FallbackColor
}

// Planets строит по планете на историю в том же порядке.
func (p *Projector) Planets(stories []models.StoryRecord) []models.PlanetView {
	planets := make([]models.PlanetView, len(stories))
	for i, story := range stories {
		planets[i] = p.Planet(story, i)
	}
	return planets
}

// Planet строит планету для истории на позиции index.
func (p *Projector) Planet(story models.StoryRecord, index int) models.PlanetView {
	color := PrimaryColor(story)
	name := story.PlanetName
	if name == "" {
		name = PlanetName(color, index)
	}
	return models.PlanetView{
		ID:          PlanetID(story.ID),
		Name:        name,
		Image:       PlanetImage,
		Color:       color,
		Title:       titleThemes[index%len(titleThemes)] + "星球",
		Description: fmt.Sprintf("基於故事《%s》的星球", story.Title),
		Theme:       themes[index%len(themes)],
		IsActive:    true,
		CreatedAt:   story.CreatedAt,
		StoryID:     story.ID,
	}
}

// PlanetID идентификатор планеты для истории.
func PlanetID(storyID string) string {
	return "planet_" + storyID
}

// Diary строит дневник планеты из первых пяти страниц истории.
func (p *Projector) Diary(planet models.PlanetView, story models.StoryRecord) *models.DiaryView {
	pages := SortPages(story.Pages)

	var text, images [Slots]string
	for k := 0; k < Slots; k++ {
		if k < len(pages) {
			text[k] = pages[k].Text
			if strings.TrimSpace(text[k]) == "" {
				text[k] = slotFillers[k]
			}
			images[k] = p.ImageSrc(pages[k].ImageURL)
			continue
		}
		text[k] = slotFillers[k]
		images[k] = PlaceholderImage
	}

	return &models.DiaryView{
		Date:          p.DiaryDate(story.CreatedAt),
		Title:         story.Title,
		Story:         text[0],
		Story2:        text[1],
		Story3:        text[2],
		Story4:        text[3],
		Story5:        text[4],
		Illustration:  images[0],
		Illustration2: images[1],
		Illustration3: images[2],
		Illustration4: images[3],
		Illustration5: images[4],
		Dialog:        diaryDialog[0],
		Dialog2:       diaryDialog[1],
		Dialog3:       diaryDialog[2],
		Dialog4:       diaryDialog[3],
		ColorImage:    planet.Image,
		TitleImage:    DiaryTitleImage,
	}
}

// DiaryDate форматирует дату как YYYY/MM/DD. Нераспознанная дата возвращается как есть.
func (p *Projector) DiaryDate(createdAt models.CreatedAt) string {
	t, ok := createdAt.Time(p.loc)
	if !ok {
		return string(createdAt)
	}
	return t.In(p.loc).Format(diaryDateLayout)
}

// Book строит книгу для ридера.
func (p *Projector) Book(planet models.PlanetView, story models.StoryRecord) models.Book {
	title := story.Title
	if title == "" {
		title = planet.Name
	}
	cover := DefaultBookCover
	if story.SourceImage != "" {
		cover = p.ImageSrc(story.SourceImage)
	}
	createdAt := story.CreatedAt
	if createdAt == "" {
		createdAt = planet.CreatedAt
	}

	sorted := SortPages(story.Pages)
	pages := make([]models.BookPage, len(sorted))
	for i, page := range sorted {
		n := page.PageNumber
		if n == 0 {
			n = i + 1
		}
		pages[i] = models.BookPage{
			ID:         fmt.Sprintf("%s-page-%d", planet.ID, n),
			ImageURL:   p.ImageSrc(page.ImageURL),
			Text:       page.Text,
			PageNumber: n,
		}
	}

	return models.Book{
		ID:          planet.ID,
		Title:       title,
		CoverImage:  cover,
		SourceImage: story.SourceImage,
		Pages:       pages,
		CreatedAt:   createdAt,
		Color:       planet.Color,
	}
}

// ImageSrc пропускает разрешенные удаленные URL и локальные пути от корня,
// все остальное заменяет заглушкой.
func (p *Projector) ImageSrc(url string) string {
	if strings.HasPrefix(url, "/") {
		return url
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(url, prefix) {
			return url
		}
	}
	return PlaceholderImage
}

type keyedPage struct {
	key  string
	page models.StoryPage
}

// SortPages сортирует страницы по PageNumber.
// При равных номерах порядок по числовому ключу, затем по строке ключа.
func SortPages(pages models.Pages) []models.StoryPage {
	if len(pages) == 0 {
		return nil
	}
	keyed := make([]keyedPage, 0, len(pages))
	for key, page := range pages {
		keyed = append(keyed, keyedPage{key: key, page: page})
	}
	sort.Slice(keyed, func(i, j int) bool {
		a, b := keyed[i], keyed[j]
		if a.page.PageNumber != b.page.PageNumber {
			return a.page.PageNumber < b.page.PageNumber
		}
		an, aErr := strconv.Atoi(a.key)
		bn, bErr := strconv.Atoi(b.key)
		switch {
		case aErr == nil && bErr == nil && an != bn:
			return an < bn
		case aErr == nil && bErr != nil:
			return true
		case aErr != nil && bErr == nil:
			return false
		}
		return a.key < b.key
	})

	out := make([]models.StoryPage, len(keyed))
	for i, kp := range keyed {
		out[i] = kp.page
	}
	return out
}
