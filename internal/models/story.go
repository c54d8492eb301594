package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ColorSwatch один цвет палитры истории.
type ColorSwatch struct {
	Hex  string `json:"hex"`
	Name string `json:"name"`
}

// StoryPage страница истории в хранилище.
type StoryPage struct {
	ImageURL   string `json:"imageUrl"`
	Text       string `json:"text"`
	PageNumber int    `json:"pageNumber"`
}

// Pages страницы истории по ключу страницы.
// Порядок ключей ничего не значит, сортировка только по PageNumber.
type Pages map[string]StoryPage

// UnmarshalJSON принимает объект, массив или null.
// Realtime Database отдает массив, если ключи страниц целые ("0", "1", ...),
// пропуски в таком массиве приходят как null.
func (p *Pages) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = nil
		return nil
	}

	switch trimmed[0] {
	case '{':
		var m map[string]StoryPage
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return fmt.Errorf("decode pages object: %w", err)
		}
		*p = m
		return nil
	case '[':
		var list []*StoryPage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("decode pages array: %w", err)
		}
		m := make(map[string]StoryPage, len(list))
		for i, page := range list {
			if page == nil {
				continue
			}
			m[strconv.Itoa(i)] = *page
		}
		*p = m
		return nil
	default:
		return fmt.Errorf("pages: unexpected JSON %.20q", trimmed)
	}
}

// CreatedAt время создания истории в том виде, в каком оно лежит в хранилище.
// Клиенты пишут то ISO строку, то epoch число; оба варианта сохраняются как строка.
type CreatedAt string

// UnmarshalJSON принимает строку или число.
func (c *CreatedAt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decode createdAt: %w", err)
		}
		*c = CreatedAt(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("decode createdAt: %w", err)
	}
	*c = CreatedAt(n.String())
	return nil
}

// Время в epoch больше этого порога считается миллисекундами.
const epochMillisThreshold = 1e12

// Форматы без зоны читаются в переданном часовом поясе, а не в UTC.
var createdAtLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// Time разбирает значение. ok=false, если формат не распознан.
// loc задает зону для дат без смещения; nil означает UTC.
func (c CreatedAt) Time(loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	raw := strings.TrimSpace(string(c))
	if raw == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if f > epochMillisThreshold {
			ms := int64(f)
			return time.UnixMilli(ms).UTC(), true
		}
		sec := int64(f)
		return time.Unix(sec, 0).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// StoryRecord история в хранилище (узел stories/<id>).
type StoryRecord struct {
	// ID ключ узла в хранилище; в теле записи его нет.
	ID           string        `json:"id" db:"id"`
	StoryID      string        `json:"storyId,omitempty" db:"story_id"`
	Title        string        `json:"title" db:"title"`
	CreatedAt    CreatedAt     `json:"createdAt" db:"created_at"`
	ColorPalette []ColorSwatch `json:"colorPalette" db:"color_palette"`
	Pages        Pages         `json:"pages" db:"pages"`
	PlanetName   string        `json:"planetName,omitempty" db:"planet_name"`
	SourceImage  string        `json:"sourceImage,omitempty" db:"source_image"`
}

// PrimaryHex возвращает hex первого цвета палитры или "".
func (s StoryRecord) PrimaryHex() string {
	if len(s.ColorPalette) == 0 {
		return ""
	}
	return strings.TrimSpace(s.ColorPalette[0].Hex)
}
