package projection

import (
	"fmt"
	"strconv"
	"strings"
)

// FallbackColor цвет планеты, если у истории пустая палитра.
const FallbackColor = "#8b5cf6"

// Каналы ближе этого порога считаются оттенком серого.
const grayscaleTolerance = 30

// ColorClass класс цвета для имени планеты.
type ColorClass int

const (
	ColorUnknown ColorClass = iota // hex не разобран
	ColorRed
	ColorGreen
	ColorBlue
	ColorBright
	ColorDark
	ColorGray
)

var colorLabels = map[ColorClass]string{
	ColorUnknown: "彩",
	ColorRed:     "紅",
	ColorGreen:   "綠",
	ColorBlue:    "藍",
	ColorBright:  "亮",
	ColorDark:    "暗",
	ColorGray:    "灰",
}

// Label иероглиф, который подставляется в имя планеты.
func (c ColorClass) Label() string {
	if label, ok := colorLabels[c]; ok {
		return label
	}
	return colorLabels[ColorUnknown]
}

func (c ColorClass) String() string {
	switch c {
	case ColorRed:
		return "red"
	case ColorGreen:
		return "green"
	case ColorBlue:
		return "blue"
	case ColorBright:
		return "bright"
	case ColorDark:
		return "dark"
	case ColorGray:
		return "gray"
	default:
		return "unknown"
	}
}

// ClassifyColor определяет класс цвета по hex строке. Функция тотальна.
//
// Сначала проверяется оттенок серого (все попарные разности каналов < 30):
// max > 200 дает ColorBright, max < 100 ColorDark, иначе ColorGray.
// Иначе берется доминирующий канал, при равенстве приоритет R, G, B.
func ClassifyColor(hex string) ColorClass {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return ColorUnknown
	}

	maxC := max(r, g, b)
	if absDiff(r, g) < grayscaleTolerance && absDiff(g, b) < grayscaleTolerance && absDiff(r, b) < grayscaleTolerance {
		switch {
		case maxC > 200:
			return ColorBright
		case maxC < 100:
			return ColorDark
		default:
			return ColorGray
		}
	}

	switch maxC {
	case r:
		return ColorRed
	case g:
		return ColorGreen
	default:
		return ColorBlue
	}
}

// PlanetName имя планеты по цвету и позиции истории (index с нуля).
func PlanetName(hex string, index int) string {
	return fmt.Sprintf("%s色星球 %d", ClassifyColor(hex).Label(), index+1)
}

// parseHex принимает "#rrggbb", "rrggbb" и короткую форму "#rgb".
func parseHex(hex string) (r, g, b int, ok bool) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), true
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
