package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyColor(t *testing.T) {
	tests := []struct {
		hex  string
		want ColorClass
	}{
		{"#ff0000", ColorRed},
		{"#00c853", ColorGreen},
		{"#2962ff", ColorBlue},
		{"#8b5cf6", ColorBlue},
		{"#ffffff", ColorBright},
		{"#e0e0e8", ColorBright},
		{"#101010", ColorDark},
		{"#808080", ColorGray},
		{"#fff", ColorBright},
		{"f00", ColorRed},
		// равенство каналов: R побеждает G, G побеждает B
		{"#ff00ff", ColorRed},
		{"#00ffff", ColorGreen},
		{"", ColorUnknown},
		{"#12345", ColorUnknown},
		{"#zzzzzz", ColorUnknown},
		{"rgb(1,2,3)", ColorUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyColor(tt.hex))
		})
	}
}

func TestColorClass_Label(t *testing.T) {
	assert.Equal(t, "紅", ColorRed.Label())
	assert.Equal(t, "灰", ColorGray.Label())
	assert.Equal(t, "彩", ColorUnknown.Label())
	assert.Equal(t, "彩", ColorClass(42).Label())
	assert.Equal(t, "bright", ColorBright.String())
}

func TestPlanetName(t *testing.T) {
	assert.Equal(t, "紅色星球 1", PlanetName("#ff0000", 0))
	assert.Equal(t, "藍色星球 7", PlanetName(FallbackColor, 6))
	assert.Equal(t, "彩色星球 3", PlanetName("not-a-color", 2))
}
