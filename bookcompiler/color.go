package bookcompiler

import (
	"fmt"
	"math"
	"strconv"
)

// Color is an RGB triple with channels normalized to [0,1].
type Color struct {
	R, G, B float64
}

// ParseHexColor decodes a "#RRGGBB" string, case-insensitive.
func ParseHexColor(s string) (Color, error) {
	if len(s) != 7 || s[0] != '#' {
		return Color{}, fmt.Errorf("%w: %q is not in #RRGGBB form", ErrInvalidColor, s)
	}
	var ch [3]float64
	for i := range ch {
		v, err := strconv.ParseUint(s[1+2*i:3+2*i], 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("%w: %q has non-hex digits", ErrInvalidColor, s)
		}
		ch[i] = float64(v) / 255
	}
	return Color{R: ch[0], G: ch[1], B: ch[2]}, nil
}

// RGB255 returns the channels scaled to 0-255, clamped and rounded.
func (c Color) RGB255() (int, int, int) {
	return to255(c.R), to255(c.G), to255(c.B)
}

// Hex encodes the color as an uppercase "#RRGGBB" string.
func (c Color) Hex() string {
	r, g, b := c.RGB255()
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

func to255(v float64) int {
	v = math.Max(0, math.Min(1, v))
	return int(math.Round(v * 255))
}
