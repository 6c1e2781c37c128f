package bookcompiler

import (
	"fmt"
	"math"
)

// UnitsPerInch is the number of document units (points) in an inch.
const UnitsPerInch = 72.0

// Industry defaults for a 6x9 trade book.
const (
	DefaultTrimWidth  = 6.0   // inches
	DefaultTrimHeight = 9.0   // inches
	DefaultBleed      = 0.125 // inches, every edge
	DefaultMargin     = 20.0  // units
)

// Inches converts inches to document units.
func Inches(v float64) float64 {
	return v * UnitsPerInch
}

// Geometry holds the physical page setup. Trim and bleed are in inches,
// the margin in document units.
type Geometry struct {
	TrimWidth  float64
	TrimHeight float64
	Bleed      float64
	Margin     float64
}

// DefaultGeometry returns the 6x9in trim with 1/8in bleed and a 20 unit margin.
func DefaultGeometry() Geometry {
	return Geometry{
		TrimWidth:  DefaultTrimWidth,
		TrimHeight: DefaultTrimHeight,
		Bleed:      DefaultBleed,
		Margin:     DefaultMargin,
	}
}

// Validate checks that the geometry describes a usable page.
func (g Geometry) Validate() error {
	if g.TrimWidth <= 0 || g.TrimHeight <= 0 {
		return fmt.Errorf("%w: trim size %gx%gin must be positive", ErrInvalidGeometry, g.TrimWidth, g.TrimHeight)
	}
	if g.Bleed < 0 {
		return fmt.Errorf("%w: negative bleed %gin", ErrInvalidGeometry, g.Bleed)
	}
	if g.Margin < 0 {
		return fmt.Errorf("%w: negative margin %g", ErrInvalidGeometry, g.Margin)
	}
	w, h := g.PageBoxSize()
	if 2*g.Margin >= w || 2*g.Margin >= h {
		return fmt.Errorf("%w: margin %g leaves no room on a %gx%g page", ErrInvalidGeometry, g.Margin, w, h)
	}
	return nil
}

// TrimSize returns the trim width and height in document units.
func (g Geometry) TrimSize() (float64, float64) {
	return Inches(g.TrimWidth), Inches(g.TrimHeight)
}

// BleedUnits returns the bleed in document units.
func (g Geometry) BleedUnits() float64 {
	return Inches(g.Bleed)
}

// PageBoxSize returns the bled page size: trim plus bleed on both sides.
func (g Geometry) PageBoxSize() (float64, float64) {
	tw, th := g.TrimSize()
	b := g.BleedUnits()
	return tw + 2*b, th + 2*b
}

// ImageFillRect is the rectangle every page image is drawn into. It starts at
// (-bleed, -bleed) and spans the bled page box, so the image reaches the trim
// edge after cutting.
func (g Geometry) ImageFillRect() Rect {
	w, h := g.PageBoxSize()
	b := g.BleedUnits()
	return Rect{X: -b, Y: -b, W: w, H: h}
}

// TextAnchorY computes the bottom-left y coordinate for a single line of
// fontSize text anchored at position. It fails with ErrInvalidGeometry when
// the text cannot fit between the margins.
func TextAnchorY(position TextPosition, pageHeight, margin, fontSize float64) (float64, error) {
	if fontSize <= 0 {
		return 0, fmt.Errorf("%w: font size %g must be positive", ErrInvalidGeometry, fontSize)
	}
	if fontSize >= pageHeight-2*margin {
		return 0, fmt.Errorf("%w: font size %g does not fit page height %g with margin %g",
			ErrInvalidGeometry, fontSize, pageHeight, margin)
	}
	switch position {
	case Top:
		return pageHeight - margin - fontSize, nil
	case Center:
		return (pageHeight - fontSize) / 2, nil
	case Bottom:
		return margin, nil
	}
	return 0, fmt.Errorf("%w: unknown text position %d", ErrInvalidGeometry, int(position))
}

// MaxFontSize returns the largest font size TextAnchorY accepts on this page.
func (g Geometry) MaxFontSize() float64 {
	_, h := g.PageBoxSize()
	return math.Nextafter(h-2*g.Margin, 0)
}
