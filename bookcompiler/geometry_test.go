package bookcompiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInches(t *testing.T) {
	assert.Equal(t, 72.0, Inches(1))
	assert.Equal(t, 9.0, Inches(0.125))
	assert.Equal(t, 432.0, Inches(6))
}

func TestPageBoxSize_Defaults(t *testing.T) {
	w, h := DefaultGeometry().PageBoxSize()
	assert.InDelta(t, 450.0, w, 1e-9)
	assert.InDelta(t, 666.0, h, 1e-9)
}

func TestPageBoxSize_Overridden(t *testing.T) {
	g := Geometry{TrimWidth: 8.5, TrimHeight: 11, Bleed: 0, Margin: 36}
	w, h := g.PageBoxSize()
	assert.InDelta(t, 612.0, w, 1e-9)
	assert.InDelta(t, 792.0, h, 1e-9)
}

func TestImageFillRect(t *testing.T) {
	g := DefaultGeometry()
	r := g.ImageFillRect()
	w, h := g.PageBoxSize()
	assert.Equal(t, Rect{X: -9, Y: -9, W: w, H: h}, r)

	// the rect always covers the trimmed area
	tw, th := g.TrimSize()
	b := g.BleedUnits()
	assert.LessOrEqual(t, r.X, b)
	assert.LessOrEqual(t, r.Y, b)
	assert.GreaterOrEqual(t, r.X+r.W, b+tw)
	assert.GreaterOrEqual(t, r.Y+r.H, b+th)
}

func TestTextAnchorY(t *testing.T) {
	tests := []struct {
		name     string
		position TextPosition
		want     float64
	}{
		{"top", Top, 666 - 20 - 18},
		{"center", Center, (666 - 18) / 2.0},
		{"bottom", Bottom, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TextAnchorY(tt.position, 666, 20, 18)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestTextAnchorY_MarginMonotonic(t *testing.T) {
	const pageHeight, fontSize = 666.0, 18.0
	prevTop, prevBottom := 0.0, 0.0
	center0, err := TextAnchorY(Center, pageHeight, 0, fontSize)
	require.NoError(t, err)

	for i, margin := range []float64{0, 10, 20, 50, 100, 200} {
		top, err := TextAnchorY(Top, pageHeight, margin, fontSize)
		require.NoError(t, err)
		bottom, err := TextAnchorY(Bottom, pageHeight, margin, fontSize)
		require.NoError(t, err)
		center, err := TextAnchorY(Center, pageHeight, margin, fontSize)
		require.NoError(t, err)

		if i > 0 {
			assert.Less(t, top, prevTop, "top anchor moves down as margin grows")
			assert.Greater(t, bottom, prevBottom, "bottom anchor moves up as margin grows")
		}
		assert.Equal(t, center0, center, "center anchor ignores margin")
		prevTop, prevBottom = top, bottom
	}
}

func TestTextAnchorY_DoesNotFit(t *testing.T) {
	_, err := TextAnchorY(Top, 100, 20, 60)
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = TextAnchorY(Center, 100, 20, 59.9)
	assert.NoError(t, err)

	_, err = TextAnchorY(Bottom, 100, 20, 0)
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = TextAnchorY(TextPosition(7), 100, 20, 10)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestGeometry_MaxFontSizeFits(t *testing.T) {
	g := DefaultGeometry()
	_, h := g.PageBoxSize()
	_, err := TextAnchorY(Top, h, g.Margin, g.MaxFontSize())
	assert.NoError(t, err)
	_, err = TextAnchorY(Top, h, g.Margin, h-2*g.Margin)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestGeometry_Validate(t *testing.T) {
	assert.NoError(t, DefaultGeometry().Validate())
	assert.ErrorIs(t, Geometry{TrimWidth: 0, TrimHeight: 9}.Validate(), ErrInvalidGeometry)
	assert.ErrorIs(t, Geometry{TrimWidth: 6, TrimHeight: 9, Bleed: -1}.Validate(), ErrInvalidGeometry)
	assert.ErrorIs(t, Geometry{TrimWidth: 1, TrimHeight: 9, Margin: 40}.Validate(), ErrInvalidGeometry)
}
