package bookcompiler

import (
	"time"

	"github.com/sirupsen/logrus"
)

// FillMode selects how an image is made to fill its rectangle.
type FillMode int

const (
	// FillStretch hands the original bytes to the writer, which stretches
	// them to the rectangle.
	FillStretch FillMode = iota
	// FillCrop center-crops the decoded image to the rectangle's aspect
	// ratio before staging it.
	FillCrop
)

func (m FillMode) String() string {
	if m == FillCrop {
		return "crop"
	}
	return "stretch"
}

// Config holds the compiler settings. Use DefaultConfig and Options rather
// than filling it by hand.
type Config struct {
	Geometry         Geometry
	LineSpacing      float64
	FontFamily       string
	FetchConcurrency int
	MaxPixels        int
	FillMode         FillMode
	ClampFontSize    bool
	Title            string
	Author           string
	CreationDate     time.Time
	Logger           logrus.FieldLogger
}

// DefaultMaxPixels bounds the decoded size of a page image (40 megapixels).
const DefaultMaxPixels = 40_000_000

// DefaultCreationDate is written as both the creation and modification date
// of every document.
var DefaultCreationDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultConfig returns the settings used when no options are given.
func DefaultConfig() Config {
	return Config{
		Geometry:         DefaultGeometry(),
		LineSpacing:      1.2,
		FontFamily:       "Helvetica",
		FetchConcurrency: 1,
		MaxPixels:        DefaultMaxPixels,
		FillMode:         FillStretch,
		CreationDate:     DefaultCreationDate,
		Logger:           logrus.StandardLogger(),
	}
}

// Option configures a Compiler.
type Option func(*Config)

// WithTrimSize sets the trim width and height in inches.
func WithTrimSize(width, height float64) Option {
	return func(c *Config) {
		c.Geometry.TrimWidth = width
		c.Geometry.TrimHeight = height
	}
}

// WithBleed sets the bleed on every edge, in inches.
func WithBleed(bleed float64) Option {
	return func(c *Config) {
		c.Geometry.Bleed = bleed
	}
}

// WithMargin sets the text margin in document units.
func WithMargin(margin float64) Option {
	return func(c *Config) {
		c.Geometry.Margin = margin
	}
}

// WithLineSpacing sets the line height as a multiple of the font size.
func WithLineSpacing(spacing float64) Option {
	return func(c *Config) {
		if spacing > 0 {
			c.LineSpacing = spacing
		}
	}
}

// WithFontFamily selects one of the writer's core font families
// (Helvetica, Times, Courier).
func WithFontFamily(family string) Option {
	return func(c *Config) {
		if family != "" {
			c.FontFamily = family
		}
	}
}

// WithFetchConcurrency sets how many image loads may run at once. Values
// below one are treated as one.
func WithFetchConcurrency(n int) Option {
	return func(c *Config) {
		if n < 1 {
			n = 1
		}
		c.FetchConcurrency = n
	}
}

// WithMaxPixels sets the largest image, in pixels, the compiler will decode.
// Larger images are skipped with a diagnostic.
func WithMaxPixels(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxPixels = n
		}
	}
}

// WithFillMode sets how images fill the page.
func WithFillMode(mode FillMode) Option {
	return func(c *Config) {
		c.FillMode = mode
	}
}

// WithClampFontSize makes an oversize font shrink to the largest size that
// fits instead of failing the compile.
func WithClampFontSize(clamp bool) Option {
	return func(c *Config) {
		c.ClampFontSize = clamp
	}
}

// WithTitle sets the document title metadata.
func WithTitle(title string) Option {
	return func(c *Config) {
		c.Title = title
	}
}

// WithAuthor sets the document author metadata.
func WithAuthor(author string) Option {
	return func(c *Config) {
		c.Author = author
	}
}

// WithCreationDate overrides the fixed creation date written to the document.
func WithCreationDate(t time.Time) Option {
	return func(c *Config) {
		if !t.IsZero() {
			c.CreationDate = t.UTC()
		}
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}
