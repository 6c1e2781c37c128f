package bookcompiler

import (
	"fmt"
	"strings"
)

// Category tags a page as a cover or a content page. The zero value is not
// a valid category.
type Category int

const (
	Content Category = iota + 1
	FrontCover
	BackCover
)

func (c Category) String() string {
	switch c {
	case FrontCover:
		return "frontCover"
	case BackCover:
		return "backCover"
	case Content:
		return "content"
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

func (c Category) MarshalText() ([]byte, error) {
	switch c {
	case FrontCover, BackCover, Content:
		return []byte(c.String()), nil
	}
	return nil, fmt.Errorf("%w: unknown category %d", ErrInvalidPage, int(c))
}

func (c *Category) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "frontcover", "front_cover", "front":
		*c = FrontCover
	case "backcover", "back_cover", "back":
		*c = BackCover
	case "content", "page":
		*c = Content
	default:
		return fmt.Errorf("%w: unknown category %q", ErrInvalidPage, b)
	}
	return nil
}

// Page is one unit of the book
type Page struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Label    string   `json:"label"`
	ImageRef string   `json:"imageRef,omitempty"`
	Text     string   `json:"text"`
}

// HasImage reports whether the page references an image
func (p Page) HasImage() bool {
	return strings.TrimSpace(p.ImageRef) != ""
}

// TextPosition is the vertical anchor rule for a page's text block
type TextPosition int

const (
	Top TextPosition = iota
	Center
	Bottom
)

func (tp TextPosition) String() string {
	switch tp {
	case Top:
		return "top"
	case Center:
		return "center"
	case Bottom:
		return "bottom"
	}
	return fmt.Sprintf("TextPosition(%d)", int(tp))
}

func (tp TextPosition) MarshalText() ([]byte, error) {
	switch tp {
	case Top, Center, Bottom:
		return []byte(tp.String()), nil
	}
	return nil, fmt.Errorf("%w: unknown text position %d", ErrInvalidGeometry, int(tp))
}

func (tp *TextPosition) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "top":
		*tp = Top
	case "center", "centre", "middle":
		*tp = Center
	case "bottom":
		*tp = Bottom
	default:
		return fmt.Errorf("%w: unknown text position %q", ErrInvalidGeometry, b)
	}
	return nil
}

// Style holds the document-wide text rendering parameters
type Style struct {
	FontSize     float64      `json:"fontSize"`
	FontColor    string       `json:"fontColor"`
	TextPosition TextPosition `json:"textPosition"`
}

// DefaultStyle returns 18pt black text centered on the page
func DefaultStyle() Style {
	return Style{FontSize: 18, FontColor: "#000000", TextPosition: Center}
}

// Rect is an axis-aligned rectangle in document units with a bottom-left origin.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// TextLine is a laid-out line of text. X is the left edge and Y the baseline,
// both in bottom-left coordinates.
type TextLine struct {
	Text  string  `json:"text"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Width float64 `json:"width"`
}

// RenderedPage describes a page as it was written to the output stream
type RenderedPage struct {
	ID       string     `json:"id"`
	Category Category   `json:"category"`
	Label    string     `json:"label"`
	Width    float64    `json:"width"`
	Height   float64    `json:"height"`
	Image    *Rect      `json:"image,omitempty"`
	Lines    []TextLine `json:"lines,omitempty"`
}

// Document is the compiled artifact's metadata. It is never mutated once returned.
type Document struct {
	TrimWidth  float64        `json:"trimWidth"`
	TrimHeight float64        `json:"trimHeight"`
	Bleed      float64        `json:"bleed"`
	Pages      []RenderedPage `json:"pages"`
}

// Disposition tells the consumer how to present the bytes
type Disposition int

const (
	Attachment Disposition = iota
	Inline
)

func (d Disposition) String() string {
	if d == Inline {
		return "inline"
	}
	return "attachment"
}

// DefaultFilename is the suggested name for an exported book
const DefaultFilename = "book.pdf"

// Result is the output of a compile call
type Result struct {
	Bytes       []byte
	Document    *Document
	Diagnostics []Diagnostic
	Disposition Disposition
	Filename    string
}

// ContentDisposition renders the HTTP Content-Disposition header value
func (r *Result) ContentDisposition() string {
	return fmt.Sprintf("%s; filename=%q", r.Disposition, r.Filename)
}
