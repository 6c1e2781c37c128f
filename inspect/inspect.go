// Package inspect reads a produced PDF back to report its page structure.
package inspect

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// keep pdfcpu from creating a config directory in the user's home
	model.ConfigPath = "disable"
}

// ErrEmpty is returned when there are no bytes to inspect.
var ErrEmpty = errors.New("inspect: empty document")

// PageBox is a page's media box size in points.
type PageBox struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Summary describes the structure of a PDF.
type Summary struct {
	PageCount int       `json:"pageCount"`
	Pages     []PageBox `json:"pages"`
}

// Summarize parses and validates data, then returns the page count and
// page sizes.
func Summarize(data []byte) (*Summary, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadAndValidate(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("inspect: reading document: %w", err)
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("inspect: reading page sizes: %w", err)
	}

	s := &Summary{
		PageCount: ctx.PageCount,
		Pages:     make([]PageBox, 0, len(dims)),
	}
	for _, d := range dims {
		s.Pages = append(s.Pages, PageBox{Width: d.Width, Height: d.Height})
	}
	return s, nil
}

// Check verifies that data holds wantPages pages, all of the given size
// within tolerance.
func Check(data []byte, wantPages int, width, height, tolerance float64) error {
	s, err := Summarize(data)
	if err != nil {
		return err
	}
	if s.PageCount != wantPages {
		return fmt.Errorf("inspect: got %d pages, want %d", s.PageCount, wantPages)
	}
	for i, p := range s.Pages {
		if abs(p.Width-width) > tolerance || abs(p.Height-height) > tolerance {
			return fmt.Errorf("inspect: page %d is %.2fx%.2f, want %.2fx%.2f", i+1, p.Width, p.Height, width, height)
		}
	}
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
