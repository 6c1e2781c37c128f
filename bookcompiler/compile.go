package bookcompiler

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Compiler turns a page collection and a style into a PDF. A Compiler is
// safe for concurrent use; every compile call builds its own document.
type Compiler struct {
	cfg      Config
	embedder *ImageEmbedder
	renderer *TextOverlayRenderer
	log      logrus.FieldLogger
}

// NewCompiler creates a compiler that reads images from src.
func NewCompiler(src ImageSource, opts ...Option) *Compiler {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Compiler{
		cfg:      cfg,
		embedder: NewImageEmbedder(src, cfg.FillMode, cfg.Logger).SetMaxPixels(cfg.MaxPixels),
		renderer: NewTextOverlayRenderer(cfg.FontFamily, cfg.LineSpacing, cfg.Geometry.Margin),
		log:      cfg.Logger,
	}
}

// Config returns the compiler's settings.
func (c *Compiler) Config() Config {
	return c.cfg
}

// Export compiles the book for saving as a file.
func (c *Compiler) Export(ctx context.Context, pages []Page, style Style) (*Result, error) {
	return c.run(ctx, pages, style, Attachment)
}

// Preview compiles the book for transient viewing. The bytes are identical
// to Export's for the same input.
func (c *Compiler) Preview(ctx context.Context, pages []Page, style Style) (*Result, error) {
	return c.run(ctx, pages, style, Inline)
}

func (c *Compiler) run(ctx context.Context, pages []Page, style Style, disposition Disposition) (*Result, error) {
	res, err := c.compile(ctx, pages, style)
	if err != nil {
		return nil, err
	}
	res.Disposition = disposition
	res.Filename = DefaultFilename
	return res, nil
}

// ValidateStyle checks style against the configured geometry and returns the
// style the compiler will actually use.
func (c *Compiler) ValidateStyle(style Style) (Style, error) {
	if _, err := ParseHexColor(style.FontColor); err != nil {
		return style, err
	}
	switch style.TextPosition {
	case Top, Center, Bottom:
	default:
		return style, fmt.Errorf("%w: unknown text position %d", ErrInvalidGeometry, int(style.TextPosition))
	}
	if style.FontSize <= 0 || math.IsNaN(style.FontSize) || math.IsInf(style.FontSize, 0) {
		return style, fmt.Errorf("%w: font size %g must be a positive number", ErrInvalidGeometry, style.FontSize)
	}

	_, pageHeight := c.cfg.Geometry.PageBoxSize()
	if _, err := TextAnchorY(style.TextPosition, pageHeight, c.cfg.Geometry.Margin, style.FontSize); err != nil {
		if !c.cfg.ClampFontSize {
			return style, err
		}
		clamped := c.cfg.Geometry.MaxFontSize()
		c.log.WithFields(logrus.Fields{
			"font_size": style.FontSize,
			"clamped":   clamped,
		}).Warn("font size does not fit the page, clamping")
		style.FontSize = clamped
	}
	return style, nil
}

func (c *Compiler) compile(ctx context.Context, pages []Page, style Style) (*Result, error) {
	// Snapshot so edits to the caller's slice are not observed mid-compile
	snapshot := make([]Page, len(pages))
	copy(snapshot, pages)

	geom := c.cfg.Geometry
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	style, err := c.ValidateStyle(style)
	if err != nil {
		return nil, err
	}

	ordered, err := ResolveOrder(snapshot)
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{
		"pages":         len(ordered),
		"font_size":     style.FontSize,
		"text_position": style.TextPosition,
	}).Debug("compiling book")

	outcomes, err := c.loadImages(ctx, ordered)
	if err != nil {
		return nil, err
	}

	pageWidth, pageHeight := geom.PageBoxSize()
	trimWidth, trimHeight := geom.TrimSize()
	fillRect := geom.ImageFillRect()

	pdf := c.newPDF(pageWidth, pageHeight)
	doc := &Document{
		TrimWidth:  trimWidth,
		TrimHeight: trimHeight,
		Bleed:      geom.BleedUnits(),
		Pages:      make([]RenderedPage, 0, len(ordered)),
	}
	var diagnostics []Diagnostic

	for i, page := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := c.log.WithFields(logrus.Fields{"page_id": page.ID, "page_index": i})

		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: pageWidth, Ht: pageHeight})
		rendered := RenderedPage{
			ID:       page.ID,
			Category: page.Category,
			Label:    page.Label,
			Width:    pageWidth,
			Height:   pageHeight,
		}

		outcome := outcomes[i]
		if outcome.Status == Embedded {
			name := fmt.Sprintf("page-%03d-%s", i, page.ID)
			if err := c.embedder.Place(pdf, name, outcome.Image, fillRect, pageHeight); err != nil {
				outcome = EmbedOutcome{Status: Skipped, Reason: err}
			} else {
				rect := fillRect
				rendered.Image = &rect
			}
		}
		if outcome.Status == Skipped {
			d := Diagnostic{PageID: page.ID, Index: i, Label: page.Label, Err: outcome.Reason}
			diagnostics = append(diagnostics, d)
			entry.WithError(outcome.Reason).Warn("page image skipped")
		}

		lines, err := c.renderer.Render(pdf, page.Text, style, pageWidth, pageHeight)
		if err != nil {
			return nil, fmt.Errorf("rendering text for page %q: %w", page.ID, err)
		}
		rendered.Lines = lines
		doc.Pages = append(doc.Pages, rendered)

		entry.WithFields(logrus.Fields{
			"image": outcome.Status,
			"lines": len(lines),
		}).Debug("page compiled")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	c.log.WithFields(logrus.Fields{
		"pages":       len(doc.Pages),
		"bytes":       buf.Len(),
		"diagnostics": len(diagnostics),
	}).Info("book compiled")

	return &Result{
		Bytes:       buf.Bytes(),
		Document:    doc,
		Diagnostics: diagnostics,
	}, nil
}

// loadImages runs the image stage for every page. Loads may run
// concurrently, but each result lands in its page's slot so the caller sees
// them in canonical order.
func (c *Compiler) loadImages(ctx context.Context, ordered []Page) ([]EmbedOutcome, error) {
	outcomes := make([]EmbedOutcome, len(ordered))
	rect := c.cfg.Geometry.ImageFillRect()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.cfg.FetchConcurrency, 1))
	for i, page := range ordered {
		if !page.HasImage() {
			continue
		}
		i, page := i, page
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := c.embedder.Load(gctx, page.ImageRef, rect)
			switch {
			case err == nil:
				outcomes[i] = EmbedOutcome{Status: Embedded, Image: img}
			case IsFatal(err):
				return err
			default:
				outcomes[i] = EmbedOutcome{Status: Skipped, Reason: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return outcomes, nil
}

func (c *Compiler) newPDF(pageWidth, pageHeight float64) *gofpdf.Fpdf {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: pageWidth, Ht: pageHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(c.cfg.CreationDate)
	pdf.SetModificationDate(c.cfg.CreationDate)
	if c.cfg.Title != "" {
		pdf.SetTitle(c.cfg.Title, true)
	}
	if c.cfg.Author != "" {
		pdf.SetAuthor(c.cfg.Author, true)
	}
	return pdf
}
