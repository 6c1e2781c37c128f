package bookcompiler

import (
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// TextOverlayRenderer lays out and draws a page's single text block.
type TextOverlayRenderer struct {
	family      string
	lineSpacing float64
	margin      float64
}

// NewTextOverlayRenderer creates a renderer for a core font family.
func NewTextOverlayRenderer(family string, lineSpacing, margin float64) *TextOverlayRenderer {
	if family == "" {
		family = "Helvetica"
	}
	if lineSpacing <= 0 {
		lineSpacing = 1.2
	}
	return &TextOverlayRenderer{family: family, lineSpacing: lineSpacing, margin: margin}
}

// SplitText breaks text into lines no wider than width. Newlines start a new
// paragraph, and paragraphs break on word boundaries. A word wider than width
// is kept whole on its own line.
func SplitText(text string, width float64, measure func(string) float64) []string {
	var lines []string
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		currentLine := ""
		for _, word := range words {
			testLine := currentLine
			if testLine != "" {
				testLine += " "
			}
			testLine += word

			if measure(testLine) > width && currentLine != "" {
				lines = append(lines, currentLine)
				currentLine = word
			} else {
				currentLine = testLine
			}
		}
		lines = append(lines, currentLine)
	}

	// blank paragraphs only count between text
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil
	}
	return lines
}

// Layout positions the text block on a pageWidth x pageHeight page.
// Coordinates are bottom-left. Blank lines take up space but are not
// returned.
func (r *TextOverlayRenderer) Layout(text string, style Style, pageWidth, pageHeight float64, measure func(string) float64) ([]TextLine, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	anchor, err := TextAnchorY(style.TextPosition, pageHeight, r.margin, style.FontSize)
	if err != nil {
		return nil, err
	}

	available := pageWidth - 2*r.margin
	split := SplitText(text, available, measure)
	n := len(split)
	lineHeight := style.FontSize * r.lineSpacing

	lines := make([]TextLine, 0, n)
	for i, s := range split {
		var y float64
		switch style.TextPosition {
		case Top:
			y = anchor - float64(i)*lineHeight
		case Bottom:
			y = anchor + float64(n-1-i)*lineHeight
		default:
			y = anchor + float64(n-1)*lineHeight/2 - float64(i)*lineHeight
		}
		if s == "" {
			continue
		}
		w := measure(s)
		lines = append(lines, TextLine{
			Text:  s,
			X:     r.margin + (available-w)/2,
			Y:     y,
			Width: w,
		})
	}
	return lines, nil
}

// Render draws text on the current page of pdf. Empty text is a no-op; the
// only content-independent failure is a malformed color.
func (r *TextOverlayRenderer) Render(pdf *gofpdf.Fpdf, text string, style Style, pageWidth, pageHeight float64) ([]TextLine, error) {
	color, err := ParseHexColor(style.FontColor)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	pdf.SetFont(r.family, "", style.FontSize)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	measure := func(s string) float64 {
		return pdf.GetStringWidth(tr(s))
	}

	lines, err := r.Layout(text, style, pageWidth, pageHeight, measure)
	if err != nil {
		return nil, err
	}

	cr, cg, cb := color.RGB255()
	pdf.SetTextColor(cr, cg, cb)
	for _, line := range lines {
		// gofpdf measures the baseline from the top edge
		pdf.Text(line.X, pageHeight-line.Y, tr(line.Text))
	}
	return lines, nil
}
