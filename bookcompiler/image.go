package bookcompiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"math"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
)

// Blob is the raw result of fetching an image reference
type Blob struct {
	Data        []byte
	ContentType string
}

// ImageSource retrieves the bytes behind an image reference. Implementations
// should wrap unreachable sources and non-success statuses in ErrFetchFailed.
type ImageSource interface {
	Fetch(ctx context.Context, ref string) (*Blob, error)
}

// ImageFormat is one of the raster formats the compiler accepts
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
)

func (f ImageFormat) writerType() string {
	if f == FormatPNG {
		return "PNG"
	}
	return "JPG"
}

// StagedImage is a decoded, validated image ready to be placed on a page
type StagedImage struct {
	Ref    string
	Format ImageFormat
	Data   []byte
	Width  int
	Height int
}

// EmbedStatus is the outcome of the image stage for one page
type EmbedStatus int

const (
	NoImage EmbedStatus = iota
	Embedded
	Skipped
)

func (s EmbedStatus) String() string {
	switch s {
	case Embedded:
		return "embedded"
	case Skipped:
		return "skipped"
	}
	return "none"
}

// EmbedOutcome is the per-page result of the image stage. Reason is set
// only when Status is Skipped.
type EmbedOutcome struct {
	Status EmbedStatus
	Image  *StagedImage
	Reason error
}

// ImageEmbedder resolves image references and stages them on page canvases.
type ImageEmbedder struct {
	source    ImageSource
	mode      FillMode
	maxPixels int
	log       logrus.FieldLogger
}

// NewImageEmbedder creates an embedder reading from src.
func NewImageEmbedder(src ImageSource, mode FillMode, log logrus.FieldLogger) *ImageEmbedder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ImageEmbedder{source: src, mode: mode, maxPixels: DefaultMaxPixels, log: log}
}

// SetMaxPixels bounds the width*height of images Load will decode. Values
// below one are ignored.
func (e *ImageEmbedder) SetMaxPixels(n int) *ImageEmbedder {
	if n > 0 {
		e.maxPixels = n
	}
	return e
}

// DetectFormat picks the image format from the declared MIME type, falling
// back to the reference's path suffix. Only JPEG and PNG are accepted.
func DetectFormat(contentType, ref string) (ImageFormat, error) {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			switch mediaType {
			case "image/jpeg", "image/jpg", "image/pjpeg":
				return FormatJPEG, nil
			case "image/png":
				return FormatPNG, nil
			}
			if strings.HasPrefix(mediaType, "image/") {
				return "", fmt.Errorf("%w: content type %s", ErrUnsupportedFormat, mediaType)
			}
		}
	}

	p := ref
	if u, err := url.Parse(ref); err == nil {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".png":
		return FormatPNG, nil
	}
	return "", fmt.Errorf("%w: cannot detect format of %q (content type %q)", ErrUnsupportedFormat, ref, contentType)
}

// Load fetches, detects and decodes the image behind ref and prepares it to
// fill rect. It is safe to call from several goroutines. An empty ref yields
// a nil image and no error.
func (e *ImageEmbedder) Load(ctx context.Context, ref string, rect Rect) (*StagedImage, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	if e.source == nil {
		return nil, fmt.Errorf("%w: no image source configured for %q", ErrFetchFailed, ref)
	}

	blob, err := e.source.Fetch(ctx, ref)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrFetchFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, ref, err)
	}
	if blob == nil || len(blob.Data) == 0 {
		return nil, fmt.Errorf("%w: %s returned no data", ErrFetchFailed, ref)
	}

	declared, err := DetectFormat(blob.ContentType, ref)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(blob.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrUnsupportedFormat, ref, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(e.maxPixels) {
		return nil, fmt.Errorf("%w: %s is %dx%d pixels, limit is %d", ErrUnsupportedFormat, ref, cfg.Width, cfg.Height, e.maxPixels)
	}

	img, name, err := image.Decode(bytes.NewReader(blob.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrUnsupportedFormat, ref, err)
	}
	actual := ImageFormat(name)
	if actual != FormatJPEG && actual != FormatPNG {
		return nil, fmt.Errorf("%w: %s decoded as %s", ErrUnsupportedFormat, ref, name)
	}
	if actual != declared {
		e.log.WithFields(logrus.Fields{
			"ref":      ref,
			"declared": declared,
			"actual":   actual,
		}).Warn("image format does not match its declared type, using decoded format")
	}

	bounds := img.Bounds()
	staged := &StagedImage{
		Ref:    ref,
		Format: actual,
		Data:   blob.Data,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}
	if e.mode == FillCrop {
		if err := cropToFill(staged, img, rect); err != nil {
			return nil, err
		}
	}
	return staged, nil
}

// cropToFill center-crops img to the aspect ratio of rect at native
// resolution and re-encodes it losslessly.
func cropToFill(staged *StagedImage, img image.Image, rect Rect) error {
	if rect.W <= 0 || rect.H <= 0 {
		return nil
	}
	w, h := staged.Width, staged.Height
	aspect := rect.W / rect.H
	cw, ch := w, h
	if float64(w)/float64(h) > aspect {
		cw = int(math.Round(float64(h) * aspect))
	} else {
		ch = int(math.Round(float64(w) / aspect))
	}
	cw = max(cw, 1)
	ch = max(ch, 1)
	if cw == w && ch == h {
		return nil
	}

	cropped := imaging.Fill(img, cw, ch, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return fmt.Errorf("%w: re-encoding cropped %s: %v", ErrUnsupportedFormat, staged.Ref, err)
	}
	staged.Data = buf.Bytes()
	staged.Format = FormatPNG
	staged.Width = cw
	staged.Height = ch
	return nil
}

// Place registers the staged image under name and draws it into rect on the
// current page. A writer rejection is cleared so the rest of the document can
// still be produced, and is returned as ErrUnsupportedFormat.
func (e *ImageEmbedder) Place(pdf *gofpdf.Fpdf, name string, img *StagedImage, rect Rect, pageHeight float64) error {
	opts := gofpdf.ImageOptions{ImageType: img.Format.writerType(), ReadDpi: false}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Data))
	if pdf.Err() {
		err := pdf.Error()
		pdf.ClearError()
		return fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, img.Ref, err)
	}

	// gofpdf measures y from the top edge
	y := pageHeight - rect.Y - rect.H
	pdf.ImageOptions(name, rect.X, y, rect.W, rect.H, false, opts, 0, "")
	return nil
}
