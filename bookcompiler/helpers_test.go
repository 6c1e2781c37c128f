package bookcompiler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// stubSource serves canned blobs and errors keyed by reference.
type stubSource struct {
	mu     sync.Mutex
	blobs  map[string]*Blob
	errs   map[string]error
	delays map[string]time.Duration
	calls  []string
	onCall func(ref string)
}

func newStubSource() *stubSource {
	return &stubSource{
		blobs:  make(map[string]*Blob),
		errs:   make(map[string]error),
		delays: make(map[string]time.Duration),
	}
}

func (s *stubSource) Fetch(ctx context.Context, ref string) (*Blob, error) {
	s.mu.Lock()
	s.calls = append(s.calls, ref)
	blob, err, delay, hook := s.blobs[ref], s.errs[ref], s.delays[ref], s.onCall
	s.mu.Unlock()

	if hook != nil {
		hook(ref)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("%w: %s: status 404", ErrFetchFailed, ref)
	}
	return blob, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(w, h, color.NRGBA{R: 200, G: 30, B: 30, A: 255})))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(w, h, color.NRGBA{R: 30, G: 30, B: 200, A: 255}), nil))
	return buf.Bytes()
}

func quietLogger() (*logrus.Logger, *logrustest.Hook) {
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func samplePages() []Page {
	return []Page{
		{ID: "front", Category: FrontCover, Label: "Front Cover", Text: ""},
		{ID: "page1", Category: Content, Label: "Page 1", Text: "Hello"},
		{ID: "back", Category: BackCover, Label: "Back Cover", Text: ""},
	}
}
