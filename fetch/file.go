package fetch

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/opd-ai/picturebook/bookcompiler"
)

// FileSource reads images from the local filesystem. Relative references
// resolve against Root.
type FileSource struct {
	Root string
}

// Fetch reads ref, which may be a plain path or a file:// URL.
func (f FileSource) Fetch(ctx context.Context, ref string) (*bookcompiler.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := ref
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing %q: %v", bookcompiler.ErrFetchFailed, ref, err)
		}
		path = u.Path
	}
	if !filepath.IsAbs(path) && f.Root != "" {
		path = filepath.Join(f.Root, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", bookcompiler.ErrFetchFailed, path, err)
	}
	return &bookcompiler.Blob{
		Data:        data,
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
	}, nil
}

// Mux dispatches http and https references to Remote and everything else
// to Local.
type Mux struct {
	Remote bookcompiler.ImageSource
	Local  bookcompiler.ImageSource
}

func (m Mux) Fetch(ctx context.Context, ref string) (*bookcompiler.Blob, error) {
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if m.Remote == nil {
			return nil, fmt.Errorf("%w: remote images are disabled: %s", bookcompiler.ErrFetchFailed, ref)
		}
		return m.Remote.Fetch(ctx, ref)
	}
	if m.Local == nil {
		return nil, fmt.Errorf("%w: local images are disabled: %s", bookcompiler.ErrFetchFailed, ref)
	}
	return m.Local.Fetch(ctx, ref)
}
