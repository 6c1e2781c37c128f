// Package fetch provides image sources for the book compiler.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/picturebook/bookcompiler"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 32 << 20
)

// HTTPSource fetches images over HTTP(S).
type HTTPSource struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	log       logrus.FieldLogger
}

// Option configures an HTTPSource.
type Option func(*HTTPSource)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout sets the per-request timeout. The client is copied first, so a
// client passed to WithClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSource) {
		c := *s.client
		c.Timeout = d
		s.client = &c
	}
}

// WithMaxBytes caps the size of a fetched image.
func WithMaxBytes(n int64) Option {
	return func(s *HTTPSource) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *HTTPSource) {
		s.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *HTTPSource) {
		if l != nil {
			s.log = l
		}
	}
}

// NewHTTPSource creates an HTTPSource with a 30s timeout and a 32 MiB limit.
func NewHTTPSource(opts ...Option) *HTTPSource {
	s := &HTTPSource{
		client:    &http.Client{Timeout: DefaultTimeout},
		maxBytes:  DefaultMaxBytes,
		userAgent: "picturebook",
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch downloads ref. Transport errors, non-2xx statuses and oversize
// bodies are reported as bookcompiler.ErrFetchFailed.
func (s *HTTPSource) Fetch(ctx context.Context, ref string) (*bookcompiler.Blob, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %v", bookcompiler.ErrFetchFailed, ref, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q in %q", bookcompiler.ErrFetchFailed, u.Scheme, ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", bookcompiler.ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", bookcompiler.ErrFetchFailed, ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: unexpected status code %d", bookcompiler.ErrFetchFailed, ref, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: reading %s: %v", bookcompiler.ErrFetchFailed, ref, err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", bookcompiler.ErrFetchFailed, ref, s.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}

	s.log.WithFields(logrus.Fields{
		"ref":          ref,
		"bytes":        len(body),
		"content_type": contentType,
		"elapsed":      time.Since(start),
	}).Debug("image fetched")

	return &bookcompiler.Blob{Data: body, ContentType: contentType}, nil
}
