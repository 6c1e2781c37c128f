package srv

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/picturebook/bookcompiler"
	"github.com/opd-ai/picturebook/inspect"
)

type mapSource struct {
	mu    sync.Mutex
	blobs map[string]*bookcompiler.Blob
	calls int
}

func (m *mapSource) Fetch(_ context.Context, ref string) (*bookcompiler.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if b, ok := m.blobs[ref]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s not found", bookcompiler.ErrFetchFailed, ref)
}

func (m *mapSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func newTestServer(t *testing.T, cfg Config) (*Server, *mapSource) {
	t.Helper()
	logger, _ := logrustest.NewNullLogger()
	src := &mapSource{blobs: map[string]*bookcompiler.Blob{
		"https://img.example.com/cover.png": {Data: testPNG(t), ContentType: "image/png"},
	}}
	compiler := bookcompiler.NewCompiler(src, bookcompiler.WithLogger(logger))
	return NewServer(compiler, cfg, logger), src
}

const bookBody = `{
	"pages": [
		{"id":"p1","category":"content","label":"Page 1","text":"Hello"},
		{"id":"back","category":"backCover","label":"Back Cover","text":""},
		{"id":"front","category":"frontCover","label":"Front Cover","imageRef":"https://img.example.com/cover.png","text":"My Book"}
	],
	"style": {"fontSize":20,"fontColor":"#000000","textPosition":"bottom"}
}`

func post(s http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestExport(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig())
	rec := post(s, "/api/export", bookBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="book.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "3", rec.Header().Get("X-Book-Pages"))
	assert.Equal(t, "[]", rec.Header().Get("X-Book-Diagnostics"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	summary, err := inspect.Summarize(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.PageCount)
}

func TestPreviewMatchesExport(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig())
	export := post(s, "/api/export", bookBody)
	time.Sleep(1100 * time.Millisecond)
	preview := post(s, "/api/preview", bookBody)
	require.Equal(t, http.StatusOK, export.Code)
	require.Equal(t, http.StatusOK, preview.Code)

	assert.Equal(t, `inline; filename="book.pdf"`, preview.Header().Get("Content-Disposition"))
	assert.Equal(t, export.Body.Bytes(), preview.Body.Bytes())
}

func TestResultCache(t *testing.T) {
	s, src := newTestServer(t, DefaultConfig())
	first := post(s, "/api/export", bookBody)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "miss", first.Header().Get("X-Cache"))
	calls := src.callCount()

	second := post(s, "/api/export", bookBody)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.Equal(t, calls, src.callCount())
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
}

func TestResultCacheSkipsLargeResults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCachedBytes = 64
	s, src := newTestServer(t, cfg)

	first := post(s, "/api/export", bookBody)
	require.Equal(t, http.StatusOK, first.Code)
	calls := src.callCount()

	second := post(s, "/api/export", bookBody)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "miss", second.Header().Get("X-Cache"))
	assert.Greater(t, src.callCount(), calls)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
}

func TestDiagnosticsHeader(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig())
	body := `{"pages":[
		{"id":"front","category":"frontCover","label":"Front Cover","imageRef":"https://img.example.com/missing.png","text":""},
		{"id":"p1","category":"content","label":"Page 1","text":"Hi"}
	]}`
	rec := post(s, "/api/export", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get("X-Book-Pages"))

	var diags []DiagnosticInfo
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get("X-Book-Diagnostics")), &diags))
	require.Len(t, diags, 1)
	assert.Equal(t, "front", diags[0].PageID)
	assert.Equal(t, "Front Cover", diags[0].Label)
	assert.Equal(t, "fetch_failed", diags[0].Kind)

	again := post(s, "/api/export", body)
	assert.Equal(t, "miss", again.Header().Get("X-Cache"), "results with diagnostics are not cached")
}

func TestCompileErrors(t *testing.T) {
	s, src := newTestServer(t, DefaultConfig())

	rec := post(s, "/api/export", `{"pages":[{"id":"p1","category":"content","text":"x"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "missing_cover", decodeError(t, rec).Error)

	rec = post(s, "/api/export", `{"pages":[{"id":"f","category":"frontCover","imageRef":"https://img.example.com/cover.png"}],
		"style":{"fontSize":20,"fontColor":"blue","textPosition":"top"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_color", decodeError(t, rec).Error)
	assert.Zero(t, src.callCount(), "style is checked before any fetch")

	rec = post(s, "/api/export", `{"pages":[{"id":"f","category":"sidebar"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_page", decodeError(t, rec).Error)

	rec = post(s, "/api/export", `{"pages":[`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeError(t, rec).Error)
}

func TestBodyTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 64
	s, _ := newTestServer(t, cfg)
	rec := post(s, "/api/export", bookBody)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "body_too_large", decodeError(t, rec).Error)
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 1
	s, _ := newTestServer(t, cfg)
	assert.Equal(t, http.StatusOK, post(s, "/api/export", bookBody).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(s, "/api/export", bookBody).Code)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health checks are not limited")
}

func TestCORSPreflight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigin = "https://editor.example.com"
	s, _ := newTestServer(t, cfg)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/export", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://editor.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Book-Diagnostics")
}

func TestRecoveryMiddleware(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "panic recovered", hook.LastEntry().Message)
}

func TestLoggingMiddleware(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tea", nil))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, http.StatusTeapot, hook.LastEntry().Data["status"])
	assert.Equal(t, "/tea", hook.LastEntry().Data["path"])
}

func TestConfigFromLookup(t *testing.T) {
	env := map[string]string{
		"PICTUREBOOK_ADDR":             ":9000",
		"PICTUREBOOK_RATE_LIMIT":       "5",
		"PICTUREBOOK_MAX_BODY":         "2048",
		"PICTUREBOOK_TLS_CERT":         "cert.pem",
		"PICTUREBOOK_TLS_KEY":          "key.pem",
		"PICTUREBOOK_MAX_CACHED_BYTES": "0",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg, err := configFromLookup(lookup)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 5, cfg.RateLimit)
	assert.EqualValues(t, 2048, cfg.MaxBodyBytes)
	assert.True(t, cfg.TLSEnabled())
	assert.Zero(t, cfg.MaxCachedBytes)

	env["PICTUREBOOK_RATE_LIMIT"] = "lots"
	_, err = configFromLookup(lookup)
	assert.Error(t, err)

	cfg, err = configFromLookup(func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.False(t, cfg.TLSEnabled())
}

func TestGenerateCertificates(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls", "cert.pem")
	keyFile := filepath.Join(dir, "tls", "key.pem")

	require.NoError(t, generateCertificates(certFile, keyFile, "books.example.com:8443"))
	assert.True(t, fileExists(certFile))
	assert.True(t, fileExists(keyFile))

	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)
	assert.NoError(t, cert.VerifyHostname("books.example.com"))
	assert.NoError(t, cert.VerifyHostname("localhost"))
}

func TestCertificateHosts(t *testing.T) {
	dns, ips := certificateHosts(":8443")
	assert.Equal(t, []string{"localhost"}, dns)
	assert.Len(t, ips, 2)

	dns, ips = certificateHosts("10.0.0.5:8443")
	assert.Equal(t, []string{"localhost"}, dns)
	require.Len(t, ips, 3)
	assert.Equal(t, "10.0.0.5", ips[2].String())

	dns, _ = certificateHosts("books.example.com:443")
	assert.Equal(t, []string{"localhost", "books.example.com"}, dns)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	s, _ := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
