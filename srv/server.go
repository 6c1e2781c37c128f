// Package srv exposes the book compiler over HTTP.
package srv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/picturebook/bookcompiler"
)

// CompileRequest is the body accepted by the export and preview endpoints.
// A missing style selects bookcompiler.DefaultStyle.
type CompileRequest struct {
	Pages []bookcompiler.Page `json:"pages"`
	Style *bookcompiler.Style `json:"style,omitempty"`
}

// DiagnosticInfo is the wire form of a bookcompiler.Diagnostic.
type DiagnosticInfo struct {
	PageID  string `json:"pageId"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Server routes HTTP requests to a Compiler.
type Server struct {
	router   chi.Router
	compiler *bookcompiler.Compiler
	results  *cache.Cache
	cfg      Config
	log      logrus.FieldLogger
}

// NewServer builds the router for compiler.
func NewServer(compiler *bookcompiler.Compiler, cfg Config, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	def := DefaultConfig()
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = def.RateWindow
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = def.AllowedOrigin
	}

	s := &Server{
		router:   chi.NewRouter(),
		compiler: compiler,
		results:  cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		cfg:      cfg,
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(LoggingMiddleware(s.log))
	s.router.Use(RecoveryMiddleware(s.log))
	s.router.Use(corsMiddleware(s.cfg.AllowedOrigin))

	s.router.Get("/healthz", handleHealthCheck)
	s.router.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.cfg.RateLimit, s.cfg.RateWindow))
		r.Post("/export", s.handleCompile(bookcompiler.Attachment))
		r.Post("/preview", s.handleCompile(bookcompiler.Inline))
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleCompile(disposition bookcompiler.Disposition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		var req CompileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeDecodeError(w, err)
			return
		}
		style := bookcompiler.DefaultStyle()
		if req.Style != nil {
			style = *req.Style
		}

		key, err := requestKey(disposition, req.Pages, style)
		if err != nil {
			writeError(w, http.StatusBadRequest, bookcompiler.ErrorKind(err), err.Error())
			return
		}
		if v, ok := s.results.Get(key); ok {
			if res, ok := v.(*bookcompiler.Result); ok {
				w.Header().Set("X-Cache", "hit")
				s.writeResult(w, res)
				return
			}
		}

		ctx := r.Context()
		if s.cfg.CompileTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.CompileTimeout)
			defer cancel()
		}

		var res *bookcompiler.Result
		if disposition == bookcompiler.Inline {
			res, err = s.compiler.Preview(ctx, req.Pages, style)
		} else {
			res, err = s.compiler.Export(ctx, req.Pages, style)
		}
		if err != nil {
			kind := bookcompiler.ErrorKind(err)
			s.log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"kind":       kind,
			}).WithError(err).Warn("compile failed")
			writeError(w, statusForKind(kind), kind, err.Error())
			return
		}

		// only clean, small compiles are cached; zero disables the cache
		if len(res.Diagnostics) == 0 && len(res.Bytes) <= s.cfg.MaxCachedBytes {
			s.results.Set(key, res, cache.DefaultExpiration)
		}
		w.Header().Set("X-Cache", "miss")
		s.writeResult(w, res)
	}
}

func (s *Server) writeResult(w http.ResponseWriter, res *bookcompiler.Result) {
	diags := make([]DiagnosticInfo, 0, len(res.Diagnostics))
	for _, d := range res.Diagnostics {
		diags = append(diags, DiagnosticInfo{
			PageID:  d.PageID,
			Label:   d.Label,
			Kind:    d.Kind(),
			Message: d.Err.Error(),
		})
	}
	encoded, err := json.Marshal(diags)
	if err != nil {
		encoded = []byte("[]")
	}

	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", res.ContentDisposition())
	h.Set("Content-Length", strconv.Itoa(len(res.Bytes)))
	h.Set("X-Book-Pages", strconv.Itoa(len(res.Document.Pages)))
	h.Set("X-Book-Diagnostics", string(encoded))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Bytes); err != nil {
		s.log.WithError(err).Debug("client went away during write")
	}
}

func (s *Server) writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large",
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case bookcompiler.ErrorKind(err) != "internal":
		writeError(w, http.StatusUnprocessableEntity, bookcompiler.ErrorKind(err), err.Error())
	default:
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("malformed request: %v", err))
	}
}

func statusForKind(kind string) int {
	switch kind {
	case "canceled", "deadline_exceeded":
		return http.StatusServiceUnavailable
	case "render_failed", "internal":
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}

func requestKey(disposition bookcompiler.Disposition, pages []bookcompiler.Page, style bookcompiler.Style) (string, error) {
	canonical, err := json.Marshal(struct {
		Disposition string              `json:"disposition"`
		Pages       []bookcompiler.Page `json:"pages"`
		Style       bookcompiler.Style  `json:"style"`
	}{disposition.String(), pages, style})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ListenAndServe serves until ctx is done, then shuts down gracefully. TLS
// is used when the config names a certificate and key.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithFields(logrus.Fields{
			"addr": s.cfg.Addr,
			"tls":  s.cfg.TLSEnabled(),
		}).Info("server starting")
		if s.cfg.TLSEnabled() {
			errCh <- serveTLS(server, s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			errCh <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("server shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}
