package srv

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the HTTP surface settings.
type Config struct {
	Addr           string
	RateLimit      int
	RateWindow     time.Duration
	MaxBodyBytes   int64
	CompileTimeout time.Duration
	CacheTTL       time.Duration
	MaxCachedBytes int // larger results are not cached; 0 disables the cache
	CertFile       string
	KeyFile        string
	AllowedOrigin  string
}

// DefaultConfig returns the settings used when no environment is set.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		RateLimit:      60,
		RateWindow:     time.Minute,
		MaxBodyBytes:   1 << 20,
		CompileTimeout: 2 * time.Minute,
		CacheTTL:       10 * time.Minute,
		MaxCachedBytes: 4 << 20,
		AllowedOrigin:  "*",
	}
}

// TLSEnabled reports whether both certificate paths are set.
func (c Config) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// ConfigFromEnv overlays PICTUREBOOK_* environment variables on the defaults.
func ConfigFromEnv() (Config, error) {
	return configFromLookup(os.LookupEnv)
}

func configFromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	if v, ok := lookup("PICTUREBOOK_ADDR"); ok && v != "" {
		cfg.Addr = v
	}
	if v, ok := lookup("PICTUREBOOK_RATE_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid PICTUREBOOK_RATE_LIMIT %q", v)
		}
		cfg.RateLimit = n
	}
	if v, ok := lookup("PICTUREBOOK_MAX_BODY"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid PICTUREBOOK_MAX_BODY %q", v)
		}
		cfg.MaxBodyBytes = n
	}
	if v, ok := lookup("PICTUREBOOK_COMPILE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid PICTUREBOOK_COMPILE_TIMEOUT %q", v)
		}
		cfg.CompileTimeout = d
	}
	if v, ok := lookup("PICTUREBOOK_MAX_CACHED_BYTES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("invalid PICTUREBOOK_MAX_CACHED_BYTES %q", v)
		}
		cfg.MaxCachedBytes = n
	}
	if v, ok := lookup("PICTUREBOOK_ALLOWED_ORIGIN"); ok && v != "" {
		cfg.AllowedOrigin = v
	}
	cfg.CertFile, _ = lookup("PICTUREBOOK_TLS_CERT")
	cfg.KeyFile, _ = lookup("PICTUREBOOK_TLS_KEY")
	return cfg, nil
}
