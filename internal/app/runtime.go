package app

import (
	"io"
	"log/slog"
	"mime"
	"os"
	"strings"
)

const testModeEnv = "SAFESPORA_TEST_MODE"

func init() {
	// Minimal containers ship without /etc/mime.types.
	for ext, typ := range map[string]string{
		".css":   "text/css; charset=utf-8",
		".js":    "text/javascript; charset=utf-8",
		".svg":   "image/svg+xml",
		".woff2": "font/woff2",
	} {
		if mime.TypeByExtension(ext) == "" {
			_ = mime.AddExtensionType(ext, typ)
		}
	}
}

// InTestMode reports whether the binaries should skip their runtime side
// effects. Test packages switch it on through the testing package.
func InTestMode() bool {
	return os.Getenv(testModeEnv) == "1"
}

// NewLogger builds the process logger. Production and LOG_FORMAT=json emit
// JSON; anything else is human-readable text.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg == nil {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	opts.Level = parseLevel(cfg.LogLevel)
	opts.AddSource = !cfg.IsProduction()

	var handler slog.Handler
	if cfg.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("env", cfg.AppEnv))
}

func parseLevel(raw string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
