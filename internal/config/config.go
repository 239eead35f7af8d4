package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Display
	Slots    int
	Width    int
	Height   int
	FontPath string
	FontSize float64

	// Loading
	Prefetch        int
	PrefetchStagger time.Duration
	LoadPacing      time.Duration
	PageDelay       time.Duration
	BusyDelay       time.Duration

	// Hyphenation language; empty takes the book's language, "none"
	// disables hyphenation.
	Lang string

	InlineImages bool

	// HTTP surface; empty runs the terminal reader.
	Listen string

	LogFormat string
	LogLevel  string
}

func Load() Config {
	cfg := Config{
		Slots:    envInt("REPUBLISH_SLOTS", 1),
		Width:    envInt("REPUBLISH_WIDTH", 0),
		Height:   envInt("REPUBLISH_HEIGHT", 0),
		FontPath: os.Getenv("REPUBLISH_FONT"),
		FontSize: envFloat("REPUBLISH_FONT_SIZE", 12),

		Prefetch:        envInt("REPUBLISH_PREFETCH", 2),
		PrefetchStagger: envDuration("REPUBLISH_PREFETCH_STAGGER", 50*time.Millisecond),
		LoadPacing:      envDuration("REPUBLISH_LOAD_PACING", 100*time.Millisecond),
		PageDelay:       envDuration("REPUBLISH_PAGE_DELAY", 10*time.Millisecond),
		BusyDelay:       envDuration("REPUBLISH_BUSY_DELAY", 50*time.Millisecond),

		Lang: os.Getenv("REPUBLISH_LANG"),

		InlineImages: envBool("REPUBLISH_INLINE_IMAGES", false),

		Listen: os.Getenv("REPUBLISH_LISTEN"),

		LogFormat: envOr("REPUBLISH_LOG_FORMAT", "text"),
		LogLevel:  envOr("REPUBLISH_LOG_LEVEL", "info"),
	}

	if cfg.Slots <= 0 {
		cfg.Slots = 1
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = 12
	}
	if cfg.PrefetchStagger <= 0 {
		cfg.PrefetchStagger = 50 * time.Millisecond
	}
	if cfg.LoadPacing <= 0 {
		cfg.LoadPacing = 100 * time.Millisecond
	}
	if cfg.BusyDelay <= 0 {
		cfg.BusyDelay = 50 * time.Millisecond
	}

	return cfg
}

func (c Config) Validate() error {
	var errs []error
	if c.Slots > 4 {
		errs = append(errs, fmt.Errorf("REPUBLISH_SLOTS must be between 1 and 4, got %d", c.Slots))
	}
	if c.Width < 0 || c.Height < 0 {
		errs = append(errs, fmt.Errorf("REPUBLISH_WIDTH and REPUBLISH_HEIGHT must not be negative"))
	}
	if c.Prefetch < 0 {
		errs = append(errs, fmt.Errorf("REPUBLISH_PREFETCH must not be negative, got %d", c.Prefetch))
	}
	if c.PageDelay < 0 {
		errs = append(errs, fmt.Errorf("REPUBLISH_PAGE_DELAY must not be negative"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("REPUBLISH_LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("REPUBLISH_LOG_LEVEL: %w", err)
	}
	return l, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
