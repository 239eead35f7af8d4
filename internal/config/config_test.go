package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"REPUBLISH_SLOTS", "REPUBLISH_PREFETCH", "REPUBLISH_LOAD_PACING",
		"REPUBLISH_LOG_FORMAT", "REPUBLISH_LOG_LEVEL", "REPUBLISH_LISTEN",
	} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.Slots != 1 || cfg.Prefetch != 2 {
		t.Fatalf("slots = %d, prefetch = %d", cfg.Slots, cfg.Prefetch)
	}
	if cfg.LoadPacing != 100*time.Millisecond || cfg.BusyDelay != 50*time.Millisecond {
		t.Fatalf("pacing = %v, busy = %v", cfg.LoadPacing, cfg.BusyDelay)
	}
	if cfg.LogFormat != "text" || cfg.Listen != "" {
		t.Fatalf("log format = %q, listen = %q", cfg.LogFormat, cfg.Listen)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("REPUBLISH_SLOTS", "2")
	t.Setenv("REPUBLISH_PREFETCH_STAGGER", "20ms")
	t.Setenv("REPUBLISH_INLINE_IMAGES", "true")
	t.Setenv("REPUBLISH_FONT_SIZE", "14.5")
	t.Setenv("REPUBLISH_LOG_LEVEL", "debug")
	t.Setenv("REPUBLISH_LISTEN", ":8080")

	cfg := Load()
	if cfg.Slots != 2 || cfg.PrefetchStagger != 20*time.Millisecond || !cfg.InlineImages {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.FontSize != 14.5 || cfg.Listen != ":8080" {
		t.Fatalf("font size = %v, listen = %q", cfg.FontSize, cfg.Listen)
	}
	if l, err := cfg.Level(); err != nil || l != slog.LevelDebug {
		t.Fatalf("level = %v, %v", l, err)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("REPUBLISH_SLOTS", "-3")
	t.Setenv("REPUBLISH_LOAD_PACING", "soon")
	cfg := Load()
	if cfg.Slots != 1 || cfg.LoadPacing != 100*time.Millisecond {
		t.Fatalf("slots = %d, pacing = %v", cfg.Slots, cfg.LoadPacing)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("REPUBLISH_LOG_FORMAT", "")
	t.Setenv("REPUBLISH_LOG_LEVEL", "")
	base := Load()

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"too many slots", func(c *Config) { c.Slots = 5 }, "REPUBLISH_SLOTS"},
		{"negative prefetch", func(c *Config) { c.Prefetch = -1 }, "REPUBLISH_PREFETCH"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "REPUBLISH_LOG_FORMAT"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "REPUBLISH_LOG_LEVEL"},
		{"negative size", func(c *Config) { c.Width = -1 }, "REPUBLISH_WIDTH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error mentioning %s", err, tt.want)
			}
		})
	}
}
