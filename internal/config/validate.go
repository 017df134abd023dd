package config

import (
	"fmt"
	"log/slog"

	"github.com/jchantrell/nartool/internal/lz"
	"github.com/jchantrell/nartool/internal/nar"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Validate checks every field that the commands parse later, so that bad
// values are reported before any work starts.
func (c *Config) Validate() error {
	if _, ok := logLevels[c.LogLevel]; !ok {
		return fmt.Errorf("unsupported log level '%s': supported levels are debug, info, warn, error", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unsupported log format '%s': supported formats are text, json", c.LogFormat)
	}
	if _, err := nar.ParseStoreType(c.StoreType); err != nil {
		return err
	}
	if _, err := lz.ParseLevel(c.Level); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Catalog == "" {
		return fmt.Errorf("catalog path cannot be empty")
	}
	return nil
}

// SlogLevel returns the configured log level. Unknown values map to info.
func (c *Config) SlogLevel() slog.Level {
	if level, ok := logLevels[c.LogLevel]; ok {
		return level
	}
	return slog.LevelInfo
}

// Store returns the configured store type for new entries.
func (c *Config) Store() nar.StoreType {
	st, err := nar.ParseStoreType(c.StoreType)
	if err != nil {
		return nar.Encoded
	}
	return st
}

// CompressionLevel returns the configured LZ level.
func (c *Config) CompressionLevel() lz.Level {
	level, err := lz.ParseLevel(c.Level)
	if err != nil {
		return lz.DefaultLevel
	}
	return level
}
