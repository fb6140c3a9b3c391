// Package config loads configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the mount configuration.
type Config struct {
	// Mount
	MountPoint string
	Backend    string // auto, gofuse or cgofuse
	AllowOther bool
	FuseDebug  bool

	// Binds
	BindsFile  string // TOML bind table
	ScriptFile string // Lua script
	Reload     bool   // watch the bind table and script for changes

	// ReportedSize is the stat size of files not yet read.
	ReportedSize int64

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics listen address; empty disables the endpoint.
	MetricsAddr string
}

// ErrNoMountPoint is returned when no mount point was configured.
var ErrNoMountPoint = errors.New("mount point is required (CFGFS_MOUNT or -mount)")

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		MountPoint:   envOr("CFGFS_MOUNT", ""),
		Backend:      envOr("CFGFS_BACKEND", "auto"),
		AllowOther:   envBool("CFGFS_ALLOW_OTHER", false),
		FuseDebug:    envBool("CFGFS_FUSE_DEBUG", false),
		BindsFile:    envOr("CFGFS_BINDS", ""),
		ScriptFile:   envOr("CFGFS_SCRIPT", ""),
		Reload:       envBool("CFGFS_RELOAD", true),
		ReportedSize: envInt64("CFGFS_REPORTED_SIZE", 1<<20),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		LogFormat:    envOr("LOG_FORMAT", "auto"),
		MetricsAddr:  envOr("METRICS_ADDR", ""),
	}
}

// Validate checks the settings a mount needs.
func (c *Config) Validate() error {
	if c.MountPoint == "" {
		return ErrNoMountPoint
	}
	switch strings.ToLower(c.Backend) {
	case "auto", "gofuse", "go-fuse", "cgofuse", "winfsp":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.ReportedSize <= 0 {
		return fmt.Errorf("reported size must be positive, got %d", c.ReportedSize)
	}
	return nil
}

// WatchedFiles returns the configured bind table and script paths.
func (c *Config) WatchedFiles() []string {
	var out []string
	for _, p := range []string{c.BindsFile, c.ScriptFile} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
