package app

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"rings/internal/config"
	"rings/internal/ingest"
	"rings/internal/services/debug"
	"rings/internal/storage"
	logx "rings/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Bus: logx.BusConfig{
			Enabled:    l.Bus.Enabled,
			MinLevel:   l.Bus.MinLevel,
			RatePerSec: l.Bus.RatePerSec,
		},
	}
}

// mapStorageConfig returns enabled=false when no audit store is configured.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}
	switch driver {
	case "file":
		return storage.Config{Driver: driver, Path: path}, true, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// newSource builds the configured ingest source, or nil for "none".
func newSource(cfg config.IngestConfig, log logx.Logger) (ingest.Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "", "none":
		return nil, nil
	case "stdin":
		return ingest.NewReaderSource(os.Stdin, cfg.Batch(), log), nil
	case "file":
		return ingest.NewFileSource(cfg.Path, cfg.Batch(), log)
	default:
		return nil, fmt.Errorf("unknown ingest.source: %s", cfg.Source)
	}
}

// mapDebugConfig validates the debug section. It never starts the server.
func mapDebugConfig(cfg *config.Config) (debug.Config, error) {
	dc := cfg.Debug
	out := debug.Config{
		Enabled:              dc.Enabled,
		Addr:                 strings.TrimSpace(dc.Addr),
		Token:                strings.TrimSpace(dc.Token),
		AllowInsecure:        dc.AllowInsecure,
		MutexProfileFraction: dc.MutexProfileFraction,
		BlockProfileRate:     dc.BlockProfileRate,
	}
	if out.Addr == "" {
		out.Addr = debug.DefaultAddr
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("debug.read_timeout", dc.ReadTimeout, 5*time.Second); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("debug.idle_timeout", dc.IdleTimeout, 2*time.Minute); err != nil {
		return out, err
	}
	if dc.MutexProfileFraction < 0 || dc.BlockProfileRate < 0 {
		return out, fmt.Errorf("debug: profile rates must be >= 0")
	}
	if out.Enabled {
		if _, _, err := net.SplitHostPort(out.Addr); err != nil {
			return out, fmt.Errorf("debug.addr: invalid %q (expected host:port): %w", out.Addr, err)
		}
		if !out.AllowInsecure && out.Token == "" && !debug.IsLoopbackAddr(out.Addr) {
			return out, fmt.Errorf("debug: binding to non-loopback addr requires token or allow_insecure=true")
		}
	}
	return out, nil
}
