package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Chatlog controls page buffers and the garbage-collection sweep.
	Chatlog ChatlogConfig `json:"chatlog"`

	// Ingest selects where chat lines come from. The game log reader lives
	// outside this process; "stdin" and "file" read JSON lines it produced.
	Ingest IngestConfig `json:"ingest"`

	Storage *StorageConfig `json:"storage,omitempty"`

	Overlays []OverlayConfig `json:"overlays"`

	Debug DebugConfig `json:"debug"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Bus     LoggingBus  `json:"bus"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingBus republishes log lines on the in-process event bus.
type LoggingBus struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ChatlogConfig controls page buffers.
//
// Defaults (when fields are omitted/zero):
//   - buffer_size: 5120
//   - gc_schedule: "@every 1m"
//   - parallel_delivery: true
type ChatlogConfig struct {
	BufferSize int `json:"buffer_size,omitempty"`

	// GCSchedule is a cron expression ("*/5 * * * *", "@every 30s") or a plain
	// interval ("30s", "00:05"). "off" disables the sweep.
	GCSchedule string `json:"gc_schedule,omitempty"`

	// ParallelDelivery is a pointer so an explicit false can be told apart
	// from "omitted".
	ParallelDelivery *bool `json:"parallel_delivery,omitempty"`
}

// IngestConfig controls the ingest pump.
//
// Source values:
//   - "none" (or empty): nothing is read; entries arrive through the API only
//   - "stdin": JSON lines on standard input
//   - "file": JSON lines read from Path
type IngestConfig struct {
	Source     string `json:"source"`
	Path       string `json:"path,omitempty"`
	BatchSize  int    `json:"batch_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"` // batches per second, 0 = unlimited
}

// StorageConfig controls the audit store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./rings.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DebugConfig controls the optional debug HTTP server (pprof, health and a
// page snapshot). Binding to a non-loopback address requires Token or
// AllowInsecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout string `json:"read_timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// OverlayConfig is one overlay window holding one or more pages.
type OverlayConfig struct {
	Name  string       `json:"name"`
	Pages []PageConfig `json:"pages"`
}

// PageConfig is a single chat page (tab) of an overlay.
//
// Channels maps a channel name ("say", "party", "linkshell1") or hex code
// ("000A") to its enabled flag. Channels not listed are enabled.
type PageConfig struct {
	Name     string          `json:"name"`
	Channels map[string]bool `json:"channels,omitempty"`
	Demo     bool            `json:"demo,omitempty"`
}

const (
	DefaultBufferSize = 5120
	DefaultGCSchedule = "@every 1m"
	DefaultBatchSize  = 64
)

func (c ChatlogConfig) Capacity() int {
	if c.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return c.BufferSize
}

func (c ChatlogConfig) Schedule() string {
	if c.GCSchedule == "" {
		return DefaultGCSchedule
	}
	return c.GCSchedule
}

func (c ChatlogConfig) Parallel() bool {
	return c.ParallelDelivery == nil || *c.ParallelDelivery
}

func (c IngestConfig) Batch() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

// Overlay returns the overlay with the given name.
func (c *Config) Overlay(name string) (OverlayConfig, bool) {
	if c == nil {
		return OverlayConfig{}, false
	}
	for _, o := range c.Overlays {
		if o.Name == name {
			return o, true
		}
	}
	return OverlayConfig{}, false
}
