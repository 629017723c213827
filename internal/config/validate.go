package config

import (
	"errors"
	"fmt"
	"strings"

	"rings/internal/chatlog"
	logx "rings/pkg/logx"
)

// Validate checks a parsed config for values that cannot be applied.
// It joins every problem found into one error.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if !logx.ValidLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if !logx.ValidLevel(cfg.Logging.Bus.MinLevel) {
		errs = append(errs, fmt.Errorf("logging.bus.min_level: unknown level %q", cfg.Logging.Bus.MinLevel))
	}
	if cfg.Chatlog.BufferSize < 0 {
		errs = append(errs, errors.New("chatlog.buffer_size must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Ingest.Source)) {
	case "", "none", "stdin":
	case "file":
		if strings.TrimSpace(cfg.Ingest.Path) == "" {
			errs = append(errs, errors.New("ingest.path is required when ingest.source=file"))
		}
	default:
		errs = append(errs, fmt.Errorf("ingest.source: unknown source %q", cfg.Ingest.Source))
	}
	if cfg.Ingest.RatePerSec < 0 {
		errs = append(errs, errors.New("ingest.rate_per_sec must be >= 0"))
	}

	if st := cfg.Storage; st != nil {
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	overlays := map[string]bool{}
	for i, o := range cfg.Overlays {
		name := strings.TrimSpace(o.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("overlays[%d].name is required", i))
			continue
		}
		if overlays[name] {
			errs = append(errs, fmt.Errorf("overlays[%d]: duplicate overlay %q", i, name))
		}
		overlays[name] = true

		pages := map[string]bool{}
		for j, p := range o.Pages {
			pname := strings.TrimSpace(p.Name)
			if pname == "" {
				errs = append(errs, fmt.Errorf("overlays[%s].pages[%d].name is required", name, j))
				continue
			}
			if pages[pname] {
				errs = append(errs, fmt.Errorf("overlays[%s]: duplicate page %q", name, pname))
			}
			pages[pname] = true
			for ch := range p.Channels {
				if _, ok := chatlog.ParseChannel(ch); !ok {
					errs = append(errs, fmt.Errorf("overlays[%s].pages[%s].channels: unknown channel %q", name, pname, ch))
				}
			}
		}
	}

	return errors.Join(errs...)
}
