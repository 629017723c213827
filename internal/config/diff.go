package config

import (
	"reflect"
	"sort"
	"strings"

	logx "rings/pkg/logx"
)

// SummarizeConfigChange returns (1) the sorted list of changed sections,
// (2) structured attrs describing the new values, for logging, and (3) the
// sorted names of overlays that were added, removed or edited.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.bus_enabled", newCfg.Logging.Bus.Enabled),
		)
	}

	oc, nc := oldCfg.Chatlog, newCfg.Chatlog
	if oc.Capacity() != nc.Capacity() || oc.Schedule() != nc.Schedule() || oc.Parallel() != nc.Parallel() {
		changed = append(changed, "chatlog")
		attrs = append(attrs,
			logx.Int("chatlog.buffer_size", nc.Capacity()),
			logx.String("chatlog.gc_schedule", nc.Schedule()),
			logx.Bool("chatlog.parallel_delivery", nc.Parallel()),
		)
	}

	oi, ni := oldCfg.Ingest, newCfg.Ingest
	if normSource(oi.Source) != normSource(ni.Source) ||
		strings.TrimSpace(oi.Path) != strings.TrimSpace(ni.Path) ||
		oi.Batch() != ni.Batch() || oi.RatePerSec != ni.RatePerSec {
		changed = append(changed, "ingest")
		attrs = append(attrs,
			logx.String("ingest.source", normSource(ni.Source)),
			logx.Int("ingest.batch_size", ni.Batch()),
			logx.Int("ingest.rate_per_sec", ni.RatePerSec),
		)
	}

	var oDriver, nDriver, oPath, nPath, oBusy, nBusy string
	if s := oldCfg.Storage; s != nil {
		oDriver, oPath, oBusy = strings.TrimSpace(s.Driver), strings.TrimSpace(s.Path), strings.TrimSpace(s.BusyTimeout)
	}
	if s := newCfg.Storage; s != nil {
		nDriver, nPath, nBusy = strings.TrimSpace(s.Driver), strings.TrimSpace(s.Path), strings.TrimSpace(s.BusyTimeout)
	}
	if oDriver != nDriver || oPath != nPath || oBusy != nBusy {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPath != ""),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", newCfg.Debug.Token != ""),
		)
	}

	overlays := diffOverlays(oldCfg.Overlays, newCfg.Overlays)
	if len(overlays) > 0 {
		changed = append(changed, "overlays")
		attrs = append(attrs,
			logx.Int("overlays.changed_count", len(overlays)),
			logx.Int("overlays.count", len(newCfg.Overlays)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, overlays
}

func normSource(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "none"
	}
	return s
}

func diffOverlays(oldL, newL []OverlayConfig) []string {
	index := func(l []OverlayConfig) map[string]OverlayConfig {
		m := make(map[string]OverlayConfig, len(l))
		for _, o := range l {
			m[o.Name] = o
		}
		return m
	}
	oldM, newM := index(oldL), index(newL)

	out := make([]string, 0)
	for name, o := range oldM {
		n, ok := newM[name]
		if !ok || !reflect.DeepEqual(o, n) {
			out = append(out, name)
		}
	}
	for name := range newM {
		if _, ok := oldM[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
