package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
logging:
  level: debug
  console: true
chatlog:
  buffer_size: 100
  parallel_delivery: false
ingest:
  source: stdin
overlays:
  - name: main
    pages:
      - name: all
      - name: party
        channels:
          say: false
          000A: false
          party: true
        demo: true
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("rings.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if cfg.Chatlog.Capacity() != 100 {
		t.Fatalf("Capacity = %d, want 100", cfg.Chatlog.Capacity())
	}
	if cfg.Chatlog.Parallel() {
		t.Fatal("explicit parallel_delivery=false was ignored")
	}
	if cfg.Chatlog.Schedule() != DefaultGCSchedule {
		t.Fatalf("Schedule = %q, want default", cfg.Chatlog.Schedule())
	}
	o, ok := cfg.Overlay("main")
	if !ok || len(o.Pages) != 2 {
		t.Fatalf("overlay main = %+v, %v", o, ok)
	}
	ch := o.Pages[1].Channels
	if ch["000A"] || ch["say"] || !ch["party"] {
		t.Fatalf("channels = %v", ch)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "unknown field json", path: "c.json", body: `{"overlays":[],"tokens":1}`},
		{name: "unknown field yaml", path: "c.yml", body: "chatlog:\n  size: 3\n"},
		{name: "trailing json", path: "c.json", body: `{}{}`},
		{name: "bad yaml", path: "c.yaml", body: "a: [1,\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tt.path, []byte(tt.body)); err == nil {
				t.Fatalf("Decode(%q) accepted invalid input", tt.body)
			}
		})
	}
}

func TestDecodeEmptyYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("empty.yaml", nil)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if cfg.Chatlog.Capacity() != DefaultBufferSize || !cfg.Chatlog.Parallel() || cfg.Ingest.Batch() != DefaultBatchSize {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "ok", cfg: Config{Overlays: []OverlayConfig{{Name: "a", Pages: []PageConfig{{Name: "p"}}}}}},
		{name: "level", cfg: Config{Logging: LoggingConfig{Level: "loud"}}, wantErr: "logging.level"},
		{name: "bus level", cfg: Config{Logging: LoggingConfig{Bus: LoggingBus{MinLevel: "x"}}}, wantErr: "logging.bus.min_level"},
		{name: "buffer size", cfg: Config{Chatlog: ChatlogConfig{BufferSize: -1}}, wantErr: "buffer_size"},
		{name: "source", cfg: Config{Ingest: IngestConfig{Source: "udp"}}, wantErr: "ingest.source"},
		{name: "file path", cfg: Config{Ingest: IngestConfig{Source: "file"}}, wantErr: "ingest.path"},
		{name: "busy timeout", cfg: Config{Storage: &StorageConfig{Driver: "sqlite", BusyTimeout: "soon"}}, wantErr: "busy_timeout"},
		{name: "overlay name", cfg: Config{Overlays: []OverlayConfig{{}}}, wantErr: "name is required"},
		{name: "dup overlay", cfg: Config{Overlays: []OverlayConfig{{Name: "a"}, {Name: "a"}}}, wantErr: "duplicate overlay"},
		{name: "dup page", cfg: Config{Overlays: []OverlayConfig{{Name: "a", Pages: []PageConfig{{Name: "p"}, {Name: "p"}}}}}, wantErr: "duplicate page"},
		{name: "channel", cfg: Config{Overlays: []OverlayConfig{{Name: "a", Pages: []PageConfig{{Name: "p", Channels: map[string]bool{"shout": true}}}}}}, wantErr: "unknown channel"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestManagerReload(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "rings.json", `{"overlays":[{"name":"main","pages":[{"name":"all"}]}]}`)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	if _, err := m.Reload(context.Background()); !errors.Is(err, ErrUnchanged) {
		t.Fatalf("Reload of same content err = %v, want ErrUnchanged", err)
	}

	if err := os.WriteFile(path, []byte(`{"overlays":[{"name":"main","pages":[{"name":"bad","channels":{"nope":true}}]}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reload(context.Background()); err == nil {
		t.Fatal("invalid config was accepted")
	}
	if got := m.Get().Overlays[0].Pages[0].Name; got != "all" {
		t.Fatalf("rejected config was committed: page %q", got)
	}

	if err := os.WriteFile(path, []byte(`{"overlays":[{"name":"main","pages":[{"name":"party"}]}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := m.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload error: %v", err)
	}
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("subscriber got a different config")
		}
	default:
		t.Fatal("reload was not published")
	}
}

func TestManagerPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	if got := <-ch; got != b {
		t.Fatal("slow subscriber did not receive the newest config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after Unsubscribe")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	off := false
	oldCfg := &Config{
		Overlays: []OverlayConfig{
			{Name: "keep", Pages: []PageConfig{{Name: "all"}}},
			{Name: "edit", Pages: []PageConfig{{Name: "all"}}},
			{Name: "gone"},
		},
	}
	newCfg := &Config{
		Chatlog: ChatlogConfig{ParallelDelivery: &off},
		Overlays: []OverlayConfig{
			{Name: "keep", Pages: []PageConfig{{Name: "all"}}},
			{Name: "edit", Pages: []PageConfig{{Name: "all", Channels: map[string]bool{"say": false}}}},
			{Name: "new"},
		},
	}

	changed, attrs, overlays := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "chatlog,overlays" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if strings.Join(overlays, ",") != "edit,gone,new" {
		t.Fatalf("overlays = %v", overlays)
	}

	if changed, _, _ := SummarizeConfigChange(newCfg, newCfg); len(changed) != 0 {
		t.Fatalf("identical configs reported %v", changed)
	}
	// "" and "none" are the same source.
	a := &Config{Ingest: IngestConfig{Source: ""}}
	b := &Config{Ingest: IngestConfig{Source: "none", BatchSize: DefaultBatchSize}}
	if changed, _, _ := SummarizeConfigChange(a, b); len(changed) != 0 {
		t.Fatalf("equivalent ingest reported %v", changed)
	}
}
