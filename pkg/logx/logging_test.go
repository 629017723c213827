package logx

import (
	"bytes"
	"encoding/json"
	"testing"

	"rings/internal/eventbus"
)

func TestBusSinkPublishesAboveMinLevel(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8, EventLogLine)
	defer unsub()

	svc, log := New(Config{
		Level: "debug",
		Bus:   BusConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	}, bus)
	defer svc.Close()

	log.Info("quiet")
	log.Warn("page closed", String("page", "general"))

	if len(ch) != 1 {
		t.Fatalf("bus got %d lines, want 1", len(ch))
	}
	ev := <-ch
	line, ok := ev.Data.(LogLine)
	if !ok {
		t.Fatalf("unexpected payload %T", ev.Data)
	}
	if line.Level != "warn" || line.Message != "page closed" || line.Fields["page"] != "general" {
		t.Fatalf("line = %+v", line)
	}
}

func TestWithAddsFixedFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "chatlog"))
	log.Debug("hello", Int("n", 3))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if m["comp"] != "chatlog" || m["n"] != float64(3) || m["message"] != "hello" {
		t.Fatalf("fields = %v", m)
	}
}

func TestZeroLoggerIsSilent(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatalf("expected zero logger")
	}
	if log.Enabled(LevelError) {
		t.Fatalf("zero logger should not be enabled")
	}
	log.Error("nothing happens")
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "info", "WARN", "trace"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("loud") {
		t.Fatalf("ValidLevel(loud) = true")
	}
}
