package janitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"rings/internal/chatlog"
	"rings/internal/eventbus"
	logx "rings/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  string
		next time.Duration // from base
	}{
		{name: "cron", raw: "*/5 * * * *", next: 5 * time.Minute},
		{name: "prefixed cron", raw: "cron:0 13 * * *", next: time.Hour},
		{name: "descriptor", raw: "@every 30s", next: 30 * time.Second},
		{name: "duration", raw: "2m", next: 2 * time.Minute},
		{name: "prefixed interval", raw: "every:45s", next: 45 * time.Second},
		{name: "hhmm", raw: "01:30", next: 90 * time.Minute},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sch, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got := sch.Next(base).Sub(base); got != tt.next {
				t.Fatalf("next = %v, want %v", got, tt.next)
			}
		})
	}
}

func TestParseScheduleOffAndInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"off", "NONE"} {
		sch, err := ParseSchedule(raw)
		if err != nil || sch != nil {
			t.Fatalf("ParseSchedule(%q) = %v, %v; want nil, nil", raw, sch, err)
		}
	}
	for _, raw := range []string{"", "soon", "100ms", "00:75", "cron:", "* * *"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q) accepted", raw)
		}
	}
}

func fill(b *chatlog.Buffer, n int) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	batch := make([]chatlog.Entry, n)
	for i := range batch {
		batch[i] = chatlog.Entry{Timestamp: base.Add(time.Duration(i) * time.Second), Channel: chatlog.ChannelSay, Message: fmt.Sprint(i)}
	}
	b.InsertBatch(batch)
}

func TestSweep(t *testing.T) {
	t.Parallel()
	reg := chatlog.NewRegistry()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, EventCollected)
	defer unsub()

	over := chatlog.NewBuffer(reg, chatlog.BufferConfig{Owner: chatlog.Owner{Overlay: "o", Page: "over"}, Filter: chatlog.AcceptAll, Capacity: 10})
	under := chatlog.NewBuffer(reg, chatlog.BufferConfig{Owner: chatlog.Owner{Overlay: "o", Page: "under"}, Filter: chatlog.AcceptAll, Capacity: 10})
	fill(over, 15)
	fill(under, 10)

	s := New(reg, bus, logx.Nop())
	rep := s.Sweep()
	if rep.Buffers != 2 || rep.Removed != 10 || len(rep.Pages) != 1 || rep.Pages[0].Owner.Page != "over" {
		t.Fatalf("sweep = %+v", rep)
	}
	if over.Len() != 5 || under.Len() != 10 {
		t.Fatalf("over=%d under=%d, want 5 and 10", over.Len(), under.Len())
	}
	select {
	case ev := <-events:
		if got, ok := ev.Data.(Sweep); !ok || got.Removed != 10 {
			t.Fatalf("event data = %#v", ev.Data)
		}
	default:
		t.Fatal("no collected event")
	}

	if rep := s.Sweep(); rep.Removed != 0 {
		t.Fatalf("second sweep removed %d", rep.Removed)
	}
	if len(events) != 0 {
		t.Fatal("empty sweep published an event")
	}
}

func TestStartRunsScheduledSweep(t *testing.T) {
	t.Parallel()
	reg := chatlog.NewRegistry()
	b := chatlog.NewBuffer(reg, chatlog.BufferConfig{Filter: chatlog.AcceptAll, Capacity: 2})
	fill(b, 5)

	s := New(reg, nil, logx.Nop())
	if err := s.Start("bogus schedule !"); err == nil {
		t.Fatal("invalid schedule accepted")
	}
	if err := s.Start("@every 1s"); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for b.Len() != 3 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3 after scheduled sweep", b.Len())
	}

	if err := s.Start("off"); err != nil {
		t.Fatalf("Start(off) error: %v", err)
	}
}
