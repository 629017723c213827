package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"rings/internal/chatlog"
	logx "rings/pkg/logx"
)

const sample = `{"ts":"2024-05-01T20:15:04Z","channel":"000A","speaker":"Tataru Taru","message":"hello"}
{"ts":"2024-05-01T20:15:05Z","channel":"party","speaker":"Alphinaud","message":"ready?"}

not json
{"channel":"","message":"no channel"}
{"channel":"cwls","speaker":"Alisaie","speaker_type":"discord","message":"yes"}
`

func collect(t *testing.T, src Source) ([][]chatlog.Entry, error) {
	t.Helper()
	out := make(chan []chatlog.Entry, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := src.Start(ctx, out)
	close(out)
	var batches [][]chatlog.Entry
	for b := range out {
		batches = append(batches, b)
	}
	return batches, err
}

func TestReaderSourceBatchesBufferedLines(t *testing.T) {
	t.Parallel()
	src := NewReaderSource(strings.NewReader(sample), 64, logx.Nop())
	fixed := time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return fixed }

	batches, err := collect(t, src)
	if !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("Start err = %v, want ErrSourceClosed", err)
	}
	// The whole input fits in the reader buffer, so it arrives as one batch.
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	b := batches[0]
	if len(b) != 3 {
		t.Fatalf("got %d entries, want 3 (bad lines skipped)", len(b))
	}
	if b[0].Channel != chatlog.ChannelSay || b[1].Channel != chatlog.ChannelParty || b[2].Channel != chatlog.ChannelCrossWorldLinkshell {
		t.Fatalf("channels = %s %s %s", b[0].Channel, b[1].Channel, b[2].Channel)
	}
	if b[2].SpeakerType != chatlog.SpeakerDiscord || b[0].SpeakerType != chatlog.SpeakerXIVPlayer {
		t.Fatalf("speaker types = %q %q", b[0].SpeakerType, b[2].SpeakerType)
	}
	if !b[2].Timestamp.Equal(fixed) {
		t.Fatalf("missing ts not defaulted: %v", b[2].Timestamp)
	}
}

func TestReaderSourceBatchSize(t *testing.T) {
	t.Parallel()
	src := NewReaderSource(strings.NewReader(sample), 2, logx.Nop())
	batches, err := collect(t, src)
	if !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("Start err = %v", err)
	}
	total := 0
	for _, b := range batches {
		if len(b) > 2 {
			t.Fatalf("batch of %d exceeds batch size", len(b))
		}
		total += len(b)
	}
	if total != 3 {
		t.Fatalf("total entries = %d, want 3", total)
	}
}

func TestFileSource(t *testing.T) {
	t.Parallel()
	if _, err := NewFileSource(filepath.Join(t.TempDir(), "missing.jsonl"), 8, logx.Nop()); err == nil {
		t.Fatal("missing file accepted")
	}
	path := filepath.Join(t.TempDir(), "chat.jsonl")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := NewFileSource(path, 8, logx.Nop())
	if err != nil {
		t.Fatalf("NewFileSource error: %v", err)
	}
	batches, err := collect(t, src)
	if !errors.Is(err, ErrSourceClosed) || len(batches) == 0 {
		t.Fatalf("batches=%d err=%v", len(batches), err)
	}
}

type recorder struct {
	mu      sync.Mutex
	batches [][]chatlog.Entry
}

func (r *recorder) Deliver(entries ...chatlog.Entry) chatlog.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, entries)
	return chatlog.Delivery{Entries: len(entries), Inserted: len(entries)}
}

type staticSource struct {
	batches [][]chatlog.Entry
	block   bool
}

func (s staticSource) Start(ctx context.Context, out chan<- []chatlog.Entry) error {
	for _, b := range s.batches {
		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return ErrSourceClosed
}

func TestPumpForwardsEveryBatch(t *testing.T) {
	t.Parallel()
	one := []chatlog.Entry{{Channel: chatlog.ChannelSay, Message: "a"}}
	two := []chatlog.Entry{{Channel: chatlog.ChannelSay, Message: "b"}, {Channel: chatlog.ChannelParty, Message: "c"}}
	rec := &recorder{}
	p := NewPump(staticSource{batches: [][]chatlog.Entry{one, nil, two}}, rec, 0, logx.Nop())

	if err := p.Run(context.Background()); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("Run err = %v, want ErrSourceClosed", err)
	}
	if len(rec.batches) != 2 {
		t.Fatalf("delivered %d batches, want 2 (empty batch skipped)", len(rec.batches))
	}
	if st := p.Stats(); st.Batches != 2 || st.Entries != 3 || st.Inserted != 3 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestPumpStopsOnCancel(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	p := NewPump(staticSource{block: true}, rec, 5, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run err = %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPumpRateLimit(t *testing.T) {
	t.Parallel()
	batches := make([][]chatlog.Entry, 4)
	for i := range batches {
		batches[i] = []chatlog.Entry{{Channel: chatlog.ChannelSay, Message: "x"}}
	}
	rec := &recorder{}
	// burst 2, then 2 more at 20/s: at least ~100ms.
	p := NewPump(staticSource{batches: batches}, rec, 20, logx.Nop())
	p.limiter.SetBurst(2)
	start := time.Now()
	if err := p.Run(context.Background()); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("Run err = %v", err)
	}
	if len(rec.batches) != 4 {
		t.Fatalf("delivered %d, want 4", len(rec.batches))
	}
	if el := time.Since(start); el < 80*time.Millisecond {
		t.Fatalf("rate limit not applied: took %v", el)
	}
}
