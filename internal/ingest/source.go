package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"rings/internal/chatlog"
	logx "rings/pkg/logx"
)

// ErrSourceClosed is returned by Start when the underlying reader reached
// its end.
var ErrSourceClosed = errors.New("ingest: source closed")

// Source produces batches of chat entries. Start blocks until ctx is done or
// the source ends, sending each batch on out.
type Source interface {
	Start(ctx context.Context, out chan<- []chatlog.Entry) error
}

// Line is the wire form of one JSON line.
//
//	{"ts":"2024-05-01T20:15:04.123Z","channel":"000A","speaker":"Tataru Taru","message":"..."}
//
// channel accepts a hex code or a channel name. ts defaults to the time the
// line was read.
type Line struct {
	Timestamp   time.Time           `json:"ts"`
	Channel     string              `json:"channel"`
	Speaker     string              `json:"speaker"`
	Alias       string              `json:"alias,omitempty"`
	SpeakerType chatlog.SpeakerType `json:"speaker_type,omitempty"`
	Message     string              `json:"message"`
}

// Entry converts a decoded line.
func (l Line) Entry(now time.Time) (chatlog.Entry, error) {
	if strings.TrimSpace(l.Channel) == "" {
		return chatlog.Entry{}, errors.New("channel is required")
	}
	code, _ := chatlog.ParseChannel(l.Channel)
	ts := l.Timestamp
	if ts.IsZero() {
		ts = now
	}
	st := l.SpeakerType
	if st == "" {
		st = chatlog.SpeakerXIVPlayer
	}
	return chatlog.Entry{
		Timestamp:       ts,
		Channel:         code,
		OriginalSpeaker: l.Speaker,
		SpeakerAlias:    l.Alias,
		SpeakerType:     st,
		Message:         l.Message,
	}, nil
}

// ReaderSource reads JSON lines. Lines already buffered when one is read are
// sent together as one batch, up to BatchSize.
type ReaderSource struct {
	r         io.Reader
	closer    io.Closer
	batchSize int
	log       logx.Logger
	now       func() time.Time
}

func NewReaderSource(r io.Reader, batchSize int, log logx.Logger) *ReaderSource {
	return &ReaderSource{r: r, batchSize: max(1, batchSize), log: log, now: time.Now}
}

// NewFileSource opens path for reading. The file is closed when Start
// returns.
func NewFileSource(path string, batchSize int, log logx.Logger) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	s := NewReaderSource(f, batchSize, log.With(logx.String("path", path)))
	s.closer = f
	return s, nil
}

func (s *ReaderSource) Start(ctx context.Context, out chan<- []chatlog.Entry) error {
	if s.closer != nil {
		defer s.closer.Close()
	}
	br := bufio.NewReaderSize(s.r, 64*1024)

	// Reads block, so they run on their own goroutine. A ctx cancel returns
	// immediately; the reader goroutine exits on its next line or EOF.
	type result struct {
		batch []chatlog.Entry
		err   error
	}
	results := make(chan result)
	go func() {
		defer close(results)
		for {
			batch, err := s.readBatch(br)
			select {
			case results <- result{batch, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				return ctx.Err()
			}
			if len(res.batch) > 0 {
				select {
				case out <- res.batch:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if errors.Is(res.err, io.EOF) {
				return ErrSourceClosed
			}
			if res.err != nil {
				return res.err
			}
		}
	}
}

// readBatch blocks for one line, then takes more lines only while they are
// already buffered.
func (s *ReaderSource) readBatch(br *bufio.Reader) ([]chatlog.Entry, error) {
	batch := make([]chatlog.Entry, 0, 1)
	for len(batch) < s.batchSize {
		raw, err := br.ReadBytes('\n')
		if len(strings.TrimSpace(string(raw))) > 0 {
			if e, ok := s.decode(raw); ok {
				batch = append(batch, e)
			}
		}
		if err != nil {
			return batch, err
		}
		if br.Buffered() == 0 {
			break
		}
	}
	return batch, nil
}

func (s *ReaderSource) decode(raw []byte) (chatlog.Entry, bool) {
	var l Line
	if err := json.Unmarshal(raw, &l); err != nil {
		s.log.Warn("ingest: bad line", logx.Err(err), logx.Int("bytes", len(raw)))
		return chatlog.Entry{}, false
	}
	e, err := l.Entry(s.now())
	if err != nil {
		s.log.Warn("ingest: bad line", logx.Err(err))
		return chatlog.Entry{}, false
	}
	return e, true
}
