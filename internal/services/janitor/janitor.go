package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"rings/internal/chatlog"
	"rings/internal/eventbus"
	logx "rings/pkg/logx"
)

// EventCollected is published after a sweep that removed entries.
const EventCollected = "chatlog.collected"

// Sweep reports one garbage-collection pass over the registry.
type Sweep struct {
	Buffers int           `json:"buffers"`
	Removed int           `json:"removed"`
	Pages   []PageRemoval `json:"pages,omitempty"`
	Took    time.Duration `json:"took"`
}

type PageRemoval struct {
	Owner   chatlog.Owner `json:"owner"`
	Removed int           `json:"removed"`
}

// Service runs Buffer.GarbageCollect on every registered buffer on a cron
// schedule. Buffers never trim themselves on insert; this is what bounds
// their memory.
type Service struct {
	reg *chatlog.Registry
	bus eventbus.Bus
	log logx.Logger

	mu    sync.Mutex
	c     *cron.Cron
	entry cron.EntryID
	spec  string
}

func New(reg *chatlog.Registry, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{reg: reg, bus: bus, log: log.With(logx.String("comp", "janitor"))}
}

// Sweep runs one pass now.
func (s *Service) Sweep() Sweep {
	start := time.Now()
	buffers := s.reg.Snapshot()
	rep := Sweep{Buffers: len(buffers)}
	for _, b := range buffers {
		if n := b.GarbageCollect(); n > 0 {
			rep.Removed += n
			rep.Pages = append(rep.Pages, PageRemoval{Owner: b.Owner(), Removed: n})
		}
	}
	rep.Took = time.Since(start)

	if rep.Removed > 0 {
		s.log.Debug("chatlog sweep",
			logx.Int("buffers", rep.Buffers),
			logx.Int("removed", rep.Removed),
			logx.Duration("took", rep.Took),
		)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: EventCollected, Time: time.Now(), Data: rep})
		}
	}
	return rep
}

// Start schedules the sweep. Calling it again replaces the schedule; an
// unchanged spec is a no-op. "off" stops sweeping.
func (s *Service) Start(spec string) error {
	sch, err := ParseSchedule(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil && spec == s.spec {
		return nil
	}
	if s.c == nil {
		s.c = cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLogger{s.log})))
		s.c.Start()
	}
	if s.entry != 0 {
		s.c.Remove(s.entry)
		s.entry = 0
	}
	s.spec = spec
	if sch == nil {
		s.log.Info("chatlog sweep disabled")
		return nil
	}
	s.entry = s.c.Schedule(sch, cron.FuncJob(func() { s.Sweep() }))
	s.log.Info("chatlog sweep scheduled", logx.String("schedule", spec))
	return nil
}

// Stop halts the scheduler and waits for a running sweep, or until ctx is
// done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c, s.entry, s.spec = nil, 0, ""
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts logx to cron.Logger for the Recover wrapper.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, logx.Any("kv", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, logx.Err(err), logx.Any("kv", keysAndValues))
}
