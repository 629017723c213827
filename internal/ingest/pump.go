package ingest

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"rings/internal/chatlog"
	logx "rings/pkg/logx"
)

// Deliverer is the distributor side of the pump.
type Deliverer interface {
	Deliver(entries ...chatlog.Entry) chatlog.Delivery
}

// PumpStats counts what a pump has forwarded so far.
type PumpStats struct {
	Batches  uint64 `json:"batches"`
	Entries  uint64 `json:"entries"`
	Inserted uint64 `json:"inserted"`
}

// Pump reads batches from a Source and hands each one to a Deliverer,
// optionally limited to ratePerSec batches per second.
type Pump struct {
	src     Source
	dst     Deliverer
	limiter *rate.Limiter
	log     logx.Logger

	batches, entries, inserted atomic.Uint64
}

func NewPump(src Source, dst Deliverer, ratePerSec int, log logx.Logger) *Pump {
	p := &Pump{src: src, dst: dst, log: log.With(logx.String("comp", "ingest"))}
	if ratePerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return p
}

func (p *Pump) Stats() PumpStats {
	return PumpStats{Batches: p.batches.Load(), Entries: p.entries.Load(), Inserted: p.inserted.Load()}
}

// Run blocks until ctx is done or the source ends. A source that ends on
// its own returns ErrSourceClosed.
func (p *Pump) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := make(chan []chatlog.Entry, 4)
	srcErr := make(chan error, 1)
	go func() { srcErr <- p.src.Start(ctx, batches) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-srcErr:
			// Drain what the source sent before it stopped.
			for {
				select {
				case b := <-batches:
					if !p.handle(ctx, b) {
						return nil
					}
				default:
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
			}
		case b := <-batches:
			if !p.handle(ctx, b) {
				return nil
			}
		}
	}
}

// handle waits for the limiter, then forwards. false means ctx is done.
func (p *Pump) handle(ctx context.Context, batch []chatlog.Entry) bool {
	if len(batch) == 0 {
		return true
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return false
		}
	}
	p.forward(batch)
	return true
}

func (p *Pump) forward(batch []chatlog.Entry) {
	if len(batch) == 0 {
		return
	}
	id := uuid.NewString()
	rep := p.dst.Deliver(batch...)
	p.batches.Add(1)
	p.entries.Add(uint64(len(batch)))
	p.inserted.Add(uint64(rep.Inserted))
	p.log.Trace("batch delivered",
		logx.String("batch", id),
		logx.Int("entries", rep.Entries),
		logx.Int("buffers", rep.Buffers),
		logx.Int("inserted", rep.Inserted),
	)
	if rep.Panics > 0 {
		p.log.Warn("batch delivery panicked", logx.String("batch", id), logx.Int("panics", rep.Panics))
	}
}
