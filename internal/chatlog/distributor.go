package chatlog

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"rings/internal/eventbus"
	logx "rings/pkg/logx"
)

// EventDelivered is published on the bus after each Deliver call.
const EventDelivered = "chatlog.delivered"

// Delivery summarizes one Deliver call.
type Delivery struct {
	Entries  int `json:"entries"`
	Buffers  int `json:"buffers"`
	Accepted int `json:"accepted"` // entries that passed a buffer filter, summed over buffers
	Inserted int `json:"inserted"` // entries stored, summed over buffers
	Panics   int `json:"panics,omitempty"`
}

// Distributor fans incoming batches out to the buffers of a Registry.
type Distributor struct {
	reg      *Registry
	log      logx.Logger
	bus      eventbus.Bus
	parallel atomic.Bool
}

type DistributorOption func(*Distributor)

func WithLogger(log logx.Logger) DistributorOption {
	return func(d *Distributor) { d.log = log }
}

// WithBus publishes a Delivery summary for every non-empty batch.
func WithBus(bus eventbus.Bus) DistributorOption {
	return func(d *Distributor) { d.bus = bus }
}

// WithParallel delivers to each buffer on its own goroutine. Deliver still
// returns only after every buffer has been handled.
func WithParallel(enabled bool) DistributorOption {
	return func(d *Distributor) { d.parallel.Store(enabled) }
}

// SetParallel switches fan-out mode for later Deliver calls.
func (d *Distributor) SetParallel(enabled bool) { d.parallel.Store(enabled) }

func NewDistributor(reg *Registry, opts ...DistributorOption) *Distributor {
	d := &Distributor{reg: reg}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Deliver hands entries to every registered buffer, each receiving only the
// entries its filter accepts.
//
// Membership is fixed by a registry snapshot taken before any buffer is
// touched. A panic while delivering to one buffer is recovered and does not
// affect the others.
func (d *Distributor) Deliver(entries ...Entry) Delivery {
	rep := Delivery{Entries: len(entries)}
	if len(entries) == 0 || d == nil || d.reg == nil {
		return rep
	}

	buffers := d.reg.Snapshot()
	rep.Buffers = len(buffers)

	var accepted, inserted, panics atomic.Int64
	deliver := func(b *Buffer) {
		a, n, ok := d.deliverOne(b, entries)
		accepted.Add(int64(a))
		inserted.Add(int64(n))
		if !ok {
			panics.Add(1)
		}
	}

	if d.parallel.Load() && len(buffers) > 1 {
		var wg sync.WaitGroup
		wg.Add(len(buffers))
		for _, b := range buffers {
			go func() {
				defer wg.Done()
				deliver(b)
			}()
		}
		wg.Wait()
	} else {
		for _, b := range buffers {
			deliver(b)
		}
	}

	rep.Accepted = int(accepted.Load())
	rep.Inserted = int(inserted.Load())
	rep.Panics = int(panics.Load())

	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: EventDelivered, Time: time.Now(), Data: rep})
	}
	return rep
}

func (d *Distributor) deliverOne(b *Buffer, entries []Entry) (accepted, inserted int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			d.log.Error("chatlog delivery panicked",
				logx.String("buffer", b.ID()),
				logx.String("owner", b.Owner().String()),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()

	// One filter per batch, so a concurrent SetFilter never splits a batch.
	f := b.Filter()
	if f == nil {
		return 0, 0, true
	}
	targets := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f(e.Channel) {
			targets = append(targets, e)
		}
	}
	if len(targets) == 0 {
		return 0, 0, true
	}
	return len(targets), b.InsertBatch(targets), true
}
