package chatlog

import (
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	logx "rings/pkg/logx"
)

// DefaultCapacity is the nominal entry count of a page buffer.
const DefaultCapacity = 5120

var ErrDisposed = errors.New("chatlog: buffer disposed")

// Filter decides whether a buffer wants entries of a channel.
// A nil Filter accepts nothing.
type Filter func(ChannelCode) bool

// AcceptAll is a Filter that takes every channel.
func AcceptAll(ChannelCode) bool { return true }

// Added is the payload of an "entry added" notification.
type Added struct {
	Owner Owner
	Entry Entry
}

// Listener receives Added notifications. It is called synchronously on the
// inserting goroutine, after the buffer lock has been released.
type Listener func(Added)

type listenerEntry struct {
	id uint64
	fn Listener
}

// BufferConfig configures NewBuffer.
type BufferConfig struct {
	Owner    Owner
	Filter   Filter
	Capacity int // <=0 means DefaultCapacity
	Log      logx.Logger
}

// Buffer is the entry history of a single page.
//
// Entries are kept in insertion order. Mutations take the buffer's own lock;
// listeners are invoked after it is released.
type Buffer struct {
	id       string
	reg      *Registry
	owner    Owner
	capacity int
	margin   int
	log      logx.Logger

	filter   atomic.Pointer[Filter]
	disposed atomic.Bool

	// dispatch is held for reading around each listener call and taken for
	// writing by Dispose, so no call is in flight once Dispose returns.
	dispatch sync.RWMutex

	mu        sync.Mutex
	entries   []Entry
	listeners []listenerEntry
	nextID    uint64
}

// NewBuffer creates a buffer and registers it in reg (if non-nil).
func NewBuffer(reg *Registry, cfg BufferConfig) *Buffer {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		id:       uuid.NewString(),
		reg:      reg,
		owner:    cfg.Owner,
		capacity: capacity,
		margin:   capacity / 10,
		log:      cfg.Log,
	}
	b.entries = make([]Entry, 0, b.capacity+b.margin)
	b.SetFilter(cfg.Filter)
	if reg != nil {
		reg.Register(b)
	}
	return b
}

func (b *Buffer) ID() string    { return b.id }
func (b *Buffer) Owner() Owner  { return b.owner }
func (b *Buffer) Capacity() int { return b.capacity }

// Margin is the preallocated headroom above Capacity.
func (b *Buffer) Margin() int { return b.margin }

func (b *Buffer) Disposed() bool { return b.disposed.Load() }

// SetFilter swaps the channel filter. Already stored entries are not
// re-filtered; the new filter applies from the next delivered batch.
func (b *Buffer) SetFilter(f Filter) {
	b.filter.Store(&f)
}

// Filter returns the current filter (possibly nil).
func (b *Buffer) Filter() Filter {
	p := b.filter.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Accepts reports whether the current filter takes ch.
func (b *Buffer) Accepts(ch ChannelCode) bool {
	f := b.Filter()
	if f == nil {
		return false
	}
	return f(ch)
}

// Subscribe adds an "entry added" listener.
func (b *Buffer) Subscribe(fn Listener) (unsubscribe func(), err error) {
	if fn == nil {
		return func() {}, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed.Load() {
		return func() {}, ErrDisposed
	}
	id := b.nextID
	b.nextID++
	b.listeners = append(b.listeners, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, l := range b.listeners {
				if l.id == id {
					b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
					return
				}
			}
		})
	}, nil
}

// Add inserts a single entry. It reports whether the entry was stored.
func (b *Buffer) Add(e Entry) bool {
	return b.InsertBatch([]Entry{e}) == 1
}

// InsertBatch appends entries in order and returns how many were stored.
//
// The first entry that duplicates something already in the buffer (including
// entries stored earlier in the same call) ends the call: it and every entry
// after it are dropped.
func (b *Buffer) InsertBatch(entries []Entry) int {
	if len(entries) == 0 {
		return 0
	}

	b.mu.Lock()
	if b.disposed.Load() {
		b.mu.Unlock()
		return 0
	}
	added := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if b.hasDuplicateLocked(e) {
			if b.log.Enabled(logx.LevelTrace) {
				b.log.Trace("duplicate entry; abandoning batch",
					logx.String("owner", b.owner.String()),
					logx.String("channel", string(e.Channel)),
					logx.Int("dropped", len(entries)-len(added)),
				)
			}
			break
		}
		e.Owner = b.owner
		b.entries = append(b.entries, e)
		added = append(added, e)
	}
	ls := b.listenersLocked()
	b.mu.Unlock()

	b.notify(ls, added)
	return len(added)
}

func (b *Buffer) hasDuplicateLocked(e Entry) bool {
	for i := range b.entries {
		if IsDuplicate(e, b.entries[i]) {
			return true
		}
	}
	return false
}

func (b *Buffer) listenersLocked() []listenerEntry {
	if len(b.listeners) == 0 {
		return nil
	}
	return append([]listenerEntry(nil), b.listeners...)
}

func (b *Buffer) notify(ls []listenerEntry, added []Entry) {
	if len(ls) == 0 || len(added) == 0 {
		return
	}
	for _, e := range added {
		ev := Added{Owner: b.owner, Entry: e}
		for _, l := range ls {
			if !b.call(l.fn, ev) {
				return
			}
		}
	}
}

// call runs one listener unless the buffer has been disposed.
func (b *Buffer) call(fn Listener, ev Added) bool {
	b.dispatch.RLock()
	defer b.dispatch.RUnlock()
	if b.disposed.Load() {
		return false
	}
	b.safeCall(fn, ev)
	return true
}

func (b *Buffer) safeCall(fn Listener, ev Added) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("chatlog listener panicked",
				logx.String("owner", b.owner.String()),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	fn(ev)
}

// GarbageCollect compacts an overfull buffer.
//
// When the buffer holds more than Capacity entries, exactly Capacity of the
// oldest entries are removed, leaving len-Capacity. Otherwise it does
// nothing. It returns the number of removed entries.
func (b *Buffer) GarbageCollect() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.entries)
	if b.disposed.Load() || n <= b.capacity {
		return 0
	}
	keep := n - b.capacity
	rest := make([]Entry, keep, max(keep, b.capacity+b.margin))
	copy(rest, b.entries[b.capacity:])
	b.entries = rest
	return b.capacity
}

// Clear drops all entries and returns how many were removed.
func (b *Buffer) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.entries)
	if n == 0 {
		return 0
	}
	b.entries = make([]Entry, 0, b.capacity+b.margin)
	return n
}

// RemoveSynthetic drops demo entries and returns how many were removed.
func (b *Buffer) RemoveSynthetic() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeSyntheticLocked()
}

func (b *Buffer) removeSyntheticLocked() int {
	kept := b.entries[:0]
	removed := 0
	for _, e := range b.entries {
		if e.Synthetic {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// zero the tail so dropped entries don't linger in the backing array
	for i := len(kept); i < len(b.entries); i++ {
		b.entries[i] = Entry{}
	}
	b.entries = kept
	return removed
}

// LoadDemo replaces any demo entries with a fresh demo set for this page.
// Demo entries bypass duplicate detection.
func (b *Buffer) LoadDemo() int {
	demo := demoEntries(b.owner)

	b.mu.Lock()
	if b.disposed.Load() {
		b.mu.Unlock()
		return 0
	}
	b.removeSyntheticLocked()
	for i := range demo {
		demo[i].Owner = b.owner
		b.entries = append(b.entries, demo[i])
	}
	ls := b.listenersLocked()
	b.mu.Unlock()

	b.notify(ls, demo)
	return len(demo)
}

// Entries returns a copy of the stored entries, oldest first.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Entry(nil), b.entries...)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Dispose unregisters the buffer, detaches listeners and drops its entries.
// It is one-way and safe to call more than once. It waits for listener calls
// already in progress; once it returns no listener is called again. A
// listener must not dispose the buffer it is subscribed to.
//
// The buffer leaves the registry before its contents are cleared, so a
// concurrent Deliver either inserts its whole batch before the clear or
// inserts nothing.
func (b *Buffer) Dispose() {
	if !b.disposed.CompareAndSwap(false, true) {
		return
	}
	if b.reg != nil {
		b.reg.Unregister(b)
	}
	// Wait out running listeners; later calls see disposed.
	b.dispatch.Lock()
	b.dispatch.Unlock()
	b.mu.Lock()
	b.listeners = nil
	b.entries = nil
	b.mu.Unlock()
}
