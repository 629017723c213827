package overlay

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"rings/internal/chatlog"
	"rings/internal/config"
	"rings/internal/eventbus"
	logx "rings/pkg/logx"
)

// Page lifecycle events. Data is a PageEvent.
const (
	EventPageOpened  = "overlay.page.opened"
	EventPageClosed  = "overlay.page.closed"
	EventPageCleared = "overlay.page.cleared"
	EventPageDemo    = "overlay.page.demo"
)

var ErrUnknownPage = errors.New("overlay: unknown page")

type PageEvent struct {
	Overlay string `json:"overlay"`
	Page    string `json:"page"`
	Count   int    `json:"count,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Manager owns one chatlog.Buffer per configured overlay page and keeps
// the set in step with config reloads.
type Manager struct {
	reg *chatlog.Registry
	log logx.Logger
	bus eventbus.Bus

	mu       sync.Mutex
	capacity int
	pages    map[chatlog.Owner]*page
}

type page struct {
	buf *chatlog.Buffer
	cfg config.PageConfig
}

type Option func(*Manager)

func WithLogger(log logx.Logger) Option { return func(m *Manager) { m.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(m *Manager) { m.bus = bus } }

func NewManager(reg *chatlog.Registry, opts ...Option) *Manager {
	m := &Manager{reg: reg, pages: map[chatlog.Owner]*page{}}
	for _, o := range opts {
		o(m)
	}
	return m
}

// FilterFor builds a buffer filter from a page channel map. Channels that
// are not listed are accepted.
func FilterFor(channels map[string]bool) chatlog.Filter {
	disabled := map[chatlog.ChannelCode]bool{}
	for raw, on := range channels {
		if on {
			continue
		}
		code, _ := chatlog.ParseChannel(raw)
		disabled[code] = true
	}
	if len(disabled) == 0 {
		return chatlog.AcceptAll
	}
	return func(c chatlog.ChannelCode) bool { return !disabled[c] }
}

// Apply opens, updates and disposes pages so the managed set matches
// overlays. capacity <= 0 means chatlog.DefaultCapacity.
//
// A page whose capacity changes is reopened with an empty history. Filter
// changes are swapped in place and apply from the next delivered batch.
func (m *Manager) Apply(overlays []config.OverlayConfig, capacity int) {
	if capacity <= 0 {
		capacity = chatlog.DefaultCapacity
	}

	var (
		events []eventbus.Event
		demos  []func() // run after unlock; they notify listeners
	)
	emit := func(typ string, ev PageEvent) {
		events = append(events, eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
	}

	m.mu.Lock()
	resize := m.capacity != 0 && m.capacity != capacity
	m.capacity = capacity

	want := map[chatlog.Owner]config.PageConfig{}
	for _, o := range overlays {
		for _, p := range o.Pages {
			want[pageOwner(o.Name, p.Name)] = p
		}
	}

	for owner, pg := range m.pages {
		if _, ok := want[owner]; ok && !resize {
			continue
		}
		pg.buf.Dispose()
		delete(m.pages, owner)
		reason := "removed"
		if resize {
			reason = "resized"
		}
		emit(EventPageClosed, PageEvent{Overlay: owner.Overlay, Page: owner.Page, Reason: reason})
	}

	for owner, pc := range want {
		pg, ok := m.pages[owner]
		if !ok {
			buf := chatlog.NewBuffer(m.reg, chatlog.BufferConfig{
				Owner:    owner,
				Filter:   FilterFor(pc.Channels),
				Capacity: capacity,
				Log:      m.log,
			})
			m.pages[owner] = &page{buf: buf, cfg: pc}
			emit(EventPageOpened, PageEvent{Overlay: owner.Overlay, Page: owner.Page})
			if pc.Demo {
				demos = append(demos, m.demoFunc(owner, buf, true))
			}
			continue
		}

		if !maps.Equal(pg.cfg.Channels, pc.Channels) {
			pg.buf.SetFilter(FilterFor(pc.Channels))
		}
		if pc.Demo != pg.cfg.Demo {
			demos = append(demos, m.demoFunc(owner, pg.buf, pc.Demo))
		}
		pg.cfg = pc
	}
	n := len(m.pages)
	m.mu.Unlock()

	m.log.Debug("overlay pages applied", logx.Int("pages", n), logx.Int("capacity", capacity), logx.Int("events", len(events)))
	m.publish(events...)
	for _, fn := range demos {
		fn()
	}
}

func (m *Manager) demoFunc(owner chatlog.Owner, buf *chatlog.Buffer, load bool) func() {
	return func() {
		if !load {
			buf.RemoveSynthetic()
			return
		}
		m.loadDemo(owner, buf)
	}
}

func (m *Manager) loadDemo(owner chatlog.Owner, buf *chatlog.Buffer) int {
	n := buf.LoadDemo()
	m.publish(eventbus.Event{Type: EventPageDemo, Time: time.Now(), Data: PageEvent{Overlay: owner.Overlay, Page: owner.Page, Count: n}})
	return n
}

func (m *Manager) publish(events ...eventbus.Event) {
	if m.bus == nil {
		return
	}
	for _, ev := range events {
		m.bus.Publish(ev)
	}
}

// pageOwner keys pages by trimmed names, the form config validation checks.
func pageOwner(overlay, page string) chatlog.Owner {
	return chatlog.Owner{Overlay: strings.TrimSpace(overlay), Page: strings.TrimSpace(page)}
}

// Page returns the buffer of the named page.
func (m *Manager) Page(overlay, name string) (*chatlog.Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pg, ok := m.pages[pageOwner(overlay, name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownPage, overlay, name)
	}
	return pg.buf, nil
}

// Pages lists the managed pages sorted by overlay then page.
func (m *Manager) Pages() []chatlog.Owner {
	m.mu.Lock()
	out := slices.Collect(maps.Keys(m.pages))
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b chatlog.Owner) int {
		if c := strings.Compare(a.Overlay, b.Overlay); c != 0 {
			return c
		}
		return strings.Compare(a.Page, b.Page)
	})
	return out
}

// Clear empties one page and returns how many entries were removed.
func (m *Manager) Clear(overlay, name string) (int, error) {
	buf, err := m.Page(overlay, name)
	if err != nil {
		return 0, err
	}
	n := buf.Clear()
	o := buf.Owner()
	m.publish(eventbus.Event{Type: EventPageCleared, Time: time.Now(), Data: PageEvent{Overlay: o.Overlay, Page: o.Page, Count: n}})
	return n, nil
}

// LoadDemo replaces the synthetic entries of one page with the demo set.
func (m *Manager) LoadDemo(overlay, name string) (int, error) {
	buf, err := m.Page(overlay, name)
	if err != nil {
		return 0, err
	}
	return m.loadDemo(buf.Owner(), buf), nil
}

// Close disposes every page.
func (m *Manager) Close() {
	m.Apply(nil, m.currentCapacity())
}

func (m *Manager) currentCapacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capacity
}
