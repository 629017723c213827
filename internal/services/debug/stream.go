package debug

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rings/internal/chatlog"
	logx "rings/pkg/logx"
)

const (
	streamQueue   = 256
	streamPing    = 15 * time.Second
	streamWriteTO = 5 * time.Second
)

// StreamMessage is one websocket frame of /debug/pages/stream. The first
// frame has Type "snapshot" and carries the page history; every later
// frame is an "entry".
type StreamMessage struct {
	Type    string          `json:"type"`
	Overlay string          `json:"overlay"`
	Page    string          `json:"page"`
	Entries []chatlog.Entry `json:"entries,omitempty"`
	Entry   *chatlog.Entry  `json:"entry,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Service) findPage(overlay, page string) *chatlog.Buffer {
	for _, b := range s.pages.Snapshot() {
		if o := b.Owner(); o.Overlay == overlay && o.Page == page {
			return b
		}
	}
	return nil
}

// serveStream tails a page: ?overlay=<name>&page=<name>.
func (s *Service) serveStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	buf := s.findPage(strings.TrimSpace(q.Get("overlay")), strings.TrimSpace(q.Get("page")))
	if buf == nil {
		http.Error(w, "unknown page", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("stream upgrade failed", logx.Err(err))
		return
	}
	defer conn.Close()

	owner := buf.Owner()
	log := s.log.With(logx.String("page", owner.String()))

	// Subscribe before the snapshot so nothing falls between the two. An
	// entry may then appear in both; clients dedup on their side.
	queue := make(chan chatlog.Entry, streamQueue)
	overflow := make(chan struct{})
	var overflowOnce sync.Once
	unsub, err := buf.Subscribe(func(ev chatlog.Added) {
		select {
		case queue <- ev.Entry:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	if err != nil {
		closeWith(conn, websocket.CloseGoingAway, "page closed")
		return
	}
	defer unsub()

	write := func(msg StreamMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTO))
		return conn.WriteJSON(msg)
	}
	if err := write(StreamMessage{Type: "snapshot", Overlay: owner.Overlay, Page: owner.Page, Entries: buf.Entries()}); err != nil {
		return
	}

	// The reader only notices the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPing)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-overflow:
			log.Warn("stream consumer too slow; closing")
			closeWith(conn, websocket.ClosePolicyViolation, "too slow")
			return
		case e := <-queue:
			if err := write(StreamMessage{Type: "entry", Overlay: owner.Overlay, Page: owner.Page, Entry: &e}); err != nil {
				return
			}
		case <-ping.C:
			if buf.Disposed() {
				closeWith(conn, websocket.CloseGoingAway, "page closed")
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTO)); err != nil {
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}
