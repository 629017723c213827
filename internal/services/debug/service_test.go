package debug

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rings/internal/chatlog"
	logx "rings/pkg/logx"
)

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func TestReconfigureServesPages(t *testing.T) {
	reg := chatlog.NewRegistry()
	b := chatlog.NewBuffer(reg, chatlog.BufferConfig{Owner: chatlog.Owner{Overlay: "main", Page: "all"}, Filter: chatlog.AcceptAll, Capacity: 10})
	b.Add(chatlog.Entry{Timestamp: time.Now(), Channel: chatlog.ChannelSay, Message: "hi"})

	s := New(reg, logx.Nop())
	ctx := context.Background()
	t.Cleanup(func() { s.Stop(ctx) })
	prevMutex := runtime.SetMutexProfileFraction(-1)
	t.Cleanup(func() {
		runtime.SetMutexProfileFraction(prevMutex)
		runtime.SetBlockProfileRate(0)
	})

	if err := s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret", MutexProfileFraction: 5}); err != nil {
		t.Fatalf("Reconfigure error: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("expected a bound address")
	}
	if got := runtime.SetMutexProfileFraction(-1); got != 5 {
		t.Fatalf("mutex profile fraction = %d, want 5", got)
	}

	resp := get(t, "http://"+addr+"/debug/pages", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", resp.StatusCode)
	}

	resp = get(t, "http://"+addr+"/debug/pages", "s3cret")
	defer resp.Body.Close()
	var pages []PageInfo
	if err := json.NewDecoder(resp.Body).Decode(&pages); err != nil {
		t.Fatalf("decode pages: %v", err)
	}
	if len(pages) != 1 || pages[0].Page != "all" || pages[0].Entries != 1 || pages[0].Capacity != 10 {
		t.Fatalf("pages = %+v", pages)
	}

	// Same config keeps the listener.
	if err := s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret", MutexProfileFraction: 5}); err != nil {
		t.Fatal(err)
	}
	if s.Addr() != addr {
		t.Fatalf("server restarted without a change: %s -> %s", addr, s.Addr())
	}

	if err := s.Reconfigure(ctx, Config{}); err != nil {
		t.Fatal(err)
	}
	if s.Addr() != "" {
		t.Fatal("server still running after disable")
	}
}

func TestRefusesPublicBindWithoutToken(t *testing.T) {
	t.Parallel()
	s := New(chatlog.NewRegistry(), logx.Nop())
	if err := s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "0.0.0.0:0", MutexProfileFraction: -1, BlockProfileRate: -1}); err == nil {
		s.Stop(context.Background())
		t.Fatal("expected refusal for public bind without token")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:1", true},
		{"[::1]:6060", true},
		{":6060", false},
		{"0.0.0.0:6060", false},
		{"10.0.0.2:80", false},
		{"nonsense", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.addr, func(t *testing.T) {
			t.Parallel()
			if got := IsLoopbackAddr(tt.addr); got != tt.want {
				t.Fatalf("IsLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestStreamTailsPage(t *testing.T) {
	reg := chatlog.NewRegistry()
	b := chatlog.NewBuffer(reg, chatlog.BufferConfig{Owner: chatlog.Owner{Overlay: "main", Page: "all"}, Filter: chatlog.AcceptAll, Capacity: 10})
	b.Add(chatlog.Entry{Timestamp: time.Now(), Channel: chatlog.ChannelSay, Message: "before"})

	s := New(reg, logx.Nop())
	ctx := context.Background()
	t.Cleanup(func() { s.Stop(ctx) })
	if err := s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", MutexProfileFraction: -1, BlockProfileRate: -1}); err != nil {
		t.Fatalf("Reconfigure error: %v", err)
	}

	resp := get(t, "http://"+s.Addr()+"/debug/pages/stream?overlay=main&page=nope", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown page: status %d, want 404", resp.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/debug/pages/stream?overlay=main&page=all", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if msg.Type != "snapshot" || len(msg.Entries) != 1 || msg.Entries[0].Message != "before" {
		t.Fatalf("snapshot = %+v", msg)
	}

	b.Add(chatlog.Entry{Timestamp: time.Now(), Channel: chatlog.ChannelSay, Message: "after"})
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if msg.Type != "entry" || msg.Entry == nil || msg.Entry.Message != "after" || msg.Page != "all" {
		t.Fatalf("entry = %+v", msg)
	}
}
