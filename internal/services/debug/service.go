// Package debug serves pprof, a health probe, a JSON snapshot of the live
// chat pages and a websocket tail of a single page over HTTP. It is off
// unless configured.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"rings/internal/chatlog"
	logx "rings/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

// Config controls the debug server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - A non-loopback Addr needs Token or AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	ReadTimeout time.Duration
	IdleTimeout time.Duration

	MutexProfileFraction int
	BlockProfileRate     int
}

// PageSource lists the live page buffers.
type PageSource interface {
	Snapshot() []*chatlog.Buffer
}

// PageInfo is one row of /debug/pages.
type PageInfo struct {
	ID       string `json:"id"`
	Overlay  string `json:"overlay"`
	Page     string `json:"page"`
	Entries  int    `json:"entries"`
	Capacity int    `json:"capacity"`
	Margin   int    `json:"margin"`
}

type Service struct {
	pages PageSource
	log   logx.Logger

	mu  sync.Mutex
	cfg Config
	ln  net.Listener
	srv *http.Server
}

func New(pages PageSource, log logx.Logger) *Service {
	return &Service{pages: pages, log: log.With(logx.String("comp", "debug"))}
}

// Addr returns the bound address, or "" when the server is not running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Reconfigure applies cfg, starting, stopping or restarting the server as
// needed. It is safe to call on every config reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	applyRuntimeRates(cfg)

	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		s.Stop(ctx)
		return nil
	case running && !needsRestart(prev, cfg):
		return nil
	case running:
		s.Stop(ctx)
	}
	return s.start()
}

func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr || a.Token != b.Token || a.AllowInsecure != b.AllowInsecure ||
		a.ReadTimeout != b.ReadTimeout || a.IdleTimeout != b.IdleTimeout
}

func applyRuntimeRates(cfg Config) {
	if cfg.MutexProfileFraction >= 0 {
		runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	}
	if cfg.BlockProfileRate >= 0 {
		runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	}
}

func (s *Service) start() error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if !cur.AllowInsecure && cur.Token == "" && !IsLoopbackAddr(addr) {
		return errors.New("debug: non-loopback addr requires token or allow_insecure")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:     s.handler(cur.Token),
		ReadTimeout: cur.ReadTimeout,
		IdleTimeout: cur.IdleTimeout,
	}

	s.mu.Lock()
	s.ln, s.srv = ln, srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("debug server stopped with error", logx.Err(err))
		}
	}()
	s.log.Info("debug server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", cur.Token != ""),
	)
	return nil
}

func (s *Service) handler(token string) http.Handler {
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(token, h) }
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", wrap(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("/debug/pages", wrap(s.servePages))
	mux.HandleFunc("/debug/pages/stream", wrap(s.serveStream))
	mux.HandleFunc("/debug/pprof/", wrap(hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", wrap(hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", wrap(hpprof.Trace))
	return mux
}

// Pages returns the live pages sorted by owner.
func (s *Service) Pages() []PageInfo {
	bufs := s.pages.Snapshot()
	out := make([]PageInfo, 0, len(bufs))
	for _, b := range bufs {
		o := b.Owner()
		out = append(out, PageInfo{
			ID:       b.ID(),
			Overlay:  o.Overlay,
			Page:     o.Page,
			Entries:  b.Len(),
			Capacity: b.Capacity(),
			Margin:   b.Margin(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Overlay != out[j].Overlay {
			return out[i].Overlay < out[j].Overlay
		}
		return out[i].Page < out[j].Page
	})
	return out
}

func (s *Service) servePages(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Pages()); err != nil {
		s.log.Debug("debug pages write failed", logx.Err(err))
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, ln := s.srv, s.ln
	s.srv, s.ln = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	_ = ln.Close()
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	s.log.Info("debug server stopped")
}

// withAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		}
		if got != tok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func IsLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
