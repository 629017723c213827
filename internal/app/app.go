package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"rings/internal/chatlog"
	"rings/internal/config"
	"rings/internal/eventbus"
	"rings/internal/ingest"
	"rings/internal/overlay"
	"rings/internal/runtime/supervisor"
	"rings/internal/services/debug"
	"rings/internal/services/janitor"
	"rings/internal/storage"
	logx "rings/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	reg      *chatlog.Registry
	dist     *chatlog.Distributor
	overlays *overlay.Manager
	janitor  *janitor.Service
	pump     *ingest.Pump
	debug    *debug.Service
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(validateConfig)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	logSvc, log := logx.New(mapLogConfig(cfg), bus)

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("audit storage enabled", logx.String("driver", sc.Driver))
	}

	reg := chatlog.NewRegistry()
	dist := chatlog.NewDistributor(reg,
		chatlog.WithLogger(log.With(logx.String("comp", "distributor"))),
		chatlog.WithBus(bus),
		chatlog.WithParallel(cfg.Chatlog.Parallel()),
	)

	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      bus,
		store:    store,
		reg:      reg,
		dist:     dist,
		overlays: overlay.NewManager(reg, overlay.WithLogger(log.With(logx.String("comp", "overlay"))), overlay.WithBus(bus)),
		janitor:  janitor.New(reg, bus, log),
		debug:    debug.New(reg, log),
	}

	src, err := newSource(cfg.Ingest, log.With(logx.String("comp", "ingest")))
	if err != nil {
		a.closeStore()
		return nil, err
	}
	if src != nil {
		a.pump = ingest.NewPump(src, dist, cfg.Ingest.RatePerSec, log)
	}
	return a, nil
}

// validateConfig runs before a config is committed, at load and on every
// reload.
func validateConfig(_ context.Context, c *config.Config) error {
	if err := config.Validate(c); err != nil {
		return err
	}
	if _, err := janitor.ParseSchedule(c.Chatlog.Schedule()); err != nil {
		return fmt.Errorf("chatlog.gc_schedule: %w", err)
	}
	if _, _, err := mapStorageConfig(c); err != nil {
		return err
	}
	if _, err := mapDebugConfig(c); err != nil {
		return err
	}
	return nil
}

func (a *App) Registry() *chatlog.Registry       { return a.reg }
func (a *App) Distributor() *chatlog.Distributor { return a.dist }
func (a *App) Overlays() *overlay.Manager        { return a.overlays }
func (a *App) Bus() eventbus.Bus                 { return a.bus }
func (a *App) Config() *config.Config            { return a.cfgm.Get() }

// Ingest delivers entries to every page, as the ingest pump does.
func (a *App) Ingest(entries ...chatlog.Entry) chatlog.Delivery {
	return a.dist.Deliver(entries...)
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	// Audit first so the initial page openings are recorded.
	if a.store != nil {
		events, unsub := a.bus.Subscribe(256, "overlay.page.", janitor.EventCollected)
		a.sup.Go0("audit", func(c context.Context) {
			defer unsub()
			recordAudit(c, events, a.store, a.log.With(logx.String("comp", "audit")))
		})
	}

	a.overlays.Apply(cfg.Overlays, cfg.Chatlog.Capacity())
	if err := a.janitor.Start(cfg.Chatlog.Schedule()); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("chatlog.gc_schedule: %w", err)
	}

	a.reconfigureDebug(ctx, cfg)

	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub, cfg)
	})

	if a.pump != nil {
		a.sup.Go("ingest", func(c context.Context) error {
			err := a.pump.Run(c)
			// The app keeps running: pages stay live and Ingest still works.
			if errors.Is(err, ingest.ErrSourceClosed) {
				st := a.pump.Stats()
				a.log.Info("ingest source ended",
					logx.Uint64("batches", st.Batches),
					logx.Uint64("entries", st.Entries),
					logx.Uint64("inserted", st.Inserted),
				)
				return nil
			}
			return err
		})
	}

	a.log.Info("started",
		logx.Int("pages", len(a.overlays.Pages())),
		logx.Int("buffer_size", cfg.Chatlog.Capacity()),
		logx.Bool("parallel_delivery", cfg.Chatlog.Parallel()),
		logx.String("ingest", strings.TrimSpace(cfg.Ingest.Source)),
	)
	return nil
}

// reloadLoop applies published configs until ctx is done.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config, applied *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts, keep the newest.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(applied, next)
			applied = next
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs, overlays := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config changed", fields...)

	if slices.Contains(sections, "logging") {
		a.logs.Apply(mapLogConfig(next))
	}
	if slices.Contains(sections, "chatlog") || slices.Contains(sections, "overlays") {
		if len(overlays) > 0 {
			a.log.Debug("overlay changes", logx.Strings("overlays", overlays))
		}
		a.overlays.Apply(next.Overlays, next.Chatlog.Capacity())
		if err := a.janitor.Start(next.Chatlog.Schedule()); err != nil {
			a.log.Warn("gc schedule rejected; keeping previous", logx.Err(err))
		}
	}
	if prev.Chatlog.Parallel() != next.Chatlog.Parallel() {
		a.dist.SetParallel(next.Chatlog.Parallel())
	}
	if slices.Contains(sections, "debug") {
		a.reconfigureDebug(a.sup.Context(), next)
	}
	for _, s := range []string{"ingest", "storage"} {
		if slices.Contains(sections, s) {
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}
}

// Stop tears everything down in reverse start order. Each step is bounded
// so one slow component cannot stall shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStore()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Cancelling first stops ingest, so no batch races the page teardown.
	a.sup.Cancel()
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("janitor", time.Second, func(c context.Context) error { a.janitor.Stop(c); return nil })
	step("debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("overlays", time.Second, func(context.Context) error { a.overlays.Close(); return nil })
	step("storage", time.Second, func(c context.Context) error {
		if a.store == nil {
			return nil
		}
		_ = a.store.AppendAudit(c, storage.AuditEntry{Overlay: "*", Action: "stopped", Detail: string(reason)})
		return a.closeStore()
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// reconfigureDebug failures are logged; the debug server is never fatal.
func (a *App) reconfigureDebug(ctx context.Context, cfg *config.Config) {
	dc, err := mapDebugConfig(cfg)
	if err == nil {
		err = a.debug.Reconfigure(ctx, dc)
	}
	if err != nil {
		a.log.Error("debug server not started", logx.Err(err))
	}
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
