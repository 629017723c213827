package app

import (
	"context"
	"strings"
	"time"

	"rings/internal/eventbus"
	"rings/internal/overlay"
	"rings/internal/services/janitor"
	"rings/internal/storage"
	logx "rings/pkg/logx"
)

// auditEntries maps a bus event to the audit rows it should produce.
// Events that are not audited return nil.
func auditEntries(ev eventbus.Event) []storage.AuditEntry {
	switch data := ev.Data.(type) {
	case overlay.PageEvent:
		return []storage.AuditEntry{{
			At:      ev.Time,
			Overlay: data.Overlay,
			Page:    data.Page,
			Action:  strings.TrimPrefix(ev.Type, "overlay.page."),
			Detail:  data.Reason,
			Count:   data.Count,
		}}
	case janitor.Sweep:
		out := make([]storage.AuditEntry, 0, len(data.Pages))
		for _, p := range data.Pages {
			out = append(out, storage.AuditEntry{
				At:      ev.Time,
				Overlay: p.Owner.Overlay,
				Page:    p.Owner.Page,
				Action:  "collected",
				Count:   p.Removed,
			})
		}
		return out
	default:
		return nil
	}
}

// recordAudit writes page lifecycle events to store until ctx is done,
// then flushes whatever is still queued.
func recordAudit(ctx context.Context, events <-chan eventbus.Event, store storage.Store, log logx.Logger) {
	write := func(ev eventbus.Event) {
		for _, e := range auditEntries(ev) {
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			err := store.AppendAudit(wctx, e)
			cancel()
			if err != nil {
				log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					write(ev)
				default:
					return
				}
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			write(ev)
		}
	}
}
