package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file next to Path (<base>.audit.jsonl)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one page lifecycle action.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Overlay string    `json:"overlay"`
	Page    string    `json:"page,omitempty"`
	Action  string    `json:"action"`
	Detail  string    `json:"detail,omitempty"`
	Count   int       `json:"count,omitempty"`
}
