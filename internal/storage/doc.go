// Package storage keeps an append-only audit trail of overlay page actions
// (opened, closed, cleared, demo loaded, garbage collected).
//
// Chat entries themselves are never persisted; buffers are memory only.
package storage
