// Package chatlog buffers chat log entries for display pages.
//
// # Components
//
//   - Buffer: per-page ordered, bounded, deduplicated entry list with
//     "entry added" listeners.
//   - Registry: the set of currently active buffers.
//   - Distributor: fans a batch of entries out to every registered buffer
//     whose filter accepts the entry's channel.
//
// # Locking
//
// There are two lock domains: the registry lock and each buffer's own lock.
// The distributor takes a registry snapshot (lock held only for the copy)
// before touching any buffer, and a buffer never calls into the registry
// while holding its own lock. Listeners run synchronously after the buffer
// lock is released, so they may call back into the buffer.
//
// # Duplicates
//
// Two entries are duplicates when channel and message are equal and their
// timestamps are at most DedupWindow apart. A batch insert stops at the first
// duplicate: the remaining entries of that call are dropped.
package chatlog
