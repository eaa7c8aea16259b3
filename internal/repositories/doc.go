// Package repositories implements the SQLite journal that records migration progress.
//
// The journal is the single source of truth for a migration: every decision the pipeline makes is read back from it
// and every state change is written to it before the next remote call.
//
// Key Implementations:
//   - [Journal] : owns the connection, the schema, and the shared write lock
//   - [ChannelRepository] : channel rows, created on first discovery and refreshed on every sync
//   - [ItemRepository] : item rows and the per-item status machine
//   - [RunRepository] : coordinator run history
//
// Writes are serialized by a single open connection plus a mutex shared by all repositories of a [Journal].
// Failures of the underlying store wrap [shared.ErrStorage] so callers can abort a run on them.
package repositories
