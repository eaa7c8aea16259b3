// Package models defines the domain entities of the yt2pt channel migration pipeline.
//
// Persistent entities, stored in the SQLite journal:
//   - [Channel] : a source channel and where its uploads are listed
//   - [Item] : one media item and its transfer progress
//   - [Run] : one coordinator invocation and its counters
//
// Value types returned to callers:
//   - [MigrationReport] : the outcome of a coordinator run
//   - [ItemFilter] : criteria for listing journal items
//
// [ItemStatus] carries the per-item state machine; [ItemStatus.CanTransition] is the single authority the journal
// consults before writing a status.
package models
