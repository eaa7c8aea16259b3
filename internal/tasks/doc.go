// Package tasks runs YouTube to PeerTube migrations with real-time progress reporting.
//
// # Core Operations
//
//  1. [CatalogFetcher.SyncCatalog] : Record a channel's catalog in the journal
//     - Resolves the channel once, then walks the uploads playlist page by page
//     - Upserts each page in one transaction; known items keep their status
//
//  2. [Transferer.Transfer] : Move one item to the destination
//     - upload mode stages the asset on disk, then uploads the file
//     - import mode asks the destination to fetch the source URL
//     - Transient failures retry under a [RetryPolicy]; client errors fail the item at once
//     - A 401 re-authenticates once through the [TokenCache]
//
//  3. [Coordinator.Run] : One migration run
//     - Sync, select pending items up to a limit, transfer them with a bounded worker pool
//     - Returns a [models.MigrationReport] and records the run in the journal
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Errors
//
// Per-item failures are recorded on the item and reported in the result. Storage failures, rejected credentials and
// catalog failures stop the run; the items in flight are left where the next run resumes them.
package tasks
