package tasks

import (
	"fmt"

	"github.com/desertthunder/yt2pt/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	SyncChannel Phase = iota
	FetchPage
	SelectItems
	AcquireItem
	UploadItem
	ItemFinished
	RunFinished
)

func (p Phase) String() string {
	switch p {
	case SyncChannel:
		return "sync_channel"
	case FetchPage:
		return "fetch_page"
	case SelectItems:
		return "select_items"
	case AcquireItem:
		return "acquire_item"
	case UploadItem:
		return "upload_item"
	case ItemFinished:
		return "item_finished"
	case RunFinished:
		return "run_finished"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func syncChannelUpdate(ch *models.Channel) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncChannel,
		Step:    0,
		Total:   ch.TotalItemCount,
		Message: fmt.Sprintf("Found channel %s (%d videos)", ch.DisplayName, ch.TotalItemCount),
		Data:    ch,
	}
}

func collectedUpdate(collected, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPage,
		Step:    collected,
		Total:   total,
		Message: fmt.Sprintf("Collected %d of %d", collected, total),
	}
}

func selectedUpdate(selected, limit int) ProgressUpdate {
	msg := fmt.Sprintf("Selected %d pending items", selected)
	if limit > 0 {
		msg = fmt.Sprintf("Selected %d pending items (limit %d)", selected, limit)
	}
	return ProgressUpdate{
		Phase:   SelectItems,
		Step:    selected,
		Total:   selected,
		Message: msg,
	}
}

func acquireUpdate(item *models.Item) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AcquireItem,
		Message: fmt.Sprintf("Downloading %s (%s)", item.Title, item.ItemID),
		Data:    item.ItemID,
	}
}

func uploadUpdate(item *models.Item) ProgressUpdate {
	return ProgressUpdate{
		Phase:   UploadItem,
		Message: fmt.Sprintf("Uploading %s (%s)", item.Title, item.ItemID),
		Data:    item.ItemID,
	}
}

func itemFinishedUpdate(step, total int, res TransferResult) ProgressUpdate {
	var msg string
	switch res.Outcome {
	case OutcomeDone:
		msg = fmt.Sprintf("uploaded %d / %d: %s", step, total, res.ItemID)
	case OutcomeFailed:
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, res.ItemID, res.Reason)
	default:
		msg = fmt.Sprintf("[%d/%d] skipped %s", step, total, res.ItemID)
	}
	return ProgressUpdate{
		Phase:   ItemFinished,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    res,
	}
}

func runFinishedUpdate(report *models.MigrationReport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RunFinished,
		Step:    report.Uploaded + report.Failed + report.Skipped,
		Total:   report.Selected,
		Message: fmt.Sprintf("Finished: %d uploaded, %d failed, %d skipped", report.Uploaded, report.Failed, report.Skipped),
		Data:    report,
	}
}
