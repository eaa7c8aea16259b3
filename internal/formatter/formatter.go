// package formatter renders journal items, runs and migration reports as text, JSON or CSV
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/shared"
)

// Format is an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat parses "text", "json" or "csv". An empty string means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want text, json or csv)", shared.ErrInvalidArgument, s)
	}
}

// ReportToText renders a migration report as a short human summary.
func ReportToText(report *models.MigrationReport) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Run: %s\n", report.RunID))
	buf.WriteString(fmt.Sprintf("Channel: %s\n", report.ChannelID))
	buf.WriteString(fmt.Sprintf("Discovered: %d\n", report.TotalDiscovered))
	buf.WriteString(fmt.Sprintf("Selected: %d\n", report.Selected))
	buf.WriteString(fmt.Sprintf("Uploaded: %d\n", report.Uploaded))
	buf.WriteString(fmt.Sprintf("Failed: %d\n", report.Failed))
	buf.WriteString(fmt.Sprintf("Skipped: %d\n", report.Skipped))
	if report.Canceled {
		buf.WriteString("Canceled: yes\n")
	}
	buf.WriteString(fmt.Sprintf("Elapsed: %s\n", report.Elapsed().Round(time.Millisecond)))

	if len(report.FailedItemIDs) > 0 {
		buf.WriteString("\nFailed items:\n")
		for i, id := range report.FailedItemIDs {
			buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, id))
		}
	}

	return buf.Bytes()
}

// ReportToCSV renders a report as a header row and a single record. Failed ids are joined with ";".
func ReportToCSV(report *models.MigrationReport) ([]byte, error) {
	headers := []string{"RunID", "Channel", "Discovered", "Selected", "Uploaded", "Failed", "Skipped", "Canceled", "FailedItems"}
	record := []string{
		report.RunID,
		report.ChannelID,
		strconv.Itoa(report.TotalDiscovered),
		strconv.Itoa(report.Selected),
		strconv.Itoa(report.Uploaded),
		strconv.Itoa(report.Failed),
		strconv.Itoa(report.Skipped),
		strconv.FormatBool(report.Canceled),
		strings.Join(report.FailedItemIDs, ";"),
	}
	return writeCSV(headers, [][]string{record})
}

// ItemsToCSV converts items to CSV with columns: Sequence, ID, Title, Status, Attempts, Source, Destination, Error
func ItemsToCSV(items []*models.Item) ([]byte, error) {
	headers := []string{"Sequence", "ID", "Title", "Status", "Attempts", "Source", "Destination", "Error"}
	records := make([][]string, 0, len(items))
	for _, item := range items {
		records = append(records, []string{
			strconv.FormatInt(item.Sequence, 10),
			item.ItemID,
			item.Title,
			string(item.Status),
			strconv.Itoa(item.Attempts),
			item.SourceRef,
			item.DestinationRef,
			item.LastError,
		})
	}
	return writeCSV(headers, records)
}

// ItemsToText renders one line per item.
func ItemsToText(items []*models.Item) []byte {
	var buf bytes.Buffer
	for _, item := range items {
		line := fmt.Sprintf("%4d  %-12s %-10s %s", item.Sequence, item.ItemID, item.Status, shared.Truncate(item.Title, 60))
		if item.DestinationRef != "" {
			line += " -> " + item.DestinationRef
		}
		if item.LastError != "" {
			line += " (" + shared.Truncate(item.LastError, 80) + ")"
		}
		buf.WriteString(line + "\n")
	}
	buf.WriteString(fmt.Sprintf("Items: %d\n", len(items)))
	return buf.Bytes()
}

// ItemToText renders every field of a single item.
func ItemToText(item *models.Item) []byte {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("ID: %s\n", item.ItemID))
	buf.WriteString(fmt.Sprintf("Title: %s\n", item.Title))
	buf.WriteString(fmt.Sprintf("Channel: %s\n", item.ChannelID))
	buf.WriteString(fmt.Sprintf("Sequence: %d\n", item.Sequence))
	buf.WriteString(fmt.Sprintf("Status: %s\n", item.Status))
	buf.WriteString(fmt.Sprintf("Downloaded: %t\n", item.Downloaded))
	buf.WriteString(fmt.Sprintf("Uploaded: %t\n", item.Uploaded))
	buf.WriteString(fmt.Sprintf("Attempts: %d\n", item.Attempts))
	buf.WriteString(fmt.Sprintf("Source: %s\n", item.SourceRef))
	if item.LocalAssetRef != "" {
		buf.WriteString(fmt.Sprintf("Staged: %s\n", item.LocalAssetRef))
	}
	if item.DestinationRef != "" {
		buf.WriteString(fmt.Sprintf("Destination: %s\n", item.DestinationRef))
	}
	buf.WriteString(fmt.Sprintf("Idempotency key: %s\n", item.IdempotencyKey))
	if item.LastError != "" {
		buf.WriteString(fmt.Sprintf("Last error: %s\n", item.LastError))
	}
	buf.WriteString(fmt.Sprintf("Updated: %s\n", item.UpdatedAt.Format(time.RFC3339)))
	return buf.Bytes()
}

// RunsToText renders one line per run, newest first as given.
func RunsToText(runs []*models.Run) []byte {
	var buf bytes.Buffer
	for _, run := range runs {
		buf.WriteString(fmt.Sprintf("%s  %-9s %s  uploaded=%d failed=%d skipped=%d  %s\n",
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Status,
			run.ID,
			run.Uploaded, run.Failed, run.Skipped,
			run.Duration().Round(time.Second),
		))
		if run.ErrorMessage != "" {
			buf.WriteString("    " + shared.Truncate(run.ErrorMessage, 100) + "\n")
		}
	}
	return buf.Bytes()
}

// RunsToCSV converts runs to CSV.
func RunsToCSV(runs []*models.Run) ([]byte, error) {
	headers := []string{"ID", "Channel", "Status", "Discovered", "Uploaded", "Failed", "Skipped", "StartedAt", "CompletedAt", "Error"}
	records := make([][]string, 0, len(runs))
	for _, run := range runs {
		completed := ""
		if run.CompletedAt != nil {
			completed = run.CompletedAt.Format(time.RFC3339)
		}
		records = append(records, []string{
			run.ID,
			run.ChannelID,
			string(run.Status),
			strconv.Itoa(run.Discovered),
			strconv.Itoa(run.Uploaded),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.Skipped),
			run.StartedAt.Format(time.RFC3339),
			completed,
			run.ErrorMessage,
		})
	}
	return writeCSV(headers, records)
}

// StatusCountsToText renders per-status counts in lifecycle order.
func StatusCountsToText(counts map[models.ItemStatus]int) []byte {
	var buf bytes.Buffer
	total := 0
	for _, status := range models.ItemStatuses() {
		buf.WriteString(fmt.Sprintf("%-10s %d\n", status, counts[status]))
		total += counts[status]
	}
	buf.WriteString(fmt.Sprintf("%-10s %d\n", "total", total))
	return buf.Bytes()
}

// ToJSON marshals v with two-space indentation.
func ToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteReport writes report to w in format.
func WriteReport(w io.Writer, report *models.MigrationReport, format Format) error {
	var data []byte
	var err error

	switch format {
	case FormatJSON:
		data, err = ToJSON(report)
	case FormatCSV:
		data, err = ReportToCSV(report)
	default:
		data = ReportToText(report)
	}
	if err != nil {
		return err
	}
	return write(w, data)
}

// WriteItems writes items to w in format.
func WriteItems(w io.Writer, items []*models.Item, format Format) error {
	var data []byte
	var err error

	switch format {
	case FormatJSON:
		data, err = ToJSON(items)
	case FormatCSV:
		data, err = ItemsToCSV(items)
	default:
		data = ItemsToText(items)
	}
	if err != nil {
		return err
	}
	return write(w, data)
}

// WriteRuns writes runs to w in format.
func WriteRuns(w io.Writer, runs []*models.Run, format Format) error {
	var data []byte
	var err error

	switch format {
	case FormatJSON:
		data, err = ToJSON(runs)
	case FormatCSV:
		data, err = RunsToCSV(runs)
	default:
		data = RunsToText(runs)
	}
	if err != nil {
		return err
	}
	return write(w, data)
}

// WriteItemsFile exports items to path, choosing the format from the extension (.json or .csv, text otherwise).
func WriteItemsFile(items []*models.Item, path string) error {
	if path == "" {
		return fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}

	format := FormatText
	switch {
	case strings.HasSuffix(path, ".json"):
		format = FormatJSON
	case strings.HasSuffix(path, ".csv"):
		format = FormatCSV
	}

	var buf bytes.Buffer
	if err := WriteItems(&buf, items, format); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeCSV(headers []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

func write(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
