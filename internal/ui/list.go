package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/yt2pt/internal/models"
	"github.com/desertthunder/yt2pt/internal/shared"
)

var (
	_ list.Item = journalItem{}
)

// journalItem wraps [models.Item] to implement [list.Item].
type journalItem struct {
	item *models.Item
}

func (i journalItem) FilterValue() string { return i.item.Title + " " + i.item.ItemID }
func (i journalItem) Title() string {
	if i.item.Title == "" {
		return i.item.ItemID
	}
	return i.item.Title
}
func (i journalItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.item.ItemID, styles.Status(i.item.Status))
	if i.item.Attempts > 0 {
		desc = fmt.Sprintf("%s • %d attempts", desc, i.item.Attempts)
	}
	if i.item.LastError != "" {
		desc = fmt.Sprintf("%s • %s", desc, shared.Truncate(i.item.LastError, 60))
	}
	return desc
}

func journalItems(items []*models.Item) []list.Item {
	out := make([]list.Item, len(items))
	for i, item := range items {
		out[i] = journalItem{item: item}
	}
	return out
}
