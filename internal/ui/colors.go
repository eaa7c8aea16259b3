package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/yt2pt/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// interface Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title  lipgloss.Style
	ok     lipgloss.Style
	err    lipgloss.Style
	warn   lipgloss.Style
	help   lipgloss.Style
	status map[models.ItemStatus]lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		status: map[models.ItemStatus]lipgloss.Style{
			models.StatusPending:   NewStyle(h),
			models.StatusAcquiring: NewStyle(t),
			models.StatusStaged:    NewStyle(t),
			models.StatusUploading: NewStyle(w),
			models.StatusDone:      NewStyle(s),
			models.StatusFailed:    NewStyle(e),
		},
	}
}

// Status renders an item status in its color.
func (p *Palette) Status(s models.ItemStatus) string {
	style, ok := p.status[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

// On renders text on a background color.
func (p *Palette) On(text string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Background(c).Render(text)
}

// As renders text in a foreground color.
func (p *Palette) As(text string, c lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(c).Render(text)
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
