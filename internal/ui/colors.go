package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/subcord/internal/formatter"
	"github.com/desertthunder/subcord/internal/models"
)

// Default is the palette used by the CLI.
var Default = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	label lipgloss.Style
	card  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		label: NewStyle(h).Width(8),
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t)).
			Padding(0, 1),
	}
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

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) OK(s string) string    { return p.ok.Render(s) }
func (p *Palette) Err(s string) string   { return p.err.Render(s) }
func (p *Palette) Warn(s string) string  { return p.warn.Render(s) }
func (p *Palette) Help(s string) string  { return p.help.Render(s) }

// Presence renders the snapshot and the payload that would be published for it.
func (p *Palette) Presence(snap models.TrackSnapshot, payload models.Presence) string {
	rows := [][2]string{
		{"artist", strings.TrimSuffix(payload.Title, formatter.Marker)},
		{"track", strings.TrimSuffix(payload.Subtitle, formatter.Marker)},
		{"album", payload.DetailLine},
		{"badge", payload.BadgeLine},
		{"length", formatDuration(snap.Duration)},
		{"player", snap.PlayerName},
		{"image", payload.ImageURL},
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, p.title.Render(fmt.Sprintf("Now playing for %s", snap.Username)))
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		lines = append(lines, p.label.Render(row[0])+" "+row[1])
	}
	return p.card.Render(strings.Join(lines, "\n"))
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
