// Package ui renders styled terminal output with lipgloss.
//
// [Palette] holds the named styles used by the CLI; [Default] is the shared instance.
// [Palette.Presence] renders a track snapshot and its formatted payload as a card.
package ui
