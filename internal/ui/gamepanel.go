// Package ui provides the intention-game panel.
package ui

import (
	"fmt"
	"strings"

	"github.com/bitpulse/bitpulse/internal/game"
)

// GameView renders the intention-game overlay: the current instruction and
// countdown, per-bucket scores for the active turn, and cumulative totals
// over finished turns.
type GameView struct {
	width int
}

// NewGameView creates a new game view
func NewGameView(width int) *GameView {
	return &GameView{width: width}
}

// SetSize updates the view width
func (v *GameView) SetSize(width int) {
	v.width = width
}

// Render renders the game panel from a state snapshot
func (v *GameView) Render(snap game.Snapshot, overall game.BucketScores) string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("🎯 Intention Game"))
	b.WriteString("\n\n")

	switch {
	case snap.Finished:
		b.WriteString(SuccessStyle.Render("✓ Session finished"))
		b.WriteString("\n\n")
	case snap.Current != nil:
		b.WriteString(RenderLabel("Instruction"))
		b.WriteString(" ")
		b.WriteString(TitleStyle.Render(string(snap.Current.Instruction)))
		b.WriteString("\n")
		b.WriteString(RenderLabelValue("Time Left", formatDuration(snap.Remaining)))
		b.WriteString("\n\n")
		b.WriteString(renderBuckets("This Turn", snap.Current.Scores))
		b.WriteString("\n")
	default:
		b.WriteString(HelpStyle.Render("no active turn"))
		b.WriteString("\n\n")
	}

	b.WriteString(renderBuckets(fmt.Sprintf("Overall (%d turns)", len(snap.History)), overall))

	return GamePanelStyle.Width(v.width).Render(b.String())
}

// renderBuckets renders one score table, tier columns by direction rows.
func renderBuckets(title string, s game.BucketScores) string {
	var b strings.Builder

	b.WriteString(InfoStyle.Render(title))
	b.WriteString("\n")

	b.WriteString(HelpStyle.Render("        ***   **    *   sum"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %4d %4d %4d  %4d\n",
		LabelStyle.Width(7).Render("  up"),
		s.StrongUp, s.MediumUp, s.WeakUp, s.TotalUp(),
	))
	b.WriteString(fmt.Sprintf("%s %4d %4d %4d  %4d\n",
		LabelStyle.Width(7).Render("  down"),
		s.StrongDown, s.MediumDown, s.WeakDown, s.TotalDown(),
	))
	b.WriteString(RenderLabelValue("Total", fmt.Sprintf("%d", s.Total())))
	b.WriteString("\n")

	return b.String()
}
