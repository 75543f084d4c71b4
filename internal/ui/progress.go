// Package ui provides progress components.
package ui

import (
	"fmt"
	"strings"
)

// ProgressBar tracks replay completion against the record count recorded in
// the capture metadata. Live capture has no known total and uses the
// spinner instead.
type ProgressBar struct {
	width      int
	percentage float64
	showETA    bool
	eta        string
}

// NewProgressBar creates a new progress bar
func NewProgressBar(width int) *ProgressBar {
	return &ProgressBar{
		width:   width,
		showETA: true,
	}
}

// SetProgress sets the progress percentage (0.0 to 1.0)
func (p *ProgressBar) SetProgress(percentage float64) {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 1 {
		percentage = 1
	}
	p.percentage = percentage
}

// SetETA sets the estimated time remaining
func (p *ProgressBar) SetETA(eta string) {
	p.eta = eta
}

// SetWidth sets the progress bar width
func (p *ProgressBar) SetWidth(width int) {
	p.width = width
}

// Render renders the progress bar
func (p *ProgressBar) Render() string {
	var b strings.Builder

	barWidth := p.width - 10
	if barWidth < 10 {
		barWidth = 10
	}

	filled := int(float64(barWidth) * p.percentage)
	empty := barWidth - filled

	for i := 0; i <= filled; i++ {
		b.WriteString(ProgressFullStyle.Render("█"))
	}
	for i := 0; i <= empty; i++ {
		b.WriteString(ProgressEmptyStyle.Render("░"))
	}

	b.WriteString(" ")
	b.WriteString(ValueStyle.Render(fmt.Sprintf("%5.1f%%", p.percentage*100)))

	if p.showETA && p.eta != "" {
		b.WriteString(" ")
		b.WriteString(InfoStyle.Render("ETA: " + p.eta))
	}

	return b.String()
}

// ReplayProgress is a styled replay progress panel
type ReplayProgress struct {
	width    int
	progress *ProgressBar
	position int64
	total    int64
}

// NewReplayProgress creates a new replay progress panel
func NewReplayProgress(width int) *ReplayProgress {
	return &ReplayProgress{
		width:    width,
		progress: NewProgressBar(width - 6),
	}
}

// SetSize updates the panel size
func (v *ReplayProgress) SetSize(width int) {
	v.width = width
	v.progress.SetWidth(width - 6)
}

// Update advances the panel to the given replay position
func (v *ReplayProgress) Update(position, total int64, eta string) {
	v.position = position
	v.total = total

	if total > 0 {
		v.progress.SetProgress(float64(position) / float64(total))
	} else {
		v.progress.SetProgress(0)
	}
	v.progress.SetETA(eta)
}

// Render renders the replay progress panel
func (v *ReplayProgress) Render() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("📈 Replay"))
	b.WriteString("\n\n")
	b.WriteString(v.progress.Render())
	b.WriteString("\n\n")

	if v.total > 0 {
		b.WriteString(RenderLabelValue("Records", fmt.Sprintf("%d / %d", v.position, v.total)))
	}

	return PanelStyle.Width(v.width).Render(b.String())
}

// SpinnerProgress shows an indeterminate live-capture indicator
type SpinnerProgress struct {
	frame   int
	text    string
	running bool
}

// NewSpinnerProgress creates a new spinner progress
func NewSpinnerProgress() *SpinnerProgress {
	return &SpinnerProgress{
		text:    "Streaming...",
		running: true,
	}
}

// SetText sets the spinner text
func (s *SpinnerProgress) SetText(text string) {
	s.text = text
}

// Start starts the spinner
func (s *SpinnerProgress) Start() {
	s.running = true
}

// Stop stops the spinner
func (s *SpinnerProgress) Stop() {
	s.running = false
}

// Tick advances the spinner animation
func (s *SpinnerProgress) Tick() {
	if s.running {
		s.frame = (s.frame + 1) % len(SpinnerChars)
	}
}

// Render renders the spinner
func (s *SpinnerProgress) Render() string {
	if !s.running {
		return SuccessStyle.Render("✓") + " " + s.text
	}
	return InfoStyle.Render(SpinnerChars[s.frame]) + " " + s.text
}
