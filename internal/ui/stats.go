// Package ui provides statistics display components.
package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bitpulse/bitpulse/internal/analysis"
	"github.com/bitpulse/bitpulse/internal/pipeline"
	"github.com/bitpulse/bitpulse/pkg/types"
)

// Stats holds session statistics
type Stats struct {
	mu sync.RWMutex

	// Stream counters
	Position       int64
	RecordsWritten int64
	TotalAnomalies int64

	// Window summary
	Summary      analysis.Summary
	SummaryReady bool

	// Displayed spikes by tier
	StrongSpikes int64
	MediumSpikes int64
	WeakSpikes   int64

	// Timing
	StartTime time.Time
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{
		StartTime: time.Now(),
	}
}

// Apply merges a pipeline stats update
func (s *Stats) Apply(u pipeline.StatsUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Position = u.Position
	s.RecordsWritten = u.RecordsWritten
	s.TotalAnomalies = u.TotalAnomalies
	if u.SummaryReady {
		s.Summary = u.Summary
		s.SummaryReady = true
	}
}

// RecordSpike counts a displayed anomaly spike by tier
func (s *Stats) RecordSpike(sig string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch sig {
	case types.SigStrong:
		s.StrongSpikes++
	case types.SigMedium:
		s.MediumSpikes++
	case types.SigWeak:
		s.WeakSpikes++
	}
}

// GetRate returns the average stream rate in bytes per second
func (s *Stats) GetRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed < 1 {
		return 0
	}
	return float64(s.Position) / elapsed
}

// GetElapsedTime returns the elapsed time since start
func (s *Stats) GetElapsedTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.StartTime)
}

// Snapshot returns a copy of current stats
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StatsSnapshot{
		Position:       s.Position,
		RecordsWritten: s.RecordsWritten,
		TotalAnomalies: s.TotalAnomalies,
		Summary:        s.Summary,
		SummaryReady:   s.SummaryReady,
		StrongSpikes:   s.StrongSpikes,
		MediumSpikes:   s.MediumSpikes,
		WeakSpikes:     s.WeakSpikes,
		ElapsedTime:    time.Since(s.StartTime),
		Rate:           float64(s.Position) / maxSeconds(time.Since(s.StartTime)),
	}
}

func maxSeconds(d time.Duration) float64 {
	if d < time.Second {
		return 1
	}
	return d.Seconds()
}

// StatsSnapshot is an immutable snapshot of stats
type StatsSnapshot struct {
	Position       int64
	RecordsWritten int64
	TotalAnomalies int64
	Summary        analysis.Summary
	SummaryReady   bool
	StrongSpikes   int64
	MediumSpikes   int64
	WeakSpikes     int64
	ElapsedTime    time.Duration
	Rate           float64
}

// StatsView renders the statistics panel
type StatsView struct {
	width  int
	height int
}

// NewStatsView creates a new stats view
func NewStatsView(width, height int) *StatsView {
	return &StatsView{
		width:  width,
		height: height,
	}
}

// SetSize updates the view size
func (v *StatsView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// Render renders the stats view
func (v *StatsView) Render(snap StatsSnapshot) string {
	var b strings.Builder

	// Stream stats
	b.WriteString(HeaderStyle.Render("📊 Stream"))
	b.WriteString("\n\n")

	b.WriteString(RenderLabelValue("Bytes", formatNumber(snap.Position)))
	b.WriteString("\n")
	b.WriteString(RenderLabelValue("Rate", fmt.Sprintf("%.1f B/s", snap.Rate)))
	b.WriteString("\n")
	b.WriteString(RenderLabelValue("Saved", formatNumber(snap.RecordsWritten)))
	b.WriteString("\n")
	b.WriteString(RenderLabelValue("Elapsed", formatDuration(snap.ElapsedTime)))
	b.WriteString("\n\n")

	// Window summary
	b.WriteString(HeaderStyle.Render("🪟 Window"))
	b.WriteString("\n\n")

	if snap.SummaryReady {
		b.WriteString(RenderLabelValue("Bits", formatNumber(int64(snap.Summary.TotalBits))))
		b.WriteString("\n")

		b.WriteString(RenderLabel("Ones"))
		b.WriteString(" ")
		b.WriteString(ValueStyle.Render(formatNumber(int64(snap.Summary.OnesCount))))
		b.WriteString(" | ")
		b.WriteString(RenderLabel("Zeros"))
		b.WriteString(" ")
		b.WriteString(ValueStyle.Render(formatNumber(int64(snap.Summary.ZerosCount))))
		b.WriteString("\n")

		b.WriteString(RenderLabelValue("Ones Ratio", fmt.Sprintf("%.4f", snap.Summary.OnesRatio)))
		b.WriteString("\n")
		b.WriteString(RenderLabelValue("Byte Mean", fmt.Sprintf("%.2f", snap.Summary.ByteMean)))
		b.WriteString("\n")
		b.WriteString(RenderLabelValue("Byte Std", fmt.Sprintf("%.2f", snap.Summary.ByteStd)))
		b.WriteString("\n\n")
	} else {
		b.WriteString(HelpStyle.Render("filling window..."))
		b.WriteString("\n\n")
	}

	// Anomalies
	b.WriteString(HeaderStyle.Render("🔍 Anomalies"))
	b.WriteString("\n\n")

	b.WriteString(RenderLabelValue("Total Found", formatNumber(snap.TotalAnomalies)))
	b.WriteString("\n")

	if snap.StrongSpikes+snap.MediumSpikes+snap.WeakSpikes > 0 {
		b.WriteString("  ")
		b.WriteString(SigStrongStyle.Render(fmt.Sprintf("***: %d", snap.StrongSpikes)))
		b.WriteString(" | ")
		b.WriteString(SigMediumStyle.Render(fmt.Sprintf("**: %d", snap.MediumSpikes)))
		b.WriteString(" | ")
		b.WriteString(SigWeakStyle.Render(fmt.Sprintf("*: %d", snap.WeakSpikes)))
		b.WriteString("\n")
	}

	return StatsPanelStyle.Width(v.width).Render(b.String())
}

// Helper functions

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
