package ui

import (
	"log/slog"
	"testing"
	"time"

	"github.com/bitpulse/bitpulse/internal/analysis"
	"github.com/bitpulse/bitpulse/internal/pipeline"
	"github.com/bitpulse/bitpulse/pkg/types"
)

func TestNewDashboard(t *testing.T) {
	d := NewDashboard()

	if d == nil {
		t.Fatal("NewDashboard returned nil")
	}

	if d.status != StatusIdle {
		t.Errorf("Expected StatusIdle, got %v", d.status)
	}

	if d.stats == nil {
		t.Error("Stats should not be nil")
	}

	if d.wave == nil {
		t.Error("Wave view should not be nil")
	}
}

func TestDashboard_StatusTransitions(t *testing.T) {
	d := NewDashboard()

	d.Start()
	if d.status != StatusStreaming {
		t.Errorf("Expected StatusStreaming after Start, got %v", d.status)
	}

	d.Pause()
	if d.status != StatusPaused {
		t.Errorf("Expected StatusPaused after Pause, got %v", d.status)
	}

	d.Resume()
	if d.status != StatusStreaming {
		t.Errorf("Expected StatusStreaming after Resume, got %v", d.status)
	}

	d.Stop()
	if d.status != StatusStopped {
		t.Errorf("Expected StatusStopped after Stop, got %v", d.status)
	}
}

func TestDashboard_AddLog(t *testing.T) {
	d := NewDashboard()

	d.AddLog("INFO", "Test message 1")
	d.AddLog("ERROR", "Test message 2")

	if len(d.logs) != 2 {
		t.Errorf("Expected 2 logs, got %d", len(d.logs))
	}

	if d.logs[0].Level != "INFO" {
		t.Errorf("Expected first log level INFO, got %s", d.logs[0].Level)
	}

	if d.logs[1].Message != "Test message 2" {
		t.Errorf("Expected second log message 'Test message 2', got %s", d.logs[1].Message)
	}
}

func TestDashboard_LogTrimming(t *testing.T) {
	d := NewDashboard()
	d.maxLogs = 5

	for i := 0; i < 10; i++ {
		d.AddLog("INFO", "Message")
	}

	if len(d.logs) != 5 {
		t.Errorf("Expected %d logs after trimming, got %d", d.maxLogs, len(d.logs))
	}
}

func TestDashboard_AddPointCountsSpikes(t *testing.T) {
	d := NewDashboard()

	d.AddPoint(0.5, "")
	d.AddPoint(1.0, types.SigStrong)
	d.AddPoint(-1.0, types.SigWeak)

	if d.wave.Len() != 3 {
		t.Errorf("Expected 3 wave points, got %d", d.wave.Len())
	}

	snap := d.stats.Snapshot()
	if snap.StrongSpikes != 1 {
		t.Errorf("Expected 1 strong spike, got %d", snap.StrongSpikes)
	}
	if snap.WeakSpikes != 1 {
		t.Errorf("Expected 1 weak spike, got %d", snap.WeakSpikes)
	}
	if snap.MediumSpikes != 0 {
		t.Errorf("Expected 0 medium spikes, got %d", snap.MediumSpikes)
	}
}

func TestStats_Apply(t *testing.T) {
	s := NewStats()

	s.Apply(pipeline.StatsUpdate{
		Position:       500,
		RecordsWritten: 500,
		TotalAnomalies: 3,
		SummaryReady:   true,
		Summary: analysis.Summary{
			TotalBits: 8000,
			OnesCount: 4100,
			OnesRatio: 0.5125,
		},
	})

	snap := s.Snapshot()
	if snap.Position != 500 {
		t.Errorf("Expected position 500, got %d", snap.Position)
	}
	if snap.TotalAnomalies != 3 {
		t.Errorf("Expected 3 anomalies, got %d", snap.TotalAnomalies)
	}
	if !snap.SummaryReady {
		t.Error("Expected SummaryReady")
	}
	if snap.Summary.OnesRatio != 0.5125 {
		t.Errorf("Expected ones ratio 0.5125, got %f", snap.Summary.OnesRatio)
	}
}

func TestStats_SummaryNotClearedByPartialUpdate(t *testing.T) {
	s := NewStats()

	s.Apply(pipeline.StatsUpdate{
		SummaryReady: true,
		Summary:      analysis.Summary{TotalBits: 8000},
	})
	// A later update before the window refills must not blank the summary.
	s.Apply(pipeline.StatsUpdate{Position: 10})

	snap := s.Snapshot()
	if !snap.SummaryReady {
		t.Error("Summary should survive an update without one")
	}
	if snap.Summary.TotalBits != 8000 {
		t.Errorf("Expected retained TotalBits 8000, got %d", snap.Summary.TotalBits)
	}
}

func TestWaveView_Eviction(t *testing.T) {
	w := NewWaveView(10, 5)

	for i := 0; i < 25; i++ {
		w.AddPoint(float64(i%3)/3, "")
	}

	if w.Len() != 10 {
		t.Errorf("Expected wave capped at 10 points, got %d", w.Len())
	}
}

func TestWaveView_Render(t *testing.T) {
	w := NewWaveView(20, 5)

	w.AddPoint(0, "")
	w.AddPoint(1.0, types.SigStrong)
	w.AddPoint(-1.0, types.SigMedium)

	out := w.Render()
	if out == "" {
		t.Fatal("WaveView Render returned empty string")
	}

	// Positive anomalies spike upward, negative downward.
	if !containsRune(out, '▲') {
		t.Error("Expected an upward marker in the rendered wave")
	}
	if !containsRune(out, '▼') {
		t.Error("Expected a downward marker in the rendered wave")
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func TestProgressBar_Bounds(t *testing.T) {
	p := NewProgressBar(50)

	p.SetProgress(-0.5)
	if p.percentage != 0 {
		t.Errorf("Expected percentage clamped to 0, got %f", p.percentage)
	}

	p.SetProgress(1.5)
	if p.percentage != 1 {
		t.Errorf("Expected percentage clamped to 1, got %f", p.percentage)
	}
}

func TestSpinnerProgress(t *testing.T) {
	s := NewSpinnerProgress()

	if !s.running {
		t.Error("Spinner should be running by default")
	}

	initialFrame := s.frame
	s.Tick()
	s.Tick()

	if s.frame == initialFrame {
		t.Error("Spinner frame should change after Tick")
	}

	s.Stop()
	if s.running {
		t.Error("Spinner should not be running after Stop")
	}
}

func TestLogHandler(t *testing.T) {
	d := NewDashboard()
	logger := slog.New(NewLogHandler(d, slog.LevelInfo))

	logger.Debug("hidden")
	logger.Info("source exhausted", "records", 42)
	logger.Warn("read failed")

	if len(d.logs) != 2 {
		t.Fatalf("Expected 2 logs (debug filtered), got %d", len(d.logs))
	}

	if d.logs[0].Level != "INFO" {
		t.Errorf("Expected INFO, got %s", d.logs[0].Level)
	}
	if d.logs[0].Message != "source exhausted records=42" {
		t.Errorf("Unexpected message: %q", d.logs[0].Message)
	}
	if d.logs[1].Level != "WARN" {
		t.Errorf("Expected WARN, got %s", d.logs[1].Level)
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusIdle, "Idle"},
		{StatusStreaming, "Streaming"},
		{StatusPaused, "Paused"},
		{StatusStopped, "Stopped"},
		{StatusCompleted, "Completed"},
	}

	for _, tt := range tests {
		if tt.status.String() != tt.expected {
			t.Errorf("Status.String(): expected %s, got %s", tt.expected, tt.status.String())
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.0K"},
		{1500, "1.5K"},
		{1000000, "1.0M"},
		{1500000, "1.5M"},
	}

	for _, tt := range tests {
		result := formatNumber(tt.input)
		if result != tt.expected {
			t.Errorf("formatNumber(%d): expected %s, got %s", tt.input, tt.expected, result)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
		{90 * time.Minute, "1h30m"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.input)
		if result != tt.expected {
			t.Errorf("formatDuration(%v): expected %s, got %s", tt.input, tt.expected, result)
		}
	}
}

func BenchmarkDashboard_View(b *testing.B) {
	d := NewDashboard()
	d.width = 120
	d.height = 40
	d.Start()

	for i := 0; i < 20; i++ {
		d.AddLog("INFO", "Test message")
	}
	for i := 0; i < 100; i++ {
		d.AddPoint(float64(i%10)/10-0.5, "")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.View()
	}
}
