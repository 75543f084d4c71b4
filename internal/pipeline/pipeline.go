// Package pipeline drives bytes from an entropy source through the analyzer
// to the display and persistence sinks. Two interchangeable loops share the
// same core: the live capture loop and the capture-file replay loop.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bitpulse/bitpulse/internal/analysis"
	"github.com/bitpulse/bitpulse/internal/game"
	"github.com/bitpulse/bitpulse/internal/storage"
	"github.com/bitpulse/bitpulse/pkg/types"
)

// State is the lifecycle phase of a pipeline run.
type State int32

const (
	StateIdle State = iota
	StateSetup
	StateStreaming
	StatePaused
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSetup:
		return "Setup"
	case StateStreaming:
		return "Streaming"
	case StatePaused:
		return "Paused"
	case StateDraining:
		return "Draining"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// ByteSource supplies raw entropy to the capture loop. The pipeline owns its
// source exclusively; Disconnect is also reachable from the shutdown
// coordinator, so implementations must tolerate concurrent calls.
type ByteSource interface {
	Connect() error
	ReadChunk(n int) ([]byte, error)
	Disconnect() error
	Status() map[string]any
}

// VisualSink receives normalized signal points in [-1, 1] with an optional
// significance marker.
type VisualSink interface {
	AddPoint(value float64, marker string)
}

// StatsSink receives periodic summary refreshes.
type StatsSink interface {
	UpdateStats(u StatsUpdate)
}

// PersistSink receives every observed record, unthrottled. Close must be
// idempotent; it is invoked from every exit path including cancellation.
type PersistSink interface {
	WriteRecord(rec storage.Record) error
	Close() error
}

// PersistFactory opens the persist sink during setup, after the source has
// connected and its status is known.
type PersistFactory func(meta storage.Metadata) (PersistSink, error)

// StatsUpdate is a snapshot pushed to the stats sink.
type StatsUpdate struct {
	Summary        analysis.Summary
	SummaryReady   bool
	TotalAnomalies int64
	RecordsWritten int64
	Position       int64
}

// Config tunes the streaming loops.
type Config struct {
	// ChunkSize is the live read size in bytes.
	ChunkSize int
	// VizEvery forwards every K-th unit to the visual/stats sinks. The
	// throttle bounds render rate only; persistence is never throttled.
	VizEvery int
	// LoopInterval is the static per-iteration throttle. It bounds loop
	// rate; it is not adaptive backpressure, so a slow sink stalls the
	// whole loop.
	LoopInterval time.Duration
	// PausePoll is how often a paused loop re-checks for resume.
	PausePoll time.Duration
	// MaxConsecutiveErrors aborts the run after this many back-to-back
	// read failures. Zero disables the cap.
	MaxConsecutiveErrors int
}

// DefaultConfig returns the defaults used for live capture.
func DefaultConfig() Config {
	return Config{
		ChunkSize:            10,
		VizEvery:             10,
		LoopInterval:         20 * time.Millisecond,
		PausePoll:            100 * time.Millisecond,
		MaxConsecutiveErrors: 50,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ChunkSize < 1 {
		c.ChunkSize = def.ChunkSize
	}
	if c.VizEvery < 1 {
		c.VizEvery = def.VizEvery
	}
	if c.LoopInterval <= 0 {
		c.LoopInterval = def.LoopInterval
	}
	if c.PausePoll <= 0 {
		c.PausePoll = def.PausePoll
	}
	return c
}

// core holds the state shared by the capture and replay loops.
type core struct {
	cfg    Config
	logger *slog.Logger

	visual VisualSink
	stats  StatsSink
	game   *game.State

	state  atomic.Int32
	paused atomic.Bool

	vizCounter     int
	totalAnomalies int64
	written        atomic.Int64
	position       atomic.Int64
}

func newCore(cfg Config, logger *slog.Logger, visual VisualSink, stats StatsSink, g *game.State) core {
	if logger == nil {
		logger = slog.Default()
	}
	return core{
		cfg:    cfg.withDefaults(),
		logger: logger,
		visual: visual,
		stats:  stats,
		game:   g,
	}
}

// State returns the current lifecycle phase.
func (c *core) State() State { return State(c.state.Load()) }

func (c *core) setState(s State) { c.state.Store(int32(s)) }

// Pause suspends consumption at the next loop iteration. In live mode the
// device keeps producing while paused and its internal buffer may overflow;
// that byte loss is accepted. Replay pauses are lossless.
func (c *core) Pause() { c.paused.Store(true) }

// Resume lifts a pause.
func (c *core) Resume() { c.paused.Store(false) }

// Paused reports whether the loop is currently pausing.
func (c *core) Paused() bool { return c.paused.Load() }

// Progress returns the latest position and persisted-record count for
// status displays.
func (c *core) Progress() (position, written int64) {
	return c.position.Load(), c.written.Load()
}

// sleep waits for d or cancellation; it reports false when cancelled.
// Sleeps are the loops' only suspension points.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// classify feeds anomalies into the game overlay, if one is attached.
func (c *core) classify(anomalies []types.AnomalyResult) {
	if c.game == nil {
		return
	}
	for _, a := range anomalies {
		c.game.AddAnomaly(a)
	}
}

// strongest picks the anomaly with the largest |z-score|; ties keep the
// earlier entry, which preserves test evaluation order.
func strongest(anomalies []types.AnomalyResult) types.AnomalyResult {
	best := anomalies[0]
	for _, a := range anomalies[1:] {
		if abs(a.ZScore) > abs(best.ZScore) {
			best = a
		}
	}
	return best
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// vizPoint converts a unit into its display value and marker. Without an
// anomaly the raw byte maps linearly onto [-1, 1]; with one, the strongest
// z-score is scaled and clamped so spikes stand out against the wave.
func vizPoint(b byte, anomalies []types.AnomalyResult) (float64, string) {
	value := (float64(b) - 127.5) / 127.5
	if len(anomalies) == 0 {
		return value, ""
	}
	top := strongest(anomalies)
	return clamp(top.ZScore/5.0, -1, 1), top.Significance
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// forward pushes a unit to the visual and stats sinks, honoring the render
// throttle.
func (c *core) forward(value float64, marker string, update func() StatsUpdate) {
	c.vizCounter++
	if c.vizCounter < c.cfg.VizEvery {
		return
	}
	c.vizCounter = 0

	if c.visual != nil {
		c.visual.AddPoint(value, marker)
	}
	if c.stats != nil {
		c.stats.UpdateStats(update())
	}
}
