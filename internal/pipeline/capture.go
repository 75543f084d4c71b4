package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bitpulse/bitpulse/internal/analysis"
	"github.com/bitpulse/bitpulse/internal/game"
	"github.com/bitpulse/bitpulse/internal/storage"
)

// Capture is the live streaming loop: it pulls chunks from a ByteSource,
// feeds each byte through the analyzer, and fans results out to the sinks.
type Capture struct {
	core
	source   ByteSource
	analyzer *analysis.Analyzer
	persist  PersistFactory

	sinkMu sync.Mutex
	sink   PersistSink
}

// CaptureOptions wires a capture loop. Source and Analyzer are required;
// everything else is optional.
type CaptureOptions struct {
	Config  Config
	Logger  *slog.Logger
	Visual  VisualSink
	Stats   StatsSink
	Game    *game.State
	Persist PersistFactory
}

// NewCapture creates a live capture loop.
func NewCapture(source ByteSource, analyzer *analysis.Analyzer, opts CaptureOptions) *Capture {
	return &Capture{
		core:     newCore(opts.Config, opts.Logger, opts.Visual, opts.Stats, opts.Game),
		source:   source,
		analyzer: analyzer,
		persist:  opts.Persist,
	}
}

// Sink returns the persist sink opened during setup, or nil. The shutdown
// coordinator uses it to guarantee the file is closed even if the loop is
// stuck.
func (p *Capture) Sink() PersistSink {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	return p.sink
}

// Run executes one capture: setup, streaming until cancellation or source
// exhaustion, then drain. Setup failures are fatal for the run; cancellation
// is the normal shutdown path and is never an error.
func (p *Capture) Run(ctx context.Context) error {
	p.setState(StateSetup)
	if err := p.setup(); err != nil {
		p.setState(StateStopped)
		return fmt.Errorf("capture setup: %w", err)
	}
	defer p.closeSink()

	p.setState(StateStreaming)
	err := p.stream(ctx)
	p.setState(StateStopped)
	return err
}

// setup connects the source and opens the persist sink. On persist failure
// the already-connected source is released before reporting.
func (p *Capture) setup() error {
	if err := p.source.Connect(); err != nil {
		return fmt.Errorf("connect source: %w", err)
	}

	if p.persist == nil {
		return nil
	}
	meta := storage.NewMetadata(p.source.Status(), p.analyzer.WindowSize(), p.analyzer.Sensitivity())
	sink, err := p.persist(meta)
	if err != nil {
		p.source.Disconnect()
		return fmt.Errorf("open persist sink: %w", err)
	}
	p.sinkMu.Lock()
	p.sink = sink
	p.sinkMu.Unlock()
	return nil
}

func (p *Capture) closeSink() {
	if sink := p.Sink(); sink != nil {
		if err := sink.Close(); err != nil {
			p.logger.Warn("failed to close persist sink", "error", err)
		}
	}
}

func (p *Capture) stream(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(p.cfg.LoopInterval), 1)
	consecutive := 0

	for {
		if ctx.Err() != nil {
			p.setState(StateDraining)
			return nil
		}
		if p.paused.Load() {
			p.setState(StatePaused)
			if !sleep(ctx, p.cfg.PausePoll) {
				p.setState(StateDraining)
				return nil
			}
			continue
		}
		p.setState(StateStreaming)

		chunk, err := p.source.ReadChunk(p.cfg.ChunkSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Info("source exhausted")
				return nil
			}
			consecutive++
			p.logger.Warn("source read failed",
				"error", err,
				"consecutive", consecutive,
			)
			if p.cfg.MaxConsecutiveErrors > 0 && consecutive >= p.cfg.MaxConsecutiveErrors {
				return fmt.Errorf("source failing persistently after %d attempts: %w", consecutive, err)
			}
			if !sleep(ctx, p.cfg.LoopInterval) {
				return nil
			}
			continue
		}
		consecutive = 0

		for _, b := range chunk {
			p.processByte(b, time.Now())
		}

		// Static throttle on loop rate; waits roughly LoopInterval
		// between chunks.
		if err := limiter.Wait(ctx); err != nil {
			p.setState(StateDraining)
			return nil
		}
	}
}

// processByte is the per-unit hot path: analyze, classify, display, persist.
func (p *Capture) processByte(b byte, now time.Time) {
	anomalies := p.analyzer.AddByte(b)
	p.position.Store(p.analyzer.Position())
	p.totalAnomalies += int64(len(anomalies))
	p.classify(anomalies)

	value, marker := vizPoint(b, anomalies)
	p.forward(value, marker, p.statsUpdate)

	if sink := p.Sink(); sink != nil {
		rec := storage.Record{
			Position:  p.analyzer.Position(),
			Timestamp: float64(now.UnixNano()) / 1e9,
			ByteValue: b,
		}
		if len(anomalies) > 0 {
			// The record carries the first-fired anomaly, matching
			// test evaluation order.
			first := anomalies[0]
			rec.AnomalyType = first.TestType
			rec.ZScore = first.ZScore
			rec.PValue = first.PValue
			rec.Significance = first.Significance
		}
		if err := sink.WriteRecord(rec); err != nil {
			p.logger.Warn("persist write failed", "error", err)
		} else {
			p.written.Add(1)
		}
	}
}

func (p *Capture) statsUpdate() StatsUpdate {
	summary, ok := p.analyzer.Summary()
	return StatsUpdate{
		Summary:        summary,
		SummaryReady:   ok,
		TotalAnomalies: p.totalAnomalies,
		RecordsWritten: p.written.Load(),
		Position:       p.analyzer.Position(),
	}
}
