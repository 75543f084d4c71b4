package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/bitpulse/bitpulse/internal/analysis"
	"github.com/bitpulse/bitpulse/internal/game"
	"github.com/bitpulse/bitpulse/internal/storage"
)

// Replay streams a previously captured file through the same sink path as a
// live run. Recorded anomaly annotations are reconstructed rather than
// re-computed, except in game mode, where a fresh analyzer re-runs the tests
// so classification fires exactly as it would have live. Pausing a replay is
// lossless: the record store keeps a stable position.
type Replay struct {
	core
	reader   *storage.Reader
	analyzer *analysis.Analyzer // non-nil only in game mode
	meta     storage.Metadata
}

// ReplayOptions wires a replay loop.
type ReplayOptions struct {
	Config Config
	Logger *slog.Logger
	Visual VisualSink
	Stats  StatsSink
	Game   *game.State
}

// NewReplay creates a replay loop over an existing capture file.
func NewReplay(reader *storage.Reader, opts ReplayOptions) *Replay {
	return &Replay{
		core:   newCore(opts.Config, opts.Logger, opts.Visual, opts.Stats, opts.Game),
		reader: reader,
	}
}

// Metadata returns the capture metadata once setup has loaded it.
func (p *Replay) Metadata() storage.Metadata { return p.meta }

// Run executes one replay pass over the file. A missing or malformed
// metadata header is fatal; the loop never starts streaming.
func (p *Replay) Run(ctx context.Context) error {
	p.setState(StateSetup)

	meta, err := p.reader.Metadata()
	if err != nil {
		p.setState(StateStopped)
		return fmt.Errorf("replay setup: %w", err)
	}
	p.meta = meta

	if p.game != nil {
		// Re-analysis uses the recorded session parameters so replayed
		// classification matches the original run.
		p.analyzer = analysis.New(analysis.Config{
			WindowSize:  meta.WindowSize,
			Sensitivity: meta.Sensitivity,
		})
	}

	it, err := p.reader.Records()
	if err != nil {
		p.setState(StateStopped)
		return fmt.Errorf("replay setup: %w", err)
	}
	defer it.Close()

	p.setState(StateStreaming)
	err = p.stream(ctx, it)
	p.setState(StateStopped)
	return err
}

func (p *Replay) stream(ctx context.Context, it *storage.RecordIterator) error {
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

		rec, err := it.Next()
		if err == io.EOF {
			p.logger.Info("replay complete", "records", p.position.Load())
			return nil
		}
		if err != nil {
			consecutive++
			p.logger.Warn("replay read failed",
				"error", err,
				"consecutive", consecutive,
			)
			if p.cfg.MaxConsecutiveErrors > 0 && consecutive >= p.cfg.MaxConsecutiveErrors {
				return fmt.Errorf("capture file failing persistently after %d rows: %w", consecutive, err)
			}
			continue
		}
		consecutive = 0

		p.processRecord(rec)

		if err := limiter.Wait(ctx); err != nil {
			p.setState(StateDraining)
			return nil
		}
	}
}

// processRecord reconstructs a unit from its persisted record.
func (p *Replay) processRecord(rec storage.Record) {
	p.position.Add(1)

	if p.analyzer != nil {
		anomalies := p.analyzer.AddByte(rec.ByteValue)
		p.totalAnomalies += int64(len(anomalies))
		p.classify(anomalies)
	} else if rec.Anomalous() {
		p.totalAnomalies++
	}

	value := (float64(rec.ByteValue) - 127.5) / 127.5
	marker := ""
	if rec.Anomalous() {
		value = clamp(rec.ZScore/5.0, -1, 1)
		marker = rec.Significance
	}
	p.forward(value, marker, func() StatsUpdate { return p.statsUpdate() })
}

func (p *Replay) statsUpdate() StatsUpdate {
	u := StatsUpdate{
		TotalAnomalies: p.totalAnomalies,
		Position:       p.position.Load(),
	}
	if p.analyzer != nil {
		u.Summary, u.SummaryReady = p.analyzer.Summary()
	}
	return u
}
