package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bitpulse/bitpulse/internal/analysis"
	"github.com/bitpulse/bitpulse/internal/config"
	"github.com/bitpulse/bitpulse/internal/device"
	"github.com/bitpulse/bitpulse/internal/game"
	"github.com/bitpulse/bitpulse/internal/pipeline"
	"github.com/bitpulse/bitpulse/internal/storage"
	"github.com/bitpulse/bitpulse/internal/ui"
)

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if openFile != "" {
		return runReplay(ctx, stop, cfg)
	}
	return runCapture(ctx, stop, cfg)
}

// loadConfig layers CLI flags over the config file over the defaults.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if windowSize > 0 {
		cfg.Analysis.WindowSize = windowSize
	}
	if sensitivity > 0 {
		cfg.Analysis.Sensitivity = sensitivity
	}
	if devicePort != "" {
		cfg.Device.Port = devicePort
	}
	if simulate {
		cfg.Device.Simulate = true
	}
	if seed != 0 {
		cfg.Device.Seed = seed
	}
	if gameMode {
		cfg.Game.Enabled = true
	}
	if livePath != "" {
		cfg.Output.Path = livePath
	}
	if verbose {
		cfg.Output.Verbose = true
	}
	if noTUI {
		cfg.Output.EnableTUI = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		ChunkSize:            cfg.Pipeline.ChunkSize,
		VizEvery:             cfg.Pipeline.VizEvery,
		LoopInterval:         cfg.Pipeline.LoopInterval,
		PausePoll:            cfg.Pipeline.PausePoll,
		MaxConsecutiveErrors: cfg.Pipeline.MaxConsecutiveErrors,
	}
}

func buildSource(cfg *config.Config) pipeline.ByteSource {
	if cfg.Device.Simulate {
		s := cfg.Device.Seed
		if s == 0 {
			s = time.Now().UnixNano()
		}
		return device.NewSimulator(s)
	}
	return device.NewTrueRNG(cfg.Device.Port, device.ModeNormal)
}

func newLogger(dash *ui.Dashboard, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if dash != nil {
		return slog.New(ui.NewLogHandler(dash, level))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newGame(cfg *config.Config) *game.State {
	if !cfg.Game.Enabled {
		return nil
	}
	g := game.NewState(game.Options{
		MinTurn: cfg.Game.MinTurn,
		MaxTurn: cfg.Game.MaxTurn,
	})
	g.StartTurn()
	return g
}

func runCapture(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) error {
	var dash *ui.Dashboard
	if cfg.Output.EnableTUI {
		dash = ui.NewDashboard()
	}
	logger := newLogger(dash, cfg.Output.Verbose)

	source := buildSource(cfg)
	analyzer := analysis.New(analysis.Config{
		WindowSize:  cfg.Analysis.WindowSize,
		Sensitivity: cfg.Analysis.Sensitivity,
	})
	g := newGame(cfg)

	var persist pipeline.PersistFactory
	if cfg.Output.Path != "" {
		persist = func(meta storage.Metadata) (pipeline.PersistSink, error) {
			path, err := resolveCapturePath(cfg.Output.Path, time.Now())
			if err != nil {
				return nil, err
			}
			logger.Info("writing capture", "path", path)
			return storage.NewWriter(path, meta)
		}
	}

	opts := pipeline.CaptureOptions{
		Config:  pipelineConfig(cfg),
		Logger:  logger,
		Game:    g,
		Persist: persist,
	}
	if dash != nil {
		opts.Visual = dash
		opts.Stats = dash
	}
	capture := pipeline.NewCapture(source, analyzer, opts)

	return runPipeline(ctx, cancel, runOptions{
		cfg:    cfg,
		dash:   dash,
		logger: logger,
		game:   g,
		loop:   capture,
		source: source,
		sink:   capture.Sink,
		desc:   sourceDesc(cfg),
	})
}

func runReplay(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) error {
	var dash *ui.Dashboard
	if cfg.Output.EnableTUI {
		dash = ui.NewDashboard()
	}
	logger := newLogger(dash, cfg.Output.Verbose)

	reader := storage.NewReader(openFile)
	meta, err := reader.Metadata()
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	g := newGame(cfg)

	opts := pipeline.ReplayOptions{
		Config: pipelineConfig(cfg),
		Logger: logger,
		Game:   g,
	}
	if dash != nil {
		opts.Visual = dash
		opts.Stats = dash
		dash.SetReplayTotal(meta.TotalBytes)
	}
	replay := pipeline.NewReplay(reader, opts)

	return runPipeline(ctx, cancel, runOptions{
		cfg:    cfg,
		dash:   dash,
		logger: logger,
		game:   g,
		loop:   replay,
		desc:   openFile,
	})
}

// streamLoop is the common surface of the capture and replay pipelines.
type streamLoop interface {
	Run(ctx context.Context) error
	Pause()
	Resume()
	Paused() bool
}

type runOptions struct {
	cfg    *config.Config
	dash   *ui.Dashboard
	logger *slog.Logger
	game   *game.State
	loop   streamLoop
	source pipeline.ByteSource     // nil on replay
	sink   func() pipeline.PersistSink // nil on replay
	desc   string
}

// runPipeline starts the stream loop and the optional game timer, wires the
// shutdown coordinator, and blocks on the TUI (or, headless, on the loop).
func runPipeline(ctx context.Context, cancel context.CancelFunc, o runOptions) error {
	captureDone := make(chan struct{})
	var runErr error
	go func() {
		defer close(captureDone)
		runErr = o.loop.Run(ctx)
	}()

	var timerDone chan struct{}
	if o.game != nil {
		timerDone = make(chan struct{})
		timer := game.NewTimer(o.game, 0, o.loop.Paused)
		go func() {
			defer close(timerDone)
			timer.Run(ctx)
		}()
	}

	coord := pipeline.NewCoordinator(pipeline.CoordinatorOptions{
		Logger:      o.logger,
		Cancel:      cancel,
		CaptureDone: captureDone,
		TimerDone:   timerDone,
		Source:      o.source,
		Sink:        o.sink,
	})

	if o.dash == nil {
		<-captureDone
		coord.Shutdown()
		return runErr
	}

	o.dash.SetSourceDesc(o.desc)
	if o.game != nil {
		o.dash.AttachGame(o.game)
	}
	o.dash.SetControls(ui.Controls{
		Pause:  o.loop.Pause,
		Resume: o.loop.Resume,
		Stop:   coord.Shutdown,
		FinishGame: func() {
			if o.game != nil {
				o.game.Finish()
			}
		},
	})
	o.dash.Start()

	prog := ui.RunWithProgram(o.dash)

	// Close the TUI once the stream ends on its own.
	go func() {
		<-captureDone
		if ctx.Err() == nil {
			o.dash.Complete()
		}
	}()
	// A signal must also tear the TUI down, not just the pipeline.
	go func() {
		<-ctx.Done()
		prog.Quit()
	}()

	_, uiErr := prog.Run()
	coord.Shutdown()
	if uiErr != nil {
		return fmt.Errorf("ui: %w", uiErr)
	}

	// runErr is safe to read only once the loop goroutine has exited; if
	// it overran the shutdown timeout, report nothing rather than race.
	select {
	case <-captureDone:
		return runErr
	default:
		return nil
	}
}

func sourceDesc(cfg *config.Config) string {
	if cfg.Device.Simulate {
		return "simulator"
	}
	if cfg.Device.Port != "" {
		return cfg.Device.Port
	}
	return "TrueRNG (auto)"
}

func listDevices(cmd *cobra.Command, args []string) error {
	devices := device.FindDevices()
	if len(devices) == 0 {
		fmt.Println("No candidate devices found.")
		return nil
	}
	for _, d := range devices {
		line := d.Port
		if d.Description != "" {
			line += "  " + d.Description
		}
		if d.VID != "" {
			line += fmt.Sprintf("  [%s:%s]", d.VID, d.PID)
		}
		fmt.Println(line)
	}
	return nil
}
