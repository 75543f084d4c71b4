package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bitpulse/bitpulse/internal/analysis"
	"github.com/bitpulse/bitpulse/internal/storage"
	"github.com/bitpulse/bitpulse/pkg/types"
)

// fastConfig keeps test loops snappy.
func fastConfig() Config {
	return Config{
		ChunkSize:            10,
		VizEvery:             10,
		LoopInterval:         time.Millisecond,
		PausePoll:            5 * time.Millisecond,
		MaxConsecutiveErrors: 50,
	}
}

// fakeSource plays scripted chunks, then reports EOF.
type fakeSource struct {
	mu          sync.Mutex
	chunks      [][]byte
	reads       int
	errs        []error // consumed before chunks
	connected   bool
	connectErr  error
	disconnects int
}

func (s *fakeSource) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *fakeSource) ReadChunk(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}

func (s *fakeSource) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	s.connected = false
	return nil
}

func (s *fakeSource) Status() map[string]any {
	return map[string]any{"connected": true, "port": "fake", "mode": "test"}
}

func (s *fakeSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// fakeSink records writes and counts closes.
type fakeSink struct {
	mu       sync.Mutex
	records  []storage.Record
	closes   int
	writeErr error
}

func (s *fakeSink) WriteRecord(rec storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSink) all() []storage.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Record(nil), s.records...)
}

func (s *fakeSink) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeVisual struct {
	mu     sync.Mutex
	points []float64
}

func (v *fakeVisual) AddPoint(value float64, marker string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.points = append(v.points, value)
}

func (v *fakeVisual) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.points)
}

type fakeStats struct {
	mu      sync.Mutex
	updates []StatsUpdate
}

func (s *fakeStats) UpdateStats(u StatsUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func chunked(data []byte, size int) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

func TestCapture_PersistsEveryByteThrottlesViz(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	source := &fakeSource{chunks: chunked(data, 10)}
	sink := &fakeSink{}
	visual := &fakeVisual{}

	c := NewCapture(source, analysis.New(analysis.Config{WindowSize: 1000, Sensitivity: 0.01}), CaptureOptions{
		Config:  fastConfig(),
		Visual:  visual,
		Persist: func(meta storage.Metadata) (PersistSink, error) { return sink, nil },
	})

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	records := sink.all()
	if len(records) != 100 {
		t.Fatalf("persistence must not be throttled: expected 100 records, got %d", len(records))
	}
	for i, rec := range records {
		if rec.Position != int64(i+1) {
			t.Fatalf("record %d: expected position %d, got %d", i, i+1, rec.Position)
		}
		if rec.ByteValue != byte(i) {
			t.Fatalf("record %d: expected byte %d, got %d", i, i, rec.ByteValue)
		}
	}

	// One visual point per VizEvery units.
	if got := visual.count(); got != 10 {
		t.Errorf("expected 10 visual points for 100 bytes at K=10, got %d", got)
	}

	if c.State() != StateStopped {
		t.Errorf("expected Stopped after exhaustion, got %v", c.State())
	}
	if sink.closeCount() != 1 {
		t.Errorf("sink must be closed exactly once, got %d", sink.closeCount())
	}
}

func TestCapture_RecordCarriesFirstAnomaly(t *testing.T) {
	// A window of all 0xFF fires the frequency test at every position once
	// full; the frequency result is first in evaluation order.
	data := make([]byte, 20)
	for i := range data {
		data[i] = 0xFF
	}
	source := &fakeSource{chunks: chunked(data, 10)}
	sink := &fakeSink{}

	c := NewCapture(source, analysis.New(analysis.Config{WindowSize: 10, Sensitivity: 0.05}), CaptureOptions{
		Config:  fastConfig(),
		Persist: func(meta storage.Metadata) (PersistSink, error) { return sink, nil },
	})
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	records := sink.all()
	if len(records) != 20 {
		t.Fatalf("expected 20 records, got %d", len(records))
	}
	for _, rec := range records[:9] {
		if rec.Anomalous() {
			t.Errorf("position %d: no anomaly expected before the window fills", rec.Position)
		}
	}
	for _, rec := range records[9:] {
		if rec.AnomalyType != types.TestFrequency {
			t.Errorf("position %d: expected first-fired frequency anomaly, got %q", rec.Position, rec.AnomalyType)
		}
		if rec.Significance != types.SigStrong {
			t.Errorf("position %d: expected %q, got %q", rec.Position, types.SigStrong, rec.Significance)
		}
	}
}

func TestCapture_SetupFailureIsFatal(t *testing.T) {
	connectErr := errors.New("no such port")
	source := &fakeSource{connectErr: connectErr}

	c := NewCapture(source, analysis.New(analysis.Config{}), CaptureOptions{Config: fastConfig()})
	err := c.Run(context.Background())
	if !errors.Is(err, connectErr) {
		t.Fatalf("expected connect error, got %v", err)
	}
	if c.State() != StateStopped {
		t.Errorf("expected Stopped after fatal setup, got %v", c.State())
	}
}

func TestCapture_PersistOpenFailureReleasesSource(t *testing.T) {
	source := &fakeSource{chunks: chunked(make([]byte, 10), 10)}
	openErr := errors.New("disk full")

	c := NewCapture(source, analysis.New(analysis.Config{}), CaptureOptions{
		Config:  fastConfig(),
		Persist: func(meta storage.Metadata) (PersistSink, error) { return nil, openErr },
	})
	if err := c.Run(context.Background()); !errors.Is(err, openErr) {
		t.Fatalf("expected persist open error, got %v", err)
	}
	if source.disconnects != 1 {
		t.Errorf("source must be released after persist failure, got %d disconnects", source.disconnects)
	}
}

func TestCapture_TransientErrorsContinue(t *testing.T) {
	readErr := errors.New("transient glitch")
	source := &fakeSource{
		errs:   []error{readErr, readErr},
		chunks: [][]byte{{1, 2, 3}},
	}
	sink := &fakeSink{}

	c := NewCapture(source, analysis.New(analysis.Config{}), CaptureOptions{
		Config:  fastConfig(),
		Persist: func(meta storage.Metadata) (PersistSink, error) { return sink, nil },
	})
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(sink.all()); got != 3 {
		t.Errorf("loop should survive transient errors and process the data, got %d records", got)
	}
}

func TestCapture_PersistentErrorsAbort(t *testing.T) {
	readErr := errors.New("device unplugged")
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = readErr
	}
	source := &fakeSource{errs: errs}

	cfg := fastConfig()
	cfg.MaxConsecutiveErrors = 3
	c := NewCapture(source, analysis.New(analysis.Config{}), CaptureOptions{Config: cfg})

	err := c.Run(context.Background())
	if !errors.Is(err, readErr) {
		t.Fatalf("expected persistent-failure abort, got %v", err)
	}
	if source.readCount() != 3 {
		t.Errorf("expected abort after 3 consecutive failures, got %d reads", source.readCount())
	}
}

func TestCapture_CancellationIsNotAnError(t *testing.T) {
	// Endless source: repeats the same chunk forever.
	source := &endlessSource{}

	c := NewCapture(source, analysis.New(analysis.Config{}), CaptureOptions{Config: fastConfig()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("cancellation must not be an error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("loop did not exit within one suspension interval of cancellation")
	}
	if c.State() != StateStopped {
		t.Errorf("expected Stopped, got %v", c.State())
	}
}

type endlessSource struct{ fakeSource }

func (s *endlessSource) ReadChunk(n int) ([]byte, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return make([]byte, n), nil
}

func TestCapture_PauseStopsConsumption(t *testing.T) {
	source := &endlessSource{}
	c := NewCapture(source, analysis.New(analysis.Config{}), CaptureOptions{Config: fastConfig()})
	c.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if got := source.readCount(); got != 0 {
		t.Errorf("paused loop must not consume input, got %d reads", got)
	}
}

func TestReplay_ReconstructsRecordedAnomalies(t *testing.T) {
	path := t.TempDir() + "/capture.csv"
	w, err := storage.NewWriter(path, storage.NewMetadata(nil, 10, 0.05))
	if err != nil {
		t.Fatal(err)
	}
	recs := []storage.Record{
		{Position: 1, Timestamp: 1, ByteValue: 5},
		{Position: 2, Timestamp: 2, ByteValue: 9, AnomalyType: types.TestRuns, ZScore: -3, PValue: 0.002, Significance: types.SigMedium},
		{Position: 3, Timestamp: 3, ByteValue: 7},
	}
	for _, rec := range recs {
		if err := w.WriteRecord(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	stats := &fakeStats{}
	cfg := fastConfig()
	cfg.VizEvery = 1
	r := NewReplay(storage.NewReader(path), ReplayOptions{Config: cfg, Stats: stats})

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if r.Metadata().WindowSize != 10 {
		t.Errorf("expected metadata window_size 10, got %d", r.Metadata().WindowSize)
	}
	stats.mu.Lock()
	defer stats.mu.Unlock()
	if len(stats.updates) != 3 {
		t.Fatalf("expected 3 stats updates at K=1, got %d", len(stats.updates))
	}
	last := stats.updates[2]
	if last.TotalAnomalies != 1 {
		t.Errorf("expected 1 reconstructed anomaly, got %d", last.TotalAnomalies)
	}
	if last.Position != 3 {
		t.Errorf("expected position 3, got %d", last.Position)
	}
}

func TestReplay_MissingHeaderIsFatal(t *testing.T) {
	path := t.TempDir() + "/bad.csv"
	if err := writeFile(path, "position,timestamp\n1,2\n"); err != nil {
		t.Fatal(err)
	}

	r := NewReplay(storage.NewReader(path), ReplayOptions{Config: fastConfig()})
	if err := r.Run(context.Background()); !errors.Is(err, storage.ErrMissingHeader) {
		t.Fatalf("expected ErrMissingHeader, got %v", err)
	}
	if r.State() != StateStopped {
		t.Errorf("pipeline must not stream after fatal setup, got %v", r.State())
	}
}

func TestCoordinator_IdempotentShutdown(t *testing.T) {
	source := &fakeSource{}
	sink := &fakeSink{}

	captureDone := make(chan struct{})
	close(captureDone)

	cancelled := 0
	coord := NewCoordinator(CoordinatorOptions{
		Cancel:      func() { cancelled++ },
		CaptureDone: captureDone,
		Source:      source,
		Sink:        func() PersistSink { return sink },
	})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coord.Shutdown()
		}()
	}
	wg.Wait()

	if source.disconnects != 1 {
		t.Errorf("expected exactly one disconnect, got %d", source.disconnects)
	}
	if sink.closeCount() != 1 {
		t.Errorf("expected exactly one sink close, got %d", sink.closeCount())
	}
	if cancelled != 1 {
		t.Errorf("expected exactly one cancel, got %d", cancelled)
	}
}

func TestCoordinator_TimeoutIsSafetyValve(t *testing.T) {
	stuck := make(chan struct{}) // never closed

	coord := NewCoordinator(CoordinatorOptions{
		CaptureDone: stuck,
	})

	done := make(chan struct{})
	go func() {
		coord.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(captureAwaitTimeout + time.Second):
		t.Fatal("shutdown blocked past the bounded await timeout")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
