package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// flushEvery bounds how many records can sit unflushed, so external tools
// can tail a capture while it is being written.
const flushEvery = 1000

// headerPad is the slack appended to the metadata line at create time. The
// finalized header (with real totals) is rewritten in place at close and must
// fit without shifting the CSV body.
const headerPad = 64

// Writer appends records to a capture file. Close is idempotent and may be
// called from the shutdown coordinator while the pipeline is draining.
type Writer struct {
	mu        sync.Mutex
	f         *os.File
	w         *csv.Writer
	meta      Metadata
	headerLen int
	written   int64
	anomalies int64
	started   time.Time
	closed    bool
}

// NewWriter creates the capture file, writes the metadata preamble and the
// CSV column header, and returns a writer ready for records.
func NewWriter(path string, meta Metadata) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}

	header, err := headerLine(meta, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write metadata header: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvColumns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write column header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("write column header: %w", err)
	}

	return &Writer{
		f:         f,
		w:         w,
		meta:      meta,
		headerLen: len(header),
		started:   time.Now(),
	}, nil
}

// headerLine renders the metadata comment line padded to a fixed width. If
// pad is zero the natural length plus headerPad is used.
func headerLine(meta Metadata, pad int) (string, error) {
	body, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	line := "# " + string(body)
	if pad == 0 {
		pad = len(line) + 1 + headerPad
	}
	if len(line)+1 > pad {
		return "", fmt.Errorf("metadata header exceeds reserved %d bytes", pad)
	}
	return line + strings.Repeat(" ", pad-len(line)-1) + "\n", nil
}

// WriteRecord appends one record, flushing periodically for live tailing.
func (w *Writer) WriteRecord(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if err := w.w.Write(rec.row()); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	w.written++
	if rec.Anomalous() {
		w.anomalies++
	}
	if w.written%flushEvery == 0 {
		w.w.Flush()
		if err := w.w.Error(); err != nil {
			return fmt.Errorf("flush records: %w", err)
		}
	}
	return nil
}

// RecordsWritten returns the number of records appended so far.
func (w *Writer) RecordsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close flushes pending rows, finalizes the metadata totals in place, and
// closes the file. Repeated calls are no-ops.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	w.w.Flush()
	flushErr := w.w.Error()

	w.meta.TotalBytes = w.written
	w.meta.TotalAnomalies = w.anomalies
	w.meta.DurationSeconds = time.Since(w.started).Seconds()

	if header, err := headerLine(w.meta, w.headerLen); err == nil {
		if _, seekErr := w.f.WriteAt([]byte(header), 0); seekErr != nil && flushErr == nil {
			flushErr = fmt.Errorf("finalize metadata: %w", seekErr)
		}
	} else if flushErr == nil {
		flushErr = err
	}

	if err := w.f.Close(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("close capture file: %w", err)
	}
	return flushErr
}
