package storage

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// Reader loads capture files written by Writer (or any tool emitting the
// same format).
type Reader struct {
	path string
	meta *Metadata
}

// NewReader creates a reader for the given capture file.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Metadata parses and caches the JSON preamble. A missing or malformed
// header is fatal for the file; there is no partial-metadata recovery.
func (r *Reader) Metadata() (Metadata, error) {
	if r.meta != nil {
		return *r.meta, nil
	}

	f, err := os.Open(r.path)
	if err != nil {
		return Metadata{}, fmt.Errorf("open capture file: %w", err)
	}
	defer f.Close()

	first, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return Metadata{}, fmt.Errorf("read metadata header: %w", err)
	}

	meta, err := parseHeader(first)
	if err != nil {
		return Metadata{}, err
	}
	r.meta = &meta
	return meta, nil
}

// parseHeader extracts metadata from the "# {json}" preamble line.
func parseHeader(line string) (Metadata, error) {
	line = strings.TrimRight(line, " \r\n")
	if !strings.HasPrefix(line, "# ") {
		return Metadata{}, ErrMissingHeader
	}

	body := line[2:]
	if !gjson.Valid(body) {
		return Metadata{}, ErrBadHeader
	}
	parsed := gjson.Parse(body)

	meta := Metadata{
		Timestamp:       parsed.Get("timestamp").String(),
		DeviceInfo:      map[string]any{},
		WindowSize:      int(parsed.Get("window_size").Int()),
		Sensitivity:     parsed.Get("sensitivity").Float(),
		TotalBytes:      parsed.Get("total_bytes").Int(),
		TotalAnomalies:  parsed.Get("total_anomalies").Int(),
		DurationSeconds: parsed.Get("duration_seconds").Float(),
	}
	if info, ok := parsed.Get("device_info").Value().(map[string]any); ok {
		meta.DeviceInfo = info
	}
	return meta, nil
}

// Records opens the file and returns an iterator positioned at the first
// data row. The caller owns the iterator and must Close it.
func (r *Reader) Records() (*RecordIterator, error) {
	if _, err := r.Metadata(); err != nil {
		return nil, err
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}

	br := bufio.NewReader(f)
	if _, err := br.ReadString('\n'); err != nil {
		f.Close()
		return nil, fmt.Errorf("skip metadata header: %w", err)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = len(csvColumns)

	header, err := cr.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read column header: %w", err)
	}
	for i, col := range csvColumns {
		if header[i] != col {
			f.Close()
			return nil, fmt.Errorf("unexpected column %q at index %d", header[i], i)
		}
	}

	return &RecordIterator{f: f, cr: cr}, nil
}

// RecordIterator streams data rows from an open capture file.
type RecordIterator struct {
	f  *os.File
	cr *csv.Reader
}

// Next returns the next record, or io.EOF at end of stream.
func (it *RecordIterator) Next() (Record, error) {
	fields, err := it.cr.Read()
	if err == io.EOF {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, fmt.Errorf("read record row: %w", err)
	}
	rec, err := parseRecord(fields)
	if err != nil {
		return Record{}, fmt.Errorf("parse record row: %w", err)
	}
	return rec, nil
}

// Close releases the underlying file.
func (it *RecordIterator) Close() error {
	return it.f.Close()
}

// ReadAll loads every record into memory.
func (r *Reader) ReadAll() ([]Record, error) {
	var records []Record
	err := r.each(func(rec Record) bool {
		records = append(records, rec)
		return true
	})
	return records, err
}

// RecordsInRange returns records with start <= position < end.
func (r *Reader) RecordsInRange(start, end int64) ([]Record, error) {
	var records []Record
	err := r.each(func(rec Record) bool {
		if rec.Position >= end {
			return false
		}
		if rec.Position >= start {
			records = append(records, rec)
		}
		return true
	})
	return records, err
}

// Anomalies returns only the records carrying an anomaly annotation.
func (r *Reader) Anomalies() ([]Record, error) {
	var records []Record
	err := r.each(func(rec Record) bool {
		if rec.Anomalous() {
			records = append(records, rec)
		}
		return true
	})
	return records, err
}

// FileStats summarizes a capture file.
type FileStats struct {
	Path         string
	TotalRecords int64
	AnomalyCount int64
	AnomalyRate  float64
	Metadata     Metadata
}

// Stats walks the file and returns record and anomaly totals.
func (r *Reader) Stats() (FileStats, error) {
	meta, err := r.Metadata()
	if err != nil {
		return FileStats{}, err
	}

	stats := FileStats{Path: r.path, Metadata: meta}
	err = r.each(func(rec Record) bool {
		stats.TotalRecords++
		if rec.Anomalous() {
			stats.AnomalyCount++
		}
		return true
	})
	if err != nil {
		return FileStats{}, err
	}
	if stats.TotalRecords > 0 {
		stats.AnomalyRate = float64(stats.AnomalyCount) / float64(stats.TotalRecords)
	}
	return stats, nil
}

// each invokes fn for every record until fn returns false or the file ends.
func (r *Reader) each(fn func(Record) bool) error {
	it, err := r.Records()
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		rec, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !fn(rec) {
			return nil
		}
	}
}
