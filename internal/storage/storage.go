// Package storage reads and writes BitPulse capture files.
//
// A capture file is a CSV with a one-line JSON preamble:
//
//	# {"timestamp":...,"device_info":{...},"window_size":...,...}
//	position,timestamp,byte_value,anomaly_type,z_score,p_value,significance
//	1,1700000000.123,42,,,,
//	2,1700000000.143,250,frequency,3.21,0.0013,**
//
// Optional fields serialize as empty strings. The format is an interchange
// surface; readers from other tools tail these files live.
package storage

import (
	"errors"
	"strconv"
	"time"

	"github.com/bitpulse/bitpulse/pkg/types"
)

var (
	// ErrMissingHeader is returned when the first line is not a metadata
	// comment. A capture without a parseable header is unreadable.
	ErrMissingHeader = errors.New("file does not contain metadata header")
	// ErrBadHeader is returned when the metadata line is not valid JSON.
	ErrBadHeader = errors.New("malformed metadata header")
	// ErrWriterClosed is returned for writes after Close.
	ErrWriterClosed = errors.New("writer is closed")
)

// csvColumns is the fixed data header. Column order is part of the format.
var csvColumns = []string{
	"position", "timestamp", "byte_value",
	"anomaly_type", "z_score", "p_value", "significance",
}

// Metadata describes a capture session. It is serialized as the JSON object
// on the file's first line.
type Metadata struct {
	Timestamp       string         `json:"timestamp"`
	DeviceInfo      map[string]any `json:"device_info"`
	WindowSize      int            `json:"window_size"`
	Sensitivity     float64        `json:"sensitivity"`
	TotalBytes      int64          `json:"total_bytes"`
	TotalAnomalies  int64          `json:"total_anomalies"`
	DurationSeconds float64        `json:"duration_seconds"`
}

// NewMetadata creates metadata for a new capture session. The totals are
// finalized by the writer at close.
func NewMetadata(deviceInfo map[string]any, windowSize int, sensitivity float64) Metadata {
	if deviceInfo == nil {
		deviceInfo = map[string]any{}
	}
	return Metadata{
		Timestamp:   time.Now().Format(time.RFC3339),
		DeviceInfo:  deviceInfo,
		WindowSize:  windowSize,
		Sensitivity: sensitivity,
	}
}

// Record is a single observed byte with its optional anomaly annotation.
// When no anomaly fired for the byte, AnomalyType is empty and the remaining
// anomaly fields are meaningless and serialize as empty strings.
type Record struct {
	Position     int64
	Timestamp    float64 // seconds since epoch, fractional
	ByteValue    byte
	AnomalyType  types.TestType
	ZScore       float64
	PValue       float64
	Significance string
}

// Anomalous reports whether the record carries an anomaly annotation.
func (r Record) Anomalous() bool { return r.AnomalyType != "" }

// row serializes the record into CSV fields in column order.
func (r Record) row() []string {
	fields := []string{
		strconv.FormatInt(r.Position, 10),
		strconv.FormatFloat(r.Timestamp, 'f', -1, 64),
		strconv.Itoa(int(r.ByteValue)),
		"", "", "", "",
	}
	if r.Anomalous() {
		fields[3] = string(r.AnomalyType)
		fields[4] = strconv.FormatFloat(r.ZScore, 'g', -1, 64)
		fields[5] = strconv.FormatFloat(r.PValue, 'g', -1, 64)
		fields[6] = r.Significance
	}
	return fields
}

// parseRecord parses one CSV row back into a Record.
func parseRecord(fields []string) (Record, error) {
	if len(fields) != len(csvColumns) {
		return Record{}, errors.New("record row has wrong column count")
	}

	position, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Record{}, err
	}
	timestamp, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Record{}, err
	}
	byteValue, err := strconv.Atoi(fields[2])
	if err != nil {
		return Record{}, err
	}
	if byteValue < 0 || byteValue > 255 {
		return Record{}, errors.New("byte_value out of range")
	}

	rec := Record{
		Position:  position,
		Timestamp: timestamp,
		ByteValue: byte(byteValue),
	}
	if fields[3] != "" {
		rec.AnomalyType = types.TestType(fields[3])
		if rec.ZScore, err = strconv.ParseFloat(fields[4], 64); err != nil {
			return Record{}, err
		}
		if rec.PValue, err = strconv.ParseFloat(fields[5], 64); err != nil {
			return Record{}, err
		}
		rec.Significance = fields[6]
	}
	return rec, nil
}
