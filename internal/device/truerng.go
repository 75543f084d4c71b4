// Package device provides byte sources for BitPulse: the TrueRNG Pro V2
// hardware entropy generator over a serial CDC connection, and a PRNG-backed
// simulator for runs without hardware.
package device

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Mode is a TrueRNG Pro V2 operating mode. The mode is informational; the
// device selects it through its own configuration interface.
type Mode string

const (
	ModeNormal     Mode = "Normal Mode"        // both generators combined, whitened
	ModeNormalRNG1 Mode = "Normal, RNG1"       // generator 1 only, whitened
	ModeNormalRNG2 Mode = "Normal, RNG2"       // generator 2 only, whitened
	ModePowerDebug Mode = "Power Supply Debug" // voltage in mV ASCII
	ModeRNGDebug   Mode = "RNG Debug"          // 0xRRR ASCII output
	ModeRawBinary  Mode = "RAW Binary"         // ADC values, non-whitened
	ModeRawASCII   Mode = "RAW ASCII"          // ADC values in ASCII
)

var (
	// ErrNoDevices is returned when auto-detection finds no candidate ports.
	ErrNoDevices = errors.New("no TrueRNG devices found")
	// ErrNotConnected is returned for reads on a disconnected device.
	ErrNotConnected = errors.New("device not connected")
	// ErrNoData is returned when a freshly opened port produces no bytes.
	ErrNoData = errors.New("device produced no data")
)

// Info describes a detected candidate device.
type Info struct {
	Port        string
	Description string
	VID         string
	PID         string
}

// commonPaths are tried as a fallback when port enumeration finds nothing
// that looks like a TrueRNG.
var commonPaths = []string{"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyUSB0", "/dev/ttyUSB1"}

// matchesRNGKeywords reports whether a port description looks like a TrueRNG
// CDC ACM device.
func matchesRNGKeywords(description string) bool {
	desc := strings.ToLower(description)
	for _, kw := range []string{"cdc", "acm", "truerng", "random"} {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

// FindDevices enumerates serial ports and returns likely TrueRNG candidates,
// falling back to common Linux tty paths.
func FindDevices() []Info {
	var devices []Info

	ports, err := enumerator.GetDetailedPortsList()
	if err == nil {
		for _, p := range ports {
			if matchesRNGKeywords(p.Product) {
				devices = append(devices, Info{
					Port:        p.Name,
					Description: p.Product,
					VID:         p.VID,
					PID:         p.PID,
				})
			}
		}
	}

	for _, path := range commonPaths {
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		known := false
		for _, d := range devices {
			if d.Port == path {
				known = true
				break
			}
		}
		if !known {
			devices = append(devices, Info{Port: path, Description: "Potential TrueRNG device"})
		}
	}

	return devices
}

// TrueRNG is a serial connection to a TrueRNG Pro V2. All methods are safe
// for use from the pipeline and the shutdown coordinator.
type TrueRNG struct {
	mu        sync.Mutex
	port      string
	mode      Mode
	conn      serial.Port
	connected bool
}

// NewTrueRNG creates a device handle. An empty port auto-detects on Connect.
func NewTrueRNG(port string, mode Mode) *TrueRNG {
	if mode == "" {
		mode = ModeNormal
	}
	return &TrueRNG{port: port, mode: mode}
}

// Connect opens the serial port and verifies the device is producing bytes.
func (d *TrueRNG) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return nil
	}

	if d.port == "" {
		devices := FindDevices()
		if len(devices) == 0 {
			return ErrNoDevices
		}
		d.port = devices[0].Port
	}

	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	conn, err := serial.Open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.port, err)
	}
	if err := conn.SetReadTimeout(time.Second); err != nil {
		conn.Close()
		return fmt.Errorf("failed to configure %s: %w", d.port, err)
	}

	// Give the device time to initialize, then probe for output.
	time.Sleep(100 * time.Millisecond)
	probe := make([]byte, 10)
	n, err := conn.Read(probe)
	if err != nil || n == 0 {
		conn.Close()
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", d.port, err)
		}
		return fmt.Errorf("failed to connect to %s: %w", d.port, ErrNoData)
	}

	d.conn = conn
	d.connected = true
	return nil
}

// ReadChunk reads up to n raw bytes from the device.
func (d *TrueRNG) ReadChunk(n int) ([]byte, error) {
	d.mu.Lock()
	conn, connected := d.conn, d.connected
	d.mu.Unlock()

	if !connected || conn == nil {
		return nil, ErrNotConnected
	}

	buf := make([]byte, n)
	read, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("serial read: %w", err)
	}
	return buf[:read], nil
}

// Disconnect closes the serial port. Safe to call repeatedly.
func (d *TrueRNG) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected || d.conn == nil {
		d.connected = false
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	d.connected = false
	if err != nil {
		return fmt.Errorf("serial close: %w", err)
	}
	return nil
}

// Status reports connection state for display and capture metadata.
func (d *TrueRNG) Status() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	return map[string]any{
		"connected":   d.connected,
		"port":        d.port,
		"mode":        string(d.mode),
		"serial_open": d.conn != nil,
	}
}
