package analysis

// StatisticalWindow is a fixed-capacity ring buffer over the most recently
// observed bytes. It is the sample every statistical test runs against; no
// test runs before the window has filled once.
type StatisticalWindow struct {
	buf    []byte
	start  int
	length int
}

// NewStatisticalWindow creates a window holding the last capacity bytes.
func NewStatisticalWindow(capacity int) *StatisticalWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &StatisticalWindow{buf: make([]byte, capacity)}
}

// Push appends a byte, evicting the oldest byte once at capacity.
func (w *StatisticalWindow) Push(b byte) {
	if w.length < len(w.buf) {
		w.buf[(w.start+w.length)%len(w.buf)] = b
		w.length++
		return
	}
	w.buf[w.start] = b
	w.start = (w.start + 1) % len(w.buf)
}

// Len returns the number of bytes currently stored.
func (w *StatisticalWindow) Len() int { return w.length }

// Capacity returns the fixed window size.
func (w *StatisticalWindow) Capacity() int { return len(w.buf) }

// IsFull reports whether the window holds capacity bytes.
func (w *StatisticalWindow) IsFull() bool { return w.length == len(w.buf) }

// Bytes returns the stored bytes in insertion order.
func (w *StatisticalWindow) Bytes() []byte {
	out := make([]byte, w.length)
	for i := 0; i < w.length; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Bits expands every stored byte into its 8 bits in insertion order.
// Bit i of a byte is (b >> i) & 1, least-significant first. This order is
// fixed so results are reproducible across runs and replays.
func (w *StatisticalWindow) Bits() []uint8 {
	out := make([]uint8, 0, w.length*8)
	for i := 0; i < w.length; i++ {
		b := w.buf[(w.start+i)%len(w.buf)]
		for bit := 0; bit < 8; bit++ {
			out = append(out, (b>>bit)&1)
		}
	}
	return out
}
