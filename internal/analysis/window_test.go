package analysis

import "testing"

func TestWindow_FIFOEviction(t *testing.T) {
	const capacity = 5
	w := NewStatisticalWindow(capacity)

	// After N+k pushes the window must hold exactly the N most recent bytes
	// in insertion order.
	for i := 0; i < capacity+7; i++ {
		w.Push(byte(i))
	}

	if !w.IsFull() {
		t.Fatal("window should be full")
	}
	if w.Len() != capacity {
		t.Fatalf("expected length %d, got %d", capacity, w.Len())
	}

	got := w.Bytes()
	for i := 0; i < capacity; i++ {
		want := byte(7 + i)
		if got[i] != want {
			t.Errorf("byte %d: expected %d, got %d", i, want, got[i])
		}
	}
}

func TestWindow_NotFullUntilCapacity(t *testing.T) {
	w := NewStatisticalWindow(3)

	for i := 0; i < 2; i++ {
		w.Push(0xAB)
		if w.IsFull() {
			t.Fatalf("window full after %d of 3 pushes", i+1)
		}
	}

	w.Push(0xAB)
	if !w.IsFull() {
		t.Error("window should be full after 3 pushes")
	}
}

func TestWindow_BitsLSBFirst(t *testing.T) {
	w := NewStatisticalWindow(2)
	w.Push(0x01) // bits 1,0,0,0,0,0,0,0
	w.Push(0x80) // bits 0,0,0,0,0,0,0,1

	want := []uint8{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	got := w.Bits()

	if len(got) != len(want) {
		t.Fatalf("expected %d bits, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bit %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestWindow_BitsFollowEviction(t *testing.T) {
	w := NewStatisticalWindow(2)
	w.Push(0x00)
	w.Push(0xFF)
	w.Push(0x0F) // evicts 0x00

	bits := w.Bits()
	if len(bits) != 16 {
		t.Fatalf("expected 16 bits, got %d", len(bits))
	}
	// 0xFF first, then 0x0F expanded LSB-first.
	for i := 0; i < 8; i++ {
		if bits[i] != 1 {
			t.Errorf("bit %d: expected 1, got %d", i, bits[i])
		}
	}
	for i := 8; i < 12; i++ {
		if bits[i] != 1 {
			t.Errorf("bit %d: expected 1, got %d", i, bits[i])
		}
	}
	for i := 12; i < 16; i++ {
		if bits[i] != 0 {
			t.Errorf("bit %d: expected 0, got %d", i, bits[i])
		}
	}
}
