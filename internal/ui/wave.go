// Package ui provides the live signal wave display.
package ui

import (
	"strings"
	"sync"
)

// WavePoint is one plotted unit: a normalized value in [-1, 1] and an
// optional significance marker for anomalous units.
type WavePoint struct {
	Value  float64
	Marker string
}

// WaveView plots a scrolling wave of recent signal points. AddPoint is
// called from the pipeline goroutine while Render runs on the UI loop, so
// the point buffer is mutex-protected.
type WaveView struct {
	mu     sync.Mutex
	points []WavePoint
	start  int
	length int

	width  int
	height int
}

// NewWaveView creates a wave view with the given plot dimensions. Height
// should be odd so the baseline sits on a row of its own.
func NewWaveView(width, height int) *WaveView {
	if width < 10 {
		width = 10
	}
	if height < 3 {
		height = 3
	}
	if height%2 == 0 {
		height++
	}
	return &WaveView{
		points: make([]WavePoint, width),
		width:  width,
		height: height,
	}
}

// SetSize resizes the plot. Buffered points are discarded on a width
// change; the wave refills within a second at the usual point rate.
func (v *WaveView) SetSize(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if height >= 3 {
		if height%2 == 0 {
			height++
		}
		v.height = height
	}
	if width >= 10 && width != v.width {
		v.width = width
		v.points = make([]WavePoint, width)
		v.start = 0
		v.length = 0
	}
}

// AddPoint appends a point, evicting the oldest once the plot is full.
func (v *WaveView) AddPoint(value float64, marker string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.length < v.width {
		v.points[(v.start+v.length)%v.width] = WavePoint{Value: value, Marker: marker}
		v.length++
		return
	}
	v.points[v.start] = WavePoint{Value: value, Marker: marker}
	v.start = (v.start + 1) % v.width
}

// Len returns the number of buffered points.
func (v *WaveView) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.length
}

func (v *WaveView) at(i int) WavePoint {
	return v.points[(v.start+i)%v.width]
}

// Render draws the wave grid. Normal points render as wave dots on the row
// matching their value; anomalous points render as a spike marker, up or
// down by sign, colored by significance tier.
func (v *WaveView) Render() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	mid := v.height / 2
	rows := make([][]string, v.height)
	for r := range rows {
		rows[r] = make([]string, v.width)
		for c := range rows[r] {
			if r == mid {
				rows[r][c] = BaselineStyle.Render("·")
			} else {
				rows[r][c] = " "
			}
		}
	}

	for i := 0; i < v.length; i++ {
		p := v.at(i)
		row := mid - int(p.Value*float64(mid))
		if row < 0 {
			row = 0
		}
		if row >= v.height {
			row = v.height - 1
		}

		if p.Marker != "" {
			glyph := "▲"
			if p.Value < 0 {
				glyph = "▼"
			}
			rows[row][i] = SignificanceStyle(p.Marker).Render(glyph)
			continue
		}
		rows[row][i] = WaveStyle.Render("•")
	}

	var b strings.Builder
	for r := 0; r < v.height; r++ {
		b.WriteString(strings.Join(rows[r], ""))
		if r < v.height-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
