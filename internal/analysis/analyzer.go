// Package analysis implements the streaming randomness tests BitPulse runs
// against the live byte window: frequency (monobit), Wald-Wolfowitz runs,
// and byte-level chi-square uniformity.
package analysis

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bitpulse/bitpulse/pkg/types"
)

// significanceTier pairs a p-value threshold with its display symbol.
type significanceTier struct {
	threshold float64
	symbol    string
}

// significanceTiers is scanned in ascending threshold order, tightest first,
// so a smaller p-value can never land in a weaker tier.
var significanceTiers = []significanceTier{
	{0.001, types.SigStrong},
	{0.01, types.SigMedium},
	{0.05, types.SigWeak},
}

// chiSquareMinBytes is the minimum sample below which the chi-square test is
// skipped as undersampled.
const chiSquareMinBytes = 50

const chiSquareDoF = 255

// Config holds analyzer tuning parameters.
type Config struct {
	// WindowSize is the moving window size in bytes.
	WindowSize int
	// Sensitivity is the p-value cutoff below which a deviation is reported.
	Sensitivity float64
}

// DefaultConfig returns the defaults used for live capture.
func DefaultConfig() Config {
	return Config{
		WindowSize:  1000,
		Sensitivity: 0.01,
	}
}

// Analyzer detects statistical anomalies in a random bitstream. It owns a
// single moving window and a position counter; it does not accumulate a
// running anomaly total, that count belongs to the caller.
//
// Analyzer is not safe for concurrent use. The pipeline owns it exclusively.
type Analyzer struct {
	window      *StatisticalWindow
	sensitivity float64
	position    int64

	normal distuv.Normal
	chi    distuv.ChiSquared
}

// New creates an analyzer with the given configuration.
func New(cfg Config) *Analyzer {
	if cfg.WindowSize < 1 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	if cfg.Sensitivity <= 0 {
		cfg.Sensitivity = DefaultConfig().Sensitivity
	}
	return &Analyzer{
		window:      NewStatisticalWindow(cfg.WindowSize),
		sensitivity: cfg.Sensitivity,
		normal:      distuv.Normal{Mu: 0, Sigma: 1},
		chi:         distuv.ChiSquared{K: chiSquareDoF},
	}
}

// Position returns the number of bytes observed since creation.
func (a *Analyzer) Position() int64 { return a.position }

// WindowSize returns the configured window capacity in bytes.
func (a *Analyzer) WindowSize() int { return a.window.Capacity() }

// Sensitivity returns the configured p-value cutoff.
func (a *Analyzer) Sensitivity() float64 { return a.sensitivity }

// AddByte pushes a byte into the window and, once the window is full, runs
// all three tests in fixed order (frequency, runs, chi-square). It returns
// every deviation whose p-value is strictly below the sensitivity; the tests
// are independent and may all fire for the same position.
func (a *Analyzer) AddByte(b byte) []types.AnomalyResult {
	a.window.Push(b)
	a.position++

	if !a.window.IsFull() {
		return nil
	}

	var results []types.AnomalyResult
	bits := a.window.Bits()
	if r, ok := a.testFrequency(bits); ok {
		results = append(results, r)
	}
	if r, ok := a.testRuns(bits); ok {
		results = append(results, r)
	}
	if r, ok := a.testChiSquare(); ok {
		results = append(results, r)
	}
	return results
}

// testFrequency is the monobit test: a two-tailed z-test of the ones
// proportion against the expected 0.5.
func (a *Analyzer) testFrequency(bits []uint8) (types.AnomalyResult, bool) {
	n := float64(len(bits))
	ones := float64(countOnes(bits))

	pHat := ones / n
	se := math.Sqrt(0.25 / n)
	z := (pHat - 0.5) / se
	p := a.twoTailed(z)

	if p >= a.sensitivity {
		return types.AnomalyResult{}, false
	}
	return a.result(z, p, types.TestFrequency), true
}

// testRuns is the Wald-Wolfowitz runs test over the window's bit sequence.
// Degenerate windows (all ones or all zeros) are skipped.
func (a *Analyzer) testRuns(bits []uint8) (types.AnomalyResult, bool) {
	if len(bits) < 2 {
		return types.AnomalyResult{}, false
	}

	runs := 1
	for i := 1; i < len(bits); i++ {
		if bits[i] != bits[i-1] {
			runs++
		}
	}

	n := float64(len(bits))
	ones := float64(countOnes(bits))
	zeros := n - ones
	if ones == 0 || zeros == 0 {
		return types.AnomalyResult{}, false
	}

	expected := 2*ones*zeros/n + 1
	variance := (2 * ones * zeros * (2*ones*zeros - n)) / (n * n * (n - 1))
	if variance <= 0 {
		return types.AnomalyResult{}, false
	}

	z := (float64(runs) - expected) / math.Sqrt(variance)
	p := a.twoTailed(z)

	if p >= a.sensitivity {
		return types.AnomalyResult{}, false
	}
	return a.result(z, p, types.TestRuns), true
}

// testChiSquare tests byte-value uniformity against 256 equiprobable bins.
// The p-value is the chi-square upper tail, so the test is deliberately
// one-sided: it flags distributions more skewed than chance predicts, never
// suspiciously too-uniform ones. The z-score is a display-only normal
// approximation and plays no part in the pass/fail decision.
func (a *Analyzer) testChiSquare() (types.AnomalyResult, bool) {
	values := a.window.Bytes()
	if len(values) < chiSquareMinBytes {
		return types.AnomalyResult{}, false
	}

	var observed [256]float64
	for _, v := range values {
		observed[v]++
	}
	expected := float64(len(values)) / 256

	chi2 := 0.0
	for i := 0; i < 256; i++ {
		diff := observed[i] - expected
		chi2 += diff * diff / expected
	}

	// gonum's ChiSquared CDF is backed by the regularized incomplete gamma
	// function, which switches between series and continued-fraction
	// evaluation for numerical stability.
	p := 1 - a.chi.CDF(chi2)
	z := (chi2 - chiSquareDoF) / math.Sqrt(2*chiSquareDoF)

	if p >= a.sensitivity {
		return types.AnomalyResult{}, false
	}
	return a.result(z, p, types.TestChiSquare), true
}

// twoTailed converts a z-score into a two-tailed normal p-value.
func (a *Analyzer) twoTailed(z float64) float64 {
	return 2 * (1 - a.normal.CDF(math.Abs(z)))
}

func (a *Analyzer) result(z, p float64, test types.TestType) types.AnomalyResult {
	return types.AnomalyResult{
		Position:     a.position,
		ZScore:       z,
		PValue:       p,
		Significance: SignificanceFor(p),
		TestType:     test,
	}
}

// SignificanceFor maps a p-value onto its tier symbol by scanning the
// ordered threshold list, tightest first. The mapping is monotonic: a
// smaller p-value never yields a weaker tier.
func SignificanceFor(p float64) string {
	for _, tier := range significanceTiers {
		if p < tier.threshold {
			return tier.symbol
		}
	}
	return types.SigNone
}

func countOnes(bits []uint8) int {
	ones := 0
	for _, b := range bits {
		ones += int(b)
	}
	return ones
}

// Summary holds window-level statistics for display.
type Summary struct {
	TotalBits  int
	OnesCount  int
	ZerosCount int
	OnesRatio  float64
	ByteMean   float64
	ByteStd    float64 // population standard deviation
	Position   int64
}

// Summary returns statistics over the current window. It reports ok=false
// while the window is still filling.
func (a *Analyzer) Summary() (Summary, bool) {
	if !a.window.IsFull() {
		return Summary{}, false
	}

	bits := a.window.Bits()
	ones := countOnes(bits)

	values := a.window.Bytes()
	data := make(stats.Float64Data, len(values))
	for i, v := range values {
		data[i] = float64(v)
	}
	mean, _ := stats.Mean(data)
	std, _ := stats.StandardDeviationPopulation(data)

	return Summary{
		TotalBits:  len(bits),
		OnesCount:  ones,
		ZerosCount: len(bits) - ones,
		OnesRatio:  float64(ones) / float64(len(bits)),
		ByteMean:   mean,
		ByteStd:    std,
		Position:   a.position,
	}, true
}
