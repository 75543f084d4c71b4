// Package types defines common data structures shared across BitPulse components.
package types

// TestType identifies one of the statistical tests run by the analyzer.
type TestType string

const (
	TestFrequency TestType = "frequency"  // monobit bias toward 0s or 1s
	TestRuns      TestType = "runs"       // Wald-Wolfowitz runs test
	TestChiSquare TestType = "chi_square" // byte-level uniformity
)

// Significance tier symbols, strongest to weakest. The empty string means the
// deviation did not clear any configured threshold.
const (
	SigStrong = "***" // p < 0.001
	SigMedium = "**"  // p < 0.01
	SigWeak   = "*"   // p < 0.05
	SigNone   = ""
)

// AnomalyResult is a single statistically significant deviation reported by
// the analyzer. Values are immutable once produced; at most one result per
// test is emitted for a given position.
type AnomalyResult struct {
	Position     int64    // monotonically increasing byte counter
	ZScore       float64  // standardized deviation under the null hypothesis
	PValue       float64  // two-tailed for frequency/runs, upper-tail for chi-square
	Significance string   // one of "", "*", "**", "***"
	TestType     TestType // which test fired
}
