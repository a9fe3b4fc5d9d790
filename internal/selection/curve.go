// Package selection implements biased index sampling over a sorted
// population, grounded on wasmgp's selection_curve.rs.
package selection

// notQuiteOne replaces a pick that rounding pushed to or past 1.0, so the
// final multiply-and-floor never lands exactly on n.
const notQuiteOne = 0.9999999999

// Curve maps a uniform sample in [0, 1) to an index in [0, n) over a
// population sorted least-fit-first.
type Curve uint8

const (
	// Fair gives every individual an equal chance.
	Fair Curve = iota
	// StrongPreferenceForFit favors the most-fit tail heavily.
	StrongPreferenceForFit
	// PreferenceForFit favors the most-fit tail.
	PreferenceForFit
	// SlightPreferenceForFit favors the most-fit tail slightly.
	SlightPreferenceForFit
	// SlightPreferenceForUnfit favors the least-fit tail slightly.
	SlightPreferenceForUnfit
	// PreferenceForUnfit favors the least-fit tail.
	PreferenceForUnfit
	// StrongPreferenceForUnfit favors the least-fit tail heavily.
	StrongPreferenceForUnfit
)

// Rand is the uniform source a Curve draws from; math/rand/v2's *rand.Rand
// and *rand.ChaCha8-backed generators satisfy it directly via Float64.
type Rand interface {
	Float64() float64
}

// PickOneIndex draws a uniform sample from rng and maps it to an index in
// [0, n) according to c, per §4.8. n must be positive.
func (c Curve) PickOneIndex(rng Rand, n int) int {
	pick := rng.Float64()

	switch c {
	case SlightPreferenceForFit, SlightPreferenceForUnfit:
		pick = pick * pick
	case PreferenceForFit, PreferenceForUnfit:
		pick = pick * pick * pick
	case StrongPreferenceForFit, StrongPreferenceForUnfit:
		pick = pick * pick * pick * pick * pick * pick
	}

	switch c {
	case PreferenceForFit, SlightPreferenceForFit, StrongPreferenceForFit:
		pick = 1.0 - pick
	}

	if pick >= 1.0 {
		pick = notQuiteOne
	}

	index := int(pick * float64(n))
	if index >= n {
		index = n - 1
	}
	if index < 0 {
		index = 0
	}
	return index
}
