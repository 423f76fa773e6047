// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package control

// RiseDetector watches a temperature series for a rise of at least a fixed
// threshold above a reference value.
//
// The reference is captured from the first update after construction or
// Reset and never moves on its own: a slow downward drift does not lower
// the bar for what counts as a rise. Updates are idempotent given the same
// value.
type RiseDetector struct {
	threshold float64
	reference float64
	hasRef    bool
}

// NewRiseDetector creates a detector that fires when a value reaches the
// reference plus threshold.
func NewRiseDetector(threshold float64) *RiseDetector {
	return &RiseDetector{threshold: threshold}
}

// Update feeds one reading to the detector and reports whether the rise
// threshold is met. The first reading after construction or Reset becomes
// the reference and never triggers.
func (d *RiseDetector) Update(value float64) bool {
	if !d.hasRef {
		d.reference = value
		d.hasRef = true
		return false
	}
	return value >= d.reference+d.threshold
}

// Reset clears the reference. The next Update re-baselines.
func (d *RiseDetector) Reset() {
	d.hasRef = false
}

// Reference returns the current reference value and whether one is set.
func (d *RiseDetector) Reference() (float64, bool) {
	return d.reference, d.hasRef
}
