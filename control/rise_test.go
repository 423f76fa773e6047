// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package control

import (
	"testing"
)

func TestRiseDetectorFirstReadingBecomesReference(t *testing.T) {
	d := NewRiseDetector(1.5)

	if d.Update(40.0) {
		t.Error("first reading must never trigger")
	}

	ref, ok := d.Reference()
	if !ok {
		t.Fatal("reference should be set after first update")
	}
	if ref != 40.0 {
		t.Errorf("reference = %v, want 40.0", ref)
	}
}

func TestRiseDetectorTriggersAtExactThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		reference float64
		value     float64
		want      bool
	}{
		{"below threshold", 1.5, 40.0, 41.4, false},
		{"exactly at threshold", 1.5, 40.0, 41.5, true},
		{"above threshold", 1.5, 40.0, 42.0, true},
		{"no rise", 1.5, 40.0, 40.0, false},
		{"falling", 1.5, 40.0, 38.0, false},
		{"small threshold exact", 0.1, 20.0, 20.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewRiseDetector(tt.threshold)
			d.Update(tt.reference)
			if got := d.Update(tt.value); got != tt.want {
				t.Errorf("Update(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestRiseDetectorReferenceNeverDrifts(t *testing.T) {
	d := NewRiseDetector(1.5)
	d.Update(40.0)

	// A slow downward drift must not lower the bar.
	for _, v := range []float64{39.5, 39.0, 38.5, 38.0} {
		if d.Update(v) {
			t.Errorf("falling value %v should not trigger", v)
		}
	}
	ref, _ := d.Reference()
	if ref != 40.0 {
		t.Errorf("reference moved to %v after dips, want 40.0", ref)
	}

	// Rise is still measured against the original reference.
	if d.Update(41.4) {
		t.Error("41.4 is below 40.0+1.5, should not trigger")
	}
	if !d.Update(41.5) {
		t.Error("41.5 reaches 40.0+1.5, should trigger")
	}
}

func TestRiseDetectorUpdateIsIdempotent(t *testing.T) {
	d := NewRiseDetector(1.5)
	d.Update(40.0)

	first := d.Update(41.5)
	second := d.Update(41.5)
	if first != second {
		t.Errorf("repeated Update with same value: first=%v second=%v", first, second)
	}

	ref, _ := d.Reference()
	if ref != 40.0 {
		t.Errorf("reference = %v after repeated updates, want 40.0", ref)
	}
}

func TestRiseDetectorReset(t *testing.T) {
	d := NewRiseDetector(1.5)
	d.Update(40.0)
	if !d.Update(45.0) {
		t.Fatal("should trigger before reset")
	}

	d.Reset()
	if _, ok := d.Reference(); ok {
		t.Error("reference should be cleared by Reset")
	}

	// Next reading re-baselines at the elevated value.
	if d.Update(45.0) {
		t.Error("first reading after Reset must not trigger")
	}
	ref, _ := d.Reference()
	if ref != 45.0 {
		t.Errorf("reference = %v after re-baseline, want 45.0", ref)
	}
}
