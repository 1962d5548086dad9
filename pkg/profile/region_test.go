package profile

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"

	"beamprofiler/internal/models"
)

func rampProfile(n int) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = float64(i) * 1.5
	}
	return p
}

// TestSelectClamping verifies out-of-range bounds select the same data
// as the full range
func TestSelectClamping(t *testing.T) {
	profile := rampProfile(100)

	wantValues, wantCoords, err := Select(profile, models.RegionOfInterest{From: 0, To: 100})
	if err != nil {
		t.Fatalf("Select full range failed: %v", err)
	}
	values, coords, err := Select(profile, models.RegionOfInterest{From: -5, To: 10000})
	if err != nil {
		t.Fatalf("Select oversized range failed: %v", err)
	}

	if !floats.Equal(values, wantValues) {
		t.Error("Clamped values differ from the full range")
	}
	if !floats.Equal(coords, wantCoords) {
		t.Error("Clamped coordinates differ from the full range")
	}

	unbounded, _, err := Select(profile, models.FullRegion())
	if err != nil {
		t.Fatalf("Select unbounded failed: %v", err)
	}
	if !floats.Equal(unbounded, wantValues) {
		t.Error("Unbounded region differs from the full range")
	}
}

// TestSelectCoordinates checks the slice and its index coordinates
func TestSelectCoordinates(t *testing.T) {
	profile := rampProfile(50)

	values, coords, err := Select(profile, models.RegionOfInterest{From: 10, To: 15})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if want := []float64{15, 16.5, 18, 19.5, 21}; !floats.Equal(values, want) {
		t.Errorf("Expected values %v, got %v", want, values)
	}
	if want := []float64{10, 11, 12, 13, 14}; !floats.EqualApprox(coords, want, 1e-12) {
		t.Errorf("Expected coordinates %v, got %v", want, coords)
	}

	// Single sample region
	values, coords, err = Select(profile, models.RegionOfInterest{From: 7, To: 8})
	if err != nil {
		t.Fatalf("Select single sample failed: %v", err)
	}
	if len(values) != 1 || coords[0] != 7 {
		t.Errorf("Expected one sample at 7, got values=%v coords=%v", values, coords)
	}

	// The selection must not alias the profile
	values[0] = -1
	if profile[7] == -1 {
		t.Error("Select returned a view into the profile")
	}
}

// TestSelectEmptyRegion covers regions that clamp to nothing
func TestSelectEmptyRegion(t *testing.T) {
	profile := rampProfile(100)

	tests := []struct {
		name string
		roi  models.RegionOfInterest
	}{
		{"equal bounds", models.RegionOfInterest{From: 50, To: 50}},
		{"inverted", models.RegionOfInterest{From: 60, To: 40}},
		{"past the end", models.RegionOfInterest{From: 150, To: 200}},
		{"zero upper", models.RegionOfInterest{From: -10, To: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Select(profile, tt.roi)
			if !errors.Is(err, ErrEmptyRegion) {
				t.Errorf("Expected ErrEmptyRegion, got %v", err)
			}
		})
	}

	if _, _, err := Select(nil, models.FullRegion()); !errors.Is(err, ErrEmptyRegion) {
		t.Errorf("Expected ErrEmptyRegion for empty profile, got %v", err)
	}
}

// TestTruncate verifies bounds are truncated, not rounded
func TestTruncate(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{10.9, 10},
		{10.1, 10},
		{-0.7, 0},
		{-3.9, -3},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in); got != tt.want {
			t.Errorf("Truncate(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if Truncate(math.Inf(1)) < 1<<20 {
		t.Error("Truncate(+Inf) should saturate to a large bound")
	}
}

// TestClamp checks clamping on its own
func TestClamp(t *testing.T) {
	got := Clamp(models.RegionOfInterest{From: -5, To: models.Unbounded}, 30)
	if got.From != 0 || got.To != 30 {
		t.Errorf("Expected [0:30), got %v", got)
	}
	got = Clamp(models.RegionOfInterest{From: 5, To: 20}, 30)
	if got.From != 5 || got.To != 20 {
		t.Errorf("Expected [5:20) unchanged, got %v", got)
	}
}
