package profile

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"beamprofiler/internal/models"
)

// ErrEmptyRegion is returned when an ROI clamps to zero samples.
var ErrEmptyRegion = errors.New("empty region of interest")

// Truncate converts a written ROI bound to an index, dropping the
// fractional part. Non-finite bounds become Unbounded (upper) or 0 (lower).
func Truncate(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1) || v >= math.MaxInt32:
		return math.MaxInt32
	case math.IsInf(v, -1) || v <= math.MinInt32:
		return math.MinInt32
	}
	return int(v)
}

// Clamp resolves roi against a profile of length n: an unbounded or
// oversized upper bound becomes n and a negative lower bound becomes 0.
// The result may still be empty (From >= To).
func Clamp(roi models.RegionOfInterest, n int) models.RegionOfInterest {
	from, to := roi.From, roi.To
	if to == models.Unbounded || to > n {
		to = n
	}
	if from < 0 {
		from = 0
	}
	if from > n {
		from = n
	}
	return models.RegionOfInterest{From: from, To: to}
}

// Select slices profile to roi and builds the matching coordinates,
// which are the sample indices From..To-1 with unit spacing. Fitted mu
// and sigma are therefore in profile samples, and sigma times the pixel
// resolution is the physical width. The coordinates are not an
// endpoint-inclusive span from From to To, which would stretch the
// spacing to (To-From)/(To-From-1) and bias sigma by the same factor.
func Select(profile []float64, roi models.RegionOfInterest) (values, coords []float64, err error) {
	r := Clamp(roi, len(profile))
	if r.From >= r.To {
		return nil, nil, fmt.Errorf("%w: %v on profile of length %d", ErrEmptyRegion, roi, len(profile))
	}

	n := r.To - r.From
	values = make([]float64, n)
	copy(values, profile[r.From:r.To])

	coords = make([]float64, n)
	if n == 1 {
		coords[0] = float64(r.From)
	} else {
		floats.Span(coords, float64(r.From), float64(r.To-1))
	}
	return values, coords, nil
}
