package models

import (
	"fmt"
	"time"
)

// ImageFrame is a single camera image as real-valued intensities.
// Frames are treated as immutable once handed to the profiler.
type ImageFrame struct {
	// Rows is the image height in pixels
	Rows int

	// Cols is the image width in pixels
	Cols int

	// Data holds the samples in row-major order (len = Rows*Cols)
	Data []float64
}

// At returns the sample at row r, column c.
func (f *ImageFrame) At(r, c int) float64 {
	return f.Data[r*f.Cols+c]
}

// Row returns row r as a sub-slice of Data. Callers must not modify it.
func (f *ImageFrame) Row(r int) []float64 {
	return f.Data[r*f.Cols : (r+1)*f.Cols]
}

// Empty reports whether the frame has no samples along either dimension.
func (f *ImageFrame) Empty() bool {
	return f == nil || f.Rows <= 0 || f.Cols <= 0 || len(f.Data) != f.Rows*f.Cols
}

// Axis selects which beam profile is extracted from a frame.
type Axis int

const (
	// AxisX is the horizontal profile: one value per column, averaged over rows
	AxisX Axis = iota
	// AxisY is the vertical profile: one value per row, averaged over columns
	AxisY
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Axes lists both axes in reporting order.
var Axes = []Axis{AxisX, AxisY}

// Unbounded marks an ROI upper bound that has not yet been resolved
// against a profile length.
const Unbounded = -1

// RegionOfInterest is the half-open index range [From, To) of a profile
// used for fitting.
type RegionOfInterest struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// FullRegion is the default ROI: everything, upper bound pending.
func FullRegion() RegionOfInterest {
	return RegionOfInterest{From: 0, To: Unbounded}
}

// IsUnbounded reports whether the upper bound still needs resolving.
func (r RegionOfInterest) IsUnbounded() bool {
	return r.To == Unbounded
}

func (r RegionOfInterest) String() string {
	if r.IsUnbounded() {
		return fmt.Sprintf("[%d:end)", r.From)
	}
	return fmt.Sprintf("[%d:%d)", r.From, r.To)
}

// GaussianParams are the parameters of A*exp(-(x-Mu)^2/(2*Sigma^2)) + C.
type GaussianParams struct {
	// Mu is the peak center, in profile sample coordinates
	Mu float64

	// A is the peak amplitude above the baseline
	A float64

	// Sigma is the spread
	Sigma float64

	// C is the constant baseline offset
	C float64
}

// Vector returns the parameters in solver order (mu, A, sigma, c).
func (p GaussianParams) Vector() []float64 {
	return []float64{p.Mu, p.A, p.Sigma, p.C}
}

// ParamsFromVector is the inverse of Vector.
func ParamsFromVector(v []float64) GaussianParams {
	return GaussianParams{Mu: v[0], A: v[1], Sigma: v[2], C: v[3]}
}

// FitResult is the outcome of one Gaussian fit on an ROI.
type FitResult struct {
	// Params are the best-fit parameters
	Params GaussianParams

	// Coords are the sample coordinates the fit was evaluated on
	Coords []float64

	// Curve is the best-fit model evaluated at Coords
	Curve []float64

	// Iterations is the number of solver iterations used
	Iterations int
}

// AxisMeasurement is the width result for one axis.
type AxisMeasurement struct {
	Axis    Axis
	Region  RegionOfInterest
	Profile []float64
	Fit     *FitResult
	Width   float64
}

// Measurement holds the widths of both axes from one frame.
type Measurement struct {
	Time time.Time
	Unit string
	X    AxisMeasurement
	Y    AxisMeasurement
}

// ForAxis returns the measurement for the given axis.
func (m *Measurement) ForAxis(a Axis) *AxisMeasurement {
	if a == AxisY {
		return &m.Y
	}
	return &m.X
}
