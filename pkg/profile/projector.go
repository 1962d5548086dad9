// Package profile reduces camera frames to 1D beam profiles and selects
// the region of a profile that is used for fitting.
package profile

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"beamprofiler/internal/models"
)

// ErrInvalidInput is returned for frames with a zero-sized dimension.
var ErrInvalidInput = errors.New("invalid input")

// Project collapses a frame into a profile along the given axis by
// averaging over the orthogonal axis. The frame is not modified.
//
// For AxisX the result has one value per column, for AxisY one per row.
func Project(frame *models.ImageFrame, axis models.Axis) ([]float64, error) {
	if frame.Empty() {
		if frame == nil {
			return nil, fmt.Errorf("%w: nil frame", ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: empty %dx%d frame (%d samples)",
			ErrInvalidInput, frame.Rows, frame.Cols, len(frame.Data))
	}

	switch axis {
	case models.AxisX:
		// Sum rows into one accumulator, then divide
		profile := make([]float64, frame.Cols)
		for r := 0; r < frame.Rows; r++ {
			floats.Add(profile, frame.Row(r))
		}
		n := float64(frame.Rows)
		for i := range profile {
			profile[i] /= n
		}
		return profile, nil

	case models.AxisY:
		profile := make([]float64, frame.Rows)
		for r := range profile {
			profile[r] = stat.Mean(frame.Row(r), nil)
		}
		return profile, nil

	default:
		return nil, fmt.Errorf("%w: unknown axis %v", ErrInvalidInput, axis)
	}
}
