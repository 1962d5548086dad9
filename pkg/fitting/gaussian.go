// Package fitting fits a 1D Gaussian with a constant baseline to beam
// profiles and converts the fitted spread into a physical width.
package fitting

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"beamprofiler/internal/models"
)

// ErrInvalidSeed is returned for a sigma seed that would make the model
// degenerate.
var ErrInvalidSeed = errors.New("invalid sigma seed")

// Gaussian evaluates A*exp(-(x-mu)^2/(2*sigma^2)) + c.
func Gaussian(x float64, p models.GaussianParams) float64 {
	d := x - p.Mu
	return p.A*math.Exp(-d*d/(2*p.Sigma*p.Sigma)) + p.C
}

// Evaluate fills dst with the model at each coordinate. dst is allocated
// when nil.
func Evaluate(dst, coords []float64, p models.GaussianParams) []float64 {
	if dst == nil {
		dst = make([]float64, len(coords))
	}
	for i, x := range coords {
		dst[i] = Gaussian(x, p)
	}
	return dst
}

// gaussianJacobian writes the partial derivatives of the model with
// respect to (mu, A, sigma, c) at x into row.
func gaussianJacobian(row []float64, x float64, p models.GaussianParams) {
	d := x - p.Mu
	s2 := p.Sigma * p.Sigma
	e := math.Exp(-d * d / (2 * s2))
	row[0] = p.A * e * d / s2
	row[1] = e
	row[2] = p.A * e * d * d / (s2 * p.Sigma)
	row[3] = 1
}

// InitialGuess derives starting parameters from the data: mu at the
// coordinate of the maximum, A as max-min, c as min. Sigma is not
// estimated, it is the configured seed.
func InitialGuess(values, coords []float64, sigmaSeed float64) (models.GaussianParams, error) {
	if len(values) == 0 || len(values) != len(coords) {
		return models.GaussianParams{}, fmt.Errorf("%w: %d values, %d coordinates", ErrFitConvergence, len(values), len(coords))
	}
	if sigmaSeed <= 0 || math.IsNaN(sigmaSeed) || math.IsInf(sigmaSeed, 0) {
		return models.GaussianParams{}, fmt.Errorf("%w: %v", ErrInvalidSeed, sigmaSeed)
	}

	maxIdx := floats.MaxIdx(values)
	lo := floats.Min(values)
	return models.GaussianParams{
		Mu:    coords[maxIdx],
		A:     values[maxIdx] - lo,
		Sigma: sigmaSeed,
		C:     lo,
	}, nil
}
