package fitting

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"beamprofiler/internal/models"
)

// numParams is the number of Gaussian parameters (mu, A, sigma, c).
const numParams = 4

// minSigmaSpacing is the smallest fitted sigma accepted, in units of the
// mean coordinate spacing.
const minSigmaSpacing = 0.5

// Fitter fits GaussianParams to ROI-sliced profiles.
type Fitter struct {
	settings Settings
}

// NewFitter creates a fitter with the given solver settings. Zero fields
// fall back to DefaultSettings.
func NewFitter(settings Settings) *Fitter {
	def := DefaultSettings()
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = def.MaxIterations
	}
	if settings.GradientTol <= 0 {
		settings.GradientTol = def.GradientTol
	}
	if settings.StepTol <= 0 {
		settings.StepTol = def.StepTol
	}
	if settings.Tau <= 0 {
		settings.Tau = def.Tau
	}
	return &Fitter{settings: settings}
}

// Settings returns the effective solver settings.
func (f *Fitter) Settings() Settings {
	return f.settings
}

// Fit minimizes sum((model(coords[i]) - values[i])^2) starting from guess.
// Degenerate inputs (a flat profile) and degenerate results (zero sigma
// or amplitude, non-finite parameters, sigma below half the coordinate
// spacing, center outside the coordinate range) are reported as
// ErrFitConvergence.
func (f *Fitter) Fit(values, coords []float64, guess models.GaussianParams) (*models.FitResult, error) {
	if len(values) != len(coords) {
		return nil, fmt.Errorf("%w: %d values, %d coordinates", ErrFitConvergence, len(values), len(coords))
	}
	if len(values) < numParams {
		return nil, fmt.Errorf("%w: %d samples, need at least %d", ErrFitConvergence, len(values), numParams)
	}
	if !allFinite(values) {
		return nil, fmt.Errorf("%w: profile contains non-finite samples", ErrFitConvergence)
	}
	if floats.Max(values) == floats.Min(values) {
		return nil, fmt.Errorf("%w: flat profile has no peak", ErrFitConvergence)
	}
	if guess.Sigma == 0 || !allFinite(guess.Vector()) {
		return nil, fmt.Errorf("%w: degenerate initial guess %+v", ErrFitConvergence, guess)
	}

	problem := Problem{
		Dim:  numParams,
		Size: len(values),
		Func: func(dst, x []float64) {
			p := models.ParamsFromVector(x)
			for i, c := range coords {
				dst[i] = Gaussian(c, p) - values[i]
			}
		},
		Jac: func(dst *mat.Dense, x []float64) {
			p := models.ParamsFromVector(x)
			for i, c := range coords {
				gaussianJacobian(dst.RawRowView(i), c, p)
			}
		},
	}

	res, err := LevenbergMarquardt(problem, guess.Vector(), f.settings)
	if err != nil {
		return nil, err
	}

	params := models.ParamsFromVector(res.X)
	// The model is even in sigma
	params.Sigma = math.Abs(params.Sigma)
	if !allFinite(res.X) || params.Sigma == 0 || params.A == 0 {
		return nil, fmt.Errorf("%w: degenerate result %+v", ErrFitConvergence, params)
	}
	// A peak narrower than the sampling or centred outside the region is
	// not resolved by the data
	lo, hi := floats.Min(coords), floats.Max(coords)
	if spacing := (hi - lo) / float64(len(coords)-1); params.Sigma < minSigmaSpacing*spacing {
		return nil, fmt.Errorf("%w: sigma %g below sample spacing %g", ErrFitConvergence, params.Sigma, spacing)
	}
	if params.Mu < lo || params.Mu > hi {
		return nil, fmt.Errorf("%w: center %g outside [%g, %g]", ErrFitConvergence, params.Mu, lo, hi)
	}

	return &models.FitResult{
		Params:     params,
		Coords:     append([]float64(nil), coords...),
		Curve:      Evaluate(nil, coords, params),
		Iterations: res.Iterations,
	}, nil
}
