package fitting

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrFitConvergence is returned when the least-squares solve fails or
// when the input or result is degenerate. The wrapped message names the
// cause.
var ErrFitConvergence = errors.New("fit did not converge")

var (
	errMaxIterations = errors.New("maximum iterations exceeded")
	errSingular      = errors.New("singular normal equations")
	errNonFinite     = errors.New("non-finite residuals")
)

// Problem is a nonlinear least-squares problem: minimize 0.5*||f(x)||^2
// over x in R^Dim, where f maps to R^Size.
type Problem struct {
	// Dim is the number of parameters
	Dim int

	// Size is the number of residuals
	Size int

	// Func writes the residuals at x into dst (len Size)
	Func func(dst, x []float64)

	// Jac writes the Size x Dim Jacobian at x into dst. When nil a
	// central finite-difference approximation is used.
	Jac func(dst *mat.Dense, x []float64)
}

// Settings controls the Levenberg-Marquardt iteration.
type Settings struct {
	// MaxIterations caps the number of damped steps (accepted or not)
	MaxIterations int

	// GradientTol stops when the infinity norm of J^T r falls below it
	GradientTol float64

	// StepTol stops when ||h|| <= StepTol*(||x|| + StepTol)
	StepTol float64

	// Tau is the initial damping, relative to the scaled diagonal of J^T J
	Tau float64
}

// DefaultSettings returns the solver settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations: 1000,
		GradientTol:   1e-12,
		StepTol:       1e-12,
		Tau:           1,
	}
}

// Result is a converged solution.
type Result struct {
	X          []float64
	Cost       float64
	Iterations int
}

// LevenbergMarquardt minimizes the problem starting at x0. It is fully
// deterministic: identical inputs give identical results.
//
// Damping uses Marquardt scaling: the normal equations are solved as
// (J^T J + lambda*D) h = -J^T r with D the running maximum of diag(J^T J),
// so the step length in each parameter is bounded relative to how strongly
// the residuals depend on it.
//
// When p.Jac is nil the Jacobian is approximated by central differences
// with gonum's diff/fd.
func LevenbergMarquardt(p Problem, x0 []float64, s Settings) (*Result, error) {
	n, m := p.Dim, p.Size
	if len(x0) != n {
		return nil, fmt.Errorf("%w: initial point has %d parameters, want %d", ErrFitConvergence, len(x0), n)
	}
	if m < n {
		return nil, fmt.Errorf("%w: %d residuals for %d parameters", ErrFitConvergence, m, n)
	}

	jac := p.Jac
	if jac == nil {
		jac = func(dst *mat.Dense, x []float64) {
			fd.Jacobian(dst, p.Func, x, &fd.JacobianSettings{Formula: fd.Central})
		}
	}

	x := make([]float64, n)
	copy(x, x0)
	r := make([]float64, m)
	p.Func(r, x)
	if !allFinite(r) {
		return nil, fmt.Errorf("%w: %w at initial point", ErrFitConvergence, errNonFinite)
	}
	cost := 0.5 * floats.Dot(r, r)

	J := mat.NewDense(m, n, nil)
	normal := func() (*mat.SymDense, *mat.VecDense) {
		jac(J, x)
		var a mat.SymDense
		a.SymOuterK(1, J.T())
		g := mat.NewVecDense(n, nil)
		g.MulVec(J.T(), mat.NewVecDense(m, r))
		return &a, g
	}

	a, g := normal()
	if infNorm(g) <= s.GradientTol {
		return &Result{X: x, Cost: cost}, nil
	}

	scale := make([]float64, n)
	updateScale(scale, a)
	lambda := s.Tau
	nu := 2.0

	xNew := make([]float64, n)
	rNew := make([]float64, m)
	negG := mat.NewVecDense(n, nil)
	h := mat.NewVecDense(n, nil)

	for iter := 1; iter <= s.MaxIterations; iter++ {
		if math.IsInf(lambda, 0) || math.IsNaN(lambda) {
			return nil, fmt.Errorf("%w: %w after %d iterations", ErrFitConvergence, errSingular, iter)
		}

		damped := mat.NewSymDense(n, nil)
		damped.CopySym(a)
		for i := 0; i < n; i++ {
			damped.SetSym(i, i, a.At(i, i)+lambda*scale[i])
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(damped); !ok {
			lambda *= nu
			nu *= 2
			continue
		}
		negG.ScaleVec(-1, g)
		if err := chol.SolveVecTo(h, negG); err != nil {
			return nil, fmt.Errorf("%w: %w: %w", ErrFitConvergence, errSingular, err)
		}

		step := h.RawVector().Data
		if floats.Norm(step, 2) <= s.StepTol*(floats.Norm(x, 2)+s.StepTol) {
			return &Result{X: x, Cost: cost, Iterations: iter}, nil
		}

		floats.AddTo(xNew, x, step)
		p.Func(rNew, xNew)

		rho := -1.0
		var costNew float64
		if allFinite(rNew) {
			costNew = 0.5 * floats.Dot(rNew, rNew)
			// Reduction predicted by the linear model: 0.5*h^T(lambda*D*h - g)
			var dh float64
			for i, v := range step {
				dh += scale[i] * v * v
			}
			predicted := 0.5 * (lambda*dh - mat.Dot(h, g))
			if predicted > 0 {
				rho = (cost - costNew) / predicted
			}
		}

		if rho <= 0 {
			lambda *= nu
			nu *= 2
			continue
		}

		copy(x, xNew)
		copy(r, rNew)
		cost = costNew
		a, g = normal()
		updateScale(scale, a)
		if cost == 0 || infNorm(g) <= s.GradientTol {
			return &Result{X: x, Cost: cost, Iterations: iter}, nil
		}
		lambda *= math.Max(1.0/3, 1-math.Pow(2*rho-1, 3))
		nu = 2
	}

	return nil, fmt.Errorf("%w: %w (%d)", ErrFitConvergence, errMaxIterations, s.MaxIterations)
}

// updateScale raises each entry of scale to the matching diagonal of a.
// A parameter the residuals do not depend on yet is scaled by 1.
func updateScale(scale []float64, a *mat.SymDense) {
	for i := range scale {
		d := a.At(i, i)
		if d <= 0 && scale[i] == 0 {
			d = 1
		}
		scale[i] = math.Max(scale[i], d)
	}
}

func infNorm(v *mat.VecDense) float64 {
	return floats.Norm(v.RawVector().Data, math.Inf(1))
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
