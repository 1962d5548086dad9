package profiler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"beamprofiler/internal/models"
	"beamprofiler/pkg/fitting"
	"beamprofiler/pkg/profile"
)

// ErrUnavailableResult is returned when a cached fit is read before any
// width has been computed on that axis.
var ErrUnavailableResult = errors.New("result unavailable")

// State is the lifecycle stage of a Session.
type State int

const (
	// Uninitialized sessions have not seen a profile yet
	Uninitialized State = iota
	// Projected sessions have a resolved ROI but no fit
	Projected
	// Fitted sessions hold a last successful fit
	Fitted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Projected:
		return "projected"
	case Fitted:
		return "fitted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session holds the ROI and last fit of one axis. All operations hold the
// session lock, so an ROI write can never interleave with a fit in flight.
type Session struct {
	axis       models.Axis
	fitter     *fitting.Fitter
	sigmaSeed  float64
	resolution float64
	logger     *log.Logger

	mu    sync.Mutex
	state State
	roi   models.RegionOfInterest
	last  *models.FitResult
}

// NewSession creates an uninitialized session. The ROI upper bound stays
// unbounded until the first profile of this axis is seen.
func NewSession(axis models.Axis, fitter *fitting.Fitter, sigmaSeed, resolution float64, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{
		axis:       axis,
		fitter:     fitter,
		sigmaSeed:  sigmaSeed,
		resolution: resolution,
		logger:     logger,
		roi:        models.FullRegion(),
	}
}

// Axis returns the axis this session profiles.
func (s *Session) Axis() models.Axis {
	return s.axis
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetROI stores new bounds, truncating toward zero. A negative upper
// bound resets it to unbounded (end of profile).
func (s *Session) SetROI(from, to float64) {
	roi := models.RegionOfInterest{From: profile.Truncate(from), To: profile.Truncate(to)}
	if to < 0 {
		roi.To = models.Unbounded
	}

	s.mu.Lock()
	s.roi = roi
	s.mu.Unlock()
	s.logger.Printf("%s axis: roi set to %v", s.axis, roi)
}

// ROI returns the stored bounds. To is models.Unbounded until a profile
// has been seen.
func (s *Session) ROI() models.RegionOfInterest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roi
}

// Profile projects frame onto this axis and resolves a pending ROI upper
// bound to the profile length.
func (s *Session) Profile(frame *models.ImageFrame) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Printf("graphing %s axis", s.axis)
	p, err := s.project(frame)
	if err != nil {
		return nil, err
	}
	if s.state == Uninitialized {
		s.state = Projected
	}
	return append([]float64(nil), p...), nil
}

// Width re-projects frame, fits the ROI and returns the measurement.
// The fit result replaces the previous one; on failure the previous fit
// is kept and the error is returned.
func (s *Session) Width(frame *models.ImageFrame) (*models.AxisMeasurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Printf("calculating %s axis width", s.axis)
	p, err := s.project(frame)
	if err != nil {
		return nil, err
	}

	values, coords, err := profile.Select(p, s.roi)
	if err != nil {
		return nil, fmt.Errorf("%s axis: %w", s.axis, err)
	}

	guess, err := fitting.InitialGuess(values, coords, s.sigmaSeed)
	if err != nil {
		return nil, fmt.Errorf("%s axis: %w", s.axis, err)
	}

	fit, err := s.fitter.Fit(values, coords, guess)
	if err != nil {
		return nil, fmt.Errorf("%s axis: %w", s.axis, err)
	}
	s.last = fit
	s.state = Fitted

	width := fitting.FWHM(fit.Params.Sigma, s.resolution)
	s.logger.Printf("%s axis fit successful: mu=%.3f A=%.4g sigma=%.4f c=%.4g (%d iterations)",
		s.axis, fit.Params.Mu, fit.Params.A, fit.Params.Sigma, fit.Params.C, fit.Iterations)

	return &models.AxisMeasurement{
		Axis:    s.axis,
		Region:  profile.Clamp(s.roi, len(p)),
		Profile: append([]float64(nil), p...),
		Fit:     fit,
		Width:   width,
	}, nil
}

// LastFitCurve returns the best-fit curve of the most recent successful
// width computation.
func (s *Session) LastFitCurve() ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, fmt.Errorf("%w: no fit on %s axis yet", ErrUnavailableResult, s.axis)
	}
	return append([]float64(nil), s.last.Curve...), nil
}

// LastFit returns a copy of the most recent successful fit.
func (s *Session) LastFit() (*models.FitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, fmt.Errorf("%w: no fit on %s axis yet", ErrUnavailableResult, s.axis)
	}
	fit := *s.last
	fit.Coords = append([]float64(nil), s.last.Coords...)
	fit.Curve = append([]float64(nil), s.last.Curve...)
	return &fit, nil
}

// project must be called with s.mu held.
func (s *Session) project(frame *models.ImageFrame) ([]float64, error) {
	p, err := profile.Project(frame, s.axis)
	if err != nil {
		return nil, fmt.Errorf("%s axis: %w", s.axis, err)
	}
	if s.roi.IsUnbounded() {
		s.roi.To = len(p)
	}
	return p, nil
}
