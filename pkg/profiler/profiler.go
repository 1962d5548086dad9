// Package profiler measures the transverse width of a laser beam from
// camera frames. It keeps one Session per axis and exposes the operations
// a device or attribute layer needs: profiles, ROI bounds, widths and the
// last fitted curve.
package profiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"beamprofiler/internal/models"
	"beamprofiler/pkg/fitting"
	"beamprofiler/pkg/source"
)

// Options configures a Profiler.
type Options struct {
	// Resolution is the physical length of one pixel (e.g. micrometers).
	// Must be > 0.
	Resolution float64

	// SigmaSeed is the initial sigma guess in pixels. There is no default:
	// a seed tuned for one optical setup degrades fits on another.
	SigmaSeed float64

	// Unit names the length unit of Resolution, used in reports
	Unit string

	// Fit holds the solver settings; zero fields use defaults
	Fit fitting.Settings

	// Logger receives debug output; nil discards it
	Logger *log.Logger
}

// Profiler computes beam widths for the x and y axes of an image source.
type Profiler struct {
	src      source.ImageSource
	unit     string
	res      float64
	logger   *log.Logger
	sessions [2]*Session
}

// New validates opts and creates a profiler reading from src.
func New(src source.ImageSource, opts Options) (*Profiler, error) {
	if src == nil {
		return nil, errors.New("image source is required")
	}
	if !(opts.Resolution > 0) || math.IsInf(opts.Resolution, 0) {
		return nil, fmt.Errorf("resolution must be positive, got %v", opts.Resolution)
	}
	if !(opts.SigmaSeed > 0) || math.IsInf(opts.SigmaSeed, 0) {
		return nil, fmt.Errorf("sigma seed must be positive, got %v", opts.SigmaSeed)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	fitter := fitting.NewFitter(opts.Fit)
	p := &Profiler{
		src:    src,
		unit:   opts.Unit,
		res:    opts.Resolution,
		logger: logger,
	}
	for _, axis := range models.Axes {
		p.sessions[axis] = NewSession(axis, fitter, opts.SigmaSeed, opts.Resolution, logger)
	}
	return p, nil
}

// Session returns the per-axis session.
func (p *Profiler) Session(axis models.Axis) (*Session, error) {
	if axis != models.AxisX && axis != models.AxisY {
		return nil, fmt.Errorf("invalid axis: %v", axis)
	}
	return p.sessions[axis], nil
}

// Unit returns the configured length unit.
func (p *Profiler) Unit() string {
	return p.unit
}

// Resolution returns the configured length per pixel.
func (p *Profiler) Resolution() float64 {
	return p.res
}

// AxisProfile reads a fresh frame and returns its profile along axis.
func (p *Profiler) AxisProfile(axis models.Axis) ([]float64, error) {
	s, err := p.Session(axis)
	if err != nil {
		return nil, err
	}
	frame, err := p.frame()
	if err != nil {
		return nil, err
	}
	return s.Profile(frame)
}

// SetROI sets the fit region for axis. See Session.SetROI.
func (p *Profiler) SetROI(axis models.Axis, from, to float64) error {
	s, err := p.Session(axis)
	if err != nil {
		return err
	}
	s.SetROI(from, to)
	return nil
}

// ROI returns the fit region for axis.
func (p *Profiler) ROI(axis models.Axis) (models.RegionOfInterest, error) {
	s, err := p.Session(axis)
	if err != nil {
		return models.RegionOfInterest{}, err
	}
	return s.ROI(), nil
}

// Width reads a fresh frame, fits the ROI of axis and returns the FWHM in
// the configured unit.
func (p *Profiler) Width(axis models.Axis) (float64, error) {
	s, err := p.Session(axis)
	if err != nil {
		return 0, err
	}
	frame, err := p.frame()
	if err != nil {
		return 0, err
	}
	m, err := s.Width(frame)
	if err != nil {
		return 0, err
	}
	return m.Width, nil
}

// LastFitCurve returns the best-fit curve from the last width computation
// on axis, or ErrUnavailableResult.
func (p *Profiler) LastFitCurve(axis models.Axis) ([]float64, error) {
	s, err := p.Session(axis)
	if err != nil {
		return nil, err
	}
	return s.LastFitCurve()
}

// LastFit returns the full result of the last fit on axis.
func (p *Profiler) LastFit(axis models.Axis) (*models.FitResult, error) {
	s, err := p.Session(axis)
	if err != nil {
		return nil, err
	}
	return s.LastFit()
}

// Measure reads one frame and fits both axes on it concurrently.
func (p *Profiler) Measure(ctx context.Context) (*models.Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame, err := p.frame()
	if err != nil {
		return nil, err
	}

	m := &models.Measurement{Time: time.Now(), Unit: p.unit}
	g, ctx := errgroup.WithContext(ctx)
	for _, axis := range models.Axes {
		s := p.sessions[axis]
		dst := m.ForAxis(axis)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			am, err := s.Width(frame)
			if err != nil {
				return err
			}
			*dst = *am
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Profiler) frame() (*models.ImageFrame, error) {
	frame, err := p.src.GetImage()
	if err != nil {
		p.logger.Printf("could not read image: %v", err)
		if !errors.Is(err, source.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", source.ErrSourceUnavailable, err)
		}
		return nil, err
	}
	return frame, nil
}
