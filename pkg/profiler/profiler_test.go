package profiler

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"beamprofiler/internal/models"
	"beamprofiler/pkg/fitting"
	"beamprofiler/pkg/profile"
	"beamprofiler/pkg/source"
)

const (
	testRows       = 80
	testCols       = 120
	testSigmaX     = 10.0
	testSigmaY     = 6.0
	testResolution = 5.3
	testSigmaSeed  = 33.15
)

// createBeamFrame renders a separable 2D Gaussian spot on a constant
// background, centered at column 60, row 40
func createBeamFrame() *models.ImageFrame {
	data := make([]float64, testRows*testCols)
	for r := 0; r < testRows; r++ {
		gy := math.Exp(-math.Pow(float64(r)-40, 2) / (2 * testSigmaY * testSigmaY))
		for c := 0; c < testCols; c++ {
			gx := math.Exp(-math.Pow(float64(c)-60, 2) / (2 * testSigmaX * testSigmaX))
			data[r*testCols+c] = 200*gx*gy + 10
		}
	}
	return &models.ImageFrame{Rows: testRows, Cols: testCols, Data: data}
}

func newTestProfiler(t *testing.T, src source.ImageSource) *Profiler {
	t.Helper()
	p, err := New(src, Options{
		Resolution: testResolution,
		SigmaSeed:  testSigmaSeed,
		Unit:       "um",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

// TestNewValidation rejects missing calibration
func TestNewValidation(t *testing.T) {
	src := source.NewStaticSource(createBeamFrame())

	tests := []struct {
		name string
		src  source.ImageSource
		opts Options
	}{
		{"NoSource", nil, Options{Resolution: 1, SigmaSeed: 10}},
		{"ZeroResolution", src, Options{Resolution: 0, SigmaSeed: 10}},
		{"NegativeResolution", src, Options{Resolution: -5.3, SigmaSeed: 10}},
		{"MissingSeed", src, Options{Resolution: 1}},
		{"NaNSeed", src, Options{Resolution: 1, SigmaSeed: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.src, tt.opts); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

// TestWidth measures both axes of a synthetic beam
func TestWidth(t *testing.T) {
	p := newTestProfiler(t, source.NewStaticSource(createBeamFrame()))

	for _, tc := range []struct {
		axis  models.Axis
		sigma float64
	}{
		{models.AxisX, testSigmaX},
		{models.AxisY, testSigmaY},
	} {
		width, err := p.Width(tc.axis)
		if err != nil {
			t.Fatalf("Width %s failed: %v", tc.axis, err)
		}
		want := fitting.FWHM(tc.sigma, testResolution)
		if !scalar.EqualWithinRel(width, want, 1e-3) {
			t.Errorf("Axis %s: expected FWHM %f, got %f", tc.axis, want, width)
		}
	}
}

// TestLastFitCurveUnavailable verifies the cached curve needs a prior fit
func TestLastFitCurveUnavailable(t *testing.T) {
	p := newTestProfiler(t, source.NewStaticSource(createBeamFrame()))

	for _, axis := range models.Axes {
		if _, err := p.LastFitCurve(axis); !errors.Is(err, ErrUnavailableResult) {
			t.Errorf("Axis %s: expected ErrUnavailableResult, got %v", axis, err)
		}
	}

	// A profile read is not a fit
	if _, err := p.AxisProfile(models.AxisX); err != nil {
		t.Fatalf("AxisProfile failed: %v", err)
	}
	if _, err := p.LastFitCurve(models.AxisX); !errors.Is(err, ErrUnavailableResult) {
		t.Errorf("Expected ErrUnavailableResult after profile only, got %v", err)
	}

	if _, err := p.Width(models.AxisX); err != nil {
		t.Fatalf("Width failed: %v", err)
	}
	curve, err := p.LastFitCurve(models.AxisX)
	if err != nil {
		t.Fatalf("LastFitCurve failed after fit: %v", err)
	}
	if len(curve) != testCols {
		t.Errorf("Expected curve length %d, got %d", testCols, len(curve))
	}

	// The y axis is independent
	if _, err := p.LastFitCurve(models.AxisY); !errors.Is(err, ErrUnavailableResult) {
		t.Errorf("Expected y axis still unavailable, got %v", err)
	}
}

// TestROILazyResolution checks the upper bound is resolved from the
// first profile seen, whichever operation produced it
func TestROILazyResolution(t *testing.T) {
	t.Run("ViaProfile", func(t *testing.T) {
		p := newTestProfiler(t, source.NewStaticSource(createBeamFrame()))

		roi, _ := p.ROI(models.AxisY)
		if !roi.IsUnbounded() {
			t.Fatalf("Expected unbounded ROI before any profile, got %v", roi)
		}

		prof, err := p.AxisProfile(models.AxisY)
		if err != nil {
			t.Fatalf("AxisProfile failed: %v", err)
		}
		if len(prof) != testRows {
			t.Errorf("Expected %d samples, got %d", testRows, len(prof))
		}

		roi, _ = p.ROI(models.AxisY)
		if roi.From != 0 || roi.To != testRows {
			t.Errorf("Expected ROI [0:%d), got %v", testRows, roi)
		}
	})

	t.Run("ViaWidth", func(t *testing.T) {
		p := newTestProfiler(t, source.NewStaticSource(createBeamFrame()))

		if _, err := p.Width(models.AxisX); err != nil {
			t.Fatalf("Width without prior profile failed: %v", err)
		}
		roi, _ := p.ROI(models.AxisX)
		if roi.To != testCols {
			t.Errorf("Expected ROI upper bound %d, got %v", testCols, roi)
		}
	})
}

// TestSetROI covers truncation, clamping and empty regions
func TestSetROI(t *testing.T) {
	p := newTestProfiler(t, source.NewStaticSource(createBeamFrame()))

	if err := p.SetROI(models.AxisX, 30.9, 90.2); err != nil {
		t.Fatalf("SetROI failed: %v", err)
	}
	roi, _ := p.ROI(models.AxisX)
	if roi.From != 30 || roi.To != 90 {
		t.Errorf("Expected truncated ROI [30:90), got %v", roi)
	}

	width, err := p.Width(models.AxisX)
	if err != nil {
		t.Fatalf("Width on ROI failed: %v", err)
	}
	if !scalar.EqualWithinRel(width, fitting.FWHM(testSigmaX, testResolution), 1e-3) {
		t.Errorf("Unexpected width on ROI: %f", width)
	}
	curve, _ := p.LastFitCurve(models.AxisX)
	if len(curve) != 60 {
		t.Errorf("Expected curve over 60 ROI samples, got %d", len(curve))
	}

	// Oversized bounds clamp to the full profile
	_ = p.SetROI(models.AxisX, -5, 10000)
	if _, err := p.Width(models.AxisX); err != nil {
		t.Fatalf("Width with oversized ROI failed: %v", err)
	}
	curve, _ = p.LastFitCurve(models.AxisX)
	if len(curve) != testCols {
		t.Errorf("Expected clamped curve length %d, got %d", testCols, len(curve))
	}

	// Empty and inverted regions fail and keep the previous fit
	for _, b := range [][2]float64{{50, 50}, {60, 40}} {
		_ = p.SetROI(models.AxisX, b[0], b[1])
		if _, err := p.Width(models.AxisX); !errors.Is(err, profile.ErrEmptyRegion) {
			t.Errorf("ROI %v: expected ErrEmptyRegion, got %v", b, err)
		}
	}
	if curve, err := p.LastFitCurve(models.AxisX); err != nil || len(curve) != testCols {
		t.Errorf("Expected previous fit to remain available, got len=%d err=%v", len(curve), err)
	}

	// A negative upper bound means end of profile
	_ = p.SetROI(models.AxisX, 0, -1)
	roi, _ = p.ROI(models.AxisX)
	if !roi.IsUnbounded() {
		t.Errorf("Expected unbounded ROI, got %v", roi)
	}

	if err := p.SetROI(models.Axis(7), 0, 1); err == nil {
		t.Error("Expected error for invalid axis")
	}
}

// TestSourceUnavailable verifies camera failures surface as typed errors
func TestSourceUnavailable(t *testing.T) {
	cameraDown := errors.New("camera proxy not reachable")
	p := newTestProfiler(t, source.FuncSource(func() (*models.ImageFrame, error) {
		return nil, cameraDown
	}))

	if _, err := p.Width(models.AxisX); !errors.Is(err, source.ErrSourceUnavailable) {
		t.Errorf("Width: expected ErrSourceUnavailable, got %v", err)
	}
	if _, err := p.AxisProfile(models.AxisY); !errors.Is(err, source.ErrSourceUnavailable) {
		t.Errorf("AxisProfile: expected ErrSourceUnavailable, got %v", err)
	}
	if _, err := p.Measure(context.Background()); !errors.Is(err, source.ErrSourceUnavailable) {
		t.Errorf("Measure: expected ErrSourceUnavailable, got %v", err)
	}

	// Empty static source
	p = newTestProfiler(t, source.NewStaticSource(nil))
	if _, err := p.Width(models.AxisX); !errors.Is(err, source.ErrSourceUnavailable) {
		t.Errorf("Expected ErrSourceUnavailable for empty source, got %v", err)
	}
}

// TestFlatImage verifies a frame without a beam fails the fit
func TestFlatImage(t *testing.T) {
	flat := &models.ImageFrame{Rows: 10, Cols: 20, Data: make([]float64, 200)}
	p := newTestProfiler(t, source.NewStaticSource(flat))

	if _, err := p.Width(models.AxisX); !errors.Is(err, fitting.ErrFitConvergence) {
		t.Errorf("Expected ErrFitConvergence, got %v", err)
	}
	if _, err := p.LastFitCurve(models.AxisX); !errors.Is(err, ErrUnavailableResult) {
		t.Errorf("Expected no cached fit after failure, got %v", err)
	}

	empty := &models.ImageFrame{Rows: 0, Cols: 20}
	p = newTestProfiler(t, source.NewStaticSource(empty))
	if _, err := p.Width(models.AxisY); !errors.Is(err, profile.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

// TestMeasure fits both axes from one frame
func TestMeasure(t *testing.T) {
	p := newTestProfiler(t, source.NewStaticSource(createBeamFrame()))

	m, err := p.Measure(context.Background())
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if m.Unit != "um" {
		t.Errorf("Expected unit um, got %q", m.Unit)
	}
	if !scalar.EqualWithinRel(m.X.Width, fitting.FWHM(testSigmaX, testResolution), 1e-3) {
		t.Errorf("Unexpected x width %f", m.X.Width)
	}
	if !scalar.EqualWithinRel(m.Y.Width, fitting.FWHM(testSigmaY, testResolution), 1e-3) {
		t.Errorf("Unexpected y width %f", m.Y.Width)
	}
	if math.Abs(m.X.Fit.Params.Mu-60) > 1e-3 || math.Abs(m.Y.Fit.Params.Mu-40) > 1e-3 {
		t.Errorf("Unexpected centers x=%f y=%f", m.X.Fit.Params.Mu, m.Y.Fit.Params.Mu)
	}
	if len(m.X.Profile) != testCols || len(m.Y.Profile) != testRows {
		t.Errorf("Unexpected profile lengths %d, %d", len(m.X.Profile), len(m.Y.Profile))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Measure(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// TestWidthAcrossRegions fits the weak x profile (peak ~37.6 over a
// baseline of 10) on each region the concurrent test writes
func TestWidthAcrossRegions(t *testing.T) {
	p := newTestProfiler(t, source.NewStaticSource(createBeamFrame()))
	want := fitting.FWHM(testSigmaX, testResolution)

	for i := 0; i < 8; i++ {
		from, to := float64(20+i), float64(100-i)
		if err := p.SetROI(models.AxisX, from, to); err != nil {
			t.Fatalf("SetROI failed: %v", err)
		}
		width, err := p.Width(models.AxisX)
		if err != nil {
			t.Errorf("ROI [%v:%v): width failed: %v", from, to, err)
			continue
		}
		if !scalar.EqualWithinRel(width, want, 1e-3) {
			t.Errorf("ROI [%v:%v): expected width %f, got %f", from, to, want, width)
		}
	}
}

// TestConcurrentAccess hammers one axis with ROI writes and fits while
// the other axis is fitted in parallel
func TestConcurrentAccess(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping concurrency test in short mode")
	}

	p := newTestProfiler(t, source.NewStaticSource(createBeamFrame()))
	want := fitting.FWHM(testSigmaX, testResolution)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			_ = p.SetROI(models.AxisX, float64(20+i), float64(100-i))
		}(i)
		go func() {
			defer wg.Done()
			width, err := p.Width(models.AxisX)
			if err != nil {
				errs <- err
				return
			}
			if !scalar.EqualWithinRel(width, want, 1e-3) {
				errs <- errors.New("x width drifted under concurrent ROI writes")
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := p.Width(models.AxisY); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
