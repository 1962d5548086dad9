// Package visualization renders beam profiles and their Gaussian fits.
package visualization

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"beamprofiler/internal/models"
)

var (
	profileColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	roiColor     = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	fitColor     = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Viewer writes fit plots to an output directory.
type Viewer struct {
	outputDir string
	width     vg.Length
	height    vg.Length
}

// NewViewer creates a viewer writing into outputDir.
func NewViewer(outputDir string) *Viewer {
	return &Viewer{
		outputDir: outputDir,
		width:     10 * vg.Inch,
		height:    5 * vg.Inch,
	}
}

// PlotAxis builds the plot for one axis: the full profile, the ROI
// samples and the fitted curve.
func PlotAxis(m *models.AxisMeasurement, unit string) (*plot.Plot, error) {
	if m == nil || m.Fit == nil {
		return nil, errors.New("measurement has no fit")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s axis: FWHM %4.3f %s", m.Axis, m.Width, unit)
	p.X.Label.Text = "pixel"
	p.Y.Label.Text = "mean intensity"

	full := make(plotter.XYs, len(m.Profile))
	for i, v := range m.Profile {
		full[i] = plotter.XY{X: float64(i), Y: v}
	}
	fullLine, err := plotter.NewLine(full)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile line: %w", err)
	}
	fullLine.Color = profileColor
	fullLine.Width = vg.Points(1)
	p.Add(fullLine)
	p.Legend.Add("profile", fullLine)

	roi := make(plotter.XYs, 0, len(m.Fit.Coords))
	for _, x := range m.Fit.Coords {
		i := int(x)
		if i >= 0 && i < len(m.Profile) {
			roi = append(roi, plotter.XY{X: x, Y: m.Profile[i]})
		}
	}
	if len(roi) > 0 {
		pts, err := plotter.NewScatter(roi)
		if err != nil {
			return nil, fmt.Errorf("failed to create roi scatter: %w", err)
		}
		pts.Color = roiColor
		pts.Radius = vg.Points(1.5)
		p.Add(pts)
		p.Legend.Add(fmt.Sprintf("roi %v", m.Region), pts)
	}

	curve := make(plotter.XYs, len(m.Fit.Curve))
	for i, y := range m.Fit.Curve {
		curve[i] = plotter.XY{X: m.Fit.Coords[i], Y: y}
	}
	fitLine, err := plotter.NewLine(curve)
	if err != nil {
		return nil, fmt.Errorf("failed to create fit line: %w", err)
	}
	fitLine.Color = fitColor
	fitLine.Width = vg.Points(1.5)
	p.Add(fitLine)
	p.Legend.Add(fmt.Sprintf("fit sigma=%.3f px", m.Fit.Params.Sigma), fitLine)

	p.Legend.Top = true
	return p, nil
}

// SaveAxis writes the plot of one axis as PNG and returns its path.
func (v *Viewer) SaveAxis(m *models.AxisMeasurement, unit, stamp string) (string, error) {
	if err := os.MkdirAll(v.outputDir, 0755); err != nil {
		return "", err
	}

	p, err := PlotAxis(m, unit)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("profile_%s.png", m.Axis)
	if stamp != "" {
		name = fmt.Sprintf("profile_%s_%s.png", m.Axis, stamp)
	}
	filename := filepath.Join(v.outputDir, name)
	if err := p.Save(v.width, v.height, filename); err != nil {
		return "", fmt.Errorf("failed to save %s axis plot: %w", m.Axis, err)
	}
	return filename, nil
}

// SaveMeasurement writes one plot per axis.
func (v *Viewer) SaveMeasurement(m *models.Measurement, stamp string) ([]string, error) {
	var files []string
	for _, axis := range models.Axes {
		f, err := v.SaveAxis(m.ForAxis(axis), m.Unit, stamp)
		if err != nil {
			return files, err
		}
		files = append(files, f)
	}
	return files, nil
}
