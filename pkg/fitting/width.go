package fitting

import "math"

// FWHMFactor converts a Gaussian sigma into its full width at half maximum.
var FWHMFactor = 2 * math.Sqrt(2*math.Ln2)

// FWHM returns the full width at half maximum of a Gaussian with spread
// sigma, scaled by resolution (length per sample). Resolution is not
// validated here.
func FWHM(sigma, resolution float64) float64 {
	return FWHMFactor * sigma * resolution
}
