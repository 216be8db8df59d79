package angles

import "math"

// ComputeFourierRadius converts a target resolution into the Fourier
// radius, in pixels, handed to the SCF program:
//
//	(samplingRate / targetResolution) * 2 * boxSizePixels
//
// All three inputs are physical quantities and must be positive.
func ComputeFourierRadius(samplingRate, targetResolution float64, boxSizePixels int) (float64, error) {
	if !positive(samplingRate) {
		return 0, &InvalidParameterError{Name: "samplingRate", Value: samplingRate}
	}
	if !positive(targetResolution) {
		return 0, &InvalidParameterError{Name: "targetResolution", Value: targetResolution}
	}
	if boxSizePixels <= 0 {
		return 0, &InvalidParameterError{Name: "boxSizePixels", Value: float64(boxSizePixels)}
	}
	return (samplingRate / targetResolution) * 2 * float64(boxSizePixels), nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
