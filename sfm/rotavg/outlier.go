package rotavg

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/pose-only-vision/PoSDK-sub003/spatialmath"
)

// minAutoThreshold keeps the X84 rule from collapsing to zero on exactly
// consistent synthetic inputs, where the median absolute deviation vanishes.
const minAutoThreshold = 1e-8

// measurementResiduals returns the geodesic angular error in radians of each
// measurement against the given global rotations.
func measurementResiduals(measurements []RelativeRotation, rotations []*spatialmath.RotationMatrix) []float64 {
	residuals := make([]float64, len(measurements))
	for i, m := range measurements {
		eR := rotations[m.ViewJ].Transpose().Mul(m.Rotation).Mul(rotations[m.ViewI])
		residuals[i] = eR.Angle()
	}
	return residuals
}

// x84Threshold estimates a rejection threshold as median + 5.2 median
// absolute deviations, a rule with a 50% breakdown point.
func x84Threshold(residuals []float64) (float64, error) {
	med, err := stats.Median(residuals)
	if err != nil {
		return 0, errors.Wrap(err, "X84 threshold")
	}
	absDev := make([]float64, len(residuals))
	for i, r := range residuals {
		absDev[i] = math.Abs(r - med)
	}
	mad, err := stats.Median(absDev)
	if err != nil {
		return 0, errors.Wrap(err, "X84 threshold")
	}
	return math.Max(med+5.2*mad, minAutoThreshold), nil
}

// classifyInliers flags each measurement whose residual against the final
// rotations stays strictly below the threshold. A zero threshold selects the
// X84 rule. Returns the mask in measurement order, the inlier count and the
// threshold actually applied.
func classifyInliers(
	measurements []RelativeRotation,
	rotations []*spatialmath.RotationMatrix,
	threshold float64,
) ([]bool, int, float64, error) {
	residuals := measurementResiduals(measurements, rotations)
	if threshold == 0 {
		var err error
		threshold, err = x84Threshold(residuals)
		if err != nil {
			return nil, 0, 0, err
		}
	}
	mask := make([]bool, len(measurements))
	numInliers := 0
	for i, r := range residuals {
		if r < threshold {
			mask[i] = true
			numInliers++
		}
	}
	return mask, numInliers, threshold, nil
}
