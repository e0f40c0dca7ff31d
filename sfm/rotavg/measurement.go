// Package rotavg estimates globally consistent camera rotations from noisy
// pairwise relative rotation measurements, the rotation averaging step of a
// multi-view reconstruction pipeline. A maximum spanning tree over the
// measurement graph seeds a coarse solution, which is then refined against
// every measurement by an L1 regression stage followed by iteratively
// reweighted least squares, and finally scored by a robust outlier classifier.
package rotavg

import (
	"github.com/pkg/errors"

	"github.com/pose-only-vision/PoSDK-sub003/spatialmath"
)

// RelativeRotation is a pairwise measurement produced by upstream two-view
// geometry. Rotation carries points expressed in view I's frame into view J's
// frame. Weight expresses the confidence of the underlying two-view estimate
// and is used only to rank edges during spanning tree extraction; the
// refinement stages treat all measurements alike.
type RelativeRotation struct {
	ViewI    int
	ViewJ    int
	Rotation *spatialmath.RotationMatrix
	Weight   float64
}

// NewRelativeRotation creates a measurement with the default weight of 1.
func NewRelativeRotation(viewI, viewJ int, rotation *spatialmath.RotationMatrix) RelativeRotation {
	return RelativeRotation{ViewI: viewI, ViewJ: viewJ, Rotation: rotation, Weight: 1.0}
}

func validateMeasurements(measurements []RelativeRotation) error {
	if len(measurements) == 0 {
		return ErrNoMeasurements
	}
	for i, m := range measurements {
		if m.ViewI < 0 || m.ViewJ < 0 {
			return errors.Errorf("measurement %d has a negative view id (%d, %d)", i, m.ViewI, m.ViewJ)
		}
		if m.ViewI == m.ViewJ {
			return errors.Errorf("measurement %d relates view %d to itself", i, m.ViewI)
		}
		if m.Rotation == nil {
			return errors.Errorf("measurement %d has no rotation", i)
		}
		if m.Weight < 0 {
			return errors.Errorf("measurement %d has negative weight %f", i, m.Weight)
		}
	}
	return nil
}
