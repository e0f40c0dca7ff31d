package rotavg

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/pose-only-vision/PoSDK-sub003/spatialmath"
)

// ErrNoMeasurements is returned when the measurement list is empty.
var ErrNoMeasurements = errors.New("no relative rotation measurements provided")

// Options configure the rotation averaging pipeline. The zero value is not
// usable; start from DefaultOptions.
type Options struct {
	// RootView is pinned to the identity rotation and anchors the global
	// frame. It must appear in at least one measurement.
	RootView int
	// MaxIterations caps each refinement stage separately.
	MaxIterations int
	// AbsoluteTolerance stops a stage once the correction norm falls below it.
	AbsoluteTolerance float64
	// RelativeTolerance stops a stage once the relative improvement of the
	// correction norm falls below it.
	RelativeTolerance float64
	// IRLSSigma is the Geman-McClure scale in radians; residuals well beyond
	// it contribute almost nothing to the reweighted solve.
	IRLSSigma float64
	// OutlierThreshold is the classifier cutoff in radians; zero selects the
	// X84 rule.
	OutlierThreshold float64
}

// DefaultOptions returns the parameters used by the standard reconstruction
// pipeline.
func DefaultOptions() Options {
	return Options{
		RootView:          0,
		MaxIterations:     32,
		AbsoluteTolerance: 1e-5,
		RelativeTolerance: 1e-2,
		IRLSSigma:         0.1,
		OutlierThreshold:  0,
	}
}

// Result is the output of EstimateGlobalRotations.
type Result struct {
	// Rotations holds one global rotation per view id from 0 through the
	// largest id observed in the measurements. Views that appear in no
	// measurement are identity.
	Rotations []*spatialmath.RotationMatrix
	// InlierMask flags, in measurement order, the measurements consistent
	// with the final rotations.
	InlierMask []bool
	// NumInliers is the number of true entries in InlierMask.
	NumInliers int
	// OutlierThreshold is the cutoff in radians the classifier applied,
	// whether given or estimated.
	OutlierThreshold float64
}

// EstimateGlobalRotations computes globally consistent per-view rotations
// from pairwise relative measurements. A maximum-confidence spanning tree
// seeds the estimate, the L1 and IRLS stages refine it against every
// measurement, and the classifier scores each measurement against the final
// rotations. The call is a pure function of its inputs: no randomness, no
// state kept between calls. It fails without a result if the measurement
// list is empty, the root view was never observed, or the measurement graph
// does not connect all observed views (the reduced normal equations are
// singular in that case).
func EstimateGlobalRotations(
	measurements []RelativeRotation,
	opts Options,
	logger golog.Logger,
) (*Result, error) {
	if err := validateMeasurements(measurements); err != nil {
		return nil, err
	}
	graph := buildViewGraph(measurements)
	if !graph.hasView(opts.RootView) {
		return nil, errors.Errorf("root view %d does not appear in any measurement", opts.RootView)
	}

	tree := graph.maximumSpanningTree()
	logger.Debugf("spanning tree over %d views has %d edges", len(graph.views), tree.numEdges)

	rotations := make([]*spatialmath.RotationMatrix, graph.maxViewID+1)
	for i := range rotations {
		rotations[i] = spatialmath.NewIdentityRotationMatrix()
	}
	reached := propagateFromRoot(tree, opts.RootView, rotations)
	if reached < len(graph.views) {
		logger.Warnf("%d of %d views are unreachable from root view %d and were left at identity",
			len(graph.views)-reached, len(graph.views), opts.RootView)
	}

	problem := newRefineProblem(measurements, rotations, graph.views, opts.RootView, opts, logger)
	if err := problem.solveL1(); err != nil {
		return nil, err
	}
	if err := problem.solveIRLS(); err != nil {
		return nil, err
	}

	mask, numInliers, threshold, err := classifyInliers(measurements, rotations, opts.OutlierThreshold)
	if err != nil {
		return nil, err
	}
	logger.Debugf("%d of %d measurements are inliers at threshold %g rad",
		numInliers, len(measurements), threshold)

	return &Result{
		Rotations:        rotations,
		InlierMask:       mask,
		NumInliers:       numInliers,
		OutlierThreshold: threshold,
	}, nil
}
