package rotavg

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/pose-only-vision/PoSDK-sub003/spatialmath"
)

// refineProblem is the state shared by the two refinement stages: the
// measurement list, the global rotations being corrected in place, and the
// mapping matrix A relating tangent-space corrections to measurement
// residuals. A has three rows per measurement and three columns per
// non-root view; its ±identity block pattern is assembled once per
// invocation and never changes.
type refineProblem struct {
	measurements []RelativeRotation
	rotations    []*spatialmath.RotationMatrix
	colOf        map[int]int
	a            *mat.Dense
	opts         Options
	logger       golog.Logger
}

func newRefineProblem(
	measurements []RelativeRotation,
	rotations []*spatialmath.RotationMatrix,
	views []int,
	root int,
	opts Options,
	logger golog.Logger,
) *refineProblem {
	// The root view is pinned and owns no columns.
	colOf := make(map[int]int, len(views)-1)
	for _, v := range views {
		if v == root {
			continue
		}
		colOf[v] = len(colOf)
	}
	a := mat.NewDense(3*len(measurements), 3*len(colOf), nil)
	for r, m := range measurements {
		if c, ok := colOf[m.ViewI]; ok {
			for k := 0; k < 3; k++ {
				a.Set(3*r+k, 3*c+k, -1)
			}
		}
		if c, ok := colOf[m.ViewJ]; ok {
			for k := 0; k < 3; k++ {
				a.Set(3*r+k, 3*c+k, 1)
			}
		}
	}
	return &refineProblem{
		measurements: measurements,
		rotations:    rotations,
		colOf:        colOf,
		a:            a,
		opts:         opts,
		logger:       logger,
	}
}

// computeResiduals stacks the axis-angle of Rj^T * Rij * Ri for every
// measurement; each 3-vector's norm approximates the geodesic rotation error
// in radians for small errors.
func (p *refineProblem) computeResiduals() *mat.VecDense {
	b := mat.NewVecDense(3*len(p.measurements), nil)
	for r, m := range p.measurements {
		eR := p.rotations[m.ViewJ].Transpose().Mul(m.Rotation).Mul(p.rotations[m.ViewI])
		v := eR.MatrixLog()
		b.SetVec(3*r, v.X)
		b.SetVec(3*r+1, v.Y)
		b.SetVec(3*r+2, v.Z)
	}
	return b
}

// applyCorrections right-multiplies every non-root rotation by the
// exponential of its tangent-space correction.
func (p *refineProblem) applyCorrections(x *mat.VecDense) {
	for v, c := range p.colOf {
		axis := r3.Vector{X: x.AtVec(3 * c), Y: x.AtVec(3*c + 1), Z: x.AtVec(3*c + 2)}
		p.rotations[v] = p.rotations[v].Mul(spatialmath.MatrixExp(axis))
	}
}

// converged applies the shared stopping rules of both stages to the latest
// correction norm. A correction that failed to shrink versus the previous
// iteration counts as converged rather than as an error; the 1-norm and
// reweighted objectives both flatten out that way near their optimum.
func (p *refineProblem) converged(e, prev float64, stage string, iter int) bool {
	if e >= prev {
		p.logger.Debugf("%s stopped improving at iteration %d (%g >= %g)", stage, iter, e, prev)
		return true
	}
	if e <= p.opts.AbsoluteTolerance {
		return true
	}
	if (prev-e)/e <= p.opts.RelativeTolerance {
		return true
	}
	return false
}

// solveL1 runs the L1 regression stage: repeated minimization of
// ‖Ax − b‖₁ with the corrections folded back into the rotations. The 1-norm
// objective is insensitive to a bounded fraction of grossly wrong
// measurements, so this stage carries most of the outlier robustness.
func (p *refineProblem) solveL1() error {
	solver, err := newL1Solver(p.a)
	if err != nil {
		return errors.Wrap(err, "L1 regression stage")
	}
	prev := math.Inf(1)
	for iter := 0; iter < p.opts.MaxIterations; iter++ {
		b := p.computeResiduals()
		x, err := solver.Solve(b)
		if err != nil {
			return errors.Wrap(err, "L1 regression stage")
		}
		p.applyCorrections(x)
		e := mat.Norm(x, 2)
		p.logger.Debugf("L1 iteration %d, correction norm %g", iter, e)
		if p.converged(e, prev, "L1 stage", iter) {
			break
		}
		prev = e
	}
	return nil
}

// solveIRLS runs the iteratively reweighted least squares stage with
// Geman-McClure row weights w = σ²/(r²+σ²)², which are continuously
// differentiable and strongly downweight large residuals. The weighted
// normal equations are refactorized every iteration; the unweighted system
// is factorized first so a singular problem (a disconnected measurement
// graph) fails up front rather than part-way through.
func (p *refineProblem) solveIRLS() error {
	rows, cols := p.a.Dims()
	var gram mat.SymDense
	gram.SymOuterK(1, p.a.T())
	var chol mat.Cholesky
	if !chol.Factorize(&gram) {
		return errors.New("IRLS stage: normal equations are not positive definite")
	}

	sigmaSq := p.opts.IRLSSigma * p.opts.IRLSSigma
	x := mat.NewVecDense(cols, nil)
	xNew := mat.NewVecDense(cols, nil)
	resid := mat.NewVecDense(rows, nil)
	wa := mat.NewDense(rows, cols, nil)
	wb := mat.NewVecDense(rows, nil)
	rhs := mat.NewVecDense(cols, nil)
	diff := mat.NewVecDense(cols, nil)
	prev := math.Inf(1)
	for iter := 0; iter < p.opts.MaxIterations; iter++ {
		b := p.computeResiduals()

		// Row residuals of the previous step (zero on the first iteration)
		// against the fresh measurement residuals drive the weights.
		resid.MulVec(p.a, x)
		resid.SubVec(resid, b)
		for i := 0; i < rows; i++ {
			r := resid.AtVec(i)
			sw := math.Sqrt(sigmaSq / ((r*r + sigmaSq) * (r*r + sigmaSq)))
			for j := 0; j < cols; j++ {
				wa.Set(i, j, sw*p.a.At(i, j))
			}
			wb.SetVec(i, sw*b.AtVec(i))
		}

		gram.SymOuterK(1, wa.T())
		if !chol.Factorize(&gram) {
			return errors.New("IRLS stage: weighted normal equations are not positive definite")
		}
		rhs.MulVec(wa.T(), wb)
		if err := chol.SolveVecTo(xNew, rhs); err != nil {
			return errors.Wrap(err, "IRLS stage")
		}
		p.applyCorrections(xNew)

		diff.SubVec(xNew, x)
		e := mat.Norm(diff, 2)
		x.CopyVec(xNew)
		p.logger.Debugf("IRLS iteration %d, step change %g", iter, e)
		if p.converged(e, prev, "IRLS stage", iter) {
			break
		}
		prev = e
	}
	return nil
}
