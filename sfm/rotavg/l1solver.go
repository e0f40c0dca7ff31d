package rotavg

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// l1Solver minimizes ‖Ax − b‖₁ with the alternating direction method of
// multipliers (Boyd et al., "Distributed Optimization and Statistical
// Learning via ADMM", section 6.1). The Gram matrix AᵀA is factored once at
// construction and shared by every solve, since A never changes within one
// averaging invocation. Converges in roughly ten iterations on rotation
// averaging problems.
type l1Solver struct {
	a             *mat.Dense
	chol          *mat.Cholesky
	rho           float64
	maxIterations int
	absTol        float64
	relTol        float64
}

func newL1Solver(a *mat.Dense) (*l1Solver, error) {
	var gram mat.SymDense
	gram.SymOuterK(1, a.T())
	chol := &mat.Cholesky{}
	if !chol.Factorize(&gram) {
		return nil, errors.New("Gram matrix of the mapping matrix is not positive definite")
	}
	return &l1Solver{
		a:             a,
		chol:          chol,
		rho:           1.0,
		maxIterations: 100,
		absTol:        1e-4,
		relTol:        1e-2,
	}, nil
}

func shrink(v, kappa float64) float64 {
	switch {
	case v > kappa:
		return v - kappa
	case v < -kappa:
		return v + kappa
	default:
		return 0
	}
}

// Solve returns the minimizer of ‖Ax − b‖₁.
func (s *l1Solver) Solve(b *mat.VecDense) (*mat.VecDense, error) {
	rows, cols := s.a.Dims()
	x := mat.NewVecDense(cols, nil)
	z := mat.NewVecDense(rows, nil)
	zOld := mat.NewVecDense(rows, nil)
	u := mat.NewVecDense(rows, nil)
	ax := mat.NewVecDense(rows, nil)
	rhs := mat.NewVecDense(cols, nil)
	tmp := mat.NewVecDense(rows, nil)
	pri := mat.NewVecDense(rows, nil)
	dual := mat.NewVecDense(cols, nil)

	for iter := 0; iter < s.maxIterations; iter++ {
		// x-update: least squares against the current consensus b + z − u.
		tmp.AddVec(b, z)
		tmp.SubVec(tmp, u)
		rhs.MulVec(s.a.T(), tmp)
		if err := s.chol.SolveVecTo(x, rhs); err != nil {
			return nil, errors.Wrap(err, "L1 solver x-update failed")
		}
		ax.MulVec(s.a, x)

		// z-update: elementwise soft thresholding of Ax − b + u.
		zOld.CopyVec(z)
		tmp.SubVec(ax, b)
		tmp.AddVec(tmp, u)
		for i := 0; i < rows; i++ {
			z.SetVec(i, shrink(tmp.AtVec(i), 1/s.rho))
		}

		// Scaled dual update u += Ax − b − z.
		u.SubVec(tmp, z)

		pri.SubVec(ax, b)
		pri.SubVec(pri, z)
		priNorm := mat.Norm(pri, 2)
		tmp.SubVec(z, zOld)
		dual.MulVec(s.a.T(), tmp)
		dualNorm := s.rho * mat.Norm(dual, 2)

		epsPri := math.Sqrt(float64(rows))*s.absTol +
			s.relTol*math.Max(mat.Norm(ax, 2), math.Max(mat.Norm(z, 2), mat.Norm(b, 2)))
		dual.MulVec(s.a.T(), u)
		epsDual := math.Sqrt(float64(cols))*s.absTol + s.relTol*s.rho*mat.Norm(dual, 2)
		if priNorm <= epsPri && dualNorm <= epsDual {
			break
		}
	}
	return x, nil
}
