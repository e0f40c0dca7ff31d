// Package spatialmath defines the SO(3) parameterizations used by the
// structure-from-motion packages: rotation matrices, unit quaternions and
// axis-angle (Rodrigues) vectors, with conversions between them.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// RotationMatrix is a 3x3 orthonormal matrix stored row-major.
type RotationMatrix struct {
	mat [9]float64
}

// NewRotationMatrix creates a rotation matrix from a slice of 9 row-major floats.
func NewRotationMatrix(m []float64) (*RotationMatrix, error) {
	if len(m) != 9 {
		return nil, errors.Errorf("need 9 floats to make a rotation matrix, got %d", len(m))
	}
	rm := &RotationMatrix{}
	copy(rm.mat[:], m)
	return rm, nil
}

// NewIdentityRotationMatrix returns the rotation representing no rotation.
func NewIdentityRotationMatrix() *RotationMatrix {
	return &RotationMatrix{mat: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// At returns the float corresponding to the given row and column.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat[row*3+col]
}

// Row returns the a matrix row as a vector.
func (rm *RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mat[row*3], Y: rm.mat[row*3+1], Z: rm.mat[row*3+2]}
}

// Mul returns the matrix product rm * other.
func (rm *RotationMatrix) Mul(other *RotationMatrix) *RotationMatrix {
	out := &RotationMatrix{}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			sum := 0.0
			for k := 0; k < 3; k++ {
				sum += rm.mat[r*3+k] * other.mat[k*3+c]
			}
			out.mat[r*3+c] = sum
		}
	}
	return out
}

// Transpose returns the transpose, which for an orthonormal matrix is the inverse.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	out := &RotationMatrix{}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.mat[r*3+c] = rm.mat[c*3+r]
		}
	}
	return out
}

// MulVec applies the rotation to a vector.
func (rm *RotationMatrix) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.mat[0]*v.X + rm.mat[1]*v.Y + rm.mat[2]*v.Z,
		Y: rm.mat[3]*v.X + rm.mat[4]*v.Y + rm.mat[5]*v.Z,
		Z: rm.mat[6]*v.X + rm.mat[7]*v.Y + rm.mat[8]*v.Z,
	}
}

// Quaternion returns the unit quaternion representation, using Shepperd's method
// to stay numerically stable near all rotation angles.
// See: https://www.euclideanspace.com/maths/geometry/rotations/conversions/matrixToQuaternion/
func (rm *RotationMatrix) Quaternion() quat.Number {
	var q quat.Number
	m := rm.mat
	tr := m[0] + m[4] + m[8]
	switch {
	case tr > 0:
		s := 0.5 / math.Sqrt(tr+1.0)
		q.Real = 0.25 / s
		q.Imag = (m[7] - m[5]) * s
		q.Jmag = (m[2] - m[6]) * s
		q.Kmag = (m[3] - m[1]) * s
	case m[0] > m[4] && m[0] > m[8]:
		s := 2.0 * math.Sqrt(1.0+m[0]-m[4]-m[8])
		q.Real = (m[7] - m[5]) / s
		q.Imag = 0.25 * s
		q.Jmag = (m[1] + m[3]) / s
		q.Kmag = (m[2] + m[6]) / s
	case m[4] > m[8]:
		s := 2.0 * math.Sqrt(1.0+m[4]-m[0]-m[8])
		q.Real = (m[2] - m[6]) / s
		q.Imag = (m[1] + m[3]) / s
		q.Jmag = 0.25 * s
		q.Kmag = (m[5] + m[7]) / s
	default:
		s := 2.0 * math.Sqrt(1.0+m[8]-m[0]-m[4])
		q.Real = (m[3] - m[1]) / s
		q.Imag = (m[2] + m[6]) / s
		q.Jmag = (m[5] + m[7]) / s
		q.Kmag = 0.25 * s
	}
	return q
}

// QuatToRotationMatrix converts a quat to a rotation matrix.
func QuatToRotationMatrix(q quat.Number) *RotationMatrix {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	mat := [9]float64{
		1 - 2*y*y - 2*z*z, 2*x*y - 2*z*w, 2*x*z + 2*y*w,
		2*x*y + 2*z*w, 1 - 2*x*x - 2*z*z, 2*y*z - 2*x*w,
		2*x*z - 2*y*w, 2*y*z + 2*x*w, 1 - 2*x*x - 2*y*y,
	}
	return &RotationMatrix{mat: mat}
}

// MatrixExp maps an axis-angle (Rodrigues) vector, whose direction is the
// rotation axis and whose norm is the rotation angle in radians, to the
// corresponding rotation matrix.
func MatrixExp(aa r3.Vector) *RotationMatrix {
	theta := aa.Norm()
	if theta < 1e-15 {
		return NewIdentityRotationMatrix()
	}
	sinA := math.Sin(theta / 2)
	q := quat.Number{
		Real: math.Cos(theta / 2),
		Imag: aa.X / theta * sinA,
		Jmag: aa.Y / theta * sinA,
		Kmag: aa.Z / theta * sinA,
	}
	return QuatToRotationMatrix(q)
}

// MatrixLog maps a rotation matrix to its axis-angle vector, the inverse of
// MatrixExp. The angle returned is always in [0, pi].
func (rm *RotationMatrix) MatrixLog() r3.Vector {
	q := rm.Quaternion()
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	vNorm := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if vNorm < 1e-15 {
		return r3.Vector{}
	}
	theta := 2 * math.Atan2(vNorm, q.Real)
	scale := theta / vNorm
	return r3.Vector{X: q.Imag * scale, Y: q.Jmag * scale, Z: q.Kmag * scale}
}

// Angle returns the magnitude in radians of the rotation.
func (rm *RotationMatrix) Angle() float64 {
	return rm.MatrixLog().Norm()
}

// RotationBetween returns the rotation carrying a into b, i.e. b * a^T.
func RotationBetween(a, b *RotationMatrix) *RotationMatrix {
	return b.Mul(a.Transpose())
}

// RotationMatrixAlmostEqual returns whether the two matrices are equal entrywise
// within the given tolerance.
func RotationMatrixAlmostEqual(a, b *RotationMatrix, tol float64) bool {
	for i := 0; i < 9; i++ {
		if math.Abs(a.mat[i]-b.mat[i]) > tol {
			return false
		}
	}
	return true
}
