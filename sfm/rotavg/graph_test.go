package rotavg

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/pose-only-vision/PoSDK-sub003/spatialmath"
)

func randomRotation(rng *rand.Rand, maxAngle float64) *spatialmath.RotationMatrix {
	axis := r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}.Normalize()
	return spatialmath.MatrixExp(axis.Mul(rng.Float64() * maxAngle))
}

// groundTruthRotations returns n rotations with the first pinned to identity,
// so estimates anchored at view 0 are directly comparable.
func groundTruthRotations(rng *rand.Rand, n int) []*spatialmath.RotationMatrix {
	gt := make([]*spatialmath.RotationMatrix, n)
	gt[0] = spatialmath.NewIdentityRotationMatrix()
	for i := 1; i < n; i++ {
		gt[i] = randomRotation(rng, 2.5)
	}
	return gt
}

// relative returns the exact measurement relating gt[i] to gt[j].
func relative(gt []*spatialmath.RotationMatrix, i, j int) RelativeRotation {
	return NewRelativeRotation(i, j, gt[j].Mul(gt[i].Transpose()))
}

func TestSpanningTreeEdgeCount(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 30; trial++ {
		n := 2 + rng.Intn(11)
		var measurements []RelativeRotation
		// a chain keeps the graph connected, extra edges add cycles
		for i := 1; i < n; i++ {
			measurements = append(measurements, NewRelativeRotation(i-1, i, randomRotation(rng, 2)))
		}
		for k := 0; k < n; k++ {
			i, j := rng.Intn(n), rng.Intn(n)
			if i == j {
				continue
			}
			m := NewRelativeRotation(i, j, randomRotation(rng, 2))
			m.Weight = rng.Float64() * 5
			measurements = append(measurements, m)
		}
		g := buildViewGraph(measurements)
		tree := g.maximumSpanningTree()
		test.That(t, tree.numEdges, test.ShouldEqual, n-1)
	}
}

func TestSpanningTreePrefersConfidentEdges(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	r01 := randomRotation(rng, 2)
	r12 := randomRotation(rng, 2)
	r02 := randomRotation(rng, 2)
	measurements := []RelativeRotation{
		{ViewI: 0, ViewJ: 1, Rotation: r01, Weight: 2.0},
		{ViewI: 1, ViewJ: 2, Rotation: r12, Weight: 2.0},
		{ViewI: 0, ViewJ: 2, Rotation: r02, Weight: 0.5},
	}
	tree := buildViewGraph(measurements).maximumSpanningTree()
	test.That(t, tree.numEdges, test.ShouldEqual, 2)
	test.That(t, tree.adjacency[0], test.ShouldResemble, []int{1})
	test.That(t, tree.adjacency[1], test.ShouldResemble, []int{0, 2})

	// both directions of a tree edge resolve, the reverse as the transpose
	test.That(t, tree.rotations[viewPair{0, 1}], test.ShouldResemble, r01)
	test.That(t, spatialmath.RotationMatrixAlmostEqual(
		tree.rotations[viewPair{1, 0}], r01.Transpose(), 0), test.ShouldBeTrue)
}

func TestPropagationDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	gt := groundTruthRotations(rng, 8)
	var measurements []RelativeRotation
	for i := 0; i < 8; i++ {
		for j := i + 1; j < 8; j++ {
			// equal weights everywhere force the tie-break rules to decide
			measurements = append(measurements, relative(gt, i, j))
		}
	}

	propagate := func(ms []RelativeRotation) []*spatialmath.RotationMatrix {
		g := buildViewGraph(ms)
		tree := g.maximumSpanningTree()
		rotations := make([]*spatialmath.RotationMatrix, g.maxViewID+1)
		for i := range rotations {
			rotations[i] = spatialmath.NewIdentityRotationMatrix()
		}
		propagateFromRoot(tree, 0, rotations)
		return rotations
	}

	reference := propagate(measurements)
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]RelativeRotation, len(measurements))
		copy(shuffled, measurements)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := propagate(shuffled)
		for v := range reference {
			// bit-identical, not merely close
			test.That(t, spatialmath.RotationMatrixAlmostEqual(got[v], reference[v], 0), test.ShouldBeTrue)
		}
	}
}

func TestPropagationComposesAlongTree(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	gt := groundTruthRotations(rng, 5)
	// a pure chain, so the tree and the composition path are unambiguous
	measurements := []RelativeRotation{
		relative(gt, 0, 1),
		relative(gt, 1, 2),
		relative(gt, 2, 3),
		relative(gt, 3, 4),
	}
	g := buildViewGraph(measurements)
	tree := g.maximumSpanningTree()
	rotations := make([]*spatialmath.RotationMatrix, g.maxViewID+1)
	for i := range rotations {
		rotations[i] = spatialmath.NewIdentityRotationMatrix()
	}
	reached := propagateFromRoot(tree, 0, rotations)
	test.That(t, reached, test.ShouldEqual, 5)
	for v := range rotations {
		test.That(t, spatialmath.RotationMatrixAlmostEqual(rotations[v], gt[v], 1e-12), test.ShouldBeTrue)
	}
}

func TestDisconnectedGraphPropagation(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	measurements := []RelativeRotation{
		NewRelativeRotation(0, 1, randomRotation(rng, 2)),
		NewRelativeRotation(2, 3, randomRotation(rng, 2)),
	}
	g := buildViewGraph(measurements)
	tree := g.maximumSpanningTree()
	// a forest: one tree edge per component
	test.That(t, tree.numEdges, test.ShouldEqual, 2)

	rotations := make([]*spatialmath.RotationMatrix, g.maxViewID+1)
	for i := range rotations {
		rotations[i] = spatialmath.NewIdentityRotationMatrix()
	}
	reached := propagateFromRoot(tree, 0, rotations)
	test.That(t, reached, test.ShouldEqual, 2)
	// views outside the root's component stay at identity
	id := spatialmath.NewIdentityRotationMatrix()
	test.That(t, spatialmath.RotationMatrixAlmostEqual(rotations[2], id, 0), test.ShouldBeTrue)
	test.That(t, spatialmath.RotationMatrixAlmostEqual(rotations[3], id, 0), test.ShouldBeTrue)
}
