package rotavg

import (
	"github.com/pose-only-vision/PoSDK-sub003/spatialmath"
)

// propagateFromRoot walks the spanning tree breadth-first from the root and
// composes each child's global rotation from its parent's. The root is pinned
// to identity. Adjacency lists are sorted, so for a fixed tree and root the
// visit order, and therefore every composed rotation, is reproducible
// bit-for-bit. Views outside the root's component are not visited and keep
// whatever the rotations slice already holds. Returns the number of views
// reached, root included.
func propagateFromRoot(tree *spanningTree, root int, rotations []*spatialmath.RotationMatrix) int {
	rotations[root] = spatialmath.NewIdentityRotationMatrix()
	visited := map[int]bool{root: true}
	queue := []int{root}
	reached := 1
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range tree.adjacency[parent] {
			if visited[child] {
				continue
			}
			visited[child] = true
			// Rij carries the parent frame into the child frame.
			rij := tree.rotations[viewPair{parent, child}]
			rotations[child] = rij.Mul(rotations[parent])
			queue = append(queue, child)
			reached++
		}
	}
	return reached
}
