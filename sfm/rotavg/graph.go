package rotavg

import (
	"sort"

	"github.com/pose-only-vision/PoSDK-sub003/spatialmath"
)

// viewPair is an ordered pair of view ids, keying the direction-aware
// rotation lookup.
type viewPair struct {
	from, to int
}

type graphEdge struct {
	viewI, viewJ int
	rotation     *spatialmath.RotationMatrix
	// negWeight is the negated measurement weight, so that sorting ascending
	// makes Kruskal's minimum spanning tree the maximum-confidence tree.
	negWeight float64
}

// viewGraph is the ephemeral measurement graph built once per invocation.
type viewGraph struct {
	views     []int // distinct view ids, ascending
	maxViewID int
	edges     []graphEdge
}

// spanningTree is a maximum-confidence spanning tree of a viewGraph: sorted
// adjacency per view plus an oriented rotation lookup covering both
// directions of every tree edge.
type spanningTree struct {
	adjacency map[int][]int
	rotations map[viewPair]*spatialmath.RotationMatrix
	numEdges  int
}

func buildViewGraph(measurements []RelativeRotation) *viewGraph {
	seen := map[int]bool{}
	g := &viewGraph{}
	for _, m := range measurements {
		seen[m.ViewI] = true
		seen[m.ViewJ] = true
		if m.ViewI > g.maxViewID {
			g.maxViewID = m.ViewI
		}
		if m.ViewJ > g.maxViewID {
			g.maxViewID = m.ViewJ
		}
		g.edges = append(g.edges, graphEdge{
			viewI:     m.ViewI,
			viewJ:     m.ViewJ,
			rotation:  m.Rotation,
			negWeight: -m.Weight,
		})
	}
	for v := range seen {
		g.views = append(g.views, v)
	}
	sort.Ints(g.views)
	return g
}

func (g *viewGraph) hasView(view int) bool {
	i := sort.SearchInts(g.views, view)
	return i < len(g.views) && g.views[i] == view
}

// unionFind is a disjoint-set forest with path compression and union by rank,
// indexed directly by view id.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(size int) *unionFind {
	uf := &unionFind{parent: make([]int, size), rank: make([]int, size)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// union merges the sets containing x and y, reporting whether they were
// previously disjoint.
func (uf *unionFind) union(x, y int) bool {
	rx, ry := uf.find(x), uf.find(y)
	if rx == ry {
		return false
	}
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// maximumSpanningTree runs Kruskal's algorithm over the negated-weight edges.
// Ties are broken by view ids so the tree depends only on the measurement
// set, not on its insertion order. For a disconnected graph the result is a
// spanning forest; each component gets its own tree.
func (g *viewGraph) maximumSpanningTree() *spanningTree {
	edges := make([]graphEdge, len(g.edges))
	copy(edges, g.edges)
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].negWeight != edges[b].negWeight {
			return edges[a].negWeight < edges[b].negWeight
		}
		if edges[a].viewI != edges[b].viewI {
			return edges[a].viewI < edges[b].viewI
		}
		return edges[a].viewJ < edges[b].viewJ
	})

	uf := newUnionFind(g.maxViewID + 1)
	tree := &spanningTree{
		adjacency: map[int][]int{},
		rotations: map[viewPair]*spatialmath.RotationMatrix{},
	}
	for _, e := range edges {
		if !uf.union(e.viewI, e.viewJ) {
			continue
		}
		tree.adjacency[e.viewI] = append(tree.adjacency[e.viewI], e.viewJ)
		tree.adjacency[e.viewJ] = append(tree.adjacency[e.viewJ], e.viewI)
		tree.rotations[viewPair{e.viewI, e.viewJ}] = e.rotation
		tree.rotations[viewPair{e.viewJ, e.viewI}] = e.rotation.Transpose()
		tree.numEdges++
		if tree.numEdges == len(g.views)-1 {
			break
		}
	}
	for _, neighbors := range tree.adjacency {
		sort.Ints(neighbors)
	}
	return tree
}
