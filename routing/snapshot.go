package routing

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/phx1999/SDN/topology"
)

// Edge is an unordered switch pair, stored with A < B.
type Edge struct {
	A topology.DPID `json:"a"`
	B topology.DPID `json:"b"`
}

// LinkSource is anything that can list links: *topology.Graph for live state,
// *topology.View or *FlowTable for a recomputed one.
type LinkSource interface {
	Links() []topology.Link
}

// Edges returns the undirected edge set of src, each physical link once,
// sorted by (A, B).
func Edges(src LinkSource) []Edge {
	seen := make(map[Edge]struct{})
	edges := make([]Edge, 0)
	for _, l := range src.Links() {
		e := Edge{A: l.A, B: l.B}
		if e.A > e.B {
			e.A, e.B = e.B, e.A
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		edges = append(edges, e)
	}
	slices.SortFunc(edges, func(x, y Edge) int {
		if c := cmp.Compare(x.A, y.A); c != 0 {
			return c
		}
		return cmp.Compare(x.B, y.B)
	})
	return edges
}

// PathsFrom maps every destination reachable from root to its switch
// sequence root..destination. The root itself is not listed.
func PathsFrom(trees map[topology.DPID]*Tree, root topology.DPID) (map[topology.DPID][]topology.DPID, error) {
	tree, ok := trees[root]
	if !ok {
		return nil, fmt.Errorf("%w: %d", topology.ErrUnknownSwitch, root)
	}
	paths := make(map[topology.DPID][]topology.DPID)
	for _, dst := range tree.Reachable() {
		if dst == root {
			continue
		}
		paths[dst] = tree.Path(dst)
	}
	return paths, nil
}

// PathsFrom is PathsFrom over the trees this table was built from.
func (ft *FlowTable) PathsFrom(root topology.DPID) (map[topology.DPID][]topology.DPID, error) {
	return PathsFrom(ft.trees, root)
}
