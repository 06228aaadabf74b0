// Package graph provides an immutable undirected adjacency index over
// arbitrary-precision node identifiers.
//
// Identifiers may exceed machine-word size, so each distinct identifier is
// assigned a dense int32 index once at construction time. All per-node
// lookups afterwards are plain slice indexing; the original identifier is
// retained only for reporting.
package graph

import (
	"math/big"
)

// Edge is a single undirected edge between two node identifiers.
type Edge struct {
	From *big.Int
	To   *big.Int
}

// Graph is an immutable undirected adjacency index. Every edge is inserted
// in both directions; duplicate edges are kept as-is, so a neighbour list
// may contain repeats.
type Graph struct {
	ids []*big.Int
	adj [][]int32
}

// New builds the adjacency index from an edge list.
func New(edges []Edge) *Graph {
	dense := make(map[string]int32, len(edges))

	g := &Graph{
		ids: make([]*big.Int, 0, len(edges)),
		adj: make([][]int32, 0, len(edges)),
	}

	intern := func(id *big.Int) int32 {
		key := id.String()

		idx, ok := dense[key]
		if ok {
			return idx
		}

		idx = int32(len(g.ids))
		dense[key] = idx
		g.ids = append(g.ids, id)
		g.adj = append(g.adj, nil)

		return idx
	}

	for _, e := range edges {
		from := intern(e.From)
		to := intern(e.To)

		g.adj[from] = append(g.adj[from], to)
		g.adj[to] = append(g.adj[to], from)
	}

	return g
}

// NumNodes returns the number of distinct node identifiers.
func (g *Graph) NumNodes() int {
	return len(g.ids)
}

// NumEdges returns the number of undirected edges, counting duplicates.
func (g *Graph) NumEdges() int {
	total := 0
	for _, neighbors := range g.adj {
		total += len(neighbors)
	}

	return total / 2
}

// Neighbors returns the neighbour list of the node at the given dense index.
// The returned slice is owned by the graph and must not be mutated.
func (g *Graph) Neighbors(idx int32) []int32 {
	return g.adj[idx]
}

// ID returns the original identifier of the node at the given dense index.
func (g *Graph) ID(idx int32) *big.Int {
	return g.ids[idx]
}
