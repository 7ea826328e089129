package graph

import (
	"log/slog"
	"sort"
)

// minComponentSplit is the minimum component size eligible for further
// modularity-based splitting.
const minComponentSplit = 6

// maxModularityNodes caps the node count for the modularity optimisation.
// Components larger than this are kept as level-0 only.
const maxModularityNodes = 200

// Community is a group of nodes. Level-0 communities are connected
// components; level-1 communities split a level-0 one.
type Community struct {
	ID      int      `json:"id"`
	Level   int      `json:"level"`
	Parent  int      `json:"parent"` // -1 for level 0
	Members []string `json:"members"`
}

// weightedEdge is an edge in the in-memory adjacency list.
type weightedEdge struct {
	to     int
	weight float64
}

// DetectCommunities runs community detection on the undirected projection
// of g, every edge weighing 1. Components of minComponentSplit to
// maxModularityNodes nodes are further split using greedy modularity
// optimisation. The result is deterministic: communities are ordered by
// their first member's insertion position.
func DetectCommunities(g *Graph) []Community {
	if g == nil || len(g.nodes) == 0 {
		return nil
	}

	adj := make([][]weightedEdge, len(g.nodes))
	totalWeight := 0.0
	for _, e := range g.edges {
		si, ti := g.index[e.Source], g.index[e.Target]
		adj[si] = append(adj[si], weightedEdge{to: ti, weight: 1})
		if si != ti {
			adj[ti] = append(adj[ti], weightedEdge{to: si, weight: 1})
		}
		totalWeight++
	}

	// --- Level 0: connected components via BFS ---
	visited := make([]bool, len(g.nodes))
	var components [][]int

	for i := range g.nodes {
		if visited[i] {
			continue
		}
		var comp []int
		queue := []int{i}
		visited[i] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			comp = append(comp, node)
			for _, e := range adj[node] {
				if !visited[e.to] {
					visited[e.to] = true
					queue = append(queue, e.to)
				}
			}
		}
		sort.Ints(comp)
		components = append(components, comp)
	}

	slog.Debug("community: BFS found components",
		"components", len(components), "largest", largestComp(components))

	var communities []Community
	for _, comp := range components {
		parent := Community{
			ID:      len(communities),
			Level:   0,
			Parent:  -1,
			Members: g.names(comp),
		}
		communities = append(communities, parent)

		// --- Level 1: modularity-based splitting for mid-sized components ---
		if len(comp) >= minComponentSplit && len(comp) <= maxModularityNodes && totalWeight > 0 {
			subs := modularitySplit(comp, adj, totalWeight)
			if len(subs) <= 1 {
				continue
			}
			for _, sub := range subs {
				communities = append(communities, Community{
					ID:      len(communities),
					Level:   1,
					Parent:  parent.ID,
					Members: g.names(sub),
				})
			}
		}
	}

	slog.Debug("community: detection complete", "communities", len(communities))
	return communities
}

// Membership maps every node to its finest community: the level-1 community
// when its component was split, otherwise the level-0 one.
func Membership(communities []Community) map[string]int {
	out := make(map[string]int)
	for _, c := range communities {
		for _, m := range c.Members {
			if prev, ok := out[m]; ok && communities[prev].Level >= c.Level {
				continue
			}
			out[m] = c.ID
		}
	}
	return out
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = g.nodes[n].Name
	}
	return out
}

func largestComp(comps [][]int) int {
	max := 0
	for _, c := range comps {
		if len(c) > max {
			max = len(c)
		}
	}
	return max
}

// modularitySplit applies a greedy modularity optimisation (simplified Louvain)
// to split a connected component into two or more sub-communities. If the
// split does not improve modularity the component is returned unchanged.
func modularitySplit(comp []int, adj [][]weightedEdge, totalWeight float64) [][]int {
	n := len(comp)
	if n < minComponentSplit {
		return [][]int{comp}
	}

	localIdx := make(map[int]int, n)
	for i, node := range comp {
		localIdx[node] = i
	}

	// community[i] is the community label for local node i.
	community := make([]int, n)
	for i := range community {
		community[i] = i
	}

	strength := make([]float64, n)
	for i, node := range comp {
		for _, e := range adj[node] {
			if _, ok := localIdx[e.to]; ok {
				strength[i] += e.weight
			}
		}
	}

	m2 := 2.0 * totalWeight
	commStrength := make(map[int]float64, n)
	for i := range comp {
		commStrength[community[i]] += strength[i]
	}

	const maxPasses = 20
	for pass := 0; pass < maxPasses; pass++ {
		moved := false
		for i, node := range comp {
			// Weight to each neighbouring community; candidates keeps the
			// order of first appearance so ties resolve deterministically.
			commWeights := make(map[int]float64)
			var candidates []int
			for _, e := range adj[node] {
				li, ok := localIdx[e.to]
				if !ok || li == i {
					continue
				}
				c := community[li]
				if _, seen := commWeights[c]; !seen {
					candidates = append(candidates, c)
				}
				commWeights[c] += e.weight
			}

			currentComm := community[i]
			ki := strength[i]
			removeDelta := commWeights[currentComm]/m2 - ((commStrength[currentComm]-ki)*ki)/(m2*m2)

			bestComm := currentComm
			bestGain := 0.0
			for _, c := range candidates {
				if c == currentComm {
					continue
				}
				gain := (commWeights[c]/m2 - (commStrength[c]*ki)/(m2*m2)) - removeDelta
				if gain > bestGain {
					bestGain = gain
					bestComm = c
				}
			}

			if bestComm != currentComm {
				commStrength[currentComm] -= ki
				commStrength[bestComm] += ki
				community[i] = bestComm
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	// Group nodes by label, ordered by first member.
	groupIdx := make(map[int]int)
	var result [][]int
	for i, node := range comp {
		gi, ok := groupIdx[community[i]]
		if !ok {
			gi = len(result)
			groupIdx[community[i]] = gi
			result = append(result, nil)
		}
		result[gi] = append(result[gi], node)
	}

	if len(result) <= 1 {
		return [][]int{comp}
	}
	return result
}
