// Package graph implements the Dependency Resolver: building the prompt
// reference graph and detecting cycles via Kahn's algorithm. It is a
// direct port of original_source/backend/app/services/dependency_resolver.py.
// TopoSort is pure over an in-memory Graph; BuildFullGraph, CheckNoCycles and
// ValidatePipelineAcyclic load the edge set through store.Tx.ListRefsTouching.
package graph

import (
	"context"
	"sort"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/store"
)

// Graph is an adjacency map {node -> set of nodes it depends on}, matching
// the Python implementation's {source: {targets}} shape.
type Graph map[string]map[string]struct{}

// NewGraph seeds an empty graph with the given nodes (in-degree 0 until
// edges are added), matching build_prompt_ref_graph's pre-seeding of every
// requested id.
func NewGraph(seed []string) Graph {
	g := make(Graph, len(seed))
	for _, id := range seed {
		g[id] = map[string]struct{}{}
	}
	return g
}

// AddEdge records "from depends on to".
func (g Graph) AddEdge(from, to string) {
	if _, ok := g[from]; !ok {
		g[from] = map[string]struct{}{}
	}
	if _, ok := g[to]; !ok {
		g[to] = map[string]struct{}{}
	}
	g[from][to] = struct{}{}
}

// TopoSort runs Kahn's algorithm over g (edges read "node depends on dep").
// It returns the topological order (dependencies first) or a
// CYCLE_DETECTED *apperr.Error naming the nodes that never reached
// in-degree 0, exactly as
// dependency_resolver.py's topological_sort_with_cycle_detection does.
func TopoSort(g Graph) ([]string, error) {
	if len(g) == 0 {
		return nil, nil
	}

	allNodes := make(map[string]struct{}, len(g))
	for node, deps := range g {
		allNodes[node] = struct{}{}
		for dep := range deps {
			allNodes[dep] = struct{}{}
		}
	}

	// adjacency: dep -> [dependents]; in-degree counted over reverse edges.
	adjacency := make(map[string][]string, len(allNodes))
	inDegree := make(map[string]int, len(allNodes))
	for node := range allNodes {
		inDegree[node] = 0
	}
	for node, deps := range g {
		for dep := range deps {
			adjacency[dep] = append(adjacency[dep], node)
			inDegree[node]++
		}
	}

	var queue []string
	for node := range allNodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}
	sort.Strings(queue) // deterministic order; the result order is otherwise arbitrary among ties

	var result []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)
		neighbors := append([]string(nil), adjacency[current]...)
		sort.Strings(neighbors)
		for _, neighbor := range neighbors {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(result) < len(allNodes) {
		resultSet := make(map[string]struct{}, len(result))
		for _, n := range result {
			resultSet[n] = struct{}{}
		}
		var cycleNodes []string
		for n := range allNodes {
			if _, ok := resultSet[n]; !ok {
				cycleNodes = append(cycleNodes, n)
			}
		}
		sort.Strings(cycleNodes)
		return nil, apperr.CycleDetected(cycleNodes)
	}

	return result, nil
}

// BuildFullGraph iteratively expands from seed, loading every PromptRef
// whose source or target is in the current frontier, until the frontier is
// exhausted. Mirrors build_full_ref_graph's fixed-point expansion.
func BuildFullGraph(ctx context.Context, tx store.Tx, seed []string) (Graph, error) {
	g := NewGraph(seed)
	visited := map[string]struct{}{}
	frontier := map[string]struct{}{}
	for _, id := range seed {
		frontier[id] = struct{}{}
	}

	for len(frontier) > 0 {
		batch := make([]string, 0, len(frontier))
		for id := range frontier {
			batch = append(batch, id)
			visited[id] = struct{}{}
		}
		frontier = map[string]struct{}{}

		refs, err := tx.ListRefsTouching(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			g.AddEdge(r.SourcePromptID, r.TargetPromptID)
			if _, ok := visited[r.SourcePromptID]; !ok {
				frontier[r.SourcePromptID] = struct{}{}
			}
			if _, ok := visited[r.TargetPromptID]; !ok {
				frontier[r.TargetPromptID] = struct{}{}
			}
		}
	}

	return g, nil
}

// CheckNoCycles verifies that adding the edge source->target to the full
// reachable graph around {source, target} would not introduce a cycle.
// Self-references are rejected because AddEdge(source, source) always
// produces an in-degree-1 node that can never reach in-degree 0 on its own
// edge. Mirrors check_no_cycles.
func CheckNoCycles(ctx context.Context, tx store.Tx, source, target string) error {
	g, err := BuildFullGraph(ctx, tx, []string{source, target})
	if err != nil {
		return err
	}
	g.AddEdge(source, target)
	_, err = TopoSort(g)
	return err
}

// ValidatePipelineAcyclic extracts the prompt ids referenced by a
// pipeline's steps, builds the full reachable graph from that seed, and
// runs Kahn's algorithm, mirroring build_scene_dependency_graph plus the
// cycle check scene creation performs.
func ValidatePipelineAcyclic(ctx context.Context, tx store.Tx, pipeline domain.PipelineConfig) error {
	ids := PromptIDsInPipeline(pipeline)
	g, err := BuildFullGraph(ctx, tx, ids)
	if err != nil {
		return err
	}
	_, err = TopoSort(g)
	return err
}

// PromptIDsInPipeline returns the deduplicated set of prompt ids a
// pipeline's steps reference, in first-seen order.
func PromptIDsInPipeline(pipeline domain.PipelineConfig) []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, step := range pipeline.Steps {
		id := step.PromptRef.PromptID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
