package scene

import (
	"context"
	"sort"

	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/store"
)

// DependencyNode is one live prompt named directly by a step of a scene's
// pipeline.
type DependencyNode struct {
	ID        string
	Name      string
	ProjectID string
	Version   string
	IsShared  bool
}

// DependencyEdge is one directed edge in an exported scene graph: either a
// scene-to-prompt "composes" edge for a pipeline step, or a prompt-to-prompt
// PromptRef edge.
type DependencyEdge struct {
	Source  string
	Target  string
	StepID  string
	RefType string
}

// SceneGraph is the Graph Exporter's output: a node for every live prompt
// a scene's pipeline steps name, plus the composes edges and the PromptRef
// edges touching those prompts. A ref edge may point at a prompt that is
// not itself a node; refs are not followed transitively.
type SceneGraph struct {
	Nodes []DependencyNode
	Edges []DependencyEdge
}

// Exporter implements the Graph Exporter: a pure read, no mutation, no
// cycle re-check — consumed by a visualization UI.
type Exporter struct{}

func NewExporter() *Exporter { return &Exporter{} }

// ExportSceneGraph builds the dependency node/edge set for a scene's
// pipeline steps and the PromptRefs touching their prompts.
func (x *Exporter) ExportSceneGraph(ctx context.Context, tx store.Tx, sc *domain.Scene) (*SceneGraph, error) {
	stepByPrompt := make(map[string]string, len(sc.Pipeline.Steps)) // prompt_id -> step_id
	var ids []string
	for _, step := range sc.Pipeline.Steps {
		if _, ok := stepByPrompt[step.PromptRef.PromptID]; !ok {
			ids = append(ids, step.PromptRef.PromptID)
		}
		stepByPrompt[step.PromptRef.PromptID] = step.ID
	}

	prompts, err := tx.ListPromptsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Prompt, len(prompts))
	var nodes []DependencyNode
	for _, p := range prompts {
		if !p.IsLive() {
			continue
		}
		byID[p.ID] = p
		nodes = append(nodes, DependencyNode{
			ID:        p.ID,
			Name:      p.Name,
			ProjectID: p.ProjectID,
			Version:   p.CurrentVersion,
			IsShared:  p.IsShared,
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	var edges []DependencyEdge
	for _, step := range sc.Pipeline.Steps {
		if _, ok := byID[step.PromptRef.PromptID]; !ok {
			continue
		}
		edges = append(edges, DependencyEdge{
			Source:  sc.ID,
			Target:  step.PromptRef.PromptID,
			StepID:  step.ID,
			RefType: "composes",
		})
	}

	liveIDs := make([]string, 0, len(byID))
	for id := range byID {
		liveIDs = append(liveIDs, id)
	}
	refs, err := tx.ListRefsTouching(ctx, liveIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range refs {
		edges = append(edges, DependencyEdge{
			Source:  r.SourcePromptID,
			Target:  r.TargetPromptID,
			RefType: string(r.RefType),
		})
	}

	return &SceneGraph{Nodes: nodes, Edges: edges}, nil
}
