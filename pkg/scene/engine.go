package scene

import (
	"context"
	"time"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/calllog"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/render"
	"github.com/hyxiaoge/prompthub/pkg/store"
	"github.com/hyxiaoge/prompthub/pkg/version"
)

// StepResult is one pipeline step's outcome, surfaced verbatim in a
// ResolveResult so a caller can see which steps ran, which were skipped,
// and what each rendered.
type StepResult struct {
	StepID          string
	PromptID        string
	PromptName      string
	Version         string
	RenderedContent string
	Skipped         bool
	SkipReason      string
}

// ResolveRequest carries a resolve call's caller-supplied inputs.
type ResolveRequest struct {
	Variables    domain.ValueMap
	CallerSystem string
	CallerIP     string
}

// ResolveResult is the Scene Resolution Engine's output, grounded in
// original_source/backend/app/services/scene_engine.py's
// SceneResolveResponse.
type ResolveResult struct {
	SceneID            string
	SceneName          string
	MergeStrategy      domain.MergeStrategy
	FinalContent       string
	Steps              []StepResult
	TotalTokenEstimate int
	ElapsedMs          int
}

// Engine is the Scene Resolution Engine: it walks a scene's pipeline in
// declared order, resolving each step's prompt content and combining the
// surviving outputs per the scene's merge strategy.
type Engine struct {
	versions *version.Store
	renderer *render.Renderer
	logger   *calllog.Logger
}

func NewEngine(versions *version.Store, renderer *render.Renderer, logger *calllog.Logger) *Engine {
	return &Engine{versions: versions, renderer: renderer, logger: logger}
}

// Resolve executes scene's pipeline within tx and emits a CallLog before
// returning. Pipeline acyclicity is assumed already verified at scene
// create/update time by Validator — Resolve never re-checks it.
func (e *Engine) Resolve(ctx context.Context, tx store.Tx, sc *domain.Scene, req ResolveRequest) (*ResolveResult, error) {
	start := time.Now()

	chainContext := make(domain.ValueMap)
	results := make([]StepResult, 0, len(sc.Pipeline.Steps))

	for _, step := range sc.Pipeline.Steps {
		evalVars := req.Variables.Merge(chainContext).Merge(step.Variables)

		if step.Condition != nil && !EvaluateCondition(*step.Condition, evalVars) {
			results = append(results, StepResult{
				StepID:     step.ID,
				PromptID:   step.PromptRef.PromptID,
				Skipped:    true,
				SkipReason: "Condition not met",
			})
			continue
		}

		prompt, content, versionStr, err := e.fetchPromptContent(ctx, tx, step.PromptRef, sc.ProjectID)
		if err != nil {
			return nil, err
		}

		// Three-tier merge: prompt defaults (lowest) < request.variables +
		// chain_context, chain_context wins (middle) < step.variables
		// (highest).
		merged := mergeVariables(prompt.Variables, req.Variables.Merge(chainContext), step.Variables)

		rendered, err := e.renderer.Render(content, prompt.Variables, merged)
		if err != nil {
			return nil, err
		}

		if sc.MergeStrategy == domain.MergeChain {
			key := step.OutputKey
			if key == "" {
				key = step.ID
			}
			chainContext[key] = domain.StringValue(rendered)
		}

		results = append(results, StepResult{
			StepID:          step.ID,
			PromptID:        prompt.ID,
			PromptName:      prompt.Name,
			Version:         versionStr,
			RenderedContent: rendered,
		})
	}

	finalContent := mergeResults(sc.MergeStrategy, sc.Separator, results)
	elapsedMs := int(time.Since(start) / time.Millisecond)
	tokenEstimate := len(finalContent) / 4

	sceneID := sc.ID
	e.logger.Log(ctx, tx, &domain.CallLog{
		SceneID:         &sceneID,
		CallerSystem:    req.CallerSystem,
		CallerIP:        req.CallerIP,
		InputVariables:  req.Variables,
		RenderedContent: finalContent,
		TokenCount:      tokenEstimate,
		ResponseTimeMs:  elapsedMs,
		CreatedAt:       time.Now().UTC(),
	})

	return &ResolveResult{
		SceneID:            sc.ID,
		SceneName:          sc.Name,
		MergeStrategy:      sc.MergeStrategy,
		FinalContent:       finalContent,
		Steps:              results,
		TotalTokenEstimate: tokenEstimate,
		ElapsedMs:          elapsedMs,
	}, nil
}

// fetchPromptContent resolves ref against tx, enforcing the cross-project
// sharing rule and falling back to the prompt's current published version
// when the step does not lock to a specific one.
func (e *Engine) fetchPromptContent(ctx context.Context, tx store.Tx, ref domain.PromptRefSpec, sceneProjectID string) (*domain.Prompt, string, string, error) {
	prompt, err := tx.GetPrompt(ctx, ref.PromptID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, "", "", apperr.NotFound("prompt", ref.PromptID)
		}
		return nil, "", "", err
	}

	if prompt.ProjectID != sceneProjectID && !prompt.IsShared {
		return nil, "", "", apperr.PermissionDenied(
			"prompt \"" + prompt.Name + "\" is not shared and belongs to another project")
	}

	if ref.Version != nil {
		pv, err := e.versions.GetVersion(ctx, tx, prompt, *ref.Version)
		if err != nil {
			return nil, "", "", err
		}
		return prompt, pv.Content, *ref.Version, nil
	}

	pv, err := tx.GetVersion(ctx, prompt.ID, prompt.CurrentVersion)
	if err != nil {
		if err == store.ErrNotFound {
			return prompt, prompt.Content, prompt.CurrentVersion, nil
		}
		return nil, "", "", err
	}
	return prompt, pv.Content, prompt.CurrentVersion, nil
}

// mergeVariables applies a three-tier priority: prompt defaults, then
// input+chain (chain context wins ties within this tier, because
// Merge(chainContext) already laid chain_context over request.variables
// before this call), then step overrides.
func mergeVariables(defs []domain.VariableDef, inputPlusChain domain.ValueMap, stepOverrides domain.ValueMap) domain.ValueMap {
	result := make(domain.ValueMap, len(defs)+len(inputPlusChain)+len(stepOverrides))
	for _, d := range defs {
		if d.Default != nil {
			result[d.Name] = *d.Default
		}
	}
	for k, v := range inputPlusChain {
		result[k] = v
	}
	for k, v := range stepOverrides {
		result[k] = v
	}
	return result
}

// mergeResults combines a pipeline's non-skipped step outputs per
// strategy, falling back to concat for an unrecognized strategy value
// exactly as scene_engine.py's else-branch does.
func mergeResults(strategy domain.MergeStrategy, separator string, results []StepResult) string {
	var survivors []StepResult
	for _, r := range results {
		if !r.Skipped {
			survivors = append(survivors, r)
		}
	}

	switch strategy {
	case domain.MergeChain:
		if len(survivors) == 0 {
			return ""
		}
		return survivors[len(survivors)-1].RenderedContent
	case domain.MergeSelectBest:
		// select_best is a reserved placeholder: until an LLM-backed judge
		// is wired in, the first surviving step's output stands in,
		// matching scene_engine.py's Phase-5 TODO behavior.
		if len(survivors) == 0 {
			return ""
		}
		return survivors[0].RenderedContent
	default: // concat, and any unrecognized value
		parts := make([]string, len(survivors))
		for i, r := range survivors {
			parts[i] = r.RenderedContent
		}
		return joinStrings(parts, separator)
	}
}

func joinStrings(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += sep + p
	}
	return out
}
