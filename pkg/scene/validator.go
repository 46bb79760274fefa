// Package scene implements the Scene Validator, Scene Resolution Engine,
// and Graph Exporter: the three components that, together with
// pkg/graph and pkg/render, resolve a scene's pipeline into rendered
// content. Grounded in
// original_source/backend/app/services/scene_service.py (validation) and
// scene_engine.py (resolution).
package scene

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/graph"
	"github.com/hyxiaoge/prompthub/pkg/store"
)

// Validator runs on scene create, and on any update that changes the
// pipeline.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// Validate checks step-id uniqueness, that every referenced prompt exists
// and is live, that cross-project references target a shared prompt, and
// that the resulting graph is acyclic.
func (v *Validator) Validate(ctx context.Context, tx store.Tx, projectID string, pipeline domain.PipelineConfig) error {
	if err := validateStepIDsUnique(pipeline); err != nil {
		return err
	}

	ids := graph.PromptIDsInPipeline(pipeline)
	if len(ids) == 0 {
		return nil
	}

	prompts, err := tx.ListPromptsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]*domain.Prompt, len(prompts))
	for _, p := range prompts {
		byID[p.ID] = p
	}

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &apperr.Error{Kind: apperr.KindNotFound, Message: "prompt(s) not found", IDs: missing}
	}

	for _, id := range ids {
		p := byID[id]
		if p.ProjectID != projectID && !p.IsShared {
			return apperr.PermissionDenied(fmt.Sprintf("prompt %q is not shared and belongs to another project", p.Name))
		}
	}

	if err := graph.ValidatePipelineAcyclic(ctx, tx, pipeline); err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return ae
		}
		return err
	}

	return nil
}

func validateStepIDsUnique(pipeline domain.PipelineConfig) error {
	seen := make(map[string]struct{}, len(pipeline.Steps))
	for _, step := range pipeline.Steps {
		if _, ok := seen[step.ID]; ok {
			return apperr.Validation("", "duplicate step id: "+step.ID)
		}
		seen[step.ID] = struct{}{}
	}
	return nil
}

// ValidateSlug enforces the kebab-case slug pattern
// ^[a-z0-9]+(?:-[a-z0-9]+)*$.
func ValidateSlug(slug string) error {
	if slug == "" {
		return apperr.Validation("", "slug is required")
	}
	for _, part := range strings.Split(slug, "-") {
		if part == "" {
			return apperr.Validation("", "invalid slug: "+slug)
		}
		for _, r := range part {
			if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
				return apperr.Validation("", "invalid slug: "+slug)
			}
		}
	}
	return nil
}
