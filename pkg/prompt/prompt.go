// Package prompt implements Prompt CRUD, PromptRef management, fork, and
// impact analysis, the supplemented service layer on top of the Prompt
// and PromptRef data-model entities. Grounded in
// original_source/backend/app/services/prompt_service.py and ref_service.py.
package prompt

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/graph"
	"github.com/hyxiaoge/prompthub/pkg/scene"
	"github.com/hyxiaoge/prompthub/pkg/store"
)

// Service implements Prompt CRUD and reference management.
type Service struct{}

func NewService() *Service { return &Service{} }

// CreateRequest carries the fields a caller may set on creation.
type CreateRequest struct {
	ProjectID      string
	Slug           string
	Name           string
	Description    string
	Content        string
	Format         string
	TemplateEngine string
	Variables      []domain.VariableDef
	Tags           []string
	Category       string
	IsShared       bool
	CreatedBy      string
}

// Create inserts a prompt and its initial published 1.0.0 version within
// the same transaction, mirroring prompt_service.py's create_prompt.
func (s *Service) Create(ctx context.Context, tx store.Tx, req CreateRequest) (*domain.Prompt, error) {
	if _, err := tx.GetProject(ctx, req.ProjectID); err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFound("project", req.ProjectID)
		}
		return nil, err
	}
	if err := scene.ValidateSlug(req.Slug); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, apperr.Validation("", "name is required")
	}

	if _, err := tx.GetPromptBySlug(ctx, req.ProjectID, req.Slug); err == nil {
		return nil, apperr.Conflict("a prompt with slug '" + req.Slug + "' already exists in this project")
	} else if err != store.ErrNotFound {
		return nil, err
	}

	now := time.Now().UTC()
	p := &domain.Prompt{
		ID:             uuid.NewString(),
		ProjectID:      req.ProjectID,
		Slug:           req.Slug,
		Name:           req.Name,
		Description:    req.Description,
		Content:        req.Content,
		Format:         req.Format,
		TemplateEngine: req.TemplateEngine,
		Variables:      req.Variables,
		Tags:           normalizeTags(req.Tags),
		Category:       req.Category,
		IsShared:       req.IsShared,
		CreatedBy:      req.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	p.NormalizeNew()

	if err := tx.UpsertPrompt(ctx, p); err != nil {
		return nil, err
	}

	initial := &domain.PromptVersion{
		ID:        uuid.NewString(),
		PromptID:  p.ID,
		Version:   p.CurrentVersion,
		Content:   p.Content,
		Variables: p.Variables,
		Changelog: "Initial version",
		Status:    "published",
		CreatedBy: req.CreatedBy,
		CreatedAt: now,
	}
	if err := tx.InsertVersion(ctx, initial); err != nil {
		return nil, err
	}

	return p, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = strings.ToLower(t)
	}
	return out
}

// Get fetches a live prompt by id.
func (s *Service) Get(ctx context.Context, tx store.Tx, id string) (*domain.Prompt, error) {
	p, err := tx.GetPrompt(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFound("prompt", id)
		}
		return nil, err
	}
	return p, nil
}

// ListFilter narrows ListPrompts beyond project scoping, mirroring
// prompt_service.py's list_prompts filter set.
type ListFilter struct {
	Slug     string
	Tags     []string
	Category string
	IsShared *bool
	Search   string
}

// List paginates a project's live prompts, applying ListFilter
// post-fetch — matching the behavior, not the SQL, of the original's
// query-builder filters, since memstore/pgstore both expose only
// project-scoped pagination at the Port boundary.
func (s *Service) List(ctx context.Context, tx store.Tx, projectID string, filter ListFilter, limit, offset int) ([]*domain.Prompt, int, error) {
	all, _, err := tx.ListPromptsByProject(ctx, projectID, 1<<30, 0)
	if err != nil {
		return nil, 0, err
	}

	var filtered []*domain.Prompt
	for _, p := range all {
		if filter.Slug != "" && p.Slug != filter.Slug {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.IsShared != nil && p.IsShared != *filter.IsShared {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(p.Name), needle) && !strings.Contains(strings.ToLower(p.Description), needle) {
				continue
			}
		}
		if len(filter.Tags) > 0 && !hasAnyTag(p.Tags, filter.Tags) {
			continue
		}
		filtered = append(filtered, p)
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].CreatedAt.After(filtered[j].CreatedAt) })

	total := len(filtered)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total || limit <= 0 {
		end = total
	}
	return filtered[offset:end], total, nil
}

func hasAnyTag(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

// UpdateRequest carries the optional, independently-settable fields
// Update accepts.
type UpdateRequest struct {
	Name        *string
	Description *string
	Content     *string
	Tags        []string
	Category    *string
	IsShared    *bool
	Variables   []domain.VariableDef
}

// Update applies a partial update to a live prompt. It does not publish a
// new version — content edits here affect the prompt's working copy only;
// Publish (pkg/version) is the path that creates an immutable snapshot.
func (s *Service) Update(ctx context.Context, tx store.Tx, id string, req UpdateRequest) (*domain.Prompt, error) {
	p, err := s.Get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if req.IsShared != nil && p.IsShared && !*req.IsShared {
		if err := checkNoCrossProjectDependents(ctx, tx, p); err != nil {
			return nil, err
		}
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Content != nil {
		p.Content = *req.Content
	}
	if req.Tags != nil {
		p.Tags = normalizeTags(req.Tags)
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.IsShared != nil {
		p.IsShared = *req.IsShared
	}
	if req.Variables != nil {
		p.Variables = req.Variables
	}
	p.UpdatedAt = time.Now().UTC()
	if err := tx.UpsertPrompt(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// checkNoCrossProjectDependents rejects turning off sharing while a scene
// outside p's own project still has a pipeline step referencing it. This
// is a defensive check app/api/shared.py does not have, added so an
// unshare can never silently break a cross-project scene's resolve.
func checkNoCrossProjectDependents(ctx context.Context, tx store.Tx, p *domain.Prompt) error {
	dependents, err := tx.ListScenesReferencingPrompt(ctx, p.ID)
	if err != nil {
		return err
	}
	for _, sc := range dependents {
		if sc.ProjectID != p.ProjectID {
			return apperr.Conflict("prompt '" + p.Name + "' cannot be unshared: scene '" + sc.Name + "' in another project depends on it")
		}
	}
	return nil
}

// Delete soft-deletes a prompt.
func (s *Service) Delete(ctx context.Context, tx store.Tx, id string) error {
	if _, err := s.Get(ctx, tx, id); err != nil {
		return err
	}
	return tx.SoftDeletePrompt(ctx, id)
}

// CreateRef creates a directed PromptRef after the cross-project sharing
// check and a cycle check, mirroring ref_service.py's create_ref.
func (s *Service) CreateRef(ctx context.Context, tx store.Tx, sourceID, targetID string, refType domain.RefType, override map[string]domain.Value) (*domain.PromptRef, error) {
	source, err := s.Get(ctx, tx, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := s.Get(ctx, tx, targetID)
	if err != nil {
		return nil, err
	}
	if source.ProjectID != target.ProjectID && !target.IsShared {
		return nil, apperr.PermissionDenied("target prompt '" + target.Name + "' is not shared")
	}
	if err := graph.CheckNoCycles(ctx, tx, sourceID, targetID); err != nil {
		return nil, err
	}

	ref := &domain.PromptRef{
		ID:              uuid.NewString(),
		SourcePromptID:  sourceID,
		TargetPromptID:  targetID,
		SourceProjectID: source.ProjectID,
		TargetProjectID: target.ProjectID,
		RefType:         refType,
		OverrideConfig:  override,
		CreatedAt:       time.Now().UTC(),
	}
	if err := tx.InsertRef(ctx, ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// DeleteRef removes a PromptRef by id, mirroring ref_service.py's
// delete_ref.
func (s *Service) DeleteRef(ctx context.Context, tx store.Tx, id string) error {
	if _, err := tx.GetRef(ctx, id); err != nil {
		if err == store.ErrNotFound {
			return apperr.NotFound("reference", id)
		}
		return err
	}
	return tx.DeleteRef(ctx, id)
}

// ListRefs returns the outgoing and incoming PromptRef edges touching id,
// mirroring ref_service.py's list_refs_for_prompt.
func (s *Service) ListRefs(ctx context.Context, tx store.Tx, id string) (outgoing, incoming []*domain.PromptRef, err error) {
	if _, err := s.Get(ctx, tx, id); err != nil {
		return nil, nil, err
	}
	refs, err := tx.ListRefsTouching(ctx, []string{id})
	if err != nil {
		return nil, nil, err
	}
	for _, r := range refs {
		if r.SourcePromptID == id {
			outgoing = append(outgoing, r)
		}
		if r.TargetPromptID == id {
			incoming = append(incoming, r)
		}
	}
	return outgoing, incoming, nil
}

// ImpactAnalysis returns the scenes among candidates whose pipeline
// references id, mirroring ref_service.py's get_impact_analysis. It scans
// the caller-supplied candidate scenes in Go; scenes not in candidates are
// never reported.
func ImpactAnalysis(id string, candidates []*domain.Scene) []*domain.Scene {
	var hits []*domain.Scene
	for _, sc := range candidates {
		for _, step := range sc.Pipeline.Steps {
			if step.PromptRef.PromptID == id {
				hits = append(hits, sc)
				break
			}
		}
	}
	return hits
}

// Fork copies a shared prompt into targetProjectID as a new, non-shared
// prompt, and records an "includes" ref back to the source, mirroring
// ref_service.py's fork_prompt.
func (s *Service) Fork(ctx context.Context, tx store.Tx, sourceID, targetProjectID, slugOverride, createdBy string) (*domain.Prompt, error) {
	source, err := s.Get(ctx, tx, sourceID)
	if err != nil {
		return nil, err
	}
	if !source.IsShared {
		return nil, apperr.PermissionDenied("prompt '" + source.Name + "' is not shared")
	}

	slug := slugOverride
	if slug == "" {
		slug = source.Slug + "-fork"
	}

	forked, err := s.Create(ctx, tx, CreateRequest{
		ProjectID:      targetProjectID,
		Slug:           slug,
		Name:           source.Name + " (fork)",
		Description:    source.Description,
		Content:        source.Content,
		Format:         source.Format,
		TemplateEngine: source.TemplateEngine,
		Variables:      source.Variables,
		Tags:           source.Tags,
		Category:       source.Category,
		IsShared:       false,
		CreatedBy:      createdBy,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.InsertRef(ctx, &domain.PromptRef{
		ID:              uuid.NewString(),
		SourcePromptID:  forked.ID,
		TargetPromptID:  source.ID,
		SourceProjectID: targetProjectID,
		TargetProjectID: source.ProjectID,
		RefType:         domain.RefIncludes,
		CreatedAt:       time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	return forked, nil
}
