// Package project implements Project CRUD, a supplemented feature on top
// of the Project data-model entity.
// Grounded in original_source/backend/app/services/project_service.py and
// styled after tarsy's pkg/services/session_service.go create/get/list shape.
package project

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/scene"
	"github.com/hyxiaoge/prompthub/pkg/store"
)

// Service implements Project CRUD over a Persistence Port transaction.
type Service struct{}

func NewService() *Service { return &Service{} }

// CreateRequest carries the fields a caller may set on creation.
type CreateRequest struct {
	Slug        string
	Name        string
	Description string
	CreatedBy   string
}

// Create inserts a new project after validating slug shape and global
// uniqueness.
func (s *Service) Create(ctx context.Context, tx store.Tx, req CreateRequest) (*domain.Project, error) {
	if err := scene.ValidateSlug(req.Slug); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, apperr.Validation("", "name is required")
	}

	if _, err := tx.GetProjectBySlug(ctx, req.Slug); err == nil {
		return nil, apperr.Conflict("a project with slug '" + req.Slug + "' already exists")
	} else if err != store.ErrNotFound {
		return nil, err
	}

	now := time.Now().UTC()
	p := &domain.Project{
		ID:          uuid.NewString(),
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.UpsertProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get fetches a project by id, translating a store miss into NOT_FOUND.
func (s *Service) Get(ctx context.Context, tx store.Tx, id string) (*domain.Project, error) {
	p, err := tx.GetProject(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFound("project", id)
		}
		return nil, err
	}
	return p, nil
}

// Counts bundles a project's live prompt count and scene count, as exposed
// by the project detail endpoint.
type Counts struct {
	PromptCount int
	SceneCount  int
}

// GetWithCounts fetches a project together with its live-prompt and scene
// counts, mirroring project_service.py's get_project_with_counts.
func (s *Service) GetWithCounts(ctx context.Context, tx store.Tx, id string) (*domain.Project, Counts, error) {
	p, err := s.Get(ctx, tx, id)
	if err != nil {
		return nil, Counts{}, err
	}
	_, promptTotal, err := tx.ListPromptsByProject(ctx, id, 1, 0)
	if err != nil {
		return nil, Counts{}, err
	}
	_, sceneTotal, err := tx.ListScenesByProject(ctx, id, 1, 0)
	if err != nil {
		return nil, Counts{}, err
	}
	return p, Counts{PromptCount: promptTotal, SceneCount: sceneTotal}, nil
}

// UpdateRequest carries the optional, independently-settable fields Update
// accepts; a nil field leaves the existing value unchanged (PATCH
// semantics, mirroring update_data.model_dump(exclude_unset=True)).
type UpdateRequest struct {
	Name        *string
	Description *string
}

// Update applies a partial update and persists it.
func (s *Service) Update(ctx context.Context, tx store.Tx, id string, req UpdateRequest) (*domain.Project, error) {
	p, err := s.Get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	p.UpdatedAt = time.Now().UTC()
	if err := tx.UpsertProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPrompts paginates the project's live prompts, verifying the project
// exists first.
func (s *Service) ListPrompts(ctx context.Context, tx store.Tx, id string, limit, offset int) ([]*domain.Prompt, int, error) {
	if _, err := s.Get(ctx, tx, id); err != nil {
		return nil, 0, err
	}
	return tx.ListPromptsByProject(ctx, id, limit, offset)
}
