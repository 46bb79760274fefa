package scene

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/store"
)

// Service implements Scene CRUD, delegating pipeline validation to
// Validator on every create and on any update that touches the pipeline,
// mirroring scene_service.py's create_scene/update_scene.
type Service struct {
	validator *Validator
}

func NewService(validator *Validator) *Service {
	return &Service{validator: validator}
}

// CreateRequest carries the fields a caller may set on creation.
type CreateRequest struct {
	ProjectID     string
	Slug          string
	Name          string
	Description   string
	Pipeline      domain.PipelineConfig
	MergeStrategy domain.MergeStrategy
	Separator     string
	OutputFormat  string
	CreatedBy     string
}

// Create validates the pipeline and inserts a new scene.
func (s *Service) Create(ctx context.Context, tx store.Tx, req CreateRequest) (*domain.Scene, error) {
	if _, err := tx.GetProject(ctx, req.ProjectID); err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFound("project", req.ProjectID)
		}
		return nil, err
	}
	if err := ValidateSlug(req.Slug); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, apperr.Validation("", "name is required")
	}

	if _, err := tx.GetSceneBySlug(ctx, req.ProjectID, req.Slug); err == nil {
		return nil, apperr.Conflict("a scene with slug '" + req.Slug + "' already exists in this project")
	} else if err != store.ErrNotFound {
		return nil, err
	}

	if err := s.validator.Validate(ctx, tx, req.ProjectID, req.Pipeline); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sc := &domain.Scene{
		ID:            uuid.NewString(),
		ProjectID:     req.ProjectID,
		Slug:          req.Slug,
		Name:          req.Name,
		Description:   req.Description,
		Pipeline:      req.Pipeline,
		MergeStrategy: req.MergeStrategy,
		Separator:     req.Separator,
		OutputFormat:  req.OutputFormat,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	sc.NormalizeNew()

	if err := tx.UpsertScene(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// Delete removes a scene, mirroring scene_service.py's delete_scene.
func (s *Service) Delete(ctx context.Context, tx store.Tx, id string) error {
	if _, err := s.Get(ctx, tx, id); err != nil {
		return err
	}
	return tx.DeleteScene(ctx, id)
}

// Get fetches a scene by id.
func (s *Service) Get(ctx context.Context, tx store.Tx, id string) (*domain.Scene, error) {
	sc, err := tx.GetScene(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFound("scene", id)
		}
		return nil, err
	}
	return sc, nil
}

// List paginates a project's scenes.
func (s *Service) List(ctx context.Context, tx store.Tx, projectID string, limit, offset int) ([]*domain.Scene, int, error) {
	return tx.ListScenesByProject(ctx, projectID, limit, offset)
}

// UpdateRequest carries the optional, independently-settable fields
// Update accepts. A non-nil Pipeline triggers re-validation.
type UpdateRequest struct {
	Name          *string
	Description   *string
	Pipeline      *domain.PipelineConfig
	MergeStrategy *domain.MergeStrategy
	Separator     *string
	OutputFormat  *string
}

// Update applies a partial update, re-validating the pipeline when it
// changes.
func (s *Service) Update(ctx context.Context, tx store.Tx, id string, req UpdateRequest) (*domain.Scene, error) {
	sc, err := s.Get(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if req.Pipeline != nil {
		if err := s.validator.Validate(ctx, tx, sc.ProjectID, *req.Pipeline); err != nil {
			return nil, err
		}
		sc.Pipeline = *req.Pipeline
	}
	if req.Name != nil {
		sc.Name = *req.Name
	}
	if req.Description != nil {
		sc.Description = *req.Description
	}
	if req.MergeStrategy != nil {
		sc.MergeStrategy = *req.MergeStrategy
	}
	if req.Separator != nil {
		sc.Separator = *req.Separator
	}
	if req.OutputFormat != nil {
		sc.OutputFormat = *req.OutputFormat
	}
	sc.UpdatedAt = time.Now().UTC()

	if err := tx.UpsertScene(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}
