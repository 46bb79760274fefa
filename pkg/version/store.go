package version

import (
	"context"
	"errors"
	"time"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/store"
)

// Store implements the Version Store component: Publish, GetVersion,
// ListVersions, wrapping a store.Tx the way
// original_source's version_service.py wraps an AsyncSession.
type Store struct{}

// NewStore returns a Version Store. It is stateless; every method takes
// the transaction it runs in explicitly, matching the Persistence Port's
// transaction-per-request contract.
func NewStore() *Store { return &Store{} }

// PublishRequest carries the optional overrides Publish accepts.
type PublishRequest struct {
	Bump              BumpKind
	ContentOverride   *string
	VariablesOverride []domain.VariableDef
	Changelog         string
	By                string
}

// Publish bumps prompt.CurrentVersion, inserts the new immutable
// PromptVersion row, and updates the prompt's current_version pointer,
// both within the caller's transaction.
func (s *Store) Publish(ctx context.Context, tx store.Tx, prompt *domain.Prompt, req PublishRequest) (*domain.PromptVersion, error) {
	newVersion, err := Bump(prompt.CurrentVersion, req.Bump)
	if err != nil {
		return nil, err
	}

	content := prompt.Content
	if req.ContentOverride != nil {
		content = *req.ContentOverride
	}
	variables := prompt.Variables
	if req.VariablesOverride != nil {
		variables = req.VariablesOverride
	}

	pv := &domain.PromptVersion{
		PromptID:  prompt.ID,
		Version:   newVersion,
		Content:   content,
		Variables: variables,
		Changelog: req.Changelog,
		Status:    "published",
		CreatedBy: req.By,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.InsertVersion(ctx, pv); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, apperr.Conflict("version " + newVersion + " already exists for prompt " + prompt.ID)
		}
		return nil, err
	}

	prompt.CurrentVersion = newVersion
	if req.ContentOverride != nil {
		prompt.Content = content
	}
	if req.VariablesOverride != nil {
		prompt.Variables = variables
	}
	if err := tx.UpsertPrompt(ctx, prompt); err != nil {
		return nil, err
	}

	return pv, nil
}

// GetVersion resolves "current" against prompt.CurrentVersion, or a named
// version string. A missing named version is VERSION_NOT_FOUND; a missing
// "current" row is tolerated by the caller (the Scene Resolution Engine
// falls back to prompt.Content, see fetchPromptContent in pkg/scene), but
// GetVersion itself always reports the miss so callers can choose their
// own fallback policy.
func (s *Store) GetVersion(ctx context.Context, tx store.Tx, prompt *domain.Prompt, versionStr string) (*domain.PromptVersion, error) {
	target := versionStr
	if versionStr == "current" || versionStr == "" {
		target = prompt.CurrentVersion
	}
	pv, err := tx.GetVersion(ctx, prompt.ID, target)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &apperr.Error{Kind: apperr.KindNotFound, Reason: apperr.ReasonVersionNotFound,
				Message: "version not found", Detail: target}
		}
		return nil, err
	}
	return pv, nil
}

// ListVersions returns every version of prompt, newest first by
// created_at.
func (s *Store) ListVersions(ctx context.Context, tx store.Tx, promptID string) ([]*domain.PromptVersion, error) {
	return tx.ListVersions(ctx, promptID)
}
