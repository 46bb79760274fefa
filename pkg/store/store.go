// Package store defines the Persistence Port: the transactional contract
// the core consumes for reading and writing entities. pgstore backs it
// with hand-written SQL over pgx; memstore backs it with guarded maps for
// fast unit tests that don't need a database.
package store

import (
	"context"

	"github.com/hyxiaoge/prompthub/pkg/domain"
)

// Port opens transactions against the underlying store. Every core
// operation runs inside exactly one transaction; on any error the caller
// rolls it back wholesale so partial effects (a new prompt without its
// initial version, a published version without the bumped pointer) never
// leak.
type Port interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a single unit-of-work over every entity the core touches.
// Implementations must make Rollback safe to call after a successful
// Commit (a no-op), mirroring database/sql's tx semantics.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Projects
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (*domain.Project, error)
	UpsertProject(ctx context.Context, p *domain.Project) error

	// Prompts (soft-delete aware; all reads exclude deleted_at IS NOT NULL)
	GetPrompt(ctx context.Context, id string) (*domain.Prompt, error)
	GetPromptBySlug(ctx context.Context, projectID, slug string) (*domain.Prompt, error)
	ListPromptsByIDs(ctx context.Context, ids []string) ([]*domain.Prompt, error)
	ListPromptsByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.Prompt, int, error)
	UpsertPrompt(ctx context.Context, p *domain.Prompt) error
	SoftDeletePrompt(ctx context.Context, id string) error

	// Versions (insert-only)
	InsertVersion(ctx context.Context, v *domain.PromptVersion) error
	GetVersion(ctx context.Context, promptID, version string) (*domain.PromptVersion, error)
	ListVersions(ctx context.Context, promptID string) ([]*domain.PromptVersion, error)

	// Refs
	InsertRef(ctx context.Context, r *domain.PromptRef) error
	GetRef(ctx context.Context, id string) (*domain.PromptRef, error)
	DeleteRef(ctx context.Context, id string) error
	ListRefsTouching(ctx context.Context, promptIDs []string) ([]*domain.PromptRef, error)

	// Scenes
	GetScene(ctx context.Context, id string) (*domain.Scene, error)
	GetSceneBySlug(ctx context.Context, projectID, slug string) (*domain.Scene, error)
	UpsertScene(ctx context.Context, s *domain.Scene) error
	DeleteScene(ctx context.Context, id string) error
	ListScenesByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.Scene, int, error)
	ListScenesReferencingPrompt(ctx context.Context, promptID string) ([]*domain.Scene, error)

	// Call logs (append-only)
	InsertCallLog(ctx context.Context, c *domain.CallLog) error
}

// ErrNotFound is returned by Tx getters when the entity does not exist (or
// is soft-deleted, for prompts). The service packages (project, prompt,
// scene, version) turn it into a NOT_FOUND error naming the entity kind.
type notFoundSentinel struct{}

func (notFoundSentinel) Error() string { return "entity not found" }

// ErrNotFound is the sentinel every Tx implementation returns for a missing
// row, mirroring tarsy's pkg/services.ErrNotFound.
var ErrNotFound error = notFoundSentinel{}

// ErrAlreadyExists is returned on a unique-constraint violation (slug
// collision, duplicate version string), mirroring
// tarsy's pkg/services.ErrAlreadyExists.
type alreadyExistsSentinel struct{}

func (alreadyExistsSentinel) Error() string { return "entity already exists" }

var ErrAlreadyExists error = alreadyExistsSentinel{}
