package scene

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/store"
	"github.com/hyxiaoge/prompthub/pkg/store/memstore"
)

func seedServiceProject(t *testing.T, ctx context.Context, s *memstore.Store, id string) {
	t.Helper()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Commit(ctx)
	require.NoError(t, tx.UpsertProject(ctx, &domain.Project{ID: id, Slug: id, Name: id}))
}

func TestSceneService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a scene with a valid empty pipeline", func(t *testing.T) {
		s := memstore.New()
		seedServiceProject(t, ctx, s, "proj-a")
		svc := NewService(NewValidator())

		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Commit(ctx)

		sc, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "welcome", Name: "Welcome"})
		require.NoError(t, err)
		assert.NotEmpty(t, sc.ID)
		assert.Equal(t, domain.MergeConcat, sc.MergeStrategy)
	})

	t.Run("rejects unknown project", func(t *testing.T) {
		s := memstore.New()
		svc := NewService(NewValidator())
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		_, err = svc.Create(ctx, tx, CreateRequest{ProjectID: "nope", Slug: "welcome", Name: "Welcome"})
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindNotFound, ae.Kind)
	})

	t.Run("rejects a duplicate slug within the same project", func(t *testing.T) {
		s := memstore.New()
		seedServiceProject(t, ctx, s, "proj-a")
		svc := NewService(NewValidator())

		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		_, err = svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "welcome", Name: "Welcome"})
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))

		tx2, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx2.Rollback(ctx)
		_, err = svc.Create(ctx, tx2, CreateRequest{ProjectID: "proj-a", Slug: "welcome", Name: "Welcome Again"})
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindConflict, ae.Kind)
	})

	t.Run("propagates pipeline validation failures", func(t *testing.T) {
		s := memstore.New()
		seedServiceProject(t, ctx, s, "proj-a")
		svc := NewService(NewValidator())

		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		pipeline := domain.PipelineConfig{Steps: []domain.PipelineStep{
			{ID: "s1", PromptRef: domain.PromptRefSpec{PromptID: "missing"}},
		}}
		_, err = svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "welcome", Name: "Welcome", Pipeline: pipeline})
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindNotFound, ae.Kind)
	})
}

func TestSceneService_Update(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedServiceProject(t, ctx, s, "proj-a")
	svc := NewService(NewValidator())

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	created, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "welcome", Name: "Welcome"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	t.Run("updates name without touching pipeline", func(t *testing.T) {
		tx2, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx2.Commit(ctx)
		newName := "Updated"
		updated, err := svc.Update(ctx, tx2, created.ID, UpdateRequest{Name: &newName})
		require.NoError(t, err)
		assert.Equal(t, "Updated", updated.Name)
	})

	t.Run("re-validates when pipeline changes", func(t *testing.T) {
		tx2, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx2.Rollback(ctx)
		badPipeline := domain.PipelineConfig{Steps: []domain.PipelineStep{
			{ID: "s1", PromptRef: domain.PromptRefSpec{PromptID: "missing"}},
		}}
		_, err = svc.Update(ctx, tx2, created.ID, UpdateRequest{Pipeline: &badPipeline})
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindNotFound, ae.Kind)
	})

	t.Run("unknown scene id", func(t *testing.T) {
		tx2, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx2.Rollback(ctx)
		newName := "x"
		_, err = svc.Update(ctx, tx2, "nope", UpdateRequest{Name: &newName})
		assert.Error(t, err)
	})
}

func TestSceneService_Delete(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedServiceProject(t, ctx, s, "proj-a")
	svc := NewService(NewValidator())

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	created, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "welcome", Name: "Welcome"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, tx2, created.ID))
	require.NoError(t, tx2.Commit(ctx))

	tx3, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx3.Rollback(ctx)
	_, err = tx3.GetScene(ctx, created.ID)
	assert.Equal(t, store.ErrNotFound, err)
}
