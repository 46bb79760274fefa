package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/store/memstore"
)

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc := NewService()

	t.Run("creates a project", func(t *testing.T) {
		s := memstore.New()
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Commit(ctx)

		p, err := svc.Create(ctx, tx, CreateRequest{Slug: "demo", Name: "Demo"})
		require.NoError(t, err)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, "demo", p.Slug)
	})

	t.Run("rejects an invalid slug", func(t *testing.T) {
		s := memstore.New()
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		_, err = svc.Create(ctx, tx, CreateRequest{Slug: "Not Valid", Name: "Demo"})
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindValidation, ae.Kind)
	})

	t.Run("rejects a missing name", func(t *testing.T) {
		s := memstore.New()
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		_, err = svc.Create(ctx, tx, CreateRequest{Slug: "demo"})
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindValidation, ae.Kind)
	})

	t.Run("rejects a duplicate slug", func(t *testing.T) {
		s := memstore.New()
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		_, err = svc.Create(ctx, tx, CreateRequest{Slug: "demo", Name: "Demo"})
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))

		tx2, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx2.Rollback(ctx)
		_, err = svc.Create(ctx, tx2, CreateRequest{Slug: "demo", Name: "Demo Again"})
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindConflict, ae.Kind)
	})
}

func TestService_GetWithCounts(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := NewService()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	p, err := svc.Create(ctx, tx, CreateRequest{Slug: "demo", Name: "Demo"})
	require.NoError(t, err)
	require.NoError(t, tx.UpsertPrompt(ctx, &domain.Prompt{ID: "pr1", ProjectID: p.ID, Slug: "greet", Name: "Greet", Content: "hi", CurrentVersion: "1.0.0"}))
	require.NoError(t, tx.UpsertScene(ctx, &domain.Scene{ID: "sc1", ProjectID: p.ID, Slug: "welcome", Name: "Welcome", MergeStrategy: domain.MergeConcat}))
	require.NoError(t, tx.Commit(ctx))

	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback(ctx)

	_, counts, err := svc.GetWithCounts(ctx, tx2, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.PromptCount)
	assert.Equal(t, 1, counts.SceneCount)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := NewService()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	p, err := svc.Create(ctx, tx, CreateRequest{Slug: "demo", Name: "Demo"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Commit(ctx)
	newName := "Renamed"
	updated, err := svc.Update(ctx, tx2, p.ID, UpdateRequest{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "demo", updated.Slug)
}

func TestService_ListPrompts(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := NewService()

	t.Run("unknown project", func(t *testing.T) {
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)
		_, _, err = svc.ListPrompts(ctx, tx, "nope", 10, 0)
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindNotFound, ae.Kind)
	})

	t.Run("paginates live prompts", func(t *testing.T) {
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		p, err := svc.Create(ctx, tx, CreateRequest{Slug: "demo2", Name: "Demo2"})
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			require.NoError(t, tx.UpsertPrompt(ctx, &domain.Prompt{
				ID: "pr-" + string(rune('a'+i)), ProjectID: p.ID, Slug: "s" + string(rune('a'+i)),
				Name: "n", Content: "x", CurrentVersion: "1.0.0",
			}))
		}
		require.NoError(t, tx.Commit(ctx))

		tx2, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx2.Rollback(ctx)
		prompts, total, err := svc.ListPrompts(ctx, tx2, p.ID, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, prompts, 2)
	})
}
