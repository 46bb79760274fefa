package prompt

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

func seedProject(t *testing.T, ctx context.Context, s *memstore.Store, id string) {
	t.Helper()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Commit(ctx)
	require.NoError(t, tx.UpsertProject(ctx, &domain.Project{ID: id, Slug: id, Name: id}))
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc := NewService()

	t.Run("creates a prompt and its initial 1.0.0 version", func(t *testing.T) {
		s := memstore.New()
		seedProject(t, ctx, s, "proj-a")
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Commit(ctx)

		p, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "greeting", Name: "Greeting", Content: "Hello"})
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", p.CurrentVersion)

		versions, err := tx.ListVersions(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, "1.0.0", versions[0].Version)
		assert.Equal(t, "published", versions[0].Status)
	})

	t.Run("lower-cases tags", func(t *testing.T) {
		s := memstore.New()
		seedProject(t, ctx, s, "proj-a")
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Commit(ctx)

		p, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "greeting", Name: "Greeting", Tags: []string{"Demo", "WELCOME"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"demo", "welcome"}, p.Tags)
	})

	t.Run("rejects unknown project", func(t *testing.T) {
		s := memstore.New()
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)
		_, err = svc.Create(ctx, tx, CreateRequest{ProjectID: "nope", Slug: "greeting", Name: "Greeting"})
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindNotFound, ae.Kind)
	})

	t.Run("rejects duplicate slug within a project", func(t *testing.T) {
		s := memstore.New()
		seedProject(t, ctx, s, "proj-a")
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		_, err = svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "greeting", Name: "Greeting"})
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))

		tx2, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx2.Rollback(ctx)
		_, err = svc.Create(ctx, tx2, CreateRequest{ProjectID: "proj-a", Slug: "greeting", Name: "Greeting Again"})
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindConflict, ae.Kind)
	})
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedProject(t, ctx, s, "proj-a")
	svc := NewService()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "a", Name: "Alpha", Category: "chat", Tags: []string{"demo"}, IsShared: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "b", Name: "Beta", Category: "summarize", Tags: []string{"other"}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback(ctx)

	t.Run("filters by category", func(t *testing.T) {
		results, total, err := svc.List(ctx, tx2, "proj-a", ListFilter{Category: "chat"}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, results, 1)
		assert.Equal(t, "Alpha", results[0].Name)
	})

	t.Run("filters by is_shared", func(t *testing.T) {
		shared := true
		results, total, err := svc.List(ctx, tx2, "proj-a", ListFilter{IsShared: &shared}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, results, 1)
		assert.Equal(t, "Alpha", results[0].Name)
	})

	t.Run("filters by tag", func(t *testing.T) {
		results, _, err := svc.List(ctx, tx2, "proj-a", ListFilter{Tags: []string{"other"}}, 10, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Beta", results[0].Name)
	})

	t.Run("filters by search over name", func(t *testing.T) {
		results, _, err := svc.List(ctx, tx2, "proj-a", ListFilter{Search: "alph"}, 10, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Alpha", results[0].Name)
	})

	t.Run("paginates unfiltered results", func(t *testing.T) {
		results, total, err := svc.List(ctx, tx2, "proj-a", ListFilter{}, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, results, 1)
	})
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedProject(t, ctx, s, "proj-a")
	svc := NewService()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	p, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "greeting", Name: "Greeting", Content: "Hello"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Commit(ctx)
	newContent := "Hello, updated"
	updated, err := svc.Update(ctx, tx2, p.ID, UpdateRequest{Content: &newContent})
	require.NoError(t, err)
	assert.Equal(t, "Hello, updated", updated.Content)
	assert.Equal(t, "1.0.0", updated.CurrentVersion, "Update must not bump the published version")
}

func TestService_Update_UnshareConflict(t *testing.T) {
	ctx := context.Background()
	svc := NewService()

	newSharedPrompt := func(t *testing.T, s *memstore.Store) *domain.Prompt {
		t.Helper()
		seedProject(t, ctx, s, "proj-a")
		seedProject(t, ctx, s, "proj-b")
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		p, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "greeting", Name: "Greeting", IsShared: true})
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))
		return p
	}

	t.Run("rejects unsharing while a cross-project scene depends on it", func(t *testing.T) {
		s := memstore.New()
		p := newSharedPrompt(t, s)

		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Commit(ctx)
		require.NoError(t, tx.UpsertScene(ctx, &domain.Scene{
			ProjectID: "proj-b",
			Slug:      "consumer",
			Name:      "Consumer",
			Pipeline: domain.PipelineConfig{Steps: []domain.PipelineStep{
				{ID: "step-1", PromptRef: domain.PromptRefSpec{PromptID: p.ID}},
			}},
		}))

		unshare := false
		_, err = svc.Update(ctx, tx, p.ID, UpdateRequest{IsShared: &unshare})
		require.Error(t, err)
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindConflict, ae.Kind)
	})

	t.Run("allows unsharing a same-project dependent", func(t *testing.T) {
		s := memstore.New()
		p := newSharedPrompt(t, s)

		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Commit(ctx)
		require.NoError(t, tx.UpsertScene(ctx, &domain.Scene{
			ProjectID: "proj-a",
			Slug:      "consumer",
			Name:      "Consumer",
			Pipeline: domain.PipelineConfig{Steps: []domain.PipelineStep{
				{ID: "step-1", PromptRef: domain.PromptRefSpec{PromptID: p.ID}},
			}},
		}))

		unshare := false
		updated, err := svc.Update(ctx, tx, p.ID, UpdateRequest{IsShared: &unshare})
		require.NoError(t, err)
		assert.False(t, updated.IsShared)
	})

	t.Run("allows unsharing once no scene depends on it", func(t *testing.T) {
		s := memstore.New()
		p := newSharedPrompt(t, s)

		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Commit(ctx)

		unshare := false
		updated, err := svc.Update(ctx, tx, p.ID, UpdateRequest{IsShared: &unshare})
		require.NoError(t, err)
		assert.False(t, updated.IsShared)
	})

	t.Run("allows setting sharing on unconditionally", func(t *testing.T) {
		s := memstore.New()
		p := newSharedPrompt(t, s)

		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx.Commit(ctx)

		share := true
		updated, err := svc.Update(ctx, tx, p.ID, UpdateRequest{IsShared: &share})
		require.NoError(t, err)
		assert.True(t, updated.IsShared)
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedProject(t, ctx, s, "proj-a")
	svc := NewService()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	p, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "greeting", Name: "Greeting"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, tx2, p.ID))
	require.NoError(t, tx2.Commit(ctx))

	tx3, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx3.Rollback(ctx)
	_, err = svc.Get(ctx, tx3, p.ID)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNotFound, ae.Kind)
}

func TestService_CreateRef(t *testing.T) {
	ctx := context.Background()
	svc := NewService()

	t.Run("same-project ref is allowed regardless of sharing", func(t *testing.T) {
		s := memstore.New()
		seedProject(t, ctx, s, "proj-a")
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		a, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "a", Name: "A"})
		require.NoError(t, err)
		b, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "b", Name: "B"})
		require.NoError(t, err)
		defer tx.Commit(ctx)

		ref, err := svc.CreateRef(ctx, tx, a.ID, b.ID, domain.RefIncludes, nil)
		require.NoError(t, err)
		assert.Equal(t, a.ID, ref.SourcePromptID)
		assert.Equal(t, b.ID, ref.TargetPromptID)
	})

	t.Run("cross-project ref to a non-shared prompt is denied", func(t *testing.T) {
		s := memstore.New()
		seedProject(t, ctx, s, "proj-a")
		seedProject(t, ctx, s, "proj-b")
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		a, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "a", Name: "A"})
		require.NoError(t, err)
		b, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-b", Slug: "b", Name: "B", IsShared: false})
		require.NoError(t, err)
		defer tx.Commit(ctx)

		_, err = svc.CreateRef(ctx, tx, a.ID, b.ID, domain.RefIncludes, nil)
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindPermissionDenied, ae.Kind)
	})

	t.Run("a ref that would close a cycle is rejected", func(t *testing.T) {
		s := memstore.New()
		seedProject(t, ctx, s, "proj-a")
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		a, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "a", Name: "A"})
		require.NoError(t, err)
		b, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "b", Name: "B"})
		require.NoError(t, err)
		_, err = svc.CreateRef(ctx, tx, a.ID, b.ID, domain.RefIncludes, nil)
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))

		tx2, err := s.Begin(ctx)
		require.NoError(t, err)
		defer tx2.Rollback(ctx)
		_, err = svc.CreateRef(ctx, tx2, b.ID, a.ID, domain.RefIncludes, nil)
		_, ok := apperr.As(err)
		require.True(t, ok)
	})
}

func TestService_DeleteRef(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedProject(t, ctx, s, "proj-a")
	svc := NewService()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	a, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "a", Name: "A"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "b", Name: "B"})
	require.NoError(t, err)
	ref, err := svc.CreateRef(ctx, tx, a.ID, b.ID, domain.RefIncludes, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteRef(ctx, tx2, ref.ID))
	require.NoError(t, tx2.Commit(ctx))

	tx3, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx3.Rollback(ctx)
	_, err = tx3.GetRef(ctx, ref.ID)
	assert.Equal(t, store.ErrNotFound, err)
}

func TestService_ListRefs(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedProject(t, ctx, s, "proj-a")
	svc := NewService()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	a, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "a", Name: "A"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "b", Name: "B"})
	require.NoError(t, err)
	c, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "c", Name: "C"})
	require.NoError(t, err)
	_, err = svc.CreateRef(ctx, tx, a.ID, b.ID, domain.RefIncludes, nil)
	require.NoError(t, err)
	_, err = svc.CreateRef(ctx, tx, c.ID, a.ID, domain.RefIncludes, nil)
	require.NoError(t, err)
	defer tx.Commit(ctx)

	outgoing, incoming, err := svc.ListRefs(ctx, tx, a.ID)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, b.ID, outgoing[0].TargetPromptID)
	require.Len(t, incoming, 1)
	assert.Equal(t, c.ID, incoming[0].SourcePromptID)
}

func TestImpactAnalysis(t *testing.T) {
	scenes := []*domain.Scene{
		{ID: "sc1", Pipeline: domain.PipelineConfig{Steps: []domain.PipelineStep{
			{ID: "s1", PromptRef: domain.PromptRefSpec{PromptID: "p1"}},
		}}},
		{ID: "sc2", Pipeline: domain.PipelineConfig{Steps: []domain.PipelineStep{
			{ID: "s1", PromptRef: domain.PromptRefSpec{PromptID: "p2"}},
		}}},
	}
	hits := ImpactAnalysis("p1", scenes)
	require.Len(t, hits, 1)
	assert.Equal(t, "sc1", hits[0].ID)
}

func TestService_Fork(t *testing.T) {
	ctx := context.Background()
	svc := NewService()

	t.Run("forks a shared prompt into another project", func(t *testing.T) {
		s := memstore.New()
		seedProject(t, ctx, s, "proj-a")
		seedProject(t, ctx, s, "proj-b")
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		src, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "shared", Name: "Shared", Content: "hi", IsShared: true})
		require.NoError(t, err)
		defer tx.Commit(ctx)

		forked, err := svc.Fork(ctx, tx, src.ID, "proj-b", "", "tester")
		require.NoError(t, err)
		assert.Equal(t, "proj-b", forked.ProjectID)
		assert.False(t, forked.IsShared)
		assert.Equal(t, "shared-fork", forked.Slug)

		outgoing, _, err := svc.ListRefs(ctx, tx, forked.ID)
		require.NoError(t, err)
		require.Len(t, outgoing, 1)
		assert.Equal(t, src.ID, outgoing[0].TargetPromptID)
		assert.Equal(t, domain.RefIncludes, outgoing[0].RefType)
	})

	t.Run("refuses to fork a non-shared prompt", func(t *testing.T) {
		s := memstore.New()
		seedProject(t, ctx, s, "proj-a")
		seedProject(t, ctx, s, "proj-b")
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		src, err := svc.Create(ctx, tx, CreateRequest{ProjectID: "proj-a", Slug: "private", Name: "Private"})
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		_, err = svc.Fork(ctx, tx, src.ID, "proj-b", "", "tester")
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindPermissionDenied, ae.Kind)
	})
}
