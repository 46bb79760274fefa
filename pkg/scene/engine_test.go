package scene

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/calllog"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/render"
	"github.com/hyxiaoge/prompthub/pkg/store/memstore"
	"github.com/hyxiaoge/prompthub/pkg/version"
)

func newTestEngine() *Engine {
	return NewEngine(version.NewStore(), render.New(), calllog.New(nil))
}

func mustCreatePrompt(t *testing.T, ctx context.Context, s *memstore.Store, projectID, content string, opts ...func(*domain.Prompt)) *domain.Prompt {
	t.Helper()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Commit(ctx)

	p := &domain.Prompt{
		ID:        "p-" + content,
		ProjectID: projectID,
		Slug:      "slug-" + content,
		Name:      content,
		Content:   content,
	}
	p.NormalizeNew()
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(t, tx.UpsertPrompt(ctx, p))
	require.NoError(t, tx.InsertVersion(ctx, &domain.PromptVersion{
		PromptID: p.ID, Version: p.CurrentVersion, Content: p.Content, Status: "published",
	}))
	return p
}

// Scenario 1: single step, concat.
func TestResolve_SingleStepConcat(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := mustCreatePrompt(t, ctx, s, "proj-a", "Hello World")

	sc := &domain.Scene{
		ID: "sc1", ProjectID: "proj-a", MergeStrategy: domain.MergeConcat, Separator: "\n\n",
		Pipeline: domain.PipelineConfig{Steps: []domain.PipelineStep{
			{ID: "s1", PromptRef: domain.PromptRefSpec{PromptID: p.ID}},
		}},
	}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	result, err := newTestEngine().Resolve(ctx, tx, sc, ResolveRequest{Variables: domain.ValueMap{}})
	require.NoError(t, err)
	assert.Equal(t, "Hello World", result.FinalContent)
	require.Len(t, result.Steps, 1)
	assert.False(t, result.Steps[0].Skipped)
}

// Scenario 2: override precedence (step beats input, input beats default).
func TestResolve_OverridePrecedence(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := mustCreatePrompt(t, ctx, s, "proj-a", "Hello {{ name }}", func(p *domain.Prompt) {
		def := domain.StringValue("world")
		p.Variables = []domain.VariableDef{{Name: "name", Type: "string", Default: &def}}
	})

	sc := &domain.Scene{
		ID: "sc1", ProjectID: "proj-a", MergeStrategy: domain.MergeConcat, Separator: "\n\n",
		Pipeline: domain.PipelineConfig{Steps: []domain.PipelineStep{
			{ID: "s1", PromptRef: domain.PromptRefSpec{PromptID: p.ID}, Variables: domain.ValueMap{"name": domain.StringValue("Bob")}},
		}},
	}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	result, err := newTestEngine().Resolve(ctx, tx, sc, ResolveRequest{Variables: domain.ValueMap{"name": domain.StringValue("Alice")}})
	require.NoError(t, err)
	assert.Equal(t, "Hello Bob", result.FinalContent)
}

// Scenario 3: chain propagation via output_key.
func TestResolve_ChainPropagation(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p1 := mustCreatePrompt(t, ctx, s, "proj-a", "intro text")
	p2 := mustCreatePrompt(t, ctx, s, "proj-a", "Summary: {{ intro }}", func(p *domain.Prompt) {
		p.Variables = []domain.VariableDef{{Name: "intro", Type: "string", Required: true}}
	})

	sc := &domain.Scene{
		ID: "sc1", ProjectID: "proj-a", MergeStrategy: domain.MergeChain, Separator: "\n\n",
		Pipeline: domain.PipelineConfig{Steps: []domain.PipelineStep{
			{ID: "s1", PromptRef: domain.PromptRefSpec{PromptID: p1.ID}, OutputKey: "intro"},
			{ID: "s2", PromptRef: domain.PromptRefSpec{PromptID: p2.ID}},
		}},
	}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	result, err := newTestEngine().Resolve(ctx, tx, sc, ResolveRequest{Variables: domain.ValueMap{}})
	require.NoError(t, err)
	assert.Equal(t, "Summary: intro text", result.FinalContent)
}

// Scenario 4: condition false skips the step, final content is empty.
func TestResolve_ConditionFalseSkipsStep(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := mustCreatePrompt(t, ctx, s, "proj-a", "should not render")

	sc := &domain.Scene{
		ID: "sc1", ProjectID: "proj-a", MergeStrategy: domain.MergeConcat, Separator: "\n\n",
		Pipeline: domain.PipelineConfig{Steps: []domain.PipelineStep{
			{
				ID:        "s1",
				PromptRef: domain.PromptRefSpec{PromptID: p.ID},
				Condition: &domain.StepCondition{Variable: "run", Operator: domain.OpEq, Value: domain.BoolValue(true)},
			},
		}},
	}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	result, err := newTestEngine().Resolve(ctx, tx, sc, ResolveRequest{Variables: domain.ValueMap{"run": domain.BoolValue(false)}})
	require.NoError(t, err)
	assert.Equal(t, "", result.FinalContent)
	require.Len(t, result.Steps, 1)
	assert.True(t, result.Steps[0].Skipped)
	assert.Equal(t, "Condition not met", result.Steps[0].SkipReason)
}

// Scenario 5: version lock pins content even after a later publish.
func TestResolve_VersionLock(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := mustCreatePrompt(t, ctx, s, "proj-a", "v1 content")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertVersion(ctx, &domain.PromptVersion{PromptID: p.ID, Version: "1.1.0", Content: "v1.1 content", Status: "published"}))
	p.CurrentVersion = "1.1.0"
	p.Content = "v1.1 content"
	require.NoError(t, tx.UpsertPrompt(ctx, p))
	require.NoError(t, tx.Commit(ctx))

	locked := "1.0.0"
	sc := &domain.Scene{
		ID: "sc1", ProjectID: "proj-a", MergeStrategy: domain.MergeConcat, Separator: "\n\n",
		Pipeline: domain.PipelineConfig{Steps: []domain.PipelineStep{
			{ID: "s1", PromptRef: domain.PromptRefSpec{PromptID: p.ID, Version: &locked}},
		}},
	}

	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback(ctx)

	result, err := newTestEngine().Resolve(ctx, tx2, sc, ResolveRequest{Variables: domain.ValueMap{}})
	require.NoError(t, err)
	assert.Equal(t, "v1 content", result.FinalContent)
	assert.Equal(t, "1.0.0", result.Steps[0].Version)
}

// Scenario 6: cross-project denial when the target prompt isn't shared.
func TestResolve_CrossProjectDenial(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := mustCreatePrompt(t, ctx, s, "proj-b", "secret", func(p *domain.Prompt) { p.IsShared = false })

	sc := &domain.Scene{
		ID: "sc1", ProjectID: "proj-a", MergeStrategy: domain.MergeConcat, Separator: "\n\n",
		Pipeline: domain.PipelineConfig{Steps: []domain.PipelineStep{
			{ID: "s1", PromptRef: domain.PromptRefSpec{PromptID: p.ID}},
		}},
	}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	_, err = newTestEngine().Resolve(ctx, tx, sc, ResolveRequest{Variables: domain.ValueMap{}})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindPermissionDenied, ae.Kind)
}

func TestResolve_EmptyPipeline(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	sc := &domain.Scene{ID: "sc1", ProjectID: "proj-a", MergeStrategy: domain.MergeConcat, Separator: "\n\n"}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	result, err := newTestEngine().Resolve(ctx, tx, sc, ResolveRequest{Variables: domain.ValueMap{}})
	require.NoError(t, err)
	assert.Equal(t, "", result.FinalContent)
}

func TestResolve_EmitsCallLog(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	p := mustCreatePrompt(t, ctx, s, "proj-a", "hi")
	sc := &domain.Scene{
		ID: "sc1", ProjectID: "proj-a", MergeStrategy: domain.MergeConcat, Separator: "\n\n",
		Pipeline: domain.PipelineConfig{Steps: []domain.PipelineStep{
			{ID: "s1", PromptRef: domain.PromptRefSpec{PromptID: p.ID}},
		}},
	}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	_, err = newTestEngine().Resolve(ctx, tx, sc, ResolveRequest{Variables: domain.ValueMap{}, CallerSystem: "test-suite"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	logs := s.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "sc1", *logs[0].SceneID)
	assert.Equal(t, "test-suite", logs[0].CallerSystem)
}
