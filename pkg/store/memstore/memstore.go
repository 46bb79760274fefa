// Package memstore is an in-memory implementation of store.Port used by
// unit tests for the Dependency Resolver, Scene Validator, and Scene
// Resolution Engine so they don't need a database, mirroring how tarsy
// keeps pure algorithmic pieces (pkg/config's registries) independently
// testable from its Ent-backed services.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/store"
)

// Store is a guarded in-memory Port.
type Store struct {
	mu       sync.Mutex
	projects map[string]*domain.Project
	prompts  map[string]*domain.Prompt
	versions map[string][]*domain.PromptVersion // promptID -> versions
	refs     []*domain.PromptRef
	scenes   map[string]*domain.Scene
	logs     []*domain.CallLog
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		projects: map[string]*domain.Project{},
		prompts:  map[string]*domain.Prompt{},
		versions: map[string][]*domain.PromptVersion{},
		scenes:   map[string]*domain.Scene{},
	}
}

// Begin returns a transaction view over the store. There is no real
// isolation — the whole store is guarded by one mutex for the lifetime of
// the "transaction" — which is sufficient for the sequential, single-writer
// tests this implementation exists for.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	s.mu.Lock()
	return &tx{s: s, open: true}, nil
}

type tx struct {
	s    *Store
	open bool
}

func (t *tx) Commit(ctx context.Context) error {
	if t.open {
		t.open = false
		t.s.mu.Unlock()
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.open {
		t.open = false
		t.s.mu.Unlock()
	}
	return nil
}

func cloneProject(p *domain.Project) *domain.Project {
	c := *p
	return &c
}

func clonePrompt(p *domain.Prompt) *domain.Prompt {
	c := *p
	c.Variables = append([]domain.VariableDef(nil), p.Variables...)
	c.Tags = append([]string(nil), p.Tags...)
	return &c
}

func cloneScene(s *domain.Scene) *domain.Scene {
	c := *s
	c.Pipeline.Steps = append([]domain.PipelineStep(nil), s.Pipeline.Steps...)
	return &c
}

func (t *tx) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	p, ok := t.s.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneProject(p), nil
}

func (t *tx) GetProjectBySlug(ctx context.Context, slug string) (*domain.Project, error) {
	for _, p := range t.s.projects {
		if p.Slug == slug {
			return cloneProject(p), nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) UpsertProject(ctx context.Context, p *domain.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	for _, existing := range t.s.projects {
		if existing.Slug == p.Slug && existing.ID != p.ID {
			return store.ErrAlreadyExists
		}
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	t.s.projects[p.ID] = cloneProject(p)
	return nil
}

func (t *tx) GetPrompt(ctx context.Context, id string) (*domain.Prompt, error) {
	p, ok := t.s.prompts[id]
	if !ok || !p.IsLive() {
		return nil, store.ErrNotFound
	}
	return clonePrompt(p), nil
}

func (t *tx) GetPromptBySlug(ctx context.Context, projectID, slug string) (*domain.Prompt, error) {
	for _, p := range t.s.prompts {
		if p.ProjectID == projectID && p.Slug == slug && p.IsLive() {
			return clonePrompt(p), nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) ListPromptsByIDs(ctx context.Context, ids []string) ([]*domain.Prompt, error) {
	out := make([]*domain.Prompt, 0, len(ids))
	for _, id := range ids {
		if p, ok := t.s.prompts[id]; ok && p.IsLive() {
			out = append(out, clonePrompt(p))
		}
	}
	return out, nil
}

func (t *tx) ListPromptsByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.Prompt, int, error) {
	var all []*domain.Prompt
	for _, p := range t.s.prompts {
		if p.ProjectID == projectID && p.IsLive() {
			all = append(all, clonePrompt(p))
		}
	}
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (t *tx) UpsertPrompt(ctx context.Context, p *domain.Prompt) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	for _, existing := range t.s.prompts {
		if existing.ID != p.ID && existing.ProjectID == p.ProjectID && existing.Slug == p.Slug && existing.IsLive() {
			return store.ErrAlreadyExists
		}
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	t.s.prompts[p.ID] = clonePrompt(p)
	return nil
}

func (t *tx) SoftDeletePrompt(ctx context.Context, id string) error {
	p, ok := t.s.prompts[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	p.DeletedAt = &now
	return nil
}

func (t *tx) InsertVersion(ctx context.Context, v *domain.PromptVersion) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	for _, existing := range t.s.versions[v.PromptID] {
		if existing.Version == v.Version {
			return store.ErrAlreadyExists
		}
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	cp := *v
	cp.Variables = append([]domain.VariableDef(nil), v.Variables...)
	t.s.versions[v.PromptID] = append(t.s.versions[v.PromptID], &cp)
	return nil
}

func (t *tx) GetVersion(ctx context.Context, promptID, version string) (*domain.PromptVersion, error) {
	for _, v := range t.s.versions[promptID] {
		if v.Version == version {
			cp := *v
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) ListVersions(ctx context.Context, promptID string) ([]*domain.PromptVersion, error) {
	vs := t.s.versions[promptID]
	out := make([]*domain.PromptVersion, len(vs))
	copy(out, vs)
	// newest first by created_at
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (t *tx) InsertRef(ctx context.Context, r *domain.PromptRef) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	cp := *r
	t.s.refs = append(t.s.refs, &cp)
	return nil
}

func (t *tx) GetRef(ctx context.Context, id string) (*domain.PromptRef, error) {
	for _, r := range t.s.refs {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) DeleteRef(ctx context.Context, id string) error {
	for i, r := range t.s.refs {
		if r.ID == id {
			t.s.refs = append(t.s.refs[:i], t.s.refs[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *tx) ListRefsTouching(ctx context.Context, promptIDs []string) ([]*domain.PromptRef, error) {
	set := make(map[string]bool, len(promptIDs))
	for _, id := range promptIDs {
		set[id] = true
	}
	var out []*domain.PromptRef
	for _, r := range t.s.refs {
		if set[r.SourcePromptID] || set[r.TargetPromptID] {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *tx) GetScene(ctx context.Context, id string) (*domain.Scene, error) {
	s, ok := t.s.scenes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneScene(s), nil
}

func (t *tx) GetSceneBySlug(ctx context.Context, projectID, slug string) (*domain.Scene, error) {
	for _, s := range t.s.scenes {
		if s.ProjectID == projectID && s.Slug == slug {
			return cloneScene(s), nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) UpsertScene(ctx context.Context, s *domain.Scene) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	for _, existing := range t.s.scenes {
		if existing.ID != s.ID && existing.ProjectID == s.ProjectID && existing.Slug == s.Slug {
			return store.ErrAlreadyExists
		}
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	t.s.scenes[s.ID] = cloneScene(s)
	return nil
}

func (t *tx) DeleteScene(ctx context.Context, id string) error {
	if _, ok := t.s.scenes[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.s.scenes, id)
	return nil
}

func (t *tx) ListScenesByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.Scene, int, error) {
	var all []*domain.Scene
	for _, s := range t.s.scenes {
		if s.ProjectID == projectID {
			all = append(all, cloneScene(s))
		}
	}
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (t *tx) ListScenesReferencingPrompt(ctx context.Context, promptID string) ([]*domain.Scene, error) {
	var out []*domain.Scene
	for _, s := range t.s.scenes {
		for _, step := range s.Pipeline.Steps {
			if step.PromptRef.PromptID == promptID {
				out = append(out, cloneScene(s))
				break
			}
		}
	}
	return out, nil
}

func (t *tx) InsertCallLog(ctx context.Context, c *domain.CallLog) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	t.s.logs = append(t.s.logs, &cp)
	return nil
}

// Logs returns a snapshot of every call log inserted so far, for test
// assertions.
func (s *Store) Logs() []*domain.CallLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.CallLog, len(s.logs))
	copy(out, s.logs)
	return out
}
