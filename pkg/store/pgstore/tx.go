package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/store"
)

// tx adapts a pgx.Tx to store.Tx with hand-written SQL per entity.
type tx struct {
	pgxTx pgx.Tx
}

func (t *tx) Commit(ctx context.Context) error {
	err := t.pgxTx.Commit(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (t *tx) Rollback(ctx context.Context) error {
	err := t.pgxTx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Projects ---------------------------------------------------------

func (t *tx) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	row := t.pgxTx.QueryRow(ctx, `SELECT id, slug, name, description, created_by, created_at, updated_at
		FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

func (t *tx) GetProjectBySlug(ctx context.Context, slug string) (*domain.Project, error) {
	row := t.pgxTx.QueryRow(ctx, `SELECT id, slug, name, description, created_by, created_at, updated_at
		FROM projects WHERE slug = $1`, slug)
	return scanProject(row)
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *tx) UpsertProject(ctx context.Context, p *domain.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := t.pgxTx.Exec(ctx, `
		INSERT INTO projects (id, slug, name, description, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug, name = EXCLUDED.name, description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.Slug, p.Name, p.Description, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// --- Prompts ------------------------------------------------------------

const promptColumns = `id, project_id, slug, name, description, content, format, template_engine,
	variables, tags, category, is_shared, current_version, created_by, created_at, updated_at, deleted_at`

func scanPrompt(row pgx.Row) (*domain.Prompt, error) {
	var p domain.Prompt
	var variablesRaw []byte
	err := row.Scan(&p.ID, &p.ProjectID, &p.Slug, &p.Name, &p.Description, &p.Content, &p.Format,
		&p.TemplateEngine, &variablesRaw, &p.Tags, &p.Category, &p.IsShared, &p.CurrentVersion,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(variablesRaw, &p.Variables); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *tx) GetPrompt(ctx context.Context, id string) (*domain.Prompt, error) {
	row := t.pgxTx.QueryRow(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanPrompt(row)
}

func (t *tx) GetPromptBySlug(ctx context.Context, projectID, slug string) (*domain.Prompt, error) {
	row := t.pgxTx.QueryRow(ctx, `SELECT `+promptColumns+` FROM prompts
		WHERE project_id = $1 AND slug = $2 AND deleted_at IS NULL`, projectID, slug)
	return scanPrompt(row)
}

func (t *tx) ListPromptsByIDs(ctx context.Context, ids []string) ([]*domain.Prompt, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := t.pgxTx.Query(ctx, `SELECT `+promptColumns+` FROM prompts
		WHERE id = ANY($1) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrompts(rows)
}

func (t *tx) ListPromptsByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.Prompt, int, error) {
	var total int
	if err := t.pgxTx.QueryRow(ctx, `SELECT count(*) FROM prompts WHERE project_id = $1 AND deleted_at IS NULL`, projectID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = total
		if limit == 0 {
			limit = 1
		}
	}
	rows, err := t.pgxTx.Query(ctx, `SELECT `+promptColumns+` FROM prompts
		WHERE project_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		projectID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectPrompts(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func collectPrompts(rows pgx.Rows) ([]*domain.Prompt, error) {
	var out []*domain.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *tx) UpsertPrompt(ctx context.Context, p *domain.Prompt) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	variablesJSON, err := marshalJSON(p.Variables)
	if err != nil {
		return err
	}
	_, err = t.pgxTx.Exec(ctx, `
		INSERT INTO prompts (id, project_id, slug, name, description, content, format, template_engine,
			variables, tags, category, is_shared, current_version, created_by, created_at, updated_at, deleted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug, name = EXCLUDED.name, description = EXCLUDED.description,
			content = EXCLUDED.content, format = EXCLUDED.format, template_engine = EXCLUDED.template_engine,
			variables = EXCLUDED.variables, tags = EXCLUDED.tags, category = EXCLUDED.category,
			is_shared = EXCLUDED.is_shared, current_version = EXCLUDED.current_version,
			updated_at = EXCLUDED.updated_at, deleted_at = EXCLUDED.deleted_at`,
		p.ID, p.ProjectID, p.Slug, p.Name, p.Description, p.Content, p.Format, p.TemplateEngine,
		variablesJSON, p.Tags, p.Category, p.IsShared, p.CurrentVersion, p.CreatedBy, p.CreatedAt, p.UpdatedAt, p.DeletedAt)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (t *tx) SoftDeletePrompt(ctx context.Context, id string) error {
	tag, err := t.pgxTx.Exec(ctx, `UPDATE prompts SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Versions -------------------------------------------------------------

func (t *tx) InsertVersion(ctx context.Context, v *domain.PromptVersion) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	variablesJSON, err := marshalJSON(v.Variables)
	if err != nil {
		return err
	}
	_, err = t.pgxTx.Exec(ctx, `
		INSERT INTO prompt_versions (id, prompt_id, version, content, variables, changelog, status, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5::jsonb,$6,$7,$8,$9)`,
		v.ID, v.PromptID, v.Version, v.Content, variablesJSON, v.Changelog, v.Status, v.CreatedBy, v.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (t *tx) GetVersion(ctx context.Context, promptID, version string) (*domain.PromptVersion, error) {
	row := t.pgxTx.QueryRow(ctx, `SELECT id, prompt_id, version, content, variables, changelog, status, created_by, created_at
		FROM prompt_versions WHERE prompt_id = $1 AND version = $2`, promptID, version)
	return scanVersion(row)
}

func scanVersion(row pgx.Row) (*domain.PromptVersion, error) {
	var v domain.PromptVersion
	var variablesRaw []byte
	err := row.Scan(&v.ID, &v.PromptID, &v.Version, &v.Content, &variablesRaw, &v.Changelog, &v.Status, &v.CreatedBy, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(variablesRaw, &v.Variables); err != nil {
		return nil, err
	}
	return &v, nil
}

func (t *tx) ListVersions(ctx context.Context, promptID string) ([]*domain.PromptVersion, error) {
	rows, err := t.pgxTx.Query(ctx, `SELECT id, prompt_id, version, content, variables, changelog, status, created_by, created_at
		FROM prompt_versions WHERE prompt_id = $1 ORDER BY created_at DESC`, promptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.PromptVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Refs -------------------------------------------------------------

func (t *tx) InsertRef(ctx context.Context, r *domain.PromptRef) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	overrideJSON, err := marshalJSON(r.OverrideConfig)
	if err != nil {
		return err
	}
	_, err = t.pgxTx.Exec(ctx, `
		INSERT INTO prompt_refs (id, source_prompt_id, target_prompt_id, source_project_id, target_project_id, ref_type, override_config, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8)`,
		r.ID, r.SourcePromptID, r.TargetPromptID, r.SourceProjectID, r.TargetProjectID, string(r.RefType), overrideJSON, r.CreatedAt)
	return err
}

func scanRef(row pgx.Row) (*domain.PromptRef, error) {
	var r domain.PromptRef
	var refType string
	var overrideRaw []byte
	err := row.Scan(&r.ID, &r.SourcePromptID, &r.TargetPromptID, &r.SourceProjectID, &r.TargetProjectID, &refType, &overrideRaw, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.RefType = domain.RefType(refType)
	if len(overrideRaw) > 0 {
		if err := json.Unmarshal(overrideRaw, &r.OverrideConfig); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func (t *tx) GetRef(ctx context.Context, id string) (*domain.PromptRef, error) {
	row := t.pgxTx.QueryRow(ctx, `SELECT id, source_prompt_id, target_prompt_id, source_project_id, target_project_id, ref_type, override_config, created_at
		FROM prompt_refs WHERE id = $1`, id)
	return scanRef(row)
}

func (t *tx) DeleteRef(ctx context.Context, id string) error {
	tag, err := t.pgxTx.Exec(ctx, `DELETE FROM prompt_refs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) ListRefsTouching(ctx context.Context, promptIDs []string) ([]*domain.PromptRef, error) {
	if len(promptIDs) == 0 {
		return nil, nil
	}
	rows, err := t.pgxTx.Query(ctx, `SELECT id, source_prompt_id, target_prompt_id, source_project_id, target_project_id, ref_type, override_config, created_at
		FROM prompt_refs WHERE source_prompt_id = ANY($1) OR target_prompt_id = ANY($1)`, promptIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.PromptRef
	for rows.Next() {
		r, err := scanRef(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Scenes -------------------------------------------------------------

const sceneColumns = `id, project_id, slug, name, description, pipeline, merge_strategy, separator, output_format, created_by, created_at, updated_at`

func scanScene(row pgx.Row) (*domain.Scene, error) {
	var s domain.Scene
	var pipelineRaw []byte
	var mergeStrategy string
	err := row.Scan(&s.ID, &s.ProjectID, &s.Slug, &s.Name, &s.Description, &pipelineRaw, &mergeStrategy,
		&s.Separator, &s.OutputFormat, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.MergeStrategy = domain.MergeStrategy(mergeStrategy)
	if err := json.Unmarshal(pipelineRaw, &s.Pipeline); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *tx) GetScene(ctx context.Context, id string) (*domain.Scene, error) {
	row := t.pgxTx.QueryRow(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE id = $1`, id)
	return scanScene(row)
}

func (t *tx) GetSceneBySlug(ctx context.Context, projectID, slug string) (*domain.Scene, error) {
	row := t.pgxTx.QueryRow(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE project_id = $1 AND slug = $2`, projectID, slug)
	return scanScene(row)
}

func (t *tx) UpsertScene(ctx context.Context, s *domain.Scene) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	pipelineJSON, err := marshalJSON(s.Pipeline)
	if err != nil {
		return err
	}
	_, err = t.pgxTx.Exec(ctx, `
		INSERT INTO scenes (id, project_id, slug, name, description, pipeline, merge_strategy, separator, output_format, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug, name = EXCLUDED.name, description = EXCLUDED.description,
			pipeline = EXCLUDED.pipeline, merge_strategy = EXCLUDED.merge_strategy,
			separator = EXCLUDED.separator, output_format = EXCLUDED.output_format,
			updated_at = EXCLUDED.updated_at`,
		s.ID, s.ProjectID, s.Slug, s.Name, s.Description, pipelineJSON, string(s.MergeStrategy),
		s.Separator, s.OutputFormat, s.CreatedBy, s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (t *tx) DeleteScene(ctx context.Context, id string) error {
	tag, err := t.pgxTx.Exec(ctx, `DELETE FROM scenes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) ListScenesByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.Scene, int, error) {
	var total int
	if err := t.pgxTx.QueryRow(ctx, `SELECT count(*) FROM scenes WHERE project_id = $1`, projectID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = total
		if limit == 0 {
			limit = 1
		}
	}
	rows, err := t.pgxTx.Query(ctx, `SELECT `+sceneColumns+` FROM scenes
		WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, projectID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*domain.Scene
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (t *tx) ListScenesReferencingPrompt(ctx context.Context, promptID string) ([]*domain.Scene, error) {
	rows, err := t.pgxTx.Query(ctx, `SELECT `+sceneColumns+` FROM scenes
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(pipeline->'steps') step
			WHERE step->'prompt_ref'->>'prompt_id' = $1
		)`, promptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Scene
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- Call logs ------------------------------------------------------------

func (t *tx) InsertCallLog(ctx context.Context, c *domain.CallLog) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	inputJSON, err := marshalJSON(c.InputVariables)
	if err != nil {
		return err
	}
	_, err = t.pgxTx.Exec(ctx, `
		INSERT INTO call_logs (id, prompt_id, scene_id, prompt_version, caller_system, caller_ip,
			input_variables, rendered_content, token_count, response_time_ms, quality_score, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,$10,$11,$12)`,
		c.ID, c.PromptID, c.SceneID, c.PromptVersion, c.CallerSystem, c.CallerIP,
		inputJSON, c.RenderedContent, c.TokenCount, c.ResponseTimeMs, c.QualityScore, c.CreatedAt)
	return err
}
