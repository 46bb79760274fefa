package api

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/prompt"
	"github.com/hyxiaoge/prompthub/pkg/store"
	"github.com/hyxiaoge/prompthub/pkg/version"
)

type createPromptRequest struct {
	ProjectID      string               `json:"project_id"`
	Slug           string               `json:"slug"`
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	Content        string               `json:"content"`
	Format         string               `json:"format"`
	TemplateEngine string               `json:"template_engine"`
	Variables      []domain.VariableDef `json:"variables"`
	Tags           []string             `json:"tags"`
	Category       string               `json:"category"`
	IsShared       bool                 `json:"is_shared"`
}

func (s *Server) createPrompt(c *gin.Context) {
	var req createPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withTxCreated(c, func(ctx context.Context, tx store.Tx) (any, error) {
		return s.prompts.Create(ctx, tx, prompt.CreateRequest{
			ProjectID:      req.ProjectID,
			Slug:           req.Slug,
			Name:           req.Name,
			Description:    req.Description,
			Content:        req.Content,
			Format:         req.Format,
			TemplateEngine: req.TemplateEngine,
			Variables:      req.Variables,
			Tags:           req.Tags,
			Category:       req.Category,
			IsShared:       req.IsShared,
			CreatedBy:      callerSystem(c),
		})
	})
}

func (s *Server) getPrompt(c *gin.Context) {
	id := c.Param("id")
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		return s.prompts.Get(ctx, tx, id)
	})
}

type updatePromptRequest struct {
	Name        *string              `json:"name"`
	Description *string              `json:"description"`
	Content     *string              `json:"content"`
	Tags        []string             `json:"tags"`
	Category    *string              `json:"category"`
	IsShared    *bool                `json:"is_shared"`
	Variables   []domain.VariableDef `json:"variables"`
}

func (s *Server) updatePrompt(c *gin.Context) {
	id := c.Param("id")
	var req updatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		return s.prompts.Update(ctx, tx, id, prompt.UpdateRequest{
			Name:        req.Name,
			Description: req.Description,
			Content:     req.Content,
			Tags:        req.Tags,
			Category:    req.Category,
			IsShared:    req.IsShared,
			Variables:   req.Variables,
		})
	})
}

type shareRequest struct {
	IsShared bool `json:"is_shared"`
}

// setShare implements PATCH /prompts/{id}/share: turning sharing on is
// purely additive, turning it off is rejected with CONFLICT when a scene
// in another project still depends on the prompt.
func (s *Server) setShare(c *gin.Context) {
	id := c.Param("id")
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		return s.prompts.Update(ctx, tx, id, prompt.UpdateRequest{IsShared: &req.IsShared})
	})
}

func (s *Server) deletePrompt(c *gin.Context) {
	id := c.Param("id")
	s.withTxNoContent(c, func(ctx context.Context, tx store.Tx) error {
		return s.prompts.Delete(ctx, tx, id)
	})
}

type renderRequest struct {
	Variables domain.ValueMap `json:"variables"`
}

// renderPrompt implements POST /prompts/{id}/render. variables_used
// echoes the caller-supplied variables, not the defaults-filled set the
// renderer computes internally, matching prompt_service.py's
// render_prompt response shape.
func (s *Server) renderPrompt(c *gin.Context) {
	id := c.Param("id")
	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		p, err := s.prompts.Get(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		rendered, err := s.renderer.Render(p.Content, p.Variables, req.Variables)
		if err != nil {
			return nil, err
		}
		return gin.H{
			"prompt_id":        p.ID,
			"version":          p.CurrentVersion,
			"rendered_content": rendered,
			"variables_used":   req.Variables,
		}, nil
	})
}

type publishRequest struct {
	Bump      version.BumpKind     `json:"bump"`
	Changelog string               `json:"changelog"`
	Content   *string              `json:"content"`
	Variables []domain.VariableDef `json:"variables"`
}

func (s *Server) publishPrompt(c *gin.Context) {
	id := c.Param("id")
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withTxCreated(c, func(ctx context.Context, tx store.Tx) (any, error) {
		p, err := s.prompts.Get(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return s.versions.Publish(ctx, tx, p, version.PublishRequest{
			Bump:              req.Bump,
			ContentOverride:   req.Content,
			VariablesOverride: req.Variables,
			Changelog:         req.Changelog,
			By:                callerSystem(c),
		})
	})
}

func (s *Server) listVersions(c *gin.Context) {
	id := c.Param("id")
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		return s.versions.ListVersions(ctx, tx, id)
	})
}

func (s *Server) getVersion(c *gin.Context) {
	id := c.Param("id")
	ver := c.Param("version")
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		p, err := s.prompts.Get(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return s.versions.GetVersion(ctx, tx, p, ver)
	})
}

func (s *Server) listRefs(c *gin.Context) {
	id := c.Param("id")
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		outgoing, incoming, err := s.prompts.ListRefs(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return gin.H{"outgoing": outgoing, "incoming": incoming}, nil
	})
}

type createRefRequest struct {
	TargetPromptID string                  `json:"target_prompt_id"`
	RefType        domain.RefType          `json:"ref_type"`
	OverrideConfig map[string]domain.Value `json:"override_config"`
}

func (s *Server) createRef(c *gin.Context) {
	sourceID := c.Param("id")
	var req createRefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withTxCreated(c, func(ctx context.Context, tx store.Tx) (any, error) {
		return s.prompts.CreateRef(ctx, tx, sourceID, req.TargetPromptID, req.RefType, req.OverrideConfig)
	})
}

func (s *Server) deleteRef(c *gin.Context) {
	id := c.Param("id")
	s.withTxNoContent(c, func(ctx context.Context, tx store.Tx) error {
		return s.prompts.DeleteRef(ctx, tx, id)
	})
}

type forkRequest struct {
	TargetProjectID string `json:"target_project_id"`
	Slug            string `json:"slug"`
}

func (s *Server) forkPrompt(c *gin.Context) {
	sourceID := c.Param("id")
	var req forkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withTxCreated(c, func(ctx context.Context, tx store.Tx) (any, error) {
		return s.prompts.Fork(ctx, tx, sourceID, req.TargetProjectID, req.Slug, callerSystem(c))
	})
}

// impactAnalysis scopes its candidate scene set to the prompt's own
// project: a scene in another project that references this (shared)
// prompt is not reported.
func (s *Server) impactAnalysis(c *gin.Context) {
	id := c.Param("id")
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		p, err := s.prompts.Get(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		candidates, _, err := tx.ListScenesByProject(ctx, p.ProjectID, 1<<30, 0)
		if err != nil {
			return nil, err
		}
		return prompt.ImpactAnalysis(id, candidates), nil
	})
}

// listPrompts implements GET /prompts, filtered and paginated, mirroring
// prompt_service.py's list_prompts. project_id is required since the
// Persistence Port only paginates within a project.
func (s *Server) listPrompts(c *gin.Context) {
	projectID := c.Query("project_id")
	if projectID == "" {
		fail(c, apperr.Validation("", "project_id is required"))
		return
	}
	var tags []string
	if raw := c.Query("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	var isShared *bool
	if raw := c.Query("is_shared"); raw != "" {
		v := raw == "true"
		isShared = &v
	}

	page, pageSize, limit, offset := pagination(c, s.cfg.DefaultPageSize)
	ctx := c.Request.Context()
	tx, err := s.store.Begin(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	defer tx.Rollback(ctx)

	items, total, err := s.prompts.List(ctx, tx, projectID, prompt.ListFilter{
		Slug:     c.Query("slug"),
		Tags:     tags,
		Category: c.Query("category"),
		IsShared: isShared,
		Search:   c.Query("search"),
	}, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		fail(c, err)
		return
	}
	okPaged(c, items, newPageMeta(page, pageSize, total))
}
