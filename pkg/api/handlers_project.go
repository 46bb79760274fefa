package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/hyxiaoge/prompthub/pkg/project"
	"github.com/hyxiaoge/prompthub/pkg/store"
)

type createProjectRequest struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) createProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withTxCreated(c, func(ctx context.Context, tx store.Tx) (any, error) {
		return s.projects.Create(ctx, tx, project.CreateRequest{
			Slug:        req.Slug,
			Name:        req.Name,
			Description: req.Description,
			CreatedBy:   callerSystem(c),
		})
	})
}

func (s *Server) getProject(c *gin.Context) {
	id := c.Param("id")
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		p, counts, err := s.projects.GetWithCounts(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return gin.H{
			"project":      p,
			"prompt_count": counts.PromptCount,
			"scene_count":  counts.SceneCount,
		}, nil
	})
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) updateProject(c *gin.Context) {
	id := c.Param("id")
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		return s.projects.Update(ctx, tx, id, project.UpdateRequest{
			Name:        req.Name,
			Description: req.Description,
		})
	})
}

func (s *Server) listProjectPrompts(c *gin.Context) {
	id := c.Param("id")
	page, pageSize, limit, offset := pagination(c, s.cfg.DefaultPageSize)
	ctx := c.Request.Context()
	tx, err := s.store.Begin(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	defer tx.Rollback(ctx)

	items, total, err := s.projects.ListPrompts(ctx, tx, id, limit, offset)
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
