package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/scene"
	"github.com/hyxiaoge/prompthub/pkg/store"
)

type createSceneRequest struct {
	ProjectID     string                `json:"project_id"`
	Slug          string                `json:"slug"`
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	Pipeline      domain.PipelineConfig `json:"pipeline"`
	MergeStrategy domain.MergeStrategy  `json:"merge_strategy"`
	Separator     string                `json:"separator"`
	OutputFormat  string                `json:"output_format"`
}

func (s *Server) createScene(c *gin.Context) {
	var req createSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withTxCreated(c, func(ctx context.Context, tx store.Tx) (any, error) {
		return s.scenes.Create(ctx, tx, scene.CreateRequest{
			ProjectID:     req.ProjectID,
			Slug:          req.Slug,
			Name:          req.Name,
			Description:   req.Description,
			Pipeline:      req.Pipeline,
			MergeStrategy: req.MergeStrategy,
			Separator:     req.Separator,
			OutputFormat:  req.OutputFormat,
			CreatedBy:     callerSystem(c),
		})
	})
}

func (s *Server) getScene(c *gin.Context) {
	id := c.Param("id")
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		return s.scenes.Get(ctx, tx, id)
	})
}

type updateSceneRequest struct {
	Name          *string                `json:"name"`
	Description   *string                `json:"description"`
	Pipeline      *domain.PipelineConfig `json:"pipeline"`
	MergeStrategy *domain.MergeStrategy  `json:"merge_strategy"`
	Separator     *string                `json:"separator"`
	OutputFormat  *string                `json:"output_format"`
}

func (s *Server) updateScene(c *gin.Context) {
	id := c.Param("id")
	var req updateSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		return s.scenes.Update(ctx, tx, id, scene.UpdateRequest{
			Name:          req.Name,
			Description:   req.Description,
			Pipeline:      req.Pipeline,
			MergeStrategy: req.MergeStrategy,
			Separator:     req.Separator,
			OutputFormat:  req.OutputFormat,
		})
	})
}

func (s *Server) deleteScene(c *gin.Context) {
	id := c.Param("id")
	s.withTxNoContent(c, func(ctx context.Context, tx store.Tx) error {
		return s.scenes.Delete(ctx, tx, id)
	})
}

func (s *Server) listProjectScenes(c *gin.Context) {
	id := c.Param("id")
	page, pageSize, limit, offset := pagination(c, s.cfg.DefaultPageSize)
	ctx := c.Request.Context()
	tx, err := s.store.Begin(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	defer tx.Rollback(ctx)

	items, total, err := s.scenes.List(ctx, tx, id, limit, offset)
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

type resolveRequest struct {
	Variables    domain.ValueMap `json:"variables"`
	CallerSystem string          `json:"caller_system"`
}

// resolveScene implements POST /scenes/{id}/resolve, the single most
// important entry point into the Scene Resolution Engine.
func (s *Server) resolveScene(c *gin.Context) {
	id := c.Param("id")
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	callerSystemName := req.CallerSystem
	if callerSystemName == "" {
		callerSystemName = callerSystem(c)
	}
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		sc, err := s.scenes.Get(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return s.sceneEng.Resolve(ctx, tx, sc, scene.ResolveRequest{
			Variables:    req.Variables,
			CallerSystem: callerSystemName,
			CallerIP:     c.ClientIP(),
		})
	})
}

func (s *Server) sceneDependencies(c *gin.Context) {
	id := c.Param("id")
	s.withTx(c, func(ctx context.Context, tx store.Tx) (any, error) {
		sc, err := s.scenes.Get(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return s.exporter.ExportSceneGraph(ctx, tx, sc)
	})
}
