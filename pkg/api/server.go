// Package api implements PromptHub's HTTP boundary: request/response
// wiring, the envelope format, and the auth/CORS middleware, atop the
// gin-gonic router tarsy's cmd/tarsy/main.go bootstraps with. Every
// handler does the same three things: decode+shape-validate the request,
// call the core inside a single Port transaction, and map
// the result (or error) through the envelope. No business logic lives
// here; the HTTP boundary is solely responsible for wrapping results in
// the envelope.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hyxiaoge/prompthub/pkg/config"
	"github.com/hyxiaoge/prompthub/pkg/llm"
	"github.com/hyxiaoge/prompthub/pkg/project"
	"github.com/hyxiaoge/prompthub/pkg/prompt"
	"github.com/hyxiaoge/prompthub/pkg/render"
	"github.com/hyxiaoge/prompthub/pkg/scene"
	"github.com/hyxiaoge/prompthub/pkg/store"
	"github.com/hyxiaoge/prompthub/pkg/version"
)

// Server is the HTTP API server wrapping a gin.Engine.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	cfg    config.Config
	logger *slog.Logger

	store     store.Port
	projects  *project.Service
	prompts   *prompt.Service
	scenes    *scene.Service
	validator *scene.Validator
	versions  *version.Store
	renderer  *render.Renderer
	sceneEng  *scene.Engine
	exporter  *scene.Exporter
	evaluator *llm.Evaluator // nil when neither LLM_API_KEY nor LLM_HEALTH_ADDR is set
}

// Deps bundles every collaborator NewServer wires into routes. Evaluator
// is optional: the /ai/evaluate endpoint responds with LLM_UNAVAILABLE
// when it is nil instead of the server failing to start, since the batch
// evaluator is a collaborator endpoint, not the core.
type Deps struct {
	Store     store.Port
	Projects  *project.Service
	Prompts   *prompt.Service
	Scenes    *scene.Service
	Validator *scene.Validator
	Versions  *version.Store
	Renderer  *render.Renderer
	Engine    *scene.Engine
	Exporter  *scene.Exporter
	Evaluator *llm.Evaluator
	Logger    *slog.Logger
}

// NewServer builds the HTTP API server and registers every route.
func NewServer(cfg config.Config, deps Deps) *Server {
	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:    engine,
		cfg:       cfg,
		logger:    logger,
		store:     deps.Store,
		projects:  deps.Projects,
		prompts:   deps.Prompts,
		scenes:    deps.Scenes,
		validator: deps.Validator,
		versions:  deps.Versions,
		renderer:  deps.Renderer,
		sceneEng:  deps.Engine,
		exporter:  deps.Exporter,
		evaluator: deps.Evaluator,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(corsMiddleware(s.cfg.CORSOrigins))
	s.engine.Use(requestLogger(s.logger))

	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group(s.cfg.APIPrefix)
	v1.Use(authMiddleware(s.cfg.AuthToken))

	projects := v1.Group("/projects")
	projects.POST("", s.createProject)
	projects.GET("", s.listProjectsUnsupported)
	projects.GET("/:id", s.getProject)
	projects.PATCH("/:id", s.updateProject)
	projects.GET("/:id/prompts", s.listProjectPrompts)

	prompts := v1.Group("/prompts")
	prompts.POST("", s.createPrompt)
	prompts.GET("", s.listPrompts)
	prompts.GET("/:id", s.getPrompt)
	prompts.PATCH("/:id", s.updatePrompt)
	prompts.PATCH("/:id/share", s.setShare)
	prompts.DELETE("/:id", s.deletePrompt)
	prompts.POST("/:id/render", s.renderPrompt)
	prompts.POST("/:id/publish", s.publishPrompt)
	prompts.GET("/:id/versions", s.listVersions)
	prompts.GET("/:id/versions/:version", s.getVersion)
	prompts.GET("/:id/refs", s.listRefs)
	prompts.POST("/:id/refs", s.createRef)
	prompts.POST("/:id/fork", s.forkPrompt)
	prompts.GET("/:id/impact", s.impactAnalysis)

	v1.DELETE("/refs/:id", s.deleteRef)

	scenes := v1.Group("/scenes")
	scenes.POST("", s.createScene)
	scenes.GET("/:id", s.getScene)
	scenes.PATCH("/:id", s.updateScene)
	scenes.DELETE("/:id", s.deleteScene)
	scenes.POST("/:id/resolve", s.resolveScene)
	scenes.GET("/:id/dependencies", s.sceneDependencies)

	v1.GET("/projects/:id/scenes", s.listProjectScenes)

	v1.POST("/ai/evaluate", s.evaluateBatch)
}

// listProjectsUnsupported documents that project listing is scoped by
// design: the Persistence Port never exposes an unscoped project scan, so
// there is nothing to page over here. Mirrors project_service.py, which
// has no list_projects either.
func (s *Server) listProjectsUnsupported(c *gin.Context) {
	badRequest(c, "listing all projects is not supported; look up a project by id or slug")
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	defer tx.Rollback(ctx)

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": version.GitCommit,
		"llm":     s.evaluator != nil,
	})
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		return nil
	}
}
