// PromptHub server - serves the prompt and scene composition API over
// HTTP.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hyxiaoge/prompthub/pkg/api"
	"github.com/hyxiaoge/prompthub/pkg/calllog"
	"github.com/hyxiaoge/prompthub/pkg/config"
	"github.com/hyxiaoge/prompthub/pkg/llm"
	"github.com/hyxiaoge/prompthub/pkg/project"
	"github.com/hyxiaoge/prompthub/pkg/prompt"
	"github.com/hyxiaoge/prompthub/pkg/render"
	"github.com/hyxiaoge/prompthub/pkg/scene"
	"github.com/hyxiaoge/prompthub/pkg/store/pgstore"
	"github.com/hyxiaoge/prompthub/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()
	dbClient, err := pgstore.NewClient(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbClient.Close()
	logger.Info("connected to database", "host", cfg.Database.Host, "database", cfg.Database.Database)

	port := pgstore.NewPort(dbClient)

	validator := scene.NewValidator()
	renderer := render.New()
	versions := version.NewStore()
	logs := calllog.New(logger)
	engine := scene.NewEngine(versions, renderer, logs)
	exporter := scene.NewExporter()

	var evaluator *llm.Evaluator
	if cfg.LLM.APIKey != "" || cfg.LLM.HealthAddr != "" {
		llmClient, err := llm.NewClient(llm.Config{
			BaseURL:    cfg.LLM.BaseURL,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout,
			HealthAddr: cfg.LLM.HealthAddr,
		})
		if err != nil {
			log.Fatalf("failed to initialize LLM client: %v", err)
		}
		defer llmClient.Close()
		evaluator = llm.NewEvaluator(llmClient, selectBestRubric, cfg.LLM.BatchSize)
		logger.Info("LLM collaborator configured", "base_url", cfg.LLM.BaseURL, "model", cfg.LLM.Model)
	} else {
		logger.Info("no LLM collaborator configured; /ai/evaluate will return LLM_UNAVAILABLE")
	}

	server := api.NewServer(cfg, api.Deps{
		Store:     port,
		Projects:  project.NewService(),
		Prompts:   prompt.NewService(),
		Scenes:    scene.NewService(validator),
		Validator: validator,
		Versions:  versions,
		Renderer:  renderer,
		Engine:    engine,
		Exporter:  exporter,
		Evaluator: evaluator,
		Logger:    logger,
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("HTTP server listening", "port", cfg.HTTPPort, "prefix", cfg.APIPrefix, "version", version.Full())
	if err := server.Run(runCtx, ":"+cfg.HTTPPort); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

const selectBestRubric = "Rate the following prompt output's quality on a scale from 0 to 10. " +
	"Respond with the number first, followed by a one-sentence justification."
