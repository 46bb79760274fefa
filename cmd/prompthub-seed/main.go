// prompthub-seed populates a fresh database with a demo project, prompt,
// and scene for local development, mirroring the role
// scripts/seed_data.py plays in the original: a one-shot, idempotent
// bootstrap run once against a freshly migrated database.
package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/hyxiaoge/prompthub/pkg/config"
	"github.com/hyxiaoge/prompthub/pkg/domain"
	"github.com/hyxiaoge/prompthub/pkg/project"
	"github.com/hyxiaoge/prompthub/pkg/prompt"
	"github.com/hyxiaoge/prompthub/pkg/scene"
	"github.com/hyxiaoge/prompthub/pkg/store"
	"github.com/hyxiaoge/prompthub/pkg/store/pgstore"
)

const (
	demoProjectSlug = "demo"
	demoPromptSlug  = "greeting"
	demoSceneSlug   = "welcome"
	seedUser        = "seed-script"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx := context.Background()
	dbClient, err := pgstore.NewClient(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbClient.Close()

	port := pgstore.NewPort(dbClient)
	tx, err := port.Begin(ctx)
	if err != nil {
		log.Fatalf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	if err := seed(ctx, tx); err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("failed to commit seed transaction: %v", err)
	}
	log.Println("seed complete")
}

func seed(ctx context.Context, tx store.Tx) error {
	projects := project.NewService()
	prompts := prompt.NewService()
	scenes := scene.NewService(scene.NewValidator())

	proj, err := tx.GetProjectBySlug(ctx, demoProjectSlug)
	if err != nil {
		if err != store.ErrNotFound {
			return err
		}
		proj, err = projects.Create(ctx, tx, project.CreateRequest{
			Slug:        demoProjectSlug,
			Name:        "Demo Project",
			Description: "Seeded demo project for local development",
			CreatedBy:   seedUser,
		})
		if err != nil {
			return err
		}
		log.Printf("created project %s", proj.ID)
	}

	existing, err := tx.GetPromptBySlug(ctx, proj.ID, demoPromptSlug)
	if err != nil && err != store.ErrNotFound {
		return err
	}
	if existing == nil {
		p, err := prompts.Create(ctx, tx, prompt.CreateRequest{
			ProjectID:   proj.ID,
			Slug:        demoPromptSlug,
			Name:        "Greeting",
			Description: "A minimal greeting prompt",
			Content:     "Hello {{ name }}, welcome to PromptHub.",
			Variables: []domain.VariableDef{
				{Name: "name", Type: "string", Required: false, Default: ptr(domain.StringValue("world"))},
			},
			Tags:      []string{"demo"},
			Category:  "onboarding",
			IsShared:  true,
			CreatedBy: seedUser,
		})
		if err != nil {
			return err
		}
		existing = p
		log.Printf("created prompt %s", p.ID)
	}

	if _, err := tx.GetSceneBySlug(ctx, proj.ID, demoSceneSlug); err == store.ErrNotFound {
		sc, err := scenes.Create(ctx, tx, scene.CreateRequest{
			ProjectID:   proj.ID,
			Slug:        demoSceneSlug,
			Name:        "Welcome Scene",
			Description: "Single-step scene wrapping the greeting prompt",
			Pipeline: domain.PipelineConfig{
				Steps: []domain.PipelineStep{
					{ID: "greet", PromptRef: domain.PromptRefSpec{PromptID: existing.ID}},
				},
			},
			MergeStrategy: domain.MergeConcat,
			CreatedBy:     seedUser,
		})
		if err != nil {
			return err
		}
		log.Printf("created scene %s", sc.ID)
	} else if err != nil {
		return err
	}

	return nil
}

func ptr[T any](v T) *T { return &v }
