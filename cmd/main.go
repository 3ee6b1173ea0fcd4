package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/partforge/partforge-backend/internal/app"
	"github.com/partforge/partforge-backend/internal/modules/assembly"
	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
	"github.com/partforge/partforge-backend/internal/services"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	application, err := app.New(ctx, log)
	if err != nil {
		log.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer application.Close(ctx)

	switch os.Args[1] {
	case "decompose", "sync":
		// Both run the same pass; the engine picks first build vs update.
		if err := runDecompose(ctx, application, os.Args[2:]); err != nil {
			log.Error("decompose failed", "error", err)
			os.Exit(1)
		}
	case "migrate":
		// app.New already ran migrations.
		log.Info("migrations applied")
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  partforge decompose <root-part-id> <root-file-id> <tree.json> [actor]")
	fmt.Fprintln(os.Stderr, "  partforge sync <root-part-id> <root-file-id> <tree.json> [actor]")
	fmt.Fprintln(os.Stderr, "  partforge migrate")
}

func runDecompose(ctx context.Context, application *app.App, args []string) error {
	if len(args) < 3 {
		usage()
		return fmt.Errorf("decompose: missing arguments")
	}

	rootPartID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("decompose: bad root part id: %w", err)
	}
	rootFileID, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("decompose: bad root file id: %w", err)
	}

	raw, err := os.ReadFile(args[2])
	if err != nil {
		return fmt.Errorf("decompose: read tree: %w", err)
	}
	var tree assembly.AssemblyNode
	if err := json.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("decompose: parse tree: %w", err)
	}

	actor := application.Config.SystemActor
	if len(args) > 3 {
		actor = args[3]
	}

	// The part's timestamp as read now is the optimistic token for the pass.
	var expected *time.Time
	if part, err := application.Repos.Parts.GetByID(dbctx.Context{Ctx: ctx}, rootPartID); err == nil && part != nil {
		ts := part.LastModifiedAt
		expected = &ts
	}

	started := time.Now()
	result, err := application.Decomposition.Decompose(ctx, services.DecomposeInput{
		RootPartID:             rootPartID,
		RootFileID:             rootFileID,
		Tree:                   &tree,
		Actor:                  actor,
		ExpectedLastModifiedAt: expected,
	})
	if err != nil {
		return err
	}

	application.Log.Info("decomposition finished",
		"run_id", result.RunID,
		"updated", result.Updated,
		"duration", time.Since(started).String())

	out, _ := json.MarshalIndent(result.Delta, "", "  ")
	fmt.Println(string(out))
	return nil
}
