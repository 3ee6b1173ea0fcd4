package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/partforge/partforge-backend/internal/data/db"
	"github.com/partforge/partforge-backend/internal/data/repos"
	"github.com/partforge/partforge-backend/internal/observability"
	"github.com/partforge/partforge-backend/internal/platform/gcp"
	"github.com/partforge/partforge-backend/internal/platform/logger"
	"github.com/partforge/partforge-backend/internal/platform/neo4jdb"
	"github.com/partforge/partforge-backend/internal/services"
)

// App wires the engine's services over one database handle and the optional
// vault bucket and graph database clients.
type App struct {
	Log    *logger.Logger
	Config Config
	DB     *gorm.DB
	Repos  *repos.Bundle

	Store         *services.DocumentStoreService
	Projection    *services.BOMProjectionService
	Decomposition *services.DecompositionService

	otelShutdown func(context.Context) error
	neo4jClient  *neo4jdb.Client
}

func New(ctx context.Context, log *logger.Logger) (*App, error) {
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "partforge-backend",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		return nil, fmt.Errorf("postgres init: %w", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("postgres auto migration: %w", err)
	}
	gormDB := postgresService.DB()

	bundle := repos.NewBundle(gormDB, log)

	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		log.Warn("vault bucket unavailable, running metadata-only", "error", err)
		bucket = nil
	}

	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("graph database unavailable, projection disabled", "error", err)
		neoClient = nil
	}

	store := services.NewDocumentStoreService(gormDB, log, bundle.Documents, bundle.DocumentFiles, bucket)
	projection := services.NewBOMProjectionService(neoClient, log, bundle.Parts, bundle.Links)
	decomposition := services.NewDecompositionService(
		gormDB, log, bundle, store, bucket, projection, nil, cfg.SystemActor,
	)

	return &App{
		Log:    log,
		Config: cfg,
		DB:     gormDB,
		Repos:  bundle,

		Store:         store,
		Projection:    projection,
		Decomposition: decomposition,

		otelShutdown: otelShutdown,
		neo4jClient:  neoClient,
	}, nil
}

func (a *App) Close(ctx context.Context) {
	if a.neo4jClient != nil {
		if err := a.neo4jClient.Close(ctx); err != nil {
			a.Log.Warn("neo4j close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
