package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	types "github.com/partforge/partforge-backend/internal/domain"
	"github.com/partforge/partforge-backend/internal/platform/logger"
	"github.com/partforge/partforge-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(logg *logger.Logger) (*PostgresService, error) {
	serviceLog := logg.With("service", "PostgresService")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	driver := utils.GetEnv("DB_DRIVER", "postgres", logg)

	var (
		handle *gorm.DB
		err    error
	)
	switch driver {
	case "sqlite":
		// Local development mode; uuid defaults come from the application,
		// not the database.
		path := utils.GetEnv("SQLITE_PATH", "partforge.db", logg)
		handle, err = gorm.Open(sqlite.Open(path), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLog,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
	default:
		postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", logg)
		postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", logg)
		postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", logg)
		postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", logg)
		postgresName := utils.GetEnv("POSTGRES_NAME", "partforge", logg)

		dsn := fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			postgresUser,
			postgresPassword,
			postgresHost,
			postgresPort,
			postgresName,
		)

		handle, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLog,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}

		if err := handle.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
		}
	}

	return &PostgresService{db: handle, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB { return s.db }

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	err := s.db.AutoMigrate(
		&types.Part{},
		&types.ParentChildLink{},
		&types.LocationExtension{},

		&types.Document{},
		&types.DocumentFile{},

		&types.DecompositionRun{},
		&types.DecompositionAction{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}
