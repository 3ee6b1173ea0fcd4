package app

import (
	"github.com/partforge/partforge-backend/internal/platform/logger"
	"github.com/partforge/partforge-backend/internal/utils"
)

type Config struct {
	Environment string
	Version     string

	// Actor name under which the engine holds root-file locks during a pass.
	SystemActor string
}

func LoadConfig(log *logger.Logger) Config {
	environment := utils.GetEnv("APP_ENV", "development", log)
	version := utils.GetEnv("APP_VERSION", "dev", log)
	systemActor := utils.GetEnv("DECOMPOSITION_SYSTEM_ACTOR", "partforge-system", log)
	return Config{
		Environment: environment,
		Version:     version,
		SystemActor: systemActor,
	}
}
