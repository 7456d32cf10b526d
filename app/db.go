package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"example/regcheck-api/app/config"
	"example/regcheck-api/app/store"
	"example/regcheck-api/app/store/memory"
	"example/regcheck-api/app/store/mongo"
	"example/regcheck-api/app/store/postgres"
)

// OpenStore connects the backend selected by DB_DRIVER.
func OpenStore(ctx context.Context, cfg config.DBConfig) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(ctx, cfg.Postgres)
	case "mongo":
		return mongo.Open(ctx, cfg.Mongo)
	case "memory":
		log.Warn().Msg("Using in-memory store; data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Driver)
	}
}

// Migrate prepares the schema (Postgres) or indexes (Mongo) the store relies on.
func Migrate(ctx context.Context, st store.Store) error {
	switch s := st.(type) {
	case *postgres.Store:
		return s.Migrate(ctx)
	case *mongo.Store:
		return s.EnsureIndexes(ctx)
	default:
		return nil
	}
}
