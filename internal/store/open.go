package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"lanchat/internal/config"
	"lanchat/internal/database"
)

// Open builds the MessageStore selected by cfg.StoreDriver, wrapped with
// latency metrics and a circuit breaker.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (MessageStore, error) {
	var (
		s   MessageStore
		err error
	)

	switch cfg.StoreDriver {
	case config.DriverMemory, "":
		log.Warn().Msg("using in-memory message store; history is lost on restart")
		s = NewMemoryStore()
	case config.DriverMySQL, config.DriverSQLite:
		db, dbErr := database.Init(ctx, cfg, log)
		if dbErr != nil {
			return nil, dbErr
		}
		dialect := DialectMySQL
		if cfg.StoreDriver == config.DriverSQLite {
			dialect = DialectSQLite
		}
		s, err = NewSQLStore(ctx, db, dialect)
		if err != nil {
			db.Close()
			return nil, err
		}
	case config.DriverMongo:
		client, cErr := NewMongoClient(ctx, cfg.MongoURI)
		if cErr != nil {
			return nil, fmt.Errorf("connect mongo: %w", cErr)
		}
		s, err = NewMongoStore(ctx, client, cfg.MongoDB)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
	case config.DriverRedis:
		s, err = NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	s = Instrument(s, cfg.StoreDriver)
	return WithBreaker(s, BreakerSettings{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, log.With().Str("component", "store").Logger()), nil
}
