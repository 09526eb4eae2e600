package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"lanchat/internal/config"
)

// connectTimeout bounds how long startup waits for the database
const connectTimeout = 30 * time.Second

// Init opens the SQL database selected by cfg.StoreDriver and waits until it answers a ping.
func Init(ctx context.Context, cfg config.Config, log zerolog.Logger) (*sql.DB, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := Open(ctx, "mysql", cfg.MySQLDSN(), log)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		return db, nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err := Open(ctx, "sqlite3", cfg.SQLitePath+"?_journal_mode=WAL&_busy_timeout=5000", log)
		if err != nil {
			return nil, err
		}
		// sqlite は単一ライター
		db.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("store driver %q is not an sql database", cfg.StoreDriver)
	}
}

// Open opens driverName and retries the initial ping with exponential backoff.
// The database container often starts after the chat server on a LAN box.
func Open(ctx context.Context, driverName, dsn string, log zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectTimeout

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.Warn().Err(err).Str("driver", driverName).Int("attempt", attempt).Msg("database not ready")
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driverName, err)
	}
	return db, nil
}
