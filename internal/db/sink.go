// Package db persists accepted records. Every backend implements Sink and
// treats the slug as the record's unique key.
package db

import (
	"context"
	"fmt"

	"content_spider/internal/config"
	"content_spider/internal/logger"
	"content_spider/internal/models"
)

type Sink interface {
	// Save stores rec. It reports false when the slug was already present
	// and the record was not inserted.
	Save(ctx context.Context, rec *models.ContentRecord) (bool, error)
	Close() error
}

// Open connects the sink selected by cfg.Driver. It returns a nil Sink when
// no driver is configured.
func Open(ctx context.Context, cfg config.DBConfig, log logger.Logger) (Sink, error) {
	switch cfg.Driver {
	case config.DriverNone:
		return nil, nil
	case config.DriverMongo:
		return NewMongoDB(ctx, cfg, log)
	case config.DriverPostgres, config.DriverSQLite:
		store, err := OpenSQL(ctx, cfg.Driver, cfg.Connection)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}
