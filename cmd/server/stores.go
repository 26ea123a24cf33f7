package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bridgeguard-backend/internal/config"
	"bridgeguard-backend/internal/ingest"
	"bridgeguard-backend/internal/storage"
	"bridgeguard-backend/internal/storage/sqlstore"
)

type stores interface {
	ingest.BridgeStore
	ingest.SensorLogStore
	ingest.MLOutputStore
	Ping(ctx context.Context) error
	Close()
}

type pgxStores struct {
	*storage.Repository
}

func (s pgxStores) Close() { s.Store.Close() }

type sqlStores struct {
	*sqlstore.Store
}

func (s sqlStores) Close() { _ = s.Store.Close() }

func openStores(ctx context.Context, cfg config.Storage) (stores, error) {
	if strings.EqualFold(cfg.Driver, "pgx") {
		store, err := storage.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return pgxStores{storage.NewRepository(store)}, nil
	}
	store, err := sqlstore.Open(sqlConnection(cfg))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return sqlStores{store}, nil
}

func sqlConnection(cfg config.Storage) sqlstore.ConnectionConfig {
	return sqlstore.ConnectionConfig{
		Type:     cfg.Driver,
		DSN:      cfg.DatabaseURL,
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
	}
}
