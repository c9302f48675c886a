package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/saddlefind/internal/store"
)

// storageFlags select where checkpoints live. Traces are always written
// under dataDir; checkpoints go to redis when redisAddr is set.
type storageFlags struct {
	dataDir   string
	redisAddr string
	redisDB   int
}

// open returns the checkpoint store and a function releasing it
func (f storageFlags) open() (store.Store, func(), error) {
	if f.redisAddr == "" {
		st, err := store.NewFSStore(f.dataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		return st, func() {}, nil
	}

	st := store.NewRedisStore(f.redisAddr, "", f.redisDB)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", f.redisAddr, err)
	}
	slog.Debug("Using redis checkpoint store", "addr", f.redisAddr, "db", f.redisDB)
	return st, func() {
		if err := st.Close(); err != nil {
			slog.Warn("Failed to close redis client", "error", err)
		}
	}, nil
}
