// Package sources picks the chat backend named by the configuration.
package sources

import (
	"context"
	"fmt"

	"sportlink/sportlink/chatstore"
	"sportlink/sportlink/config"
	"sportlink/sportlink/sources/cache"
	"sportlink/sportlink/sources/psql"
	"sportlink/sportlink/sources/psql/dao"
	"sportlink/sportlink/utils/logging"

	"go.uber.org/zap"
)

// OpenChatStore connects the configured backend and wraps it in a store.
// The returned func releases the connection.
func OpenChatStore(ctx context.Context, cfg config.Config) (*chatstore.Store, func(), error) {
	var (
		backend chatstore.Backend
		closer  = func() {}
	)
	switch cfg.ChatBackend {
	case "memory", "":
		backend = chatstore.NewMemoryBackend()
	case "sql":
		db, err := psql.NewDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection error: %w", err)
		}
		backend = dao.NewChatThreadDAO(db.DB)
		closer = db.Close
	case "redis":
		client, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		backend = cache.NewRedisBackend(client)
		closer = func() { client.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown chat backend %q", cfg.ChatBackend)
	}

	logging.AppLogger.Info("chat store ready",
		zap.String("backend", cfg.ChatBackend),
		zap.Int("retention_days", cfg.ChatRetentionDays),
		zap.Int("max_storage_kb", cfg.ChatMaxStorageKB))
	store := chatstore.NewStore(backend,
		chatstore.WithRetention(cfg.ChatRetention()),
		chatstore.WithMaxStorageKB(cfg.ChatMaxStorageKB),
	)
	return store, closer, nil
}
