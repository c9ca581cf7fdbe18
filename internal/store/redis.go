package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/recall/internal/memory"
)

const redisKeyPrefix = "recall:session:"

// Redis persists Conversation records as JSON values in Redis. Suited to
// deployments where session state is hot and disposable; the long-term tier
// lives in the vector store regardless.
type Redis struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedis parses the URL, verifies connectivity and returns a Redis store.
func NewRedis(ctx context.Context, url string, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("Redis connected")
	return &Redis{rdb: rdb, logger: logger}, nil
}

func (s *Redis) Load(ctx context.Context, sessionID string) (*memory.Conversation, error) {
	data, err := s.rdb.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", sessionID, err)
	}

	var conv memory.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", sessionID, err)
	}
	return &conv, nil
}

func (s *Redis) Save(ctx context.Context, conv *memory.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", conv.SessionID, err)
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+conv.SessionID, data, 0).Err(); err != nil {
		return fmt.Errorf("save conversation %s: %w", conv.SessionID, err)
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, redisKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete conversation %s: %w", sessionID, err)
	}
	return nil
}

func (s *Redis) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(redisKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return ids, nil
}

// Close tears down the client connection.
func (s *Redis) Close() error {
	return s.rdb.Close()
}
