package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/config"
	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

// RedisTurnStore implements TurnStore on a Redis list per session.
type RedisTurnStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisTurnStore(cfg config.RedisConfig, logger *logrus.Logger) *RedisTurnStore {
	if logger == nil {
		logger = logrus.New()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	return &RedisTurnStore{client: rdb, logger: logger}
}

func (s *RedisTurnStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisTurnStore) Close() error {
	return s.client.Close()
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:short_term_memory", sessionID)
}

func (s *RedisTurnStore) Append(ctx context.Context, sessionID string, turn models.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	if err := s.client.RPush(ctx, sessionKey(sessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"role":       turn.Role,
	}).Debug("Turn appended to short-term memory")
	return nil
}

func (s *RedisTurnStore) ReadLast(ctx context.Context, sessionID string, n int) ([]models.Turn, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}

	raw, err := s.client.LRange(ctx, sessionKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}

	turns := make([]models.Turn, 0, len(raw))
	for _, item := range raw {
		var turn models.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			s.logger.WithError(err).WithField("session_id", sessionID).
				Warn("Skipping undecodable turn in buffer")
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisTurnStore) Len(ctx context.Context, sessionID string) (int, error) {
	n, err := s.client.LLen(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to measure turn buffer: %w", err)
	}
	return int(n), nil
}

func (s *RedisTurnStore) TruncateToLast(ctx context.Context, sessionID string, n int) error {
	if err := s.client.LTrim(ctx, sessionKey(sessionID), int64(-n), -1).Err(); err != nil {
		return fmt.Errorf("failed to trim turn buffer: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"keep":       n,
	}).Debug("Turn buffer trimmed")
	return nil
}

func (s *RedisTurnStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete turn buffer: %w", err)
	}
	return nil
}
