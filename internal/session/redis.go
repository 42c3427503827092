package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/splax/healthmatters/internal/domain"
)

const redisPrefix = "hm:session:"

type redisStore struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewRedisStore constructs a Redis backed session store and verifies connectivity.
func NewRedisStore(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return newRedisStore(client, ttl, logger), nil
}

func newRedisStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *redisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &redisStore{client: client, logger: logger, ttl: ttl}
}

func sessionKey(id string) string { return redisPrefix + id }
func userKey(userID string) string { return redisPrefix + "user:" + userID }

func (s *redisStore) Create(ctx context.Context, userID string) (domain.Session, error) {
	sess, err := newSession(userID, time.Now().UTC(), s.ttl)
	if err != nil {
		return domain.Session{}, err
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return domain.Session{}, fmt.Errorf("encode session: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sess.ID), payload, s.ttl)
		pipe.SAdd(ctx, userKey(userID), sess.ID)
		pipe.Expire(ctx, userKey(userID), s.ttl)
		return nil
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

func (s *redisStore) Get(ctx context.Context, id string) (domain.Session, error) {
	if id == "" {
		return domain.Session{}, ErrNotFound
	}
	payload, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Session{}, ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		s.logger.Warn("discarding undecodable session", "error", err)
		_ = s.client.Del(ctx, sessionKey(id)).Err()
		return domain.Session{}, ErrNotFound
	}
	if sess.Expired(time.Now()) {
		return domain.Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, userKey(sess.UserID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *redisStore) DeleteUser(ctx context.Context, userID string) error {
	ids, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list user sessions: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userKey(userID))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

func (s *redisStore) Close() {
	if s.client != nil {
		_ = s.client.Close()
	}
}
