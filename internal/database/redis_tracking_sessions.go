package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"dispatch-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisTrackingSessionStore keeps tracking sessions in Redis.
//
//	tracking:code:{CODE}       JSON session, kept for the code retention period
//	tracking:delivery:{ID}     CODE of the delivery's active session, expires with it
//
// The code key is claimed with SETNX so a code is never handed out twice while it can still
// be matched. The delivery key is written under WATCH so two creators cannot both win.
type RedisTrackingSessionStore struct {
	rdb       *redis.Client
	retention time.Duration
}

func NewRedisTrackingSessionStore(rdb *redis.Client, retention time.Duration) *RedisTrackingSessionStore {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &RedisTrackingSessionStore{rdb: rdb, retention: retention}
}

// ConnectRedis parses a redis:// URL and waits for the server to answer
func ConnectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = rdb.Ping(ctx).Err()
		cancel()
		if err == nil {
			log.Println("✅ Connected to Redis")
			return rdb, nil
		}
		log.Printf("⏳ Waiting for Redis... (%d/10)", i+1)
		time.Sleep(time.Second)
	}
	rdb.Close()
	return nil, fmt.Errorf("redis: failed to connect: %w", err)
}

func codeKey(code string) string           { return "tracking:code:" + code }
func deliveryKey(deliveryID string) string { return "tracking:delivery:" + deliveryID }

func (s *RedisTrackingSessionStore) FindActiveByDelivery(ctx context.Context, deliveryID string, now time.Time) (*models.TrackingSession, error) {
	code, err := s.rdb.Get(ctx, deliveryKey(deliveryID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read delivery session: %w", err)
	}
	return s.liveSession(ctx, s.rdb, code, now)
}

func (s *RedisTrackingSessionStore) FindActiveByCode(ctx context.Context, code string, now time.Time) (*models.TrackingSession, error) {
	return s.liveSession(ctx, s.rdb, code, now)
}

func (s *RedisTrackingSessionStore) Create(ctx context.Context, session *models.TrackingSession, now time.Time) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode tracking session: %w", err)
	}

	ttl := time.Unix(session.ExpiresAt, 0).Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("tracking session already expired at creation")
	}
	retention := s.retention
	if retention < ttl {
		retention = ttl
	}

	dKey := deliveryKey(session.DeliveryID)
	cKey := codeKey(session.TrackingCode)
	claimed := false

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := tx.Get(ctx, dKey).Result()
		switch {
		case err == nil:
			if _, err := s.liveSession(ctx, tx, existing, now); err == nil {
				return ErrActiveSessionExists
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}
		case !errors.Is(err, redis.Nil):
			return err
		}

		ok, err := tx.SetNX(ctx, cKey, payload, retention).Result()
		if err != nil {
			return err
		}
		if !ok {
			return ErrCodeTaken
		}
		claimed = true

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, dKey, session.TrackingCode, ttl)
			return nil
		})
		return err
	}, dKey)

	if errors.Is(err, redis.TxFailedErr) {
		s.rdb.Del(ctx, cKey)
		return ErrActiveSessionExists
	}
	if err != nil && claimed {
		s.rdb.Del(ctx, cKey)
	}
	if errors.Is(err, ErrActiveSessionExists) || errors.Is(err, ErrCodeTaken) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to create tracking session: %w", err)
	}
	return nil
}

// Deactivate drops the delivery pointer and marks the stored session inactive.
// The code key keeps its TTL so the code stays reserved.
func (s *RedisTrackingSessionStore) Deactivate(ctx context.Context, deliveryID string) error {
	dKey := deliveryKey(deliveryID)
	code, err := s.rdb.Get(ctx, dKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read delivery session: %w", err)
	}

	session, err := s.readSession(ctx, s.rdb, code)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, dKey)
		if session != nil {
			session.IsActive = false
			payload, err := json.Marshal(session)
			if err != nil {
				return err
			}
			pipe.SetArgs(ctx, codeKey(code), payload, redis.SetArgs{KeepTTL: true})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to deactivate tracking session: %w", err)
	}
	return nil
}

func (s *RedisTrackingSessionStore) readSession(ctx context.Context, c redis.Cmdable, code string) (*models.TrackingSession, error) {
	raw, err := c.Get(ctx, codeKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking session: %w", err)
	}

	var session models.TrackingSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode tracking session: %w", err)
	}
	return &session, nil
}

func (s *RedisTrackingSessionStore) liveSession(ctx context.Context, c redis.Cmdable, code string, now time.Time) (*models.TrackingSession, error) {
	session, err := s.readSession(ctx, c, code)
	if err != nil {
		return nil, err
	}
	if !session.IsLiveAt(now) {
		return nil, ErrNotFound
	}
	return session, nil
}
