package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pool-service/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PoolSummary — кэшируемая проекция пула для read-only интерфейса.
// Никогда не используется для принятия решений движком.
type PoolSummary struct {
	ID         uuid.UUID         `json:"id"`
	ProductID  uuid.UUID         `json:"product_id"`
	Title      string            `json:"title"`
	TargetQty  int32             `json:"target_qty"`
	PledgedQty int32             `json:"pledged_qty"`
	DeadlineAt time.Time         `json:"deadline_at"`
	Status     models.PoolStatus `json:"status"`
	MOQReached bool              `json:"moq_reached"`
}

type RedisClient struct {
	client *redis.Client
	log    *zap.Logger
	ttl    time.Duration
}

func NewRedisClient(addr, password string, db int, ttl time.Duration, log *zap.Logger) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis connected successfully", zap.String("addr", addr))

	return &RedisClient{
		client: rdb,
		log:    log,
		ttl:    ttl,
	}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func poolKey(id uuid.UUID) string { return fmt.Sprintf("pool:summary:%s", id) }

func (r *RedisClient) SetPoolSummary(ctx context.Context, s PoolSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, poolKey(s.ID), data, r.ttl).Err()
}

func (r *RedisClient) GetPoolSummary(ctx context.Context, id uuid.UUID) (*PoolSummary, error) {
	data, err := r.client.Get(ctx, poolKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var s PoolSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisClient) InvalidatePool(ctx context.Context, id uuid.UUID) error {
	return r.client.Del(ctx, poolKey(id)).Err()
}
