package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/redis/go-redis/v9"
)

const draftKeyPrefix = "draft:"

type RedisDraftStore struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisDraftStore(client *redis.Client) *RedisDraftStore {
	return &RedisDraftStore{client: client}
}

func draftKey(draftID string) string {
	return draftKeyPrefix + draftID
}

func (r *RedisDraftStore) SaveDraft(ctx context.Context, v *models.Voucher, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if v == nil || v.DraftID == "" {
		return domain.Invalid("draft_id", "draft id is required")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	if err := r.client.Set(ctx, draftKey(v.DraftID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save draft in redis: %w", err)
	}
	return nil
}

func (r *RedisDraftStore) GetDraft(ctx context.Context, draftID string) (*models.Voucher, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, draftKey(draftID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.NotFound("draft", draftID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft from redis: %w", err)
	}

	var v models.Voucher
	if err := json.Unmarshal(val, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &v, nil
}

func (r *RedisDraftStore) DeleteDraft(ctx context.Context, draftID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, draftKey(draftID)).Err(); err != nil {
		return fmt.Errorf("failed to delete draft from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
