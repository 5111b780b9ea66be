package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/boleto-reminder/internal/model"
)

const keyPrefix = "delivery:"

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) StoreDelivery(ctx context.Context, invoiceID string, rec model.DeliveryRecord) error {
	rec.At = rec.At.UTC()

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, keyPrefix+invoiceID, b, c.ttl).Err()
}

func (c *RedisCache) LastDelivery(ctx context.Context, invoiceID string) (model.DeliveryRecord, bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+invoiceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.DeliveryRecord{}, false, nil
	}
	if err != nil {
		return model.DeliveryRecord{}, false, err
	}

	var rec model.DeliveryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.DeliveryRecord{}, false, err
	}
	return rec, true, nil
}
