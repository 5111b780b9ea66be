package attemptlog

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "whatsapp:attempts"

// RedisLog stores records in a Redis list; RPUSH is atomic per entry.
type RedisLog struct {
	rdb *redis.Client
	key string
}

func NewRedisLog(rdb *redis.Client, key string) *RedisLog {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisLog{rdb: rdb, key: key}
}

func (l *RedisLog) Append(ctx context.Context, rec Record) error {
	b, err := encode(rec)
	if err != nil {
		return fmt.Errorf("encode attempt %s: %w", rec.ID, err)
	}
	return l.rdb.RPush(ctx, l.key, b).Err()
}

func (l *RedisLog) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return []Record{}, nil
	}

	raw, err := l.rdb.LRange(ctx, l.key, int64(-n), -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(raw))
	for _, s := range raw {
		rec, err := decode([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		out = append(out, rec)
	}
	reverse(out)
	return out, nil
}

func (l *RedisLog) Len(ctx context.Context) (int, error) {
	n, err := l.rdb.LLen(ctx, l.key).Result()
	return int(n), err
}
