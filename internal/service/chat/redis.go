package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/chatwidget/internal/model/chat"
)

const (
	redisKeyPrefix = "chatwidget:exchanges:"
	redisLogTTL    = 7 * 24 * time.Hour
)

// RedisBackend keeps each bot's log in a Redis list.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func redisKey(botID string) string {
	return redisKeyPrefix + botID
}

// Append implements Backend.
func (b *RedisBackend) Append(ctx context.Context, ex chat.Exchange, retention int) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return errors.Wrap(err, "marshal exchange")
	}

	key := redisKey(ex.BotID)
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-retention), -1)
		pipe.Expire(ctx, key, redisLogTTL)
		return nil
	})
	return errors.Wrap(err, "append exchange")
}

// List implements Backend.
func (b *RedisBackend) List(ctx context.Context, botID string) ([]chat.Exchange, error) {
	raw, err := b.rdb.LRange(ctx, redisKey(botID), 0, -1).Result()
	if err == redis.Nil {
		return []chat.Exchange{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load exchanges")
	}

	out := make([]chat.Exchange, 0, len(raw))
	for _, item := range raw {
		var ex chat.Exchange
		if err := json.Unmarshal([]byte(item), &ex); err != nil {
			return nil, errors.Wrapf(err, "decode exchange in %s", redisKey(botID))
		}
		out = append(out, ex)
	}
	return out, nil
}
