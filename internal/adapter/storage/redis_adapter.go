package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	stockKeyPrefix    = "stock:"
	seatsKeyPrefix    = "seats:"
	boardKeyPrefix    = "board:"
	boardGenPrefix    = "boardgen:"
	idempotencyPrefix = "idempotency:"
	idempotencyKeyTTL = 24 * time.Hour
)

// decrementScript takes ARGV[1] units from a counter only when enough
// remain. A missing counter counts as empty.
var decrementScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return 0
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

// putBoardScript writes a board snapshot only while the generation at
// KEYS[2] still matches ARGV[1]. A missing generation reads as 0.
var putBoardScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if not gen then
	gen = '0'
end
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) take(ctx context.Context, key string, n int) (bool, error) {
	result, err := decrementScript.Run(ctx, r.client, []string{key}, n).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

func (r *RedisAdapter) DecrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	return r.take(ctx, stockKeyPrefix+productID, quantity)
}

func (r *RedisAdapter) IncrementStock(ctx context.Context, productID string, quantity int) error {
	return r.client.IncrBy(ctx, stockKeyPrefix+productID, int64(quantity)).Err()
}

func (r *RedisAdapter) SetStock(ctx context.Context, productID string, quantity int) error {
	return r.client.Set(ctx, stockKeyPrefix+productID, quantity, 0).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *RedisAdapter) ReserveSeats(ctx context.Context, eventID string, seats int) (bool, error) {
	return r.take(ctx, seatsKeyPrefix+eventID, seats)
}

func (r *RedisAdapter) ReleaseSeats(ctx context.Context, eventID string, seats int) error {
	return r.client.IncrBy(ctx, seatsKeyPrefix+eventID, int64(seats)).Err()
}

func (r *RedisAdapter) SetSeats(ctx context.Context, eventID string, available int) error {
	return r.client.Set(ctx, seatsKeyPrefix+eventID, available, 0).Err()
}

func (r *RedisAdapter) GetBoard(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, boardKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisAdapter) BoardGeneration(ctx context.Context, key string) (int64, error) {
	gen, err := r.client.Get(ctx, boardGenPrefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *RedisAdapter) PutBoard(ctx context.Context, key string, data []byte, ttl time.Duration, generation int64) (bool, error) {
	keys := []string{boardKeyPrefix + key, boardGenPrefix + key}
	result, err := putBoardScript.Run(ctx, r.client, keys, strconv.FormatInt(generation, 10), data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

func (r *RedisAdapter) InvalidateBoard(ctx context.Context, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, boardGenPrefix+key)
		pipe.Del(ctx, boardKeyPrefix+key)
		return nil
	})
	return err
}

// Ping reports whether Redis is reachable, for health checks.
func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
