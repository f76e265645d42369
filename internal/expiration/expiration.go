// Package expiration implements the expiration service: it schedules a
// delayed firing for every created order and publishes
// order-expiration-complete once the order's payment window has passed.
// The schedule is a redis sorted set, so pending expirations survive
// process restarts.
package expiration

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ticketing/internal/clock"
)

// Group is the service's queue-group and producer name.
const Group = "expiration-service"

// Scheduler arranges a one-shot expiration per order id. Schedule reports
// whether the order was newly scheduled; re-scheduling an already pending
// order must neither duplicate nor reset the firing.
type Scheduler interface {
	Schedule(ctx context.Context, orderID string, delay time.Duration) (bool, error)
	Due(ctx context.Context, limit int64) ([]string, error)
	Remove(ctx context.Context, orderID string) error
}

// RedisScheduler keeps the schedule in a sorted set: member = order id,
// score = fire time in unix milliseconds. NX on insert gives the
// at-most-one-fire-per-order guarantee.
type RedisScheduler struct {
	rdb   *redis.Client
	key   string
	clock clock.Clock
}

func NewRedisScheduler(rdb *redis.Client, key string, clk clock.Clock) *RedisScheduler {
	return &RedisScheduler{rdb: rdb, key: key, clock: clk}
}

func (s *RedisScheduler) Schedule(ctx context.Context, orderID string, delay time.Duration) (bool, error) {
	fireAt := s.clock.Now().Add(delay)

	added, err := s.rdb.ZAddNX(ctx, s.key, redis.Z{
		Score:  float64(fireAt.UnixMilli()),
		Member: orderID,
	}).Result()
	if err != nil {
		return false, err
	}
	return added > 0, nil
}

func (s *RedisScheduler) Due(ctx context.Context, limit int64) ([]string, error) {
	now := s.clock.Now().UnixMilli()

	return s.rdb.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: limit,
	}).Result()
}

func (s *RedisScheduler) Remove(ctx context.Context, orderID string) error {
	return s.rdb.ZRem(ctx, s.key, orderID).Err()
}
