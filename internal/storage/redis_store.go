package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/example/chainride/internal/models"
)

const (
	fallbackRidesKey   = "payments:fallback:rides"
	fallbackKeyPrefix  = "payments:fallback:"
	activityKeyPrefix  = "ride:activity:"
	defaultActivityCap = 100
)

func fallbackKey(rideID uint64) string { return fallbackKeyPrefix + strconv.FormatUint(rideID, 10) }

// RedisStore keeps one hash per ride, keyed by client id, so every API
// instance sees the same fallback records.
type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore { return &RedisStore{rdb: rdb} }

func (r *RedisStore) Save(ctx context.Context, rec models.FallbackPayment) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ok, err := r.rdb.HSetNX(ctx, fallbackKey(rec.RideID), strconv.FormatUint(rec.ClientID, 10), b).Result()
	if err != nil {
		return fmt.Errorf("hsetnx fallback payment: %w", err)
	}
	if !ok {
		return ErrDuplicate
	}
	if err := r.rdb.SAdd(ctx, fallbackRidesKey, rec.RideID).Err(); err != nil {
		return fmt.Errorf("index fallback ride: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, rideID, clientID uint64) (models.FallbackPayment, bool, error) {
	b, err := r.rdb.HGet(ctx, fallbackKey(rideID), strconv.FormatUint(clientID, 10)).Bytes()
	if err == redis.Nil {
		return models.FallbackPayment{}, false, nil
	}
	if err != nil {
		return models.FallbackPayment{}, false, fmt.Errorf("hget fallback payment: %w", err)
	}
	var rec models.FallbackPayment
	if err := json.Unmarshal(b, &rec); err != nil {
		return models.FallbackPayment{}, false, fmt.Errorf("decode fallback payment: %w", err)
	}
	return rec, true, nil
}

func (r *RedisStore) List(ctx context.Context) ([]models.FallbackPayment, error) {
	rides, err := r.rdb.SMembers(ctx, fallbackRidesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers fallback rides: %w", err)
	}
	var out []models.FallbackPayment
	for _, ride := range rides {
		fields, err := r.rdb.HGetAll(ctx, fallbackKeyPrefix+ride).Result()
		if err != nil {
			return nil, fmt.Errorf("hgetall fallback ride %s: %w", ride, err)
		}
		for _, v := range fields {
			var rec models.FallbackPayment
			if err := json.Unmarshal([]byte(v), &rec); err != nil {
				return nil, fmt.Errorf("decode fallback payment: %w", err)
			}
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// ActivityLog is a capped, newest-first list of event payloads per ride.
type ActivityLog struct {
	rdb redis.Cmdable
	max int64
}

func NewActivityLog(rdb redis.Cmdable, max int) *ActivityLog {
	if max <= 0 {
		max = defaultActivityCap
	}
	return &ActivityLog{rdb: rdb, max: int64(max)}
}

func activityKey(rideID uint64) string { return activityKeyPrefix + strconv.FormatUint(rideID, 10) }

func (a *ActivityLog) Append(ctx context.Context, rideID uint64, entry []byte) error {
	key := activityKey(rideID)
	_, err := a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, entry)
		pipe.LTrim(ctx, key, 0, a.max-1)
		return nil
	})
	return err
}

// Recent returns up to limit entries, newest first.
func (a *ActivityLog) Recent(ctx context.Context, rideID uint64, limit int) ([]json.RawMessage, error) {
	if limit <= 0 || int64(limit) > a.max {
		limit = int(a.max)
	}
	vals, err := a.rdb.LRange(ctx, activityKey(rideID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange activity: %w", err)
	}
	out := make([]json.RawMessage, 0, len(vals))
	for _, v := range vals {
		out = append(out, json.RawMessage(v))
	}
	return out, nil
}
