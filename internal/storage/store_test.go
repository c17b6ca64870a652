package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/migrations"
)

func record(ride, client uint64) models.FallbackPayment {
	return models.FallbackPayment{
		RideID:         ride,
		ClientID:       client,
		PayerAccount:   "0xpayer",
		Amount:         decimal.RequireFromString("0.5"),
		TransactionRef: fmt.Sprintf("local-payment-1700000000000-%d-%d", ride, client),
		RecordedAt:     time.Unix(1700000000, 0).UTC(),
	}
}

// exercise runs the behaviour every PaymentStore must share.
func exercise(t *testing.T, s PaymentStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, 42, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, record(42, 3)))
	require.NoError(t, s.Save(ctx, record(42, 4)))
	require.NoError(t, s.Save(ctx, record(7, 1)))
	assert.ErrorIs(t, s.Save(ctx, record(42, 3)), ErrDuplicate)

	got, ok, err := s.Get(ctx, 42, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0xpayer", got.PayerAccount)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("0.5")))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(7), all[0].RideID)
	assert.Equal(t, uint64(4), all[2].ClientID)
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore())
}

// redisClient targets TEST_REDIS_ADDR when set and an in-process server
// otherwise.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	return rdb
}

func TestRedisStore(t *testing.T) {
	rdb := redisClient(t)
	store := NewRedisStore(rdb)
	exercise(t, store)

	ctx := context.Background()
	dup := record(42, 3)
	dup.PayerAccount = "0xother"
	assert.ErrorIs(t, store.Save(ctx, dup), ErrDuplicate)
	got, ok, err := store.Get(ctx, 42, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0xpayer", got.PayerAccount)
}

func TestActivityLogTrimsToCap(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()

	log := NewActivityLog(rdb, 2)
	for _, e := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		require.NoError(t, log.Append(ctx, 9, []byte(e)))
	}
	n, err := rdb.LLen(ctx, activityKey(9)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	recent, err := log.Recent(ctx, 9, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.JSONEq(t, `{"n":3}`, string(recent[0]))
	assert.JSONEq(t, `{"n":2}`, string(recent[1]))

	recent, err = log.Recent(ctx, 9, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	empty, err := log.Recent(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	require.NoError(t, err)
	_, err = provider.Up(context.Background())
	require.NoError(t, err)
	_, err = db.Exec(`TRUNCATE fallback_payments`)
	require.NoError(t, err)

	exercise(t, NewPostgresStoreFromDB(db))
}
