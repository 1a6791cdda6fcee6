package stats

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRecorder_CountsPerDestination(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	prefix := "hallpass:test:" + uuid.NewString()
	rec := NewRedisRecorder(rdb, WithPrefix(prefix+":"), WithDailyTTL(time.Minute))
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
	})

	dest := uuid.New()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, rec.Record(ctx, Event{Kind: KindWaitlisted, DestinationID: dest, At: at}))
	require.NoError(t, rec.Record(ctx, Event{Kind: KindWaitlisted, DestinationID: dest, At: at}))
	require.NoError(t, rec.Record(ctx, Event{Kind: KindPromoted, DestinationID: dest, At: at}))

	got, err := rec.Destination(ctx, dest)
	require.NoError(t, err)
	assert.Equal(t, Counters{KindWaitlisted: 2, KindPromoted: 1}, got)

	ttl, err := rdb.TTL(ctx, prefix+":day:20250310:"+dest.String()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestParseCounters(t *testing.T) {
	got, err := parseCounters(map[string]string{"admitted": "12", "promoted": "0"})
	require.NoError(t, err)
	assert.Equal(t, Counters{KindAdmitted: 12, KindPromoted: 0}, got)

	// мусор в хеше не превращается в ноль молча
	_, err = parseCounters(map[string]string{"admitted": "12abc"})
	assert.Error(t, err)
}
