package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRecorder пишет счётчики в хеши Redis:
//
//	<prefix>:total                       kind -> count
//	<prefix>:destination:<id>            kind -> count
//	<prefix>:day:<yyyymmdd>:<id>         kind -> count, истекает через ttl
type RedisRecorder struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisRecorder)

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisRecorder) { s.prefix = strings.Trim(prefix, ":") }
}

func WithDailyTTL(d time.Duration) RedisOption {
	return func(s *RedisRecorder) { s.ttl = d }
}

func NewRedisRecorder(rdb *redis.Client, opts ...RedisOption) *RedisRecorder {
	s := &RedisRecorder{
		rdb:    rdb,
		prefix: "hallpass:stats",
		ttl:    30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Kind)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)
	pipe.HIncrBy(ctx, s.destinationKey(ev.DestinationID), field, 1)

	dayKey := fmt.Sprintf("%s:day:%s:%s", s.prefix, at.UTC().Format("20060102"), ev.DestinationID)
	pipe.HIncrBy(ctx, dayKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, dayKey, s.ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Destination читает накопленные счётчики места
func (s *RedisRecorder) Destination(ctx context.Context, id uuid.UUID) (Counters, error) {
	raw, err := s.rdb.HGetAll(ctx, s.destinationKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read destination stats: %w", err)
	}

	return parseCounters(raw)
}

// parseCounters разбирает значения HGETALL; HINCRBY пишет только целые
func parseCounters(raw map[string]string) (Counters, error) {
	out := make(Counters, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse counter %s: %w", k, err)
		}
		out[Kind(k)] = n
	}
	return out, nil
}

func (s *RedisRecorder) destinationKey(id uuid.UUID) string {
	return s.prefix + ":destination:" + id.String()
}
