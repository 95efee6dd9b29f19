package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"document-submitter/documents/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas em chaves de série temporal / por grupo.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackGroups bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackGroups(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackGroups = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "documents:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := ev.Outcome
	if field == "" {
		field = "unknown"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)
	if ev.StatusCode != 0 {
		pipe.HIncrBy(ctx, s.prefix+":status", strconv.Itoa(ev.StatusCode), 1)
	}

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if s.trackGroups {
		g := strings.TrimSpace(ev.ProductGroup)
		if g != "" {
			groupKey := s.prefix + ":group:" + g
			pipe.HIncrBy(ctx, groupKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, groupKey, s.ttl)
			}
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.WithMessage(err, "redis pipeline exec")
	}
	return nil
}
