package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neomorfeo/caseflow/internal/domain"
)

// Compile-time check: StatsPublisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*StatsPublisher)(nil)

// StatsPublisher keeps per-program transition counters in Redis hashes:
//
//	<prefix>:program:<id>          field <state>  cumulative entries per state
//	<prefix>:program:<id>:day:<d>  field <state>  entries per UTC day, expiring
type StatsPublisher struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// Option configures a StatsPublisher.
type Option func(*StatsPublisher)

// WithPrefix sets the key prefix. Defaults to "caseflow:stats".
func WithPrefix(prefix string) Option {
	return func(s *StatsPublisher) { s.prefix = strings.Trim(prefix, ":") }
}

// WithTTL sets the expiry of the daily buckets. Zero keeps them forever.
func WithTTL(d time.Duration) Option {
	return func(s *StatsPublisher) { s.ttl = d }
}

// NewStatsPublisher creates a publisher writing to rdb.
func NewStatsPublisher(rdb *redis.Client, opts ...Option) *StatsPublisher {
	s := &StatsPublisher{
		rdb:    rdb,
		prefix: "caseflow:stats",
		ttl:    30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StatsPublisher) programKey(programID string) string {
	return s.prefix + ":program:" + programID
}

// Publish increments the counters of the state the case entered.
func (s *StatsPublisher) Publish(ctx context.Context, ev domain.CaseEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	key := s.programKey(ev.ProgramID)
	dayKey := fmt.Sprintf("%s:day:%s", key, at.UTC().Format("20060102"))

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, string(ev.To), 1)
	pipe.HIncrBy(ctx, dayKey, string(ev.To), 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, dayKey, s.ttl)
	}
	pipe.HIncrBy(ctx, s.prefix+":families", string(ev.Family), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording transition stats: %w", err)
	}
	return nil
}

// Counts returns how many times cases of the program entered each state.
func (s *StatsPublisher) Counts(ctx context.Context, programID string) (map[domain.State]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.programKey(programID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading transition stats: %w", err)
	}

	out := make(map[domain.State]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing counter %s: %w", field, err)
		}
		out[domain.State(field)] = n
	}
	return out, nil
}

// Ping checks the connection.
func (s *StatsPublisher) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
