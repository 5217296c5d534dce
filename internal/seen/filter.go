// Package seen remembers which candidate URLs were already emitted by earlier
// runs, using a Redis set of URL fingerprints.
package seen

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/twmb/murmur3"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
	"github.com/CodeMonkeyCybersecurity/x9/internal/output"
	"github.com/CodeMonkeyCybersecurity/x9/pkg/mutation"
)

type Filter struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	logger *logger.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*Filter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, cfg.Key, cfg.TTL, log), nil
}

func NewWithClient(client redis.UniversalClient, key string, ttl time.Duration, log *logger.Logger) *Filter {
	if key == "" {
		key = "x9:seen"
	}
	return &Filter{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: log.WithComponent("seen"),
	}
}

// Fingerprint is the hex murmur3 128-bit hash of rawURL.
func Fingerprint(rawURL string) string {
	h1, h2 := murmur3.Sum128([]byte(rawURL))
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(h1 >> (56 - 8*i))
		b[8+i] = byte(h2 >> (56 - 8*i))
	}
	return hex.EncodeToString(b[:])
}

// MarkNew records rawURL and reports whether it had not been seen before.
func (f *Filter) MarkNew(ctx context.Context, rawURL string) (bool, error) {
	pipe := f.client.TxPipeline()
	added := pipe.SAdd(ctx, f.key, Fingerprint(rawURL))
	if f.ttl > 0 {
		pipe.Expire(ctx, f.key, f.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to record candidate: %w", err)
	}
	return added.Val() == 1, nil
}

// Predicate adapts the filter for output.NewFiltered.
func (f *Filter) Predicate() output.Predicate {
	return func(ctx context.Context, c mutation.Candidate) (bool, error) {
		return f.MarkNew(ctx, c.URL)
	}
}

// Count returns the number of remembered fingerprints.
func (f *Filter) Count(ctx context.Context) (int64, error) {
	return f.client.SCard(ctx, f.key).Result()
}

// Reset forgets every remembered URL.
func (f *Filter) Reset(ctx context.Context) error {
	if err := f.client.Del(ctx, f.key).Err(); err != nil {
		return fmt.Errorf("failed to reset seen set: %w", err)
	}
	f.logger.Infow("Seen set cleared", "key", f.key)
	return nil
}

func (f *Filter) Close() error {
	return f.client.Close()
}
