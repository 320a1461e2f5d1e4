// README: Traffic mirror backed by a Redis hash (hour -> count).
package traffic

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"park/internal/logging"
)

const defaultKey = "park:traffic:hourly"

type RedisMirror struct {
	redis *redis.Client
	key   string
}

func NewRedisMirror(client *redis.Client, key string) *RedisMirror {
	if key == "" {
		key = defaultKey
	}
	return &RedisMirror{redis: client, key: key}
}

// Flush overwrites every bucket in a single pipeline.
func (m *RedisMirror) Flush(ctx context.Context, s Snapshot) error {
	values := make([]interface{}, 0, Hours*2)
	for h, n := range s {
		values = append(values, strconv.Itoa(h), n)
	}
	pipe := m.redis.TxPipeline()
	pipe.HSet(ctx, m.key, values...)
	pipe.HSet(ctx, m.key, "flushed_at", time.Now().UTC().Format(time.RFC3339))
	_, err := pipe.Exec(ctx)
	return err
}

// Load reads the mirrored buckets. A missing key yields an empty snapshot.
func (m *RedisMirror) Load(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	vals, err := m.redis.HGetAll(ctx, m.key).Result()
	if err != nil {
		return s, err
	}
	for field, raw := range vals {
		h, err := strconv.Atoi(field)
		if err != nil || h < 0 || h >= Hours {
			continue
		}
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return s, fmt.Errorf("hour %d: %w", h, err)
		}
		s[h] = n
	}
	return s, nil
}

// RunMirror flushes source() every interval until ctx is done, with one final
// flush on shutdown.
func (m *RedisMirror) RunMirror(ctx context.Context, interval, timeout time.Duration, source func() Snapshot) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	flush := func(parent context.Context) {
		fctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		if err := m.Flush(fctx, source()); err != nil {
			logging.Logger().Warn().Err(err).Str("key", m.key).Msg("traffic mirror flush")
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			flush(ctx)
		}
	}
}
