// Package redisiter provides spex sources and destinations backed by Redis lists.
package redisiter

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/spex/pkg/spex"
)

// DefaultPageSize is the window used by ListPages when pageSize is not positive.
const DefaultPageSize = 100

var redisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spex_redis_errors_total",
	Help: "Total number of Redis list operation errors",
}, []string{"operation"})

// ListPages returns a page source reading key in windows of pageSize
// elements with LRANGE. Page index i covers [i*pageSize, (i+1)*pageSize).
// The run ends at the first empty window.
func ListPages(client redis.Cmdable, key string, pageSize int64) spex.Source {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return func(ctx context.Context, index int, _ any, _ time.Duration) (any, error) {
		start := int64(index) * pageSize
		values, err := client.LRange(ctx, key, start, start+pageSize-1).Result()
		if err != nil {
			redisErrors.WithLabelValues("lrange").Inc()
			return nil, fmt.Errorf("redis lrange %s: %w", key, err)
		}

		log.Debug().
			Str("key", key).
			Int("index", index).
			Int("count", len(values)).
			Msg("Redis window read")

		if len(values) == 0 {
			return spex.Done, nil
		}
		return values, nil
	}
}

// PopItems returns a sequence source popping key from the left. The run
// ends when the list is empty.
func PopItems(client redis.Cmdable, key string) spex.Source {
	return func(ctx context.Context, _ int, _ any, _ time.Duration) (any, error) {
		value, err := client.LPop(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return spex.Done, nil
			}
			redisErrors.WithLabelValues("lpop").Inc()
			return nil, fmt.Errorf("redis lpop %s: %w", key, err)
		}
		return value, nil
	}
}

// ListSink returns a destination appending to key with RPUSH. A slice is
// pushed element by element, anything else as a single value. The result is
// the list length after the push.
func ListSink(client redis.Cmdable, key string) spex.Dest {
	return func(ctx context.Context, _ int, data any, _ time.Duration) (any, error) {
		values := flatten(data)
		if len(values) == 0 {
			return int64(0), nil
		}

		n, err := client.RPush(ctx, key, values...).Result()
		if err != nil {
			redisErrors.WithLabelValues("rpush").Inc()
			return nil, fmt.Errorf("redis rpush %s: %w", key, err)
		}
		return n, nil
	}
}

func flatten(data any) []any {
	switch v := data.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []byte:
		return []any{v}
	}

	rv := reflect.ValueOf(data)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{data}
	}
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values
}
