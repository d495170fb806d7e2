package redisiter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/spex/pkg/promise"
	"github.com/Sternrassler/spex/pkg/spex"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	// Ping to check connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	// Flush test DB before each test
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func await(t *testing.T, f promise.Future) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return promise.Await(ctx, f)
}

func seed(t *testing.T, client *redis.Client, key string, n int) {
	t.Helper()
	values := make([]any, n)
	for i := range values {
		values[i] = fmt.Sprintf("item-%d", i)
	}
	if err := client.RPush(context.Background(), key, values...).Err(); err != nil {
		t.Fatalf("Failed to seed %s: %v", key, err)
	}
}

func TestListPages(t *testing.T) {
	tests := []struct {
		name     string
		items    int
		pageSize int64
		pages    int
	}{
		{"empty", 0, 10, 0},
		{"exact", 20, 10, 2},
		{"remainder", 25, 10, 3},
		{"default page size", 150, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupTestRedis(t)
			seed(t, client, "src", tt.items)

			v, err := await(t, spex.Page(context.Background(), ListPages(client, "src", tt.pageSize)))
			if err != nil {
				t.Fatalf("Page() error = %v", err)
			}

			res := v.(*spex.PageResult)
			if res.Pages != tt.pages {
				t.Errorf("Pages = %d, want %d", res.Pages, tt.pages)
			}
			if res.Total != tt.items {
				t.Errorf("Total = %d, want %d", res.Total, tt.items)
			}
		})
	}
}

func TestListPages_Relay(t *testing.T) {
	client := setupTestRedis(t)
	seed(t, client, "src", 7)

	_, err := await(t, spex.Page(context.Background(), ListPages(client, "src", 3),
		spex.WithDest(ListSink(client, "dst"))))
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}

	got, err := client.LRange(context.Background(), "dst", 0, -1).Result()
	if err != nil {
		t.Fatalf("LRange() error = %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("dst has %d items, want 7", len(got))
	}
	for i, v := range got {
		if want := fmt.Sprintf("item-%d", i); v != want {
			t.Errorf("dst[%d] = %q, want %q", i, v, want)
		}
	}
}

func TestPopItems(t *testing.T) {
	client := setupTestRedis(t)
	seed(t, client, "queue", 5)

	v, err := await(t, spex.Sequence(context.Background(), PopItems(client, "queue"), spex.WithTrack(true)))
	if err != nil {
		t.Fatalf("Sequence() error = %v", err)
	}

	res := v.(*spex.SequenceResult)
	if res.Total != 5 {
		t.Errorf("Total = %d, want 5", res.Total)
	}
	if res.Items[0] != "item-0" || res.Items[4] != "item-4" {
		t.Errorf("Items = %v, want item-0..item-4", res.Items)
	}

	n, err := client.LLen(context.Background(), "queue").Result()
	if err != nil {
		t.Fatalf("LLen() error = %v", err)
	}
	if n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
}

func TestRedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	_, err := await(t, spex.Sequence(context.Background(), PopItems(client, "queue"),
		spex.WithSourceLabel("PopItems")))

	var se *spex.SequenceError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *spex.SequenceError, got %T: %v", err, err)
	}
	if se.Code() != spex.SequenceSourceThrew {
		t.Errorf("Code() = %d, want %d", se.Code(), spex.SequenceSourceThrew)
	}
	if se.Reason() != "Source 'PopItems' threw an error at index 0." {
		t.Errorf("Reason() = %q", se.Reason())
	}
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		data any
		want int
	}{
		{"nil", nil, 0},
		{"scalar", "a", 1},
		{"bytes", []byte("abc"), 1},
		{"any slice", []any{"a", 1}, 2},
		{"string slice", []string{"a", "b", "c"}, 3},
		{"array", [2]int{1, 2}, 2},
		{"empty", []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(flatten(tt.data)); got != tt.want {
				t.Errorf("len(flatten(%v)) = %d, want %d", tt.data, got, tt.want)
			}
		})
	}
}
