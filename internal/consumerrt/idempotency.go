package consumerrt

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
)

// IdempotencyWindow answers whether a key has already been processed: a sliding window
// of the last K keys short-circuits re-deliveries.
type IdempotencyWindow interface {
	// SeenOrMark reports whether key was already in the window and, if not, admits it.
	SeenOrMark(ctx context.Context, key string, ttl time.Duration) (alreadySeen bool, err error)
}

// RedisWindow backs the window with Redis SETNX, expiring each key after the ttl the
// caller passes per call (the Runtime passes a fixed idempotencyTTL). Falls back to lruWindow when
// Redis itself is unavailable so dispatch stays at-most-once, in a degraded form, even
// without Redis.
type RedisWindow struct {
	client   *redis.Client
	fallback *lruWindow
	logger   mlog.Logger
}

// NewRedisWindow constructs a RedisWindow with an in-process LRU fallback of capacity.
func NewRedisWindow(client *redis.Client, capacity int, logger mlog.Logger) *RedisWindow {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &RedisWindow{client: client, fallback: newLRUWindow(capacity), logger: logger}
}

func (w *RedisWindow) SeenOrMark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	admitted, err := w.client.SetNX(ctx, "consumer:idem:"+key, "1", ttl).Result()
	if err != nil {
		w.logger.Warnf("idempotency window redis unavailable, using in-process fallback: %v", err)
		seen, _ := w.fallback.SeenOrMark(ctx, key, ttl)

		return seen, nil
	}

	return !admitted, nil
}

// lruWindow is a capacity-bounded, in-process fallback: an LRU of the last K keys,
// defaulting to 10,000.
type lruWindow struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newLRUWindow(capacity int) *lruWindow {
	if capacity <= 0 {
		capacity = 10000
	}

	return &lruWindow{capacity: capacity, order: list.New(), index: make(map[string]*list.Element, capacity)}
}

func (w *lruWindow) SeenOrMark(_ context.Context, key string, _ time.Duration) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if el, ok := w.index[key]; ok {
		w.order.MoveToFront(el)
		return true, nil
	}

	el := w.order.PushFront(key)
	w.index[key] = el

	for w.order.Len() > w.capacity {
		oldest := w.order.Back()
		if oldest == nil {
			break
		}

		w.order.Remove(oldest)
		delete(w.index, oldest.Value.(string))
	}

	return false, nil
}

// NewInProcessWindow constructs a standalone LRU-backed window for when Redis is not
// configured at all.
func NewInProcessWindow(capacity int) IdempotencyWindow { return newLRUWindow(capacity) }
