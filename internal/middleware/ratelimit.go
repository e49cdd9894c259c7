package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ovaphlow/pitchfork/service-social/internal/httpx"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RedisLimiter is a fixed-window counter shared by every replica.
type RedisLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("incr %s: %w", redisKey, err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("expire %s: %w", redisKey, err)
		}
	}
	if count <= int64(l.limit) {
		return Decision{Allowed: true, Remaining: l.limit - int(count)}, nil
	}
	retry, err := l.rdb.PTTL(ctx, redisKey).Result()
	if err != nil || retry <= 0 {
		// a window without a TTL would never reset
		l.rdb.Expire(ctx, redisKey, l.window)
		retry = l.window
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

// MemoryLimiter is a per-key fixed-window counter for single-instance
// deployments. It counts the same way RedisLimiter does.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	limit   int
	window  time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		windows: map[string]*fixedWindow{},
		limit:   limit,
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.cleanup(time.Minute)
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(l.window)}
		l.windows[key] = w
	}
	w.count++
	if w.count <= l.limit {
		return Decision{Allowed: true, Remaining: l.limit - w.count}, nil
	}
	return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}, nil
}

func (l *MemoryLimiter) cleanup(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			now := l.now()
			l.mu.Lock()
			for k, w := range l.windows {
				if !now.Before(w.resetAt) {
					delete(l.windows, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Close stops the background sweeper.
func (l *MemoryLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return r.RemoteAddr
	}
	return host
}

const (
	tooManyRequests   = "Too many requests, please try again later."
	rejectLogInterval = 10 * time.Second
)

// RateLimit rejects clients over their budget with 429. When the limiter
// itself fails the request is let through. Rejections are logged at most
// once per rejectLogInterval.
func RateLimit(l Limiter, limit int, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	quiet := &rate.Sometimes{First: 1, Interval: rejectLogInterval}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			d, err := l.Allow(r.Context(), ip)
			if err != nil {
				logger.Warnw("rate limiter unavailable", "ip", ip, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("RateLimit-Limit", strconv.Itoa(limit))
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("RateLimit-Remaining", "0")
				quiet.Do(func() { logger.Warnw("rate limit exceeded", "ip", ip, "path", r.URL.Path) })
				httpx.WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": tooManyRequests})
				return
			}
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}
