package limit

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed redis_script.lua
var scriptFS embed.FS

const redisKeyPrefix = "fxrate:ratelimit:"

// RedisRequestLimiter applies the same window rules as MemoryRequestLimiter
// with the state held in Redis, so several server instances share limits.
type RedisRequestLimiter struct {
	client *redis.Client
	script *redis.Script
	limit  int64
	window time.Duration
	ctx    context.Context
	now    func() time.Time

	shaMu     sync.RWMutex
	scriptSHA string

	evalShaHits   uint64
	evalFallbacks uint64
}

// NewRedisRequestLimiter connects to Redis and preloads the window script
func NewRedisRequestLimiter(addr string, limit int, window time.Duration) (*RedisRequestLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           0,
		PoolSize:     20,
		MinIdleConns: 2,
	})
	return newRedisRequestLimiter(client, limit, window)
}

func newRedisRequestLimiter(client *redis.Client, limit int, window time.Duration) (*RedisRequestLimiter, error) {
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	scriptContent, err := scriptFS.ReadFile("redis_script.lua")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read redis script: %w", err)
	}

	r := &RedisRequestLimiter{
		client: client,
		script: redis.NewScript(string(scriptContent)),
		limit:  int64(limit),
		window: window,
		ctx:    ctx,
		now:    time.Now,
	}

	if err := r.preloadScript(); err != nil {
		// EVAL still works without a cached SHA
		slog.Warn("could not preload rate limit script", "error", err)
	}

	return r, nil
}

func (r *RedisRequestLimiter) preloadScript() error {
	sha, err := r.script.Load(r.ctx, r.client).Result()
	if err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}
	r.shaMu.Lock()
	r.scriptSHA = sha
	r.shaMu.Unlock()
	slog.Debug("rate limit script loaded", "sha", sha)
	return nil
}

func (r *RedisRequestLimiter) sha() string {
	r.shaMu.RLock()
	defer r.shaMu.RUnlock()
	return r.scriptSHA
}

// Allow checks and records an attempt atomically inside Redis.
// Redis failures fail open.
func (r *RedisRequestLimiter) Allow(clientID string) bool {
	key := redisKeyPrefix + clientID
	args := []any{r.limit, r.window.Milliseconds(), r.now().UnixMilli()}

	if sha := r.sha(); sha != "" {
		result, err := r.evalSHA(sha, key, args)
		if err == nil {
			atomic.AddUint64(&r.evalShaHits, 1)
			return result == 1
		}

		if isNoScriptErr(err) {
			slog.Info("rate limit script not cached, reloading")
			if err := r.preloadScript(); err == nil {
				result, err := r.evalSHA(r.sha(), key, args)
				if err == nil {
					return result == 1
				}
			}
		}

		atomic.AddUint64(&r.evalFallbacks, 1)
	}

	result, err := r.eval(key, args)
	if err != nil {
		slog.Error("redis rate limit failed", "client", clientID, "error", err)
		return true
	}

	return result == 1
}

func (r *RedisRequestLimiter) evalSHA(sha, key string, args []any) (int64, error) {
	return r.client.EvalSha(r.ctx, sha, []string{key}, args...).Int64()
}

func (r *RedisRequestLimiter) eval(key string, args []any) (int64, error) {
	return r.script.Run(r.ctx, r.client, []string{key}, args...).Int64()
}

func isNoScriptErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOSCRIPT")
}

// ScriptStats reports how often the cached script was used versus a full EVAL
func (r *RedisRequestLimiter) ScriptStats() (shaHits, fallbacks uint64) {
	return atomic.LoadUint64(&r.evalShaHits), atomic.LoadUint64(&r.evalFallbacks)
}

func (r *RedisRequestLimiter) Close() error {
	return r.client.Close()
}
