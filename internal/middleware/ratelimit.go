package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	apperrors "github.com/peerbeam/peerbeam/internal/errors"
	"github.com/peerbeam/peerbeam/internal/httputil"
)

const (
	rateLimitKeyPrefix = "ratelimit:"
	rateLimitWindow    = 60 * time.Second
)

// Sliding-window limiter. Returns {allowed, resetAt}.
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

return {1, now + window}
`)

// IPRateLimitMiddleware limits room allocation per client IP. Room codes are
// a shared finite namespace, so a failing limiter denies rather than allows.
type IPRateLimitMiddleware struct {
	client *redis.Client
	limit  int
	prefix string
}

func NewIPRateLimitMiddleware(client *redis.Client, limit int, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{client: client, limit: limit, prefix: prefix}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Unix()
		key := fmt.Sprintf("%s%s:%s", rateLimitKeyPrefix, m.prefix, r.RemoteAddr)

		result, err := rateLimitScript.Run(
			r.Context(), m.client, []string{key},
			now, int64(rateLimitWindow.Seconds()), m.limit,
		).Int64Slice()

		if err != nil || len(result) != 2 {
			log.Warn().Err(err).Str("key", key).Msg("rate limit check failed, denying request")
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		if result[0] != 1 {
			resetAt := time.Unix(result[1], 0)
			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
