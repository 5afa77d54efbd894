package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/eldtechnologies/tarschat/internal/metrics"
)

// RateLimit defines limits for requests matching Method and a path prefix.
type RateLimit struct {
	Method   string
	Prefix   string
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
}

// defaultLimits is matched in order; the first matching rule wins.
var defaultLimits = []RateLimit{
	{"POST", "/webhooks/", 600, time.Minute, ipKey},
	{"POST", "/users/me", 30, time.Minute, callerKey},
	{"GET", "/users", 120, time.Minute, callerKey},
	{"PUT", "/presence", 60, time.Minute, callerKey},
	{"POST", "/conversations/direct", 30, time.Minute, callerKey},
	{"POST", "/conversations/group", 10, time.Minute, callerKey},
	{"PUT", "/conversations/", 300, time.Minute, callerKey},
	{"POST", "/conversations/", 120, time.Minute, callerKey},
	{"GET", "/conversations", 600, time.Minute, callerKey},
	{"POST", "/messages/", 120, time.Minute, callerKey},
	{"DELETE", "/messages/", 60, time.Minute, callerKey},
	{"GET", "/ws", 30, time.Minute, ipKey},
}

// RateLimiter limits requests per key. With a Redis client it keeps a
// sliding window shared by every instance and can auto-block abusive IPs;
// without one it falls back to in-process token buckets.
type RateLimiter struct {
	client           *redis.Client
	limits           []RateLimit
	blocker          *IPBlocker
	local            *limiterPool
	logger           zerolog.Logger
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool
}

// NewRateLimiter creates a new rate limiter. client may be nil.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:           client,
		limits:           defaultLimits,
		local:            newLimiterPool(),
		logger:           logger,
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled && client != nil,
	}
	if client != nil {
		rl.blocker = NewIPBlocker(client)
	}

	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// WithLimits replaces the rule table.
func (rl *RateLimiter) WithLimits(limits []RateLimit) *RateLimiter {
	rl.limits = limits
	return rl
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// callerKey keys on the bearer token when one is presented, so users behind
// one address do not share a budget.
func callerKey(r *http.Request) string {
	token := bearerToken(r)
	if token == "" {
		return ipKey(r)
	}
	sum := sha256.Sum256([]byte(token))
	return "ratelimit:token:" + hex.EncodeToString(sum[:12])
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// CheckAndIncrement checks rate limit and increments counter.
// Returns (allowed, remaining, resetAt).
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	if rl.client == nil {
		return rl.local.allow(key, limit, window)
	}

	now := time.Now()
	windowStart := now.Add(-window)
	windowKey := fmt.Sprintf("%s:%d", key, now.Unix()/int64(window.Seconds()))

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, windowKey, "-inf", fmt.Sprintf("%d", windowStart.UnixMilli()))
	countCmd := pipe.ZCard(ctx, windowKey)
	pipe.ZAdd(ctx, windowKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, windowKey, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open rather than reject traffic while Redis is unreachable.
		rl.logger.Warn().Err(err).Msg("rate limit backend unavailable")
		return true, limit, now.Add(window)
	}

	count := countCmd.Val()
	remaining := limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}
	return count < int64(limit), remaining, now.Add(window)
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)

		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker != nil && rl.blocker.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			writeError(w, http.StatusForbidden, "temporarily blocked", "blocked")
			return
		}

		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		allowed, remaining, resetAt := rl.CheckAndIncrement(r.Context(), key, limit.Requests, limit.Window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retry := int(time.Until(resetAt).Seconds())
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))

			rl.trackViolation(r.Context(), ip)
			metrics.RateLimitHits.WithLabelValues(limit.Method + " " + limit.Prefix).Inc()

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")

			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limited")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	for i := range rl.limits {
		l := &rl.limits[i]
		if r.Method == l.Method && strings.HasPrefix(r.URL.Path, l.Prefix) {
			return l
		}
	}
	return nil
}

// trackViolation tracks rate limit violations and auto-blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	key := fmt.Sprintf("violations:ip:%s", ip)
	count, _ := rl.client.Incr(ctx, key).Result()
	rl.client.Expire(ctx, key, time.Hour)

	if count >= 10 {
		rl.blocker.Block(ctx, ip, 24*time.Hour, "repeated rate limit violations")
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Msg("IP auto-blocked for repeated violations")
	}
}

// limiterPool holds one token bucket per key for single-instance
// deployments. Buckets idle for a full window are refilled and are dropped
// on the next sweep.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*poolEntry
	lastSweep time.Time
}

type poolEntry struct {
	limiter  *rate.Limiter
	window   time.Duration
	lastUsed time.Time
}

// poolSweepInterval is how often allow scans the pool for idle buckets.
const poolSweepInterval = time.Minute

func newLimiterPool() *limiterPool {
	return &limiterPool{m: make(map[string]*poolEntry)}
}

func (p *limiterPool) get(key string, limit int, window time.Duration, now time.Time) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if now.Sub(p.lastSweep) >= poolSweepInterval {
		p.sweepLocked(now)
	}
	e, ok := p.m[key]
	if !ok {
		e = &poolEntry{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			window:  window,
		}
		p.m[key] = e
	}
	e.lastUsed = now
	return e.limiter
}

func (p *limiterPool) sweepLocked(now time.Time) {
	for key, e := range p.m {
		if now.Sub(e.lastUsed) >= e.window {
			delete(p.m, key)
		}
	}
	p.lastSweep = now
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

func (p *limiterPool) allow(key string, limit int, window time.Duration) (bool, int, time.Time) {
	return p.allowAt(key, limit, window, time.Now())
}

func (p *limiterPool) allowAt(key string, limit int, window time.Duration, now time.Time) (bool, int, time.Time) {
	l := p.get(key, limit, window, now)
	allowed := l.AllowN(now, 1)
	remaining := int(l.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, now.Add(window / time.Duration(limit))
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

// IsBlocked checks if an IP is blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	key := fmt.Sprintf("blocked:ip:%s", ip)
	exists, _ := b.client.Exists(ctx, key).Result()
	return exists > 0
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	key := fmt.Sprintf("blocked:ip:%s", ip)
	b.client.Set(ctx, key, reason, duration)
}

// Unblock removes an IP block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	key := fmt.Sprintf("blocked:ip:%s", ip)
	b.client.Del(ctx, key)
}
