// ratelimit.go tracks per-category cooldowns communicated by the collector.

package temps

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// categoryAll suppresses every category when the collector rate limits the
// whole key.
const categoryAll = "all"

// defaultCooldown applies when the collector rate limits without a parseable
// header.
const defaultCooldown = 60 * time.Second

// rateLimiter suppresses sends of a category until the collector-communicated
// cooldown elapses.
type rateLimiter struct {
	mu     sync.RWMutex
	limits map[string]time.Time
	clock  clock.Clock
	logger *zap.Logger
}

func newRateLimiter(clk clock.Clock, logger *zap.Logger) *rateLimiter {
	return &rateLimiter{
		limits: map[string]time.Time{},
		clock:  clk,
		logger: logger,
	}
}

// isLimited reports whether the category (or everything) is in cooldown.
func (rl *rateLimiter) isLimited(category string) bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	now := rl.clock.Now()
	if until, ok := rl.limits[category]; ok && until.After(now) {
		return true
	}
	if until, ok := rl.limits[categoryAll]; ok && until.After(now) {
		return true
	}
	return false
}

// deadline returns when the category becomes sendable again.
func (rl *rateLimiter) deadline(category string) time.Time {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	until := rl.limits[category]
	if all := rl.limits[categoryAll]; all.After(until) {
		until = all
	}
	return until
}

// update ingests rate-limit response headers. It returns true when a cooldown
// was applied, so the caller can fall back to the default on a bare 429.
func (rl *rateLimiter) update(header http.Header) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.clock.Now()

	if v := header.Get("X-Sentry-Rate-Limits"); v != "" {
		return rl.parseRateLimits(v, now)
	}
	if v := header.Get("Retry-After"); v != "" {
		rl.applyRetryAfter(v, now)
		return true
	}
	return false
}

// limitAll applies the default cooldown to every category.
func (rl *rateLimiter) limitAll() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limits[categoryAll] = rl.clock.Now().Add(defaultCooldown)
}

// parseRateLimits handles the categorized header. Each entry reads
// "retry_after:categories:scope:reason"; categories are ';'-separated and an
// empty list means all.
func (rl *rateLimiter) parseRateLimits(header string, now time.Time) bool {
	applied := false
	for _, entry := range strings.Split(header, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) < 1 || parts[0] == "" {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || seconds < 0 {
			rl.logger.Warn("unparseable rate limit entry", zap.String("entry", entry))
			continue
		}
		until := now.Add(time.Duration(seconds) * time.Second)

		categories := ""
		if len(parts) > 1 {
			categories = strings.TrimSpace(parts[1])
		}
		if categories == "" {
			rl.limits[categoryAll] = until
			applied = true
			continue
		}
		for _, category := range strings.Split(categories, ";") {
			category = strings.TrimSpace(category)
			if category == "" {
				category = categoryAll
			}
			rl.limits[category] = until
			applied = true
		}
	}
	return applied
}

// applyRetryAfter handles the fallback header, either delay seconds or an
// HTTP date.
func (rl *rateLimiter) applyRetryAfter(header string, now time.Time) {
	header = strings.TrimSpace(header)
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		rl.limits[categoryAll] = now.Add(time.Duration(seconds) * time.Second)
		return
	}
	if at, err := time.Parse(time.RFC1123, header); err == nil && at.After(now) {
		rl.limits[categoryAll] = at
		return
	}
	rl.logger.Warn("unparseable Retry-After header", zap.String("header", header))
	rl.limits[categoryAll] = now.Add(defaultCooldown)
}
