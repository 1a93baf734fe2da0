package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig bounds requests per client. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// RateLimiter tracks per-client request rates and daily quotas.
type RateLimiter struct {
	mu    sync.Mutex
	cfg   RateLimitConfig
	now   func() time.Time
	usage map[string]*Usage
}

// Usage is the tracked usage of one client.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64

	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, now: time.Now, usage: make(map[string]*Usage)}
}

// CheckRateLimit admits one request of dataSize bytes from client, or
// returns a *RateLimitError or *QuotaExceededError without counting it.
func (rl *RateLimiter) CheckRateLimit(client string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u, ok := rl.usage[client]
	if !ok {
		u = &Usage{minuteStart: now, hourStart: now, dayStart: startOfDay(now)}
		rl.usage[client] = u
	}
	u.roll(now)

	if rl.cfg.RequestsPerMinute > 0 && u.RequestsLastMinute >= rl.cfg.RequestsPerMinute {
		return &RateLimitError{Type: "minute", Limit: rl.cfg.RequestsPerMinute, RetryAfter: u.minuteStart.Add(time.Minute).Sub(now)}
	}
	if rl.cfg.RequestsPerHour > 0 && u.RequestsLastHour >= rl.cfg.RequestsPerHour {
		return &RateLimitError{Type: "hour", Limit: rl.cfg.RequestsPerHour, RetryAfter: u.hourStart.Add(time.Hour).Sub(now)}
	}
	resets := u.dayStart.AddDate(0, 0, 1)
	if rl.cfg.MaxRequestsPerDay > 0 && u.RequestsToday >= rl.cfg.MaxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.cfg.MaxRequestsPerDay), Used: int64(u.RequestsToday), Resets: resets}
	}
	if rl.cfg.MaxDataPerDay > 0 && u.DataToday+dataSize > rl.cfg.MaxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.cfg.MaxDataPerDay, Used: u.DataToday, Resets: resets}
	}

	u.RequestsLastMinute++
	u.RequestsLastHour++
	u.RequestsToday++
	u.DataToday += dataSize
	return nil
}

// roll starts new windows once the current ones have elapsed.
func (u *Usage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.RequestsLastMinute, u.minuteStart = 0, now
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.RequestsLastHour, u.hourStart = 0, now
	}
	if day := startOfDay(now); day.After(u.dayStart) {
		u.RequestsToday, u.DataToday, u.dayStart = 0, 0, day
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GetUsage returns a copy of the usage recorded for client.
func (rl *RateLimiter) GetUsage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if u, ok := rl.usage[client]; ok {
		return *u
	}
	return Usage{}
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a daily quota violation.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
