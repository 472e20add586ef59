package common

import (
	"sync"
	"time"
)

// RateLimiter ограничивает число команд на ключ (source:subject) в скользящем окне.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
}

// NewRateLimiter создает limiter: не больше limit событий за window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{limit: limit, window: window, hits: make(map[string][]time.Time)}
}

// Allow учитывает событие, если оно укладывается в лимит.
func (l *RateLimiter) Allow(key string, now time.Time) bool {
	ok, _ := l.Reserve(key, now)
	return ok
}

// Reserve как Allow, но при отказе сообщает, через сколько освободится место.
func (l *RateLimiter) Reserve(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.trim(key, now)
	if len(recent) >= l.limit {
		return false, recent[0].Add(l.window).Sub(now)
	}
	l.hits[key] = append(recent, now)
	return true, 0
}

// Sweep удаляет ключи без событий в окне и возвращает их число.
func (l *RateLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key := range l.hits {
		if len(l.trim(key, now)) == 0 {
			delete(l.hits, key)
			removed++
		}
	}
	return removed
}

// trim отбрасывает устаревшие отметки; вызывается под mu.
func (l *RateLimiter) trim(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	items := l.hits[key]
	i := 0
	for i < len(items) && !items[i].After(cutoff) {
		i++
	}
	recent := items[i:]
	l.hits[key] = recent
	return recent
}
