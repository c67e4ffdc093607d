package gateway

import (
	"sync"
	"time"
)

// HourlyQuota is a fixed-window call counter keyed by wall-clock hour.
// A fresh hour abandons the previous window; there is no sliding credit.
// All methods are safe for concurrent use.
type HourlyQuota struct {
	mu     sync.Mutex
	limit  int
	window time.Time
	count  int
	now    func() time.Time
}

// NewHourlyQuota creates a quota with the given per-hour limit.
func NewHourlyQuota(limit int) *HourlyQuota {
	return NewHourlyQuotaWithClock(limit, time.Now)
}

// NewHourlyQuotaWithClock creates a quota with an injectable clock for tests.
func NewHourlyQuotaWithClock(limit int, now func() time.Time) *HourlyQuota {
	if now == nil {
		now = time.Now
	}
	return &HourlyQuota{limit: limit, now: now}
}

// Acquire spends one unit of quota, returning ErrQuotaExhausted when the
// current hour's budget is gone. The check and increment are a single
// critical section so the limit holds under concurrent callers.
func (q *HourlyQuota) Acquire() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.roll()
	if q.count >= q.limit {
		return ErrQuotaExhausted
	}
	q.count++
	return nil
}

// Usage reports calls spent and the limit for the current hour window.
func (q *HourlyQuota) Usage() (used, limit int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.roll()
	return q.count, q.limit
}

// roll resets the counter when the wall-clock hour has changed.
// Caller must hold mu.
func (q *HourlyQuota) roll() {
	key := q.now().Truncate(time.Hour)
	if !key.Equal(q.window) {
		q.window = key
		q.count = 0
	}
}
