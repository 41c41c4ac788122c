// Package ratelimit provides the session-scoped admission gate for
// outbound Looker calls.
//
// A Limiter enforces two sliding windows at once: a per-minute cap and a
// per-second burst cap. When the Looker API reports rate limiting, the
// effective caps halve globally for every worker sharing the limiter and
// recover one step at a time after a window of sustained success.
//
// Each session constructs its own Limiter; two concurrent sessions never
// share admission state.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// recoveryWindow is how long success must be sustained before one
	// slowdown step is undone.
	recoveryWindow = 10 * time.Second

	// backoffHold pauses all admissions after a rate-limit report, giving
	// the server's window time to drain before the halved caps apply.
	backoffHold = time.Second

	// maxSlowdownLevel bounds the halving; beyond this the floor caps
	// apply anyway.
	maxSlowdownLevel = 10
)

// Limiter is a dual sliding-window admission controller. All methods are
// safe for concurrent use by every worker of a session.
type Limiter struct {
	perMinute int
	perSecond int

	// Window durations are fields so tests can compress time.
	minuteWindow time.Duration
	secondWindow time.Duration

	mu         sync.Mutex
	minuteRing *ring
	secondRing *ring
	level      int       // slowdown level; effective caps are configured >> level
	pauseUntil time.Time // back-off deadline recorded by ReportRateLimited
	limitedAt  time.Time // last rate-limit report
	restoredAt time.Time // last recovery step
}

// New returns a limiter admitting at most perMinute requests in any
// sliding minute and perSecond in any sliding second.
func New(perMinute, perSecond int) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	if perSecond < 1 {
		perSecond = 1
	}
	return &Limiter{
		perMinute:    perMinute,
		perSecond:    perSecond,
		minuteWindow: time.Minute,
		secondWindow: time.Second,
		minuteRing:   newRing(perMinute),
		secondRing:   newRing(perSecond),
	}
}

// Acquire blocks until issuing one request is admissible, then consumes an
// admission slot. It returns ctx.Err() immediately on cancellation and nil
// otherwise.
//
// Slots are reserved in arrival order under the state lock, so admission
// is FIFO among blocked acquirers; the wait itself happens outside the
// lock.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := time.Now()
	at := l.earliestAdmission(now)
	l.minuteRing.push(at)
	l.secondRing.push(at)
	l.mu.Unlock()

	wait := time.Until(at)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		// The reservation stays in the rings; it only delays peers by the
		// slot the cancelled caller would have used anyway.
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// earliestAdmission computes the first instant at which a new admission
// keeps both windows within their effective caps. Reservations are
// monotonically nondecreasing, so the rings stay sorted by construction.
// Caller holds l.mu.
func (l *Limiter) earliestAdmission(now time.Time) time.Time {
	at := now
	if l.pauseUntil.After(at) {
		at = l.pauseUntil
	}
	if t := l.minuteRing.earliest(l.effectiveMinuteCap(), l.minuteWindow); t.After(at) {
		at = t
	}
	if t := l.secondRing.earliest(l.effectiveSecondCap(), l.secondWindow); t.After(at) {
		at = t
	}
	return at
}

// ReportRateLimited halves the effective admission rate and records a
// back-off deadline. Every worker sharing the limiter slows down.
func (l *Limiter) ReportRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level < maxSlowdownLevel {
		l.level++
	}
	now := time.Now()
	l.limitedAt = now
	l.restoredAt = now // restart the recovery clock
	if deadline := now.Add(backoffHold); deadline.After(l.pauseUntil) {
		l.pauseUntil = deadline
	}
}

// ReportSuccess contributes to recovery accounting. After recoveryWindow
// of sustained success the limiter restores one slowdown step toward the
// configured ceiling.
func (l *Limiter) ReportSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level == 0 {
		return
	}
	now := time.Now()
	since := l.restoredAt
	if l.limitedAt.After(since) {
		since = l.limitedAt
	}
	if now.Sub(since) >= recoveryWindow {
		l.level--
		l.restoredAt = now
	}
}

// effectiveSecondCap is the per-second cap after slowdown, floored at one
// request per second so progress never stalls entirely.
func (l *Limiter) effectiveSecondCap() int {
	cap := l.perSecond >> l.level
	if cap < 1 {
		cap = 1
	}
	return cap
}

// effectiveMinuteCap is the per-minute cap after slowdown. The floor keeps
// the minute window from constraining below the one-per-second floor, but
// never raises it above the configured ceiling.
func (l *Limiter) effectiveMinuteCap() int {
	cap := l.perMinute >> l.level
	floor := 60
	if l.perMinute < floor {
		floor = l.perMinute
	}
	if cap < floor {
		cap = floor
	}
	return cap
}

// Snapshot reports the limiter's current state for logging.
type Snapshot struct {
	PerMinute          int `json:"per_minute"`
	PerSecond          int `json:"per_second"`
	EffectivePerMinute int `json:"effective_per_minute"`
	EffectivePerSecond int `json:"effective_per_second"`
	SlowdownLevel      int `json:"slowdown_level"`
}

// Snapshot returns the configured and effective caps.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		PerMinute:          l.perMinute,
		PerSecond:          l.perSecond,
		EffectivePerMinute: l.effectiveMinuteCap(),
		EffectivePerSecond: l.effectiveSecondCap(),
		SlowdownLevel:      l.level,
	}
}

// ring is a fixed-capacity ring of admission timestamps, oldest first.
// Capacity equals the configured (maximum) cap; smaller effective caps
// read the k-th most recent entry instead of shrinking the buffer.
type ring struct {
	buf   []time.Time
	start int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]time.Time, capacity)}
}

// push appends a timestamp, evicting the oldest entry when full. Pushed
// values never decrease, so the ring stays sorted oldest to newest.
func (r *ring) push(t time.Time) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = t
		r.count++
		return
	}
	r.buf[r.start] = t
	r.start = (r.start + 1) % len(r.buf)
}

// at returns the i-th oldest entry.
func (r *ring) at(i int) time.Time {
	return r.buf[(r.start+i)%len(r.buf)]
}

// earliest returns the first instant a new admission would keep the most
// recent cap entries inside the window: the cap-th most recent entry must
// have aged out. The zero time means "admissible now".
func (r *ring) earliest(cap int, window time.Duration) time.Time {
	if r.count < cap {
		return time.Time{}
	}
	kth := r.at(r.count - cap)
	return kth.Add(window)
}
