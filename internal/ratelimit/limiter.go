// Package ratelimit gates outbound Bling API calls against the provider's
// published quotas: a per-second burst limit and a rolling daily ceiling.
package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"
)

const window = time.Second

// Limiter enforces both quotas. The per-second quota is a sliding window of
// admission timestamps; the daily quota is a counter anchored to a reset
// instant 24h after construction, advanced as it elapses.
//
// Waits are context-aware: a cancelled wait returns early and consumes no
// quota.
type Limiter struct {
	mu         sync.Mutex
	rps        int
	rpd        int
	day        time.Duration
	recent     []time.Time
	dailyCount int
	dailyReset time.Time
}

// New returns a limiter admitting at most rps calls in any trailing second
// and rpd calls per rolling 24h period.
func New(rps, rpd int) *Limiter {
	return newLimiter(rps, rpd, 24*time.Hour)
}

func newLimiter(rps, rpd int, day time.Duration) *Limiter {
	return &Limiter{
		rps:        rps,
		rpd:        rpd,
		day:        day,
		dailyReset: time.Now().Add(day),
	}
}

// Wait blocks until one call may be issued, then records it as consumed.
// The daily quota is checked before the per-second window.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()

		if !now.Before(l.dailyReset) {
			l.dailyCount = 0
			l.dailyReset = now.Add(l.day)
			log.Printf("ratelimit: daily counter reset, next reset %s", l.dailyReset.Format(time.RFC3339))
		}

		if l.dailyCount >= l.rpd {
			wait := l.dailyReset.Sub(now)
			l.mu.Unlock()
			log.Printf("ratelimit: daily quota of %d exhausted, waiting %s", l.rpd, wait.Round(time.Second))
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		// Drop admissions that have aged out of the sliding window.
		cut := 0
		for cut < len(l.recent) && now.Sub(l.recent[cut]) > window {
			cut++
		}
		if cut > 0 {
			l.recent = append(l.recent[:0], l.recent[cut:]...)
		}

		if len(l.recent) >= l.rps {
			wait := window - now.Sub(l.recent[0])
			l.mu.Unlock()
			if wait > 0 {
				if err := sleep(ctx, wait); err != nil {
					return err
				}
			}
			continue
		}

		l.recent = append(l.recent, now)
		l.dailyCount++
		l.mu.Unlock()
		return nil
	}
}

// DailyRemaining reports how many calls remain before the daily quota blocks.
func (l *Limiter) DailyRemaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Now().After(l.dailyReset) {
		return l.rpd
	}
	return l.rpd - l.dailyCount
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
