// Package ratelimit gates connection accept by remote IP so a single
// misbehaving client cannot starve other producers or viewers of CPU on
// the shared world store lock.
package ratelimit

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AcceptLimiter applies a per-IP token bucket to inbound connections.
type AcceptLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
}

type ipLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New creates an AcceptLimiter. ratePerSec is the sustained accept rate
// per remote IP, burst is the max burst size. A background goroutine
// evicts IPs that haven't connected in 10 minutes so the map doesn't grow
// without bound across the process lifetime.
func New(ratePerSec float64, burst int) *AcceptLimiter {
	l := &AcceptLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Limit(ratePerSec),
		burst:    burst,
	}
	go l.evictLoop()
	return l
}

func (l *AcceptLimiter) evictLoop() {
	for range time.Tick(5 * time.Minute) {
		l.mu.Lock()
		for ip, il := range l.limiters {
			if time.Since(il.lastSeen) > 10*time.Minute {
				delete(l.limiters, ip)
			}
		}
		l.mu.Unlock()
	}
}

func (l *AcceptLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	il, ok := l.limiters[ip]
	if !ok {
		il = &ipLimiter{lim: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = il
	}
	il.lastSeen = time.Now()
	return il.lim
}

// Allow reports whether a new connection from addr should be accepted.
func (l *AcceptLimiter) Allow(addr net.Addr) bool {
	return l.limiterFor(hostOf(addr)).Allow()
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
