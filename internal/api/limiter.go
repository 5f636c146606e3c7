package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default login throttle: five attempts, then one every twelve seconds.
var (
	DefaultLoginRate  = rate.Every(12 * time.Second)
	DefaultLoginBurst = 5
)

const (
	limiterIdle     = 30 * time.Minute
	maxLimitedPeers = 1024
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginLimiter throttles login attempts per client IP.
type LoginLimiter struct {
	mu       sync.Mutex
	clients  map[string]*ipLimiter
	every    rate.Limit
	burst    int
	capacity int
}

func NewLoginLimiter(every rate.Limit, burst int) *LoginLimiter {
	return &LoginLimiter{
		clients:  make(map[string]*ipLimiter),
		every:    every,
		burst:    burst,
		capacity: maxLimitedPeers,
	}
}

// Allow reports whether ip may attempt another login now.
func (l *LoginLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= l.capacity {
			l.prune(now)
		}
		c = &ipLimiter{limiter: rate.NewLimiter(l.every, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// prune drops idle peers. If the table is still full the least recently
// seen peer goes too.
func (l *LoginLimiter) prune(now time.Time) {
	var oldest string
	var oldestSeen time.Time
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > limiterIdle {
			delete(l.clients, ip)
			continue
		}
		if oldest == "" || c.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen = ip, c.lastSeen
		}
	}
	if len(l.clients) >= l.capacity && oldest != "" {
		delete(l.clients, oldest)
	}
}
