// Package engine carries the ambient per-client request governor that
// sits in front of the resolver's serial request loop. A single noisy
// or compromised stub client issuing queries in a tight loop would
// otherwise monopolize the one-request-at-a-time server (§5); this
// limiter keeps that cost bounded per source IP.
package engine

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-client-IP token bucket over incoming DNS
// queries. Clients within exemptNets (trusted stub resolvers on the
// operator's own network, typically loopback) bypass the bucket
// entirely.
type RateLimiter struct {
	mu              sync.RWMutex
	limitersByIP    map[string]*rate.Limiter
	queriesPerSec   rate.Limit
	burstSize       int
	cleanupInterval time.Duration
	lastCleanup     time.Time
	exemptNets      []*net.IPNet
}

// RateLimiterConfig configures a RateLimiter's token bucket and its
// stale-entry cleanup cadence.
type RateLimiterConfig struct {
	QueriesPerSecond float64
	BurstSize        int
	CleanupInterval  time.Duration
}

// DefaultRateLimiterConfig matches internal/config.Default's rate-limit
// fields (§4.6): 100 QPS per client with bursts up to 200.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		QueriesPerSecond: 100,
		BurstSize:        200,
		CleanupInterval:  5 * time.Minute,
	}
}

// NewRateLimiter builds a RateLimiter with no exempt networks; callers
// add any with AddExempt before serving traffic.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		limitersByIP:    make(map[string]*rate.Limiter),
		queriesPerSec:   rate.Limit(cfg.QueriesPerSecond),
		burstSize:       cfg.BurstSize,
		cleanupInterval: cfg.CleanupInterval,
		lastCleanup:     time.Now(),
	}
}

// Allow reports whether a query from ip should proceed to the resolver,
// consuming a token from that client's bucket if so. Exempt clients
// always pass without touching the bucket map.
func (rl *RateLimiter) Allow(ip net.IP) bool {
	if rl.isExempt(ip) {
		return true
	}

	key := ip.String()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) > rl.cleanupInterval {
		rl.cleanup()
	}

	limiter, ok := rl.limitersByIP[key]
	if !ok {
		limiter = rate.NewLimiter(rl.queriesPerSec, rl.burstSize)
		rl.limitersByIP[key] = limiter
	}

	return limiter.Allow()
}

// AllowString parses ipStr and delegates to Allow; an unparseable
// address is treated as not allowed, since the server has no bucket it
// can charge the query against.
func (rl *RateLimiter) AllowString(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return rl.Allow(ip)
}

// AddExempt adds a client network (CIDR, or a bare IP treated as a
// /32 or /128) that bypasses rate limiting entirely.
func (rl *RateLimiter) AddExempt(cidr string) error {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		ip := net.ParseIP(cidr)
		if ip == nil {
			return err
		}
		if ip.To4() != nil {
			ipnet = &net.IPNet{IP: ip, Mask: net.CIDRMask(32, 32)}
		} else {
			ipnet = &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
		}
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.exemptNets = append(rl.exemptNets, ipnet)
	return nil
}

func (rl *RateLimiter) isExempt(ip net.IP) bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	for _, exempt := range rl.exemptNets {
		if exempt.Contains(ip) {
			return true
		}
	}
	return false
}

// cleanup drops every tracked bucket once cleanupInterval has elapsed.
// Must be called with mu held. This resets bursty clients' state along
// with idle ones, but the stub-client population a resolver serves
// turns over often enough that tracking last-use timestamps per IP
// isn't worth the extra bookkeeping.
func (rl *RateLimiter) cleanup() {
	rl.limitersByIP = make(map[string]*rate.Limiter)
	rl.lastCleanup = time.Now()
}

// Stats reports the limiter's current size, surfaced as the
// ripd_rate_limiter_tracked_clients gauge (internal/metrics).
func (rl *RateLimiter) Stats() RateLimiterStats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return RateLimiterStats{
		TrackedClients: len(rl.limitersByIP),
		ExemptNets:     len(rl.exemptNets),
	}
}

// RateLimiterStats holds a point-in-time snapshot of RateLimiter's
// internal bookkeeping.
type RateLimiterStats struct {
	TrackedClients int
	ExemptNets     int
}
