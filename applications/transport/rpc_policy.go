package transport

import (
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RPCPolicy governs /rpc access: tenancy requirements and per-tenant/
// per-token rate limiting. Adapted from the teacher's rpc_policy.go, which
// used a hand-rolled fixed-window minute limiter; this version swaps in
// golang.org/x/time/rate's token bucket for the same per-identity shape.
type RPCPolicy struct {
	RequireTenant      bool
	PerTenantPerMinute float64
	PerTokenPerMinute  float64
	Burst              int
}

type rpcPolicy struct {
	requireTenant bool
	tenantLimits  *keyedLimiter
	tokenLimits   *keyedLimiter
}

// AccessPolicy is the admission check HTTPTransport, WSTransport, and
// SSETransport consult before dispatching a call or opening a stream.
// *rpcPolicy satisfies it; a nil AccessPolicy means no policy is enforced.
type AccessPolicy interface {
	Allow(tenant, token string) (bool, string)
}

// NewRPCPolicy builds the runtime policy object Allow checks against.
func NewRPCPolicy(policy RPCPolicy) *rpcPolicy {
	burst := policy.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rpcPolicy{
		requireTenant: policy.RequireTenant,
		tenantLimits:  newKeyedLimiter(policy.PerTenantPerMinute, burst),
		tokenLimits:   newKeyedLimiter(policy.PerTokenPerMinute, burst),
	}
}

// Allow reports whether a call from tenant/token may proceed, plus a
// human-readable reason when it is rejected.
func (p *rpcPolicy) Allow(tenant, token string) (bool, string) {
	if p == nil {
		return true, ""
	}
	if p.requireTenant && strings.TrimSpace(tenant) == "" {
		return false, "tenant-required"
	}
	if !p.tenantLimits.allow(tenant) {
		return false, "tenant-limit"
	}
	if !p.tokenLimits.allow(token) {
		return false, "token-limit"
	}
	return true, ""
}

// keyedLimiter holds one rate.Limiter per identity, created lazily.
type keyedLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newKeyedLimiter(perMinute float64, burst int) *keyedLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &keyedLimiter{limit: rate.Limit(perMinute / 60), burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (k *keyedLimiter) allow(key string) bool {
	if k == nil {
		return true
	}
	if strings.TrimSpace(key) == "" {
		key = "anonymous"
	}
	k.mu.Lock()
	limiter, ok := k.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = limiter
	}
	k.mu.Unlock()
	return limiter.Allow()
}
