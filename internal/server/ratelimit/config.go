package ratelimit

import (
	"net/http"
	"time"

	"github.com/maruel/mockdb/internal/config"
)

// Tier is a named limiter applied to a class of requests.
type Tier struct {
	Name    string
	Limiter *Limiter
}

// Tiers holds the read and write limiters. A nil Limiter means unlimited.
type Tiers struct {
	Read  Tier
	Write Tier
}

// NewTiers builds limiters from per-minute budgets. Burst is a sixth of the
// budget, at least 1.
func NewTiers(cfg config.RateLimits) *Tiers {
	return &Tiers{
		Read:  newTier("read", cfg.ReadPerMin),
		Write: newTier("write", cfg.WritePerMin),
	}
}

func newTier(name string, perMin int) Tier {
	t := Tier{Name: name}
	if perMin > 0 {
		t.Limiter = NewLimiter(perMin, time.Minute, max(perMin/6, 1))
	}
	return t
}

// Match returns the tier for a request, or nil when it is not limited.
func (c *Tiers) Match(method, path string) *Tier {
	if path == "/_health" {
		return nil
	}
	var t *Tier
	switch method {
	case http.MethodGet, http.MethodHead:
		t = &c.Read
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		t = &c.Write
	default:
		return nil
	}
	if t.Limiter == nil {
		return nil
	}
	return t
}

// Close stops all limiter cleanup goroutines.
func (c *Tiers) Close() {
	for _, t := range []*Tier{&c.Read, &c.Write} {
		if t.Limiter != nil {
			t.Limiter.Close()
		}
	}
}
