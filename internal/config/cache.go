package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for Redis-backed caching.  The response
// cache fronts the static catalog endpoint; BookedTTL bounds how long the
// booked-slot set of a date may be served from Redis before it is read
// from the store again.  Commits invalidate the set immediately, the TTL
// only limits drift when an invalidation is lost.
type CacheConfig struct {
	Enabled      bool          `envconfig:"ENABLED" default:"true"`
	Methods      []string      `envconfig:"METHODS" default:"GET"`
	TTL          time.Duration `envconfig:"TTL" default:"5m"`
	KeyStrategy  string        `envconfig:"KEY_STRATEGY" default:"route_query"` // route | route_query
	Prefix       string        `envconfig:"PREFIX" default:"cache"`
	MaxBodyBytes int           `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	BookedTTL    time.Duration `envconfig:"BOOKED_TTL" default:"30s"`
	Debug        bool          `envconfig:"DEBUG" default:"false"`
}

// LoadCacheConfig reads CACHE_* variables.  Defaults are used when
// variables are not set or cannot be parsed.
func LoadCacheConfig() CacheConfig {
	var c CacheConfig
	processOrDefaults("CACHE", &c)
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.BookedTTL <= 0 {
		c.BookedTTL = 30 * time.Second
	}
	return c
}

// MethodSet returns the cacheable HTTP methods, upper-cased.
func (c CacheConfig) MethodSet() map[string]bool {
	m := map[string]bool{}
	for _, p := range c.Methods {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
