// Package config loads the application configuration with viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/krisalay/clinic-swr-cache/engine"
	"github.com/krisalay/clinic-swr-cache/eviction"
)

// Config holds application configuration
type Config struct {
	Backend      BackendConfig      `mapstructure:"backend"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Invalidation InvalidationConfig `mapstructure:"invalidation"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
}

// BackendConfig describes the clinic REST backend.
type BackendConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int           `mapstructure:"burst"`
	Token     string        `mapstructure:"token"`
}

// FamilyConfig is the revalidation policy of one resource family.
type FamilyConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
}

type CacheConfig struct {
	Shards          int                     `mapstructure:"shards"`
	Capacity        int                     `mapstructure:"capacity"`
	Eviction        string                  `mapstructure:"eviction"`
	DefaultTTL      time.Duration           `mapstructure:"default_ttl"`
	DefaultCooldown time.Duration           `mapstructure:"default_cooldown"`
	LoadTimeout     time.Duration           `mapstructure:"load_timeout"`
	Families        map[string]FamilyConfig `mapstructure:"families"`
}

type InvalidationConfig struct {
	Mode   string        `mapstructure:"mode"` // immediate | deferred
	Delay  time.Duration `mapstructure:"delay"`
	Buffer int           `mapstructure:"buffer"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	InvalidateImmediate = "immediate"
	InvalidateDeferred  = "deferred"
)

// DefaultFamilies are the observed policies of the admin dashboard: long-lived
// aggregates, short cooldowns for the lists admins hammer on refresh.
func DefaultFamilies() map[string]FamilyConfig {
	return map[string]FamilyConfig{
		"stats":        {TTL: 5 * time.Minute, Cooldown: 30 * time.Second},
		"doctors":      {TTL: time.Minute, Cooldown: 10 * time.Second},
		"users":        {TTL: time.Minute, Cooldown: 10 * time.Second},
		"labBookings":  {TTL: 30 * time.Second, Cooldown: 10 * time.Second},
		"labReports":   {TTL: time.Minute, Cooldown: 10 * time.Second},
		"medicines":    {TTL: 2 * time.Minute, Cooldown: 10 * time.Second},
		"orders":       {TTL: 30 * time.Second, Cooldown: 10 * time.Second},
		"articles":     {TTL: 10 * time.Minute, Cooldown: 30 * time.Second},
		"compensation": {TTL: 5 * time.Minute, Cooldown: 30 * time.Second},
		"reviews":      {TTL: 2 * time.Minute, Cooldown: 10 * time.Second},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8080/api")
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("backend.rate_limit", 20.0)
	v.SetDefault("backend.burst", 10)
	v.SetDefault("cache.shards", 8)
	v.SetDefault("cache.capacity", 0)
	v.SetDefault("cache.eviction", string(eviction.LRU))
	v.SetDefault("cache.default_ttl", "1m")
	v.SetDefault("cache.default_cooldown", "10s")
	v.SetDefault("cache.load_timeout", "0s")
	v.SetDefault("invalidation.mode", InvalidateImmediate)
	v.SetDefault("invalidation.delay", "250ms")
	v.SetDefault("invalidation.buffer", 256)
	v.SetDefault("server.listen", ":8090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads the configuration. An empty path searches for clinicadmin.yaml in
// the working directory and $HOME/.config/clinicadmin; a missing file is not
// an error. Environment variables prefixed CLINIC_ override file values
// (CLINIC_BACKEND_BASE_URL, CLINIC_LOG_LEVEL, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("clinicadmin")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/clinicadmin")
	}

	v.SetEnvPrefix("CLINIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyFamilyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyFamilyDefaults fills in families missing from the file. Viper folds
// keys to lower case, so configured names are mapped back onto the
// canonical family names (labbookings -> labBookings).
func (c *Config) applyFamilyDefaults() {
	defaults := DefaultFamilies()
	families := make(map[string]FamilyConfig, len(defaults))
	for name, fc := range c.Cache.Families {
		for canonical := range defaults {
			if strings.EqualFold(name, canonical) {
				name = canonical
				break
			}
		}
		families[name] = fc
	}
	for name, fc := range defaults {
		if _, ok := families[name]; !ok {
			families[name] = fc
		}
	}
	c.Cache.Families = families
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not an absolute URL", c.Backend.BaseURL)
	}
	if c.Cache.Shards < 1 {
		return fmt.Errorf("cache.shards must be at least 1, got %d", c.Cache.Shards)
	}
	if _, ok := eviction.ParsePolicyType(c.Cache.Eviction); !ok {
		return fmt.Errorf("cache.eviction %q is not one of lru, fifo", c.Cache.Eviction)
	}
	switch c.Invalidation.Mode {
	case InvalidateImmediate, InvalidateDeferred:
	default:
		return fmt.Errorf("invalidation.mode %q is not one of immediate, deferred", c.Invalidation.Mode)
	}
	for name, fc := range c.Cache.Families {
		if fc.TTL < 0 || fc.Cooldown < 0 || fc.LoadTimeout < 0 {
			return fmt.Errorf("cache.families.%s: durations must not be negative", name)
		}
	}
	return nil
}

// EvictionPolicy returns the validated eviction policy type.
func (c *CacheConfig) EvictionPolicy() eviction.PolicyType {
	p, _ := eviction.ParsePolicyType(c.Eviction)
	return p
}

// DefaultPolicy is used for families not listed in Families.
func (c *CacheConfig) DefaultPolicy() engine.Policy {
	return engine.Policy{TTL: c.DefaultTTL, Cooldown: c.DefaultCooldown, LoadTimeout: c.LoadTimeout}
}

// Policies converts the families into engine policies, sorted by family.
// A family without its own load timeout inherits cache.load_timeout.
func (c *CacheConfig) Policies() []engine.Policy {
	names := make([]string, 0, len(c.Families))
	for name := range c.Families {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]engine.Policy, 0, len(names))
	for _, name := range names {
		fc := c.Families[name]
		timeout := fc.LoadTimeout
		if timeout == 0 {
			timeout = c.LoadTimeout
		}
		out = append(out, engine.Policy{Family: name, TTL: fc.TTL, Cooldown: fc.Cooldown, LoadTimeout: timeout})
	}
	return out
}
