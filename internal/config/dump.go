package config

import (
	"sort"

	"gopkg.in/yaml.v3"
)

// YAML renders the effective configuration in the same layout the loader
// reads, with durations as strings and the token redacted.
func (c *Config) YAML() ([]byte, error) {
	families := yaml.Node{Kind: yaml.MappingNode}
	names := make([]string, 0, len(c.Cache.Families))
	for name := range c.Cache.Families {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fc := c.Cache.Families[name]
		var val yaml.Node
		if err := val.Encode(map[string]string{
			"ttl":          fc.TTL.String(),
			"cooldown":     fc.Cooldown.String(),
			"load_timeout": fc.LoadTimeout.String(),
		}); err != nil {
			return nil, err
		}
		families.Content = append(families.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name}, &val)
	}

	token := ""
	if c.Backend.Token != "" {
		token = "********"
	}

	doc := map[string]any{
		"backend": map[string]any{
			"base_url":   c.Backend.BaseURL,
			"timeout":    c.Backend.Timeout.String(),
			"rate_limit": c.Backend.RateLimit,
			"burst":      c.Backend.Burst,
			"token":      token,
		},
		"cache": map[string]any{
			"shards":           c.Cache.Shards,
			"capacity":         c.Cache.Capacity,
			"eviction":         c.Cache.Eviction,
			"default_ttl":      c.Cache.DefaultTTL.String(),
			"default_cooldown": c.Cache.DefaultCooldown.String(),
			"load_timeout":     c.Cache.LoadTimeout.String(),
			"families":         &families,
		},
		"invalidation": map[string]any{
			"mode":   c.Invalidation.Mode,
			"delay":  c.Invalidation.Delay.String(),
			"buffer": c.Invalidation.Buffer,
		},
		"server": map[string]any{"listen": c.Server.Listen},
		"log":    map[string]any{"level": c.Log.Level, "format": c.Log.Format},
	}
	return yaml.Marshal(doc)
}
