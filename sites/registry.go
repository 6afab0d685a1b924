package sites

import (
	"fmt"

	"chapterd/config"
	"chapterd/models"

	"github.com/charmbracelet/log"
)

// Registry maps each supported site to its adapter.
type Registry struct {
	adapters map[models.Site]Adapter
}

// NewRegistry builds one adapter per configuration, applying settings overrides.
// Disabled sites are left out.
func NewRegistry(configs []Config, overrides map[string]config.SiteSettings, deps Deps) (*Registry, error) {
	r := &Registry{adapters: make(map[models.Site]Adapter)}
	logger := log.WithPrefix("[Sites]")

	for name := range overrides {
		if _, err := models.ParseSite(name); err != nil {
			return nil, fmt.Errorf("settings: %w", err)
		}
	}

	for _, cfg := range configs {
		if o, ok := overrides[string(cfg.Site)]; ok {
			cfg = ApplyOverrides(cfg, o)
		}
		if cfg.Disabled {
			logger.Infof("Site %s disabled by settings", cfg.Site)
			continue
		}
		a, err := New(cfg, deps)
		if err != nil {
			return nil, err
		}
		r.Register(a)
	}
	return r, nil
}

// Register adds or replaces the adapter for its site.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Site()] = a
}

// Lookup returns the adapter registered for site.
func (r *Registry) Lookup(site models.Site) (Adapter, bool) {
	a, ok := r.adapters[site]
	return a, ok
}

// ApplyOverrides merges user settings into a built-in configuration.
func ApplyOverrides(cfg Config, o config.SiteSettings) Config {
	if o.Threshold != nil {
		cfg.Threshold = *o.Threshold
	}
	if o.MaxAttempts > 0 {
		cfg.MaxAttempts = o.MaxAttempts
	}
	if o.Settle > 0 {
		cfg.Settle = o.Settle
	}
	if o.Isolated != nil {
		cfg.Isolated = *o.Isolated
	}
	if o.Disabled {
		cfg.Disabled = true
	}
	return cfg
}
