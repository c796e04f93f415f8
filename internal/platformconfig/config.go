// Package platformconfig loads and validates per-platform static
// configuration from YAML files (spec §3 "Platform configuration"). It is
// loaded once at process startup and never hot-reloaded (SPEC_FULL.md
// §4.0.b): ambient state here is a process-wide value constructed once,
// per spec §9.
package platformconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/scanflow/platform/internal/domain"
)

// Store is the immutable, in-memory set of every platform's loaded
// configuration.
type Store struct {
	configs map[domain.Platform]domain.PlatformConfig
}

// Load reads every `*.yaml` file in dir, validates each, and returns an
// immutable Store. A platform tag appearing twice, an unknown strategy
// kind, or a duplicate strategy priority within one platform is a
// load-time error (spec §9 "Unknown types are a configuration-time error,
// not a runtime one").
func Load(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("platformconfig: read dir %s: %w", dir, err)
	}

	store := &Store{configs: make(map[domain.Platform]domain.PlatformConfig)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("platformconfig: read %s: %w", path, err)
		}
		var cfg domain.PlatformConfig
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("platformconfig: parse %s: %w", path, err)
		}
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("platformconfig: %s: %w", path, err)
		}
		if _, dup := store.configs[cfg.ID]; dup {
			return nil, fmt.Errorf("platformconfig: duplicate platform %q across config files", cfg.ID)
		}
		store.configs[cfg.ID] = cfg
	}
	return store, nil
}

func validate(cfg domain.PlatformConfig) error {
	if !cfg.ID.Valid() {
		return fmt.Errorf("unknown platform tag %q", cfg.ID)
	}
	if len(cfg.Strategies) == 0 {
		return fmt.Errorf("platform %s: at least one strategy is required", cfg.ID)
	}
	seenPriority := map[int]bool{}
	for _, s := range cfg.Strategies {
		switch s.Type {
		case domain.StrategyHTTP, domain.StrategyGraphQL, domain.StrategyBrowser:
		default:
			return fmt.Errorf("platform %s: unknown strategy type %q", cfg.ID, s.Type)
		}
		if seenPriority[s.Priority] {
			return fmt.Errorf("platform %s: duplicate strategy priority %d", cfg.ID, s.Priority)
		}
		seenPriority[s.Priority] = true
	}
	return nil
}

// Get returns the configuration for p, or false if none was loaded.
func (s *Store) Get(p domain.Platform) (domain.PlatformConfig, bool) {
	cfg, ok := s.configs[p]
	return cfg, ok
}

// All returns every loaded platform tag, for readiness checks and the
// daily-sync scheduler's enumeration.
func (s *Store) All() []domain.Platform {
	out := make([]domain.Platform, 0, len(s.configs))
	for p := range s.configs {
		out = append(out, p)
	}
	return out
}

// Len reports how many platforms are configured.
func (s *Store) Len() int { return len(s.configs) }
