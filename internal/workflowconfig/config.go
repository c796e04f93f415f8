// Package workflowconfig loads workflow DAG definitions from YAML files
// (spec §3 "WorkflowDefinition... stored in configuration"), the same
// load-once-at-startup shape as internal/platformconfig.
package workflowconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/scanflow/platform/internal/domain"
)

// Store is the immutable, in-memory set of every loaded workflow
// definition, keyed by id.
type Store struct {
	workflows map[string]domain.WorkflowDefinition
}

// Load reads every `*.yaml`/`*.yml` file in dir as one domain.
// WorkflowDefinition, validates it, and returns an immutable Store. A
// workflow whose id is empty, duplicated across files, or that fails
// domain.WorkflowDefinition.Validate is a load-time error, matching
// platformconfig's "configuration-time, not runtime" error policy.
func Load(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("workflowconfig: read dir %s: %w", dir, err)
	}

	store := &Store{workflows: make(map[string]domain.WorkflowDefinition)}
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
			return nil, fmt.Errorf("workflowconfig: read %s: %w", path, err)
		}
		var wf domain.WorkflowDefinition
		if err := yaml.Unmarshal(raw, &wf); err != nil {
			return nil, fmt.Errorf("workflowconfig: parse %s: %w", path, err)
		}
		if wf.ID == "" {
			return nil, fmt.Errorf("workflowconfig: %s: workflow id is required", path)
		}
		if err := wf.Validate(); err != nil {
			return nil, fmt.Errorf("workflowconfig: %s: %w", path, err)
		}
		if _, dup := store.workflows[wf.ID]; dup {
			return nil, fmt.Errorf("workflowconfig: duplicate workflow id %q across config files", wf.ID)
		}
		store.workflows[wf.ID] = wf
	}
	return store, nil
}

// Get returns the workflow definition registered under id, or false if
// none was loaded.
func (s *Store) Get(id string) (domain.WorkflowDefinition, bool) {
	wf, ok := s.workflows[id]
	return wf, ok
}

// Len reports how many workflow definitions are loaded.
func (s *Store) Len() int { return len(s.workflows) }
