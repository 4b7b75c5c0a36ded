// Package rules manages the ordered collection of custom classification
// instructions. Rules can be seeded from a YAML file and are persisted in
// the key-value store so they survive sessions.
package rules

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/oppscan/internal/model"
	"github.com/sells-group/oppscan/internal/store"
)

// seedFile is the YAML shape of a rules file.
type seedFile struct {
	Rules []model.CustomInstruction `yaml:"rules"`
}

// LoadFile reads an ordered rule list from a YAML file. Rules bound to an
// unknown tag are rejected rather than silently dropped.
func LoadFile(path string) ([]model.CustomInstruction, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, eris.Wrapf(err, "rules: parse %s", path)
	}

	for i, rule := range seed.Rules {
		tag, ok := model.ParseTag(string(rule.Tag))
		if !ok {
			return nil, eris.Errorf("rules: rule %d has unknown tag %q", i+1, rule.Tag)
		}
		seed.Rules[i].Tag = tag
	}
	return seed.Rules, nil
}

// Manager persists the rule collection in the store, preserving order.
type Manager struct {
	store store.Store
}

// NewManager creates a store-backed rules manager.
func NewManager(st store.Store) *Manager {
	return &Manager{store: st}
}

// Load returns the persisted rules, or nil when none have been saved.
func (m *Manager) Load(ctx context.Context) ([]model.CustomInstruction, error) {
	raw, ok, err := m.store.Get(ctx, store.RulesKey)
	if err != nil {
		return nil, eris.Wrap(err, "rules: load")
	}
	if !ok {
		return nil, nil
	}

	var rules []model.CustomInstruction
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, eris.Wrap(err, "rules: decode")
	}
	return rules, nil
}

// Save replaces the persisted rule collection.
func (m *Manager) Save(ctx context.Context, rules []model.CustomInstruction) error {
	raw, err := json.Marshal(rules)
	if err != nil {
		return eris.Wrap(err, "rules: encode")
	}
	if err := m.store.Set(ctx, store.RulesKey, raw, 0); err != nil {
		return eris.Wrap(err, "rules: save")
	}
	return nil
}

// Add appends one rule to the persisted collection.
func (m *Manager) Add(ctx context.Context, rule model.CustomInstruction) error {
	tag, ok := model.ParseTag(string(rule.Tag))
	if !ok {
		return eris.Errorf("rules: unknown tag %q", rule.Tag)
	}
	rule.Tag = tag

	rules, err := m.Load(ctx)
	if err != nil {
		return err
	}
	return m.Save(ctx, append(rules, rule))
}

// Clear removes all persisted rules.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Delete(ctx, store.RulesKey); err != nil {
		return eris.Wrap(err, "rules: clear")
	}
	return nil
}
