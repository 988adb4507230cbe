package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"fives.org/internal/ids"
	"fives.org/internal/notify"
)

var _ notify.RuleStore = (*RuleStore)(nil)

// RuleStore keeps notification rules in memory.
type RuleStore struct {
	mu    sync.RWMutex
	rules []notify.Rule
}

// NewRuleStore creates a store holding rules.
func NewRuleStore(rules ...notify.Rule) *RuleStore {
	s := &RuleStore{}
	for _, r := range rules {
		s.Put(r)
	}
	return s
}

// Put adds or replaces a rule by ID. Rules without an ID get one.
func (s *RuleStore) Put(r notify.Rule) notify.Rule {
	if r.ID == "" {
		r.ID = ids.New()
	}
	r.Recipients = slices.Clone(r.Recipients)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == r.ID {
			s.rules[i] = r
			return r
		}
	}
	s.rules = append(s.rules, r)
	return r
}

func (s *RuleStore) ActiveRules(ctx context.Context) ([]notify.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]notify.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Active {
			r.Recipients = slices.Clone(r.Recipients)
			out = append(out, r)
		}
	}
	return out, nil
}

type ruleFile struct {
	Rules []yamlRule `yaml:"rules"`
}

// yamlRule lets seed files write conditions and actions as YAML mappings;
// they are stored as the JSON documents the rule engine expects.
type yamlRule struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Active     *bool          `yaml:"active"`
	Conditions map[string]any `yaml:"trigger_conditions"`
	Actions    map[string]any `yaml:"actions"`
	Recipients []string       `yaml:"recipients"`
}

// LoadRules decodes a YAML rule seed and stores every rule. Rules are
// active unless they say otherwise.
func (s *RuleStore) LoadRules(r io.Reader) (int, error) {
	var f ruleFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("decode rules: %w", err)
	}
	for i, yr := range f.Rules {
		cond, err := toJSON(yr.Conditions)
		if err != nil {
			return i, fmt.Errorf("rule %d conditions: %w", i, err)
		}
		act, err := toJSON(yr.Actions)
		if err != nil {
			return i, fmt.Errorf("rule %d actions: %w", i, err)
		}
		active := true
		if yr.Active != nil {
			active = *yr.Active
		}
		s.Put(notify.Rule{
			ID:                yr.ID,
			Name:              yr.Name,
			Active:            active,
			TriggerConditions: cond,
			Actions:           act,
			Recipients:        yr.Recipients,
		})
	}
	return len(f.Rules), nil
}

// LoadRulesFile reads a YAML rule seed from path.
func (s *RuleStore) LoadRulesFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return s.LoadRules(f)
}

func toJSON(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
