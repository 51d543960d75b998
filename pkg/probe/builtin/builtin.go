// Package builtin provides the probes shipped with the engine: a literal
// pattern scanner and a zip container walker. Both honour their allowance
// and report partial results instead of failing.
package builtin

import (
	"fmt"
	"sort"

	"mercator-hq/triage/pkg/probe"
)

// Probe kinds registered by Register.
const (
	KindPattern = "pattern"
	KindArchive = "archive"
)

// Register adds the builtin probes to r.
func Register(r *probe.Registry) error {
	if err := r.Register(KindPattern, &PatternProbe{}); err != nil {
		return err
	}
	return r.Register(KindArchive, &ArchiveProbe{})
}

// NewRegistry returns a registry holding the builtin probes.
func NewRegistry() *probe.Registry {
	r := probe.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

func stringMap(config map[string]interface{}, key string) (map[string]string, error) {
	raw, ok := config[key]
	if !ok {
		return nil, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("config %q must be a mapping, got %T", key, raw)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("config %s.%s must be a string, got %T", key, k, v)
		}
		out[k] = s
	}
	return out, nil
}

func stringList(config map[string]interface{}, key string) ([]string, error) {
	raw, ok := config[key]
	if !ok {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("config %q must be a list, got %T", key, raw)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("config %q items must be strings, got %T", key, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
