// Package compliance scores a live model against a desired-state profile
// and drives edits until the two agree.
package compliance

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
)

// Profile maps cluster -> route -> statuses that must be set. Every other
// mutable status of a listed route must be unset.
//
// Example:
//
//	app:
//	  app1: []
//	  app2: [disabled]
//	  app3: [hot_standby]
type Profile map[string]map[string][]domain.StatusName

// LoadProfile reads a YAML profile from path.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML (or JSON) profile.
func ParseProfile(data []byte) (Profile, error) {
	var raw map[string]map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse profile yaml: %w", err)
	}

	p := make(Profile, len(raw))
	for cluster, routes := range raw {
		p[cluster] = make(map[string][]domain.StatusName, len(routes))
		for route, names := range routes {
			statuses := make([]domain.StatusName, 0, len(names))
			seen := make(map[domain.StatusName]bool, len(names))
			for _, n := range names {
				name, err := domain.ParseStatusName(n)
				if err != nil {
					return nil, fmt.Errorf("%s/%s: %w", cluster, route, err)
				}
				if !domain.IsMutableName(name) {
					return nil, fmt.Errorf("%s/%s: status %q cannot be set", cluster, route, name)
				}
				if !seen[name] {
					seen[name] = true
					statuses = append(statuses, name)
				}
			}
			p[cluster][route] = statuses
		}
	}
	return p, nil
}

// Clusters returns the profile's cluster names, sorted.
func (p Profile) Clusters() []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Routes returns the route names listed for cluster, sorted.
func (p Profile) Routes(cluster string) []string {
	names := make([]string, 0, len(p[cluster]))
	for n := range p[cluster] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// wants reports whether the profile lists name for cluster/route.
func (p Profile) wants(cluster, route string, name domain.StatusName) bool {
	for _, n := range p[cluster][route] {
		if n == name {
			return true
		}
	}
	return false
}
