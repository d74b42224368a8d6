// Package usermap loads the optional operator-supplied override mapping
// from Redmine logins to GitLab usernames.
package usermap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Map translates a Redmine login to a GitLab username. Absent entries pass
// through unchanged.
type Map map[string]string

// Resolve applies the override, or returns the login as-is.
func (m Map) Resolve(login string) string {
	if target, ok := m[login]; ok {
		return target
	}
	return login
}

// Load reads a YAML file of `redmine_login: gitlab_username` pairs. An empty
// path yields an empty map (overrides are optional).
func Load(path string) (Map, error) {
	if path == "" {
		return Map{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading user map %s: %w", path, err)
	}
	m := Map{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing user map %s: %w", path, err)
	}
	return m, nil
}
