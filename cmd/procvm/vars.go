package main

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseVars turns name=value pairs into process variables. Values are YAML
// scalars, so 42 is an int, true a bool and anything unquoted-but-textual a
// string.
func parseVars(pairs []string) (map[string]interface{}, error) {
	vars := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable %q, want name=value", pair)
		}

		var value interface{}
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		vars[name] = value
	}
	return vars, nil
}
