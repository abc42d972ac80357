// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// LoadGroups reads a synthesis groups file: a YAML mapping of group name to
// paper ids. The file is the external grouping policy; the pipeline never
// invents its own clustering beyond the collection-tag default.
func LoadGroups(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading groups file %s: %w", path, err)
	}

	var groups map[string][]string
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parsing groups file %s: %w", path, err)
	}
	return groups, nil
}
