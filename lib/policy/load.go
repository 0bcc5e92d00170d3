// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a policy from a YAML (.yaml, .yml) or JSONC (.json,
// .jsonc) file. The file is applied on top of [Default], so fields it
// omits keep their default values; a field set to an empty list
// explicitly clears the default.
func LoadFile(path string) (SecurityPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SecurityPolicy{}, fmt.Errorf("reading policy %s: %w", path, err)
	}

	policy := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &policy); err != nil {
			return SecurityPolicy{}, fmt.Errorf("parsing policy %s: %w", path, err)
		}
	case ".json", ".jsonc":
		// JSONC allows // line comments, /* block comments */, and
		// trailing commas on top of plain JSON.
		if err := json.Unmarshal(jsonc.ToJSON(data), &policy); err != nil {
			return SecurityPolicy{}, fmt.Errorf("parsing policy %s: %w", path, err)
		}
	default:
		return SecurityPolicy{}, fmt.Errorf("policy %s: unsupported extension %q (want .yaml, .yml, .json, or .jsonc)", path, ext)
	}
	return policy, nil
}
