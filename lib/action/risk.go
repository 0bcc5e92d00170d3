// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package action

import "fmt"

// Permission is an access mode on a resource. Capability tokens grant
// sets of permissions; allowance patterns require one.
type Permission string

const (
	PermissionRead    Permission = "read"
	PermissionWrite   Permission = "write"
	PermissionExecute Permission = "execute"
	PermissionDelete  Permission = "delete"
	PermissionInvoke  Permission = "invoke"
	PermissionList    Permission = "list"
	PermissionCreate  Permission = "create"
)

// Valid reports whether the permission is one of the known modes.
func (p Permission) Valid() bool {
	switch p {
	case PermissionRead, PermissionWrite, PermissionExecute,
		PermissionDelete, PermissionInvoke, PermissionList, PermissionCreate:
		return true
	}
	return false
}

// RiskLevel classifies how dangerous an action is. Levels are ordered:
// comparisons like level >= RiskHigh are meaningful.
type RiskLevel int

const (
	// RiskLow actions are typically allowed without explicit approval.
	RiskLow RiskLevel = iota
	// RiskMedium actions may require approval depending on context.
	RiskMedium
	// RiskHigh actions require explicit approval.
	RiskHigh
	// RiskCritical actions require elevated approval.
	RiskCritical
)

// String returns the lowercase label used in audit entries and
// approval prompts.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return fmt.Sprintf("risk(%d)", int(r))
	}
}

// ParseRiskLevel converts a label back into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch s {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	case "critical":
		return RiskCritical, nil
	default:
		return 0, fmt.Errorf("unknown risk level %q", s)
	}
}

// RequiresApproval reports whether this risk level requires human
// approval by default when no capability or allowance covers the
// action.
func (r RiskLevel) RequiresApproval() bool {
	return r >= RiskHigh
}

// MarshalText implements encoding.TextMarshaler so RiskLevel fields
// serialize as their labels in JSON and YAML.
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RiskLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseRiskLevel(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
