// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"fmt"
	"strings"

	"github.com/aegis-foundation/aegis/lib/action"
	"github.com/aegis-foundation/aegis/lib/pattern"
)

// ResourcePattern identifies the resources a token covers. The string
// form is a scheme-prefixed URI, exact or glob:
//
//	mcp://github:create_issue
//	file:///workspace/**
//	exec://git
//	net://api.example.com:443
//	plugin://weather:http_request
//
// Patterns containing ".." path segments are rejected at construction
// and at match time, so a token can never be minted for (or matched
// against) a traversal path.
type ResourcePattern struct {
	raw  string
	glob bool
}

// NewResourcePattern validates and builds a resource pattern.
func NewResourcePattern(raw string) (ResourcePattern, error) {
	if raw == "" {
		return ResourcePattern{}, fmt.Errorf("empty resource pattern")
	}
	if containsTraversal(raw) {
		return ResourcePattern{}, fmt.Errorf("resource pattern %q contains a path traversal segment", raw)
	}
	return ResourcePattern{
		raw:  raw,
		glob: !pattern.IsLiteral(raw),
	}, nil
}

// Matches reports whether the pattern covers the given resource
// string. Resources containing traversal segments never match.
func (p ResourcePattern) Matches(resource string) bool {
	if containsTraversal(resource) {
		return false
	}
	if !p.glob {
		return p.raw == resource
	}
	return pattern.Match(p.raw, resource)
}

// IsGlob reports whether the pattern contains glob metacharacters.
// Exact patterns outrank globs during token lookup.
func (p ResourcePattern) IsGlob() bool { return p.glob }

// String returns the raw pattern.
func (p ResourcePattern) String() string { return p.raw }

// containsTraversal detects ".." as a path segment in the portion
// after the scheme.
func containsTraversal(s string) bool {
	if _, rest, found := strings.Cut(s, "://"); found {
		s = rest
	}
	for _, segment := range strings.Split(s, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

// ResourceForAction maps a sensitive action to the resource string
// and permission a covering token must grant. Returns ok=false for
// action kinds that have no capability mapping (data transmission,
// financial transactions, access control changes, capability grants):
// those always require a fresh human approval and can never be
// covered by a standing token.
func ResourceForAction(a action.SensitiveAction) (resource string, permission action.Permission, ok bool) {
	switch a := a.(type) {
	case action.ToolCall:
		return fmt.Sprintf("mcp://%s:%s", a.Server, a.Tool), action.PermissionInvoke, true
	case action.FileRead:
		return "file://" + a.Path, action.PermissionRead, true
	case action.FileDelete:
		return "file://" + a.Path, action.PermissionDelete, true
	case action.FileWriteOutside:
		return "file://" + a.Path, action.PermissionWrite, true
	case action.CommandExec:
		return "exec://" + a.Command, action.PermissionExecute, true
	case action.NetworkRequest:
		return fmt.Sprintf("net://%s:%d", a.Host, a.Port), action.PermissionInvoke, true
	case action.PluginExecution:
		return fmt.Sprintf("plugin://%s:%s", a.PluginID, a.Capability), action.PermissionInvoke, true
	case action.PluginHTTPRequest:
		return fmt.Sprintf("plugin://%s:http_request", a.PluginID), action.PermissionInvoke, true
	case action.PluginFileAccess:
		var cap string
		switch a.Mode {
		case action.PermissionRead:
			cap = "file_read"
		case action.PermissionWrite:
			cap = "file_write"
		case action.PermissionDelete:
			cap = "file_delete"
		default:
			return "", "", false
		}
		return fmt.Sprintf("plugin://%s:%s", a.PluginID, cap), action.PermissionInvoke, true
	default:
		return "", "", false
	}
}
