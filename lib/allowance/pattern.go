// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package allowance

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aegis-foundation/aegis/lib/action"
	"github.com/aegis-foundation/aegis/lib/pattern"
)

// Pattern describes which actions an allowance covers. The set of
// variants is closed; each variant matches one category of sensitive
// action.
type Pattern interface {
	// Matches reports whether the pattern covers the action.
	// workspaceRoot is the current workspace root ("" when not in a
	// workspace); workspace-relative patterns require the action to
	// fall inside it.
	Matches(a action.SensitiveAction, workspaceRoot string) bool

	// Kind returns the stable snake_case label for the variant.
	Kind() string

	// String returns the canonical display form. Two patterns with
	// the same String cover the same actions; the canonical form is
	// included in the allowance signing payload.
	String() string

	patternSealed()
}

// ExactTool matches one tool on one server.
type ExactTool struct {
	Server string `json:"server"`
	Tool   string `json:"tool"`
}

// ServerTools matches every tool on a server.
type ServerTools struct {
	Server string `json:"server"`
}

// FilePattern matches file actions by path glob and permission.
type FilePattern struct {
	// Pattern is a glob over file paths.
	Pattern string `json:"pattern"`
	// Permission selects which file action kind this covers: read,
	// write, or delete.
	Permission action.Permission `json:"permission"`
}

// NetworkHost matches outbound connections to a host.
type NetworkHost struct {
	Host string `json:"host"`
	// Ports restricts the match to specific ports. Empty means all
	// ports on the host.
	Ports []uint16 `json:"ports,omitempty"`
}

// CommandPattern matches command execution by name or glob.
type CommandPattern struct {
	Command string `json:"command"`
}

// WorkspaceRelative matches actions scoped to the current workspace.
// File actions must have a path under the workspace root in addition
// to matching the glob. For invoke and execute permissions the
// pattern matches tool calls ("server/tool") and commands, but only
// when a workspace root is set.
type WorkspaceRelative struct {
	Pattern    string            `json:"pattern"`
	Permission action.Permission `json:"permission"`
}

// PluginCapability matches one capability of one plugin. HTTP
// requests match capability "http_request"; file access matches the
// mode-derived capability ("file_read", "file_write", "file_delete").
type PluginCapability struct {
	PluginID   string `json:"plugin_id"`
	Capability string `json:"capability"`
}

// PluginWildcard matches any action from one plugin.
type PluginWildcard struct {
	PluginID string `json:"plugin_id"`
}

// Custom is an extensibility point: a pattern string whose
// interpretation is context-dependent. It never matches anything in
// this core.
type Custom struct {
	Pattern string `json:"pattern"`
}

func (ExactTool) patternSealed()         {}
func (ServerTools) patternSealed()       {}
func (FilePattern) patternSealed()       {}
func (NetworkHost) patternSealed()       {}
func (CommandPattern) patternSealed()    {}
func (WorkspaceRelative) patternSealed() {}
func (PluginCapability) patternSealed()  {}
func (PluginWildcard) patternSealed()    {}
func (Custom) patternSealed()            {}

// Pattern kind labels, stable across releases: they appear in
// exported allowance records.
const (
	KindExactTool         = "exact_tool"
	KindServerTools       = "server_tools"
	KindFilePattern       = "file_pattern"
	KindNetworkHost       = "network_host"
	KindCommandPattern    = "command_pattern"
	KindWorkspaceRelative = "workspace_relative"
	KindPluginCapability  = "plugin_capability"
	KindPluginWildcard    = "plugin_wildcard"
	KindCustom            = "custom"
)

func (ExactTool) Kind() string         { return KindExactTool }
func (ServerTools) Kind() string       { return KindServerTools }
func (FilePattern) Kind() string       { return KindFilePattern }
func (NetworkHost) Kind() string       { return KindNetworkHost }
func (CommandPattern) Kind() string    { return KindCommandPattern }
func (WorkspaceRelative) Kind() string { return KindWorkspaceRelative }
func (PluginCapability) Kind() string  { return KindPluginCapability }
func (PluginWildcard) Kind() string    { return KindPluginWildcard }
func (Custom) Kind() string            { return KindCustom }

func (p ExactTool) String() string   { return fmt.Sprintf("mcp://%s/%s", p.Server, p.Tool) }
func (p ServerTools) String() string { return fmt.Sprintf("mcp://%s/*", p.Server) }
func (p FilePattern) String() string { return fmt.Sprintf("file:%s (%s)", p.Pattern, p.Permission) }

func (p NetworkHost) String() string {
	if len(p.Ports) == 0 {
		return fmt.Sprintf("net:%s:*", p.Host)
	}
	ports := make([]string, len(p.Ports))
	for i, port := range p.Ports {
		ports[i] = fmt.Sprintf("%d", port)
	}
	return fmt.Sprintf("net:%s:[%s]", p.Host, strings.Join(ports, ","))
}

func (p CommandPattern) String() string { return "cmd:" + p.Command }

func (p WorkspaceRelative) String() string {
	return fmt.Sprintf("workspace:%s (%s)", p.Pattern, p.Permission)
}

func (p PluginCapability) String() string {
	return fmt.Sprintf("plugin://%s:%s", p.PluginID, p.Capability)
}

func (p PluginWildcard) String() string { return fmt.Sprintf("plugin://%s:*", p.PluginID) }
func (p Custom) String() string         { return "custom:" + p.Pattern }

func (p ExactTool) Matches(a action.SensitiveAction, _ string) bool {
	call, ok := a.(action.ToolCall)
	return ok && call.Server == p.Server && call.Tool == p.Tool
}

func (p ServerTools) Matches(a action.SensitiveAction, _ string) bool {
	call, ok := a.(action.ToolCall)
	return ok && call.Server == p.Server
}

func (p FilePattern) Matches(a action.SensitiveAction, _ string) bool {
	path, ok := filePathForPermission(a, p.Permission)
	return ok && pattern.MatchPath(p.Pattern, path)
}

func (p NetworkHost) Matches(a action.SensitiveAction, _ string) bool {
	request, ok := a.(action.NetworkRequest)
	if !ok || request.Host != p.Host {
		return false
	}
	if len(p.Ports) == 0 {
		return true
	}
	for _, port := range p.Ports {
		if port == request.Port {
			return true
		}
	}
	return false
}

func (p CommandPattern) Matches(a action.SensitiveAction, _ string) bool {
	exec, ok := a.(action.CommandExec)
	return ok && pattern.Match(p.Command, exec.Command)
}

func (p WorkspaceRelative) Matches(a action.SensitiveAction, workspaceRoot string) bool {
	switch p.Permission {
	case action.PermissionRead, action.PermissionWrite, action.PermissionDelete:
		path, ok := filePathForPermission(a, p.Permission)
		if !ok {
			return false
		}
		return pathInWorkspace(path, workspaceRoot) && pattern.MatchPath(p.Pattern, path)
	case action.PermissionInvoke:
		call, ok := a.(action.ToolCall)
		if !ok || workspaceRoot == "" {
			return false
		}
		return pattern.Match(p.Pattern, call.Server+"/"+call.Tool)
	case action.PermissionExecute:
		exec, ok := a.(action.CommandExec)
		if !ok || workspaceRoot == "" {
			return false
		}
		return pattern.Match(p.Pattern, exec.Command)
	default:
		return false
	}
}

func (p PluginCapability) Matches(a action.SensitiveAction, _ string) bool {
	pluginID, capability, ok := pluginCapabilityOf(a)
	return ok && pluginID == p.PluginID && capability == p.Capability
}

func (p PluginWildcard) Matches(a action.SensitiveAction, _ string) bool {
	pluginID, _, ok := pluginCapabilityOf(a)
	return ok && pluginID == p.PluginID
}

func (Custom) Matches(action.SensitiveAction, string) bool { return false }

// filePathForPermission extracts the path from the file action kind
// selected by the permission: read covers FileRead, delete covers
// FileDelete, write covers FileWriteOutside.
func filePathForPermission(a action.SensitiveAction, permission action.Permission) (string, bool) {
	switch a := a.(type) {
	case action.FileRead:
		return a.Path, permission == action.PermissionRead
	case action.FileDelete:
		return a.Path, permission == action.PermissionDelete
	case action.FileWriteOutside:
		return a.Path, permission == action.PermissionWrite
	default:
		return "", false
	}
}

// pluginCapabilityOf derives the (plugin, capability) pair a plugin
// action exercises.
func pluginCapabilityOf(a action.SensitiveAction) (pluginID, capability string, ok bool) {
	switch a := a.(type) {
	case action.PluginExecution:
		return a.PluginID, a.Capability, true
	case action.PluginHTTPRequest:
		return a.PluginID, "http_request", true
	case action.PluginFileAccess:
		switch a.Mode {
		case action.PermissionRead:
			return a.PluginID, "file_read", true
		case action.PermissionWrite:
			return a.PluginID, "file_write", true
		case action.PermissionDelete:
			return a.PluginID, "file_delete", true
		default:
			return "", "", false
		}
	default:
		return "", "", false
	}
}

// pathInWorkspace reports whether the path falls under the workspace
// root. An empty root means no workspace constraint.
func pathInWorkspace(path, workspaceRoot string) bool {
	if workspaceRoot == "" {
		return true
	}
	root := strings.TrimSuffix(workspaceRoot, "/")
	return path == root || strings.HasPrefix(path, root+"/")
}

// PatternForAction converts an action into the pattern an "allow for
// this session" or "create allowance" approval should persist.
// Returns ok=false for action kinds with no pattern mapping (data
// transmission, financial transactions, access control changes,
// capability grants): those always fall through to human approval.
func PatternForAction(a action.SensitiveAction) (Pattern, bool) {
	switch a := a.(type) {
	case action.ToolCall:
		return ExactTool{Server: a.Server, Tool: a.Tool}, true
	case action.FileRead:
		return FilePattern{Pattern: a.Path, Permission: action.PermissionRead}, true
	case action.FileDelete:
		return FilePattern{Pattern: a.Path, Permission: action.PermissionDelete}, true
	case action.FileWriteOutside:
		return FilePattern{Pattern: a.Path, Permission: action.PermissionWrite}, true
	case action.CommandExec:
		return CommandPattern{Command: a.Command}, true
	case action.NetworkRequest:
		return NetworkHost{Host: a.Host, Ports: []uint16{a.Port}}, true
	case action.PluginExecution:
		return PluginCapability{PluginID: a.PluginID, Capability: a.Capability}, true
	case action.PluginHTTPRequest:
		return PluginCapability{PluginID: a.PluginID, Capability: "http_request"}, true
	case action.PluginFileAccess:
		_, capability, ok := pluginCapabilityOf(a)
		if !ok {
			return nil, false
		}
		return PluginCapability{PluginID: a.PluginID, Capability: capability}, true
	default:
		return nil, false
	}
}

// patternEnvelope is the tagged JSON form of a Pattern.
type patternEnvelope struct {
	Kind   string          `json:"kind"`
	Fields json.RawMessage `json:"fields"`
}

// EncodePattern serializes a pattern as a tagged JSON envelope.
func EncodePattern(p Pattern) ([]byte, error) {
	fields, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding %s pattern: %w", p.Kind(), err)
	}
	return json.Marshal(patternEnvelope{Kind: p.Kind(), Fields: fields})
}

// DecodePattern parses a tagged JSON envelope back into the concrete
// pattern variant. Unknown kinds are an error.
func DecodePattern(data []byte) (Pattern, error) {
	var env patternEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding pattern envelope: %w", err)
	}

	var (
		decoded Pattern
		err     error
	)
	switch env.Kind {
	case KindExactTool:
		decoded, err = decodePatternFields[ExactTool](env.Fields)
	case KindServerTools:
		decoded, err = decodePatternFields[ServerTools](env.Fields)
	case KindFilePattern:
		decoded, err = decodePatternFields[FilePattern](env.Fields)
	case KindNetworkHost:
		decoded, err = decodePatternFields[NetworkHost](env.Fields)
	case KindCommandPattern:
		decoded, err = decodePatternFields[CommandPattern](env.Fields)
	case KindWorkspaceRelative:
		decoded, err = decodePatternFields[WorkspaceRelative](env.Fields)
	case KindPluginCapability:
		decoded, err = decodePatternFields[PluginCapability](env.Fields)
	case KindPluginWildcard:
		decoded, err = decodePatternFields[PluginWildcard](env.Fields)
	case KindCustom:
		decoded, err = decodePatternFields[Custom](env.Fields)
	default:
		return nil, fmt.Errorf("unknown pattern kind %q", env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s pattern fields: %w", env.Kind, err)
	}
	return decoded, nil
}

func decodePatternFields[T Pattern](fields json.RawMessage) (Pattern, error) {
	var v T
	if err := json.Unmarshal(fields, &v); err != nil {
		return nil, err
	}
	return v, nil
}
