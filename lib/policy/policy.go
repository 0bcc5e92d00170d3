// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aegis-foundation/aegis/lib/action"
	"github.com/aegis-foundation/aegis/lib/pattern"
)

// Assessment describes the risk of an action that requires approval.
// It is rendered in approval prompts and recorded in audit entries.
type Assessment struct {
	// Level is the assessed risk level.
	Level action.RiskLevel `json:"level"`

	// Reason is a one-line explanation of why approval is needed.
	Reason string `json:"reason"`

	// Mitigations lists steps that would reduce the risk, if any.
	Mitigations []string `json:"mitigations,omitempty"`
}

// String renders the assessment for logs and prompts.
func (a Assessment) String() string {
	return fmt.Sprintf("[%s] %s", a.Level, a.Reason)
}

// Verdict is the outcome class of a policy check.
type Verdict int

const (
	// Allowed means the action passes the policy layer. Later
	// authorization layers (capabilities, allowances, budget) still
	// apply.
	Allowed Verdict = iota
	// RequiresApproval means the action must be approved by a human.
	RequiresApproval
	// Blocked means the action is never allowed. No approval,
	// capability, or allowance can override a block.
	Blocked
)

// Result reports the outcome of a policy check.
type Result struct {
	Verdict Verdict

	// Reason is set when Verdict is Blocked.
	Reason string

	// Assessment is set when Verdict is RequiresApproval.
	Assessment Assessment
}

// Allowed reports whether the action passes the policy layer.
func (r Result) Allowed() bool { return r.Verdict == Allowed }

// RequiresApproval reports whether the action must go to a human.
func (r Result) RequiresApproval() bool { return r.Verdict == RequiresApproval }

// Blocked reports whether the action is unconditionally denied.
func (r Result) Blocked() bool { return r.Verdict == Blocked }

// String renders the result for logs and deny reasons.
func (r Result) String() string {
	switch r.Verdict {
	case Allowed:
		return "allowed"
	case RequiresApproval:
		return "requires approval: " + r.Assessment.String()
	case Blocked:
		return "blocked: " + r.Reason
	default:
		return fmt.Sprintf("policy verdict(%d)", int(r.Verdict))
	}
}

func blocked(format string, args ...any) Result {
	return Result{Verdict: Blocked, Reason: fmt.Sprintf(format, args...)}
}

func needsApproval(level action.RiskLevel, format string, args ...any) Result {
	return Result{
		Verdict:    RequiresApproval,
		Assessment: Assessment{Level: level, Reason: fmt.Sprintf(format, args...)},
	}
}

// SecurityPolicy defines hard boundaries for agent actions. The zero
// value allows everything; use [Default] for sensible production
// defaults or [Permissive] for an explicit allow-everything policy.
type SecurityPolicy struct {
	// BlockedTools are tools that are never allowed. Matched against
	// command names, "command args..." prefixes, and tool calls as
	// "server:tool", the bare server, or the bare tool name.
	BlockedTools []string `json:"blocked_tools" yaml:"blocked_tools"`

	// ApprovalRequiredTools are tools that always require approval.
	// Matched against tool calls as "server:tool" or the bare server
	// (the latter covers every tool on that server).
	ApprovalRequiredTools []string `json:"approval_required_tools" yaml:"approval_required_tools"`

	// AllowedPaths are glob patterns for permitted file paths. When
	// non-empty, a path must match at least one pattern; when empty,
	// path allow-filtering is off.
	AllowedPaths []string `json:"allowed_paths" yaml:"allowed_paths"`

	// DeniedPaths are glob patterns for blocked file paths. Checked
	// before AllowedPaths.
	DeniedPaths []string `json:"denied_paths" yaml:"denied_paths"`

	// AllowedHosts are permitted network hosts. When non-empty, a
	// host must be listed; when empty, host allow-filtering is off.
	AllowedHosts []string `json:"allowed_hosts" yaml:"allowed_hosts"`

	// DeniedHosts are blocked network hosts. Checked before
	// AllowedHosts.
	DeniedHosts []string `json:"denied_hosts" yaml:"denied_hosts"`

	// MaxArgumentSize is the total command argument size limit in
	// bytes. Zero means no limit.
	MaxArgumentSize int `json:"max_argument_size" yaml:"max_argument_size"`

	// RequireApprovalForDelete forces approval for file deletions.
	RequireApprovalForDelete bool `json:"require_approval_for_delete" yaml:"require_approval_for_delete"`

	// RequireApprovalForNetwork forces approval for network access.
	RequireApprovalForNetwork bool `json:"require_approval_for_network" yaml:"require_approval_for_network"`

	// BlockedPlugins are plugin IDs that are never allowed to run.
	BlockedPlugins []string `json:"blocked_plugins" yaml:"blocked_plugins"`
}

// Default returns the default policy: dangerous commands ("rm -rf /",
// "sudo", "mkfs", "dd", ...) blocked, system paths (/etc, /boot,
// /sys, /proc, /dev) denied, a 1 MiB argument limit, and approval
// required for deletes and network access.
func Default() SecurityPolicy {
	return SecurityPolicy{
		BlockedTools: []string{
			"rm -rf /",
			"rm -rf /*",
			"sudo",
			"su",
			"mkfs",
			"dd",
			"chmod 777",
			"shutdown",
			"reboot",
			"init",
		},
		ApprovalRequiredTools: []string{"builtin:task"},
		DeniedPaths: []string{
			"/etc/**",
			"/boot/**",
			"/sys/**",
			"/proc/**",
			"/dev/**",
		},
		MaxArgumentSize:           1 << 20,
		RequireApprovalForDelete:  true,
		RequireApprovalForNetwork: true,
	}
}

// Permissive returns an empty policy that allows everything the
// policy layer can allow. Actions that structurally require approval
// (financial transactions, access control changes, capability grants,
// plugin actions) still require it.
func Permissive() SecurityPolicy {
	return SecurityPolicy{}
}

// Evaluate checks an action against the policy.
func (p *SecurityPolicy) Evaluate(a action.SensitiveAction) Result {
	switch a := a.(type) {
	case action.CommandExec:
		return p.checkCommand(a.Command, a.Args)
	case action.ToolCall:
		return p.checkTool(a.Server, a.Tool)
	case action.FileRead:
		return p.checkFilePath(a.Path, "file read")
	case action.FileWriteOutside:
		return p.checkFilePath(a.Path, "file write outside workspace")
	case action.FileDelete:
		return p.checkFileDelete(a.Path)
	case action.NetworkRequest:
		return p.checkHost(a.Host)
	case action.DataTransmit:
		return p.checkHost(a.Destination)
	case action.FinancialTransaction:
		return needsApproval(action.RiskCritical, "financial transactions always require approval")
	case action.AccessControlChange:
		return needsApproval(action.RiskCritical, "access control changes always require approval")
	case action.CapabilityGrant:
		return needsApproval(action.RiskHigh, "capability grants require approval")
	case action.PluginExecution:
		return p.checkPlugin(a.PluginID, a)
	case action.PluginHTTPRequest:
		return p.checkPlugin(a.PluginID, a)
	case action.PluginFileAccess:
		return p.checkPlugin(a.PluginID, a)
	default:
		// Unknown action kinds fail closed.
		return needsApproval(action.RiskCritical, "unrecognized action type %q", a.ActionType())
	}
}

func (p *SecurityPolicy) checkCommand(command string, args []string) Result {
	if slices.Contains(p.BlockedTools, command) {
		return blocked("command %q is blocked by policy", command)
	}

	// "rm -rf /" style entries block by prefix of the full command
	// line, so argument order cannot smuggle a blocked invocation.
	if len(args) > 0 {
		full := command + " " + strings.Join(args, " ")
		for _, entry := range p.BlockedTools {
			if strings.HasPrefix(full, entry) {
				return blocked("command %q matches blocked pattern %q", full, entry)
			}
		}
	}

	if p.MaxArgumentSize > 0 {
		total := 0
		for _, arg := range args {
			total += len(arg)
		}
		if total > p.MaxArgumentSize {
			return blocked("argument size %d exceeds limit %d", total, p.MaxArgumentSize)
		}
	}

	return needsApproval(action.RiskHigh, "command execution: %s", command)
}

func (p *SecurityPolicy) checkTool(server, tool string) Result {
	qualified := server + ":" + tool

	if slices.Contains(p.BlockedTools, qualified) ||
		slices.Contains(p.BlockedTools, server) ||
		slices.Contains(p.BlockedTools, tool) {
		return blocked("tool %q is blocked by policy", qualified)
	}

	if slices.Contains(p.ApprovalRequiredTools, qualified) ||
		slices.Contains(p.ApprovalRequiredTools, server) {
		return needsApproval(action.RiskMedium, "tool %q requires approval", qualified)
	}

	return Result{Verdict: Allowed}
}

func (p *SecurityPolicy) checkFilePath(path, operation string) Result {
	if hasTraversal(path) {
		return blocked("path contains traversal sequence (..)")
	}

	if pattern.MatchAny(p.DeniedPaths, path) {
		return blocked("path %q is denied by policy", path)
	}

	if len(p.AllowedPaths) > 0 && !pattern.MatchAny(p.AllowedPaths, path) {
		return blocked("path %q is not in allowed paths", path)
	}

	return needsApproval(action.RiskHigh, "%s: %s", operation, path)
}

func (p *SecurityPolicy) checkFileDelete(path string) Result {
	result := p.checkFilePath(path, "file delete")
	if result.Blocked() {
		return result
	}

	if p.RequireApprovalForDelete {
		return needsApproval(action.RiskHigh, "file deletion requires approval: %s", path)
	}
	return result
}

func (p *SecurityPolicy) checkHost(host string) Result {
	if slices.Contains(p.DeniedHosts, host) {
		return blocked("host %q is denied by policy", host)
	}

	if len(p.AllowedHosts) > 0 && !slices.Contains(p.AllowedHosts, host) {
		return blocked("host %q is not in allowed hosts", host)
	}

	if p.RequireApprovalForNetwork {
		return needsApproval(action.RiskMedium, "network access requires approval: %s", host)
	}
	return Result{Verdict: Allowed}
}

// checkPlugin layers plugin enforcement: a blocked plugin is denied
// outright, then HTTP requests are checked against denied hosts and
// file access against denied paths. Plugins that survive all three
// still require approval.
func (p *SecurityPolicy) checkPlugin(pluginID string, a action.SensitiveAction) Result {
	if slices.Contains(p.BlockedPlugins, pluginID) {
		return blocked("plugin %q is blocked by policy", pluginID)
	}

	switch a := a.(type) {
	case action.PluginHTTPRequest:
		if host := hostFromURL(a.URL); host != "" && slices.Contains(p.DeniedHosts, host) {
			return blocked("plugin %q HTTP request to denied host %q", pluginID, host)
		}
	case action.PluginFileAccess:
		if pattern.MatchAny(p.DeniedPaths, a.Path) {
			return blocked("plugin %q file access to denied path %q", pluginID, a.Path)
		}
	}

	return needsApproval(action.RiskHigh, "plugin %q action requires approval", pluginID)
}

// hasTraversal reports whether any path segment is "..".
func hasTraversal(path string) bool {
	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

// hostFromURL extracts the host from a URL of the form
// scheme://[user:pass@]host[:port][/path]. Returns "" when the input
// has no scheme separator or no host.
func hostFromURL(url string) string {
	_, rest, found := strings.Cut(url, "://")
	if !found {
		return ""
	}
	authority, _, _ := strings.Cut(rest, "/")
	if at := strings.LastIndex(authority, "@"); at >= 0 {
		authority = authority[at+1:]
	}
	host, _, _ := strings.Cut(authority, ":")
	return host
}
