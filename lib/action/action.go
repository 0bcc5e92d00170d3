// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"fmt"
	"strings"
)

// SensitiveAction is a risky operation an agent wants to perform.
// The set of variants is closed: only the types in this package
// implement it, so switches over the concrete types are exhaustive.
type SensitiveAction interface {
	// ActionType returns the stable snake_case label for the variant.
	ActionType() string

	// DefaultRiskLevel returns the baseline risk for this action
	// type. Context may adjust the effective risk (deleting a temp
	// file vs a config file), but the baseline drives the default
	// approval requirement.
	DefaultRiskLevel() RiskLevel

	// Summary returns a one-line human-readable description shown in
	// approval prompts and audit listings.
	Summary() string

	sealed()
}

// ToolCall is an invocation of a tool on a named server that requires
// approval.
type ToolCall struct {
	// Server is the tool server name.
	Server string `json:"server"`
	// Tool is the tool name on that server.
	Tool string `json:"tool"`
}

// FileRead is a file read or filesystem search. Read-only operations
// still go through authorization: reads can expose credentials,
// private keys, and personal data.
type FileRead struct {
	// Path is the path or pattern being read or searched.
	Path string `json:"path"`
}

// FileDelete is a file deletion.
type FileDelete struct {
	Path string `json:"path"`
}

// FileWriteOutside is a file write outside the operational workspace.
// Writes inside the workspace are not sensitive actions; they never
// reach the interceptor.
type FileWriteOutside struct {
	Path string `json:"path"`
}

// CommandExec is a shell command execution.
type CommandExec struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// NetworkRequest is an outbound network connection.
type NetworkRequest struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// DataTransmit is a transmission of data to an external destination.
type DataTransmit struct {
	// Destination is where the data is being sent.
	Destination string `json:"destination"`
	// DataType classifies the data being transmitted.
	DataType string `json:"data_type"`
}

// FinancialTransaction is a payment or transfer. Amount is a string
// to avoid floating-point representation issues.
type FinancialTransaction struct {
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

// AccessControlChange is a modification of access control settings.
type AccessControlChange struct {
	// Resource is the resource whose access is changing.
	Resource string `json:"resource"`
	// Change describes the modification.
	Change string `json:"change"`
}

// CapabilityGrant is the minting of a capability token. Granting a
// capability is itself a sensitive action: it creates standing
// permission that outlives the approval that created it.
type CapabilityGrant struct {
	ResourcePattern string       `json:"resource_pattern"`
	Permissions     []Permission `json:"permissions"`
}

// PluginExecution is a plugin invoking a host capability from its
// sandbox.
type PluginExecution struct {
	PluginID   string `json:"plugin_id"`
	Capability string `json:"capability"`
}

// PluginHTTPRequest is a plugin requesting an outbound HTTP request.
type PluginHTTPRequest struct {
	PluginID string `json:"plugin_id"`
	URL      string `json:"url"`
	Method   string `json:"method"`
}

// PluginFileAccess is a plugin requesting filesystem access.
type PluginFileAccess struct {
	PluginID string `json:"plugin_id"`
	Path     string `json:"path"`
	// Mode is the access mode: read, write, or delete.
	Mode Permission `json:"mode"`
}

func (ToolCall) sealed()             {}
func (FileRead) sealed()             {}
func (FileDelete) sealed()           {}
func (FileWriteOutside) sealed()     {}
func (CommandExec) sealed()          {}
func (NetworkRequest) sealed()       {}
func (DataTransmit) sealed()         {}
func (FinancialTransaction) sealed() {}
func (AccessControlChange) sealed()  {}
func (CapabilityGrant) sealed()      {}
func (PluginExecution) sealed()      {}
func (PluginHTTPRequest) sealed()    {}
func (PluginFileAccess) sealed()     {}

// Stable action type labels. These appear in audit entries, policy
// files, and approval requests.
const (
	TypeToolCall             = "tool_call"
	TypeFileRead             = "file_read"
	TypeFileDelete           = "file_delete"
	TypeFileWriteOutside     = "file_write_outside_sandbox"
	TypeCommandExec          = "execute_command"
	TypeNetworkRequest       = "network_request"
	TypeDataTransmit         = "transmit_data"
	TypeFinancialTransaction = "financial_transaction"
	TypeAccessControlChange  = "access_control_change"
	TypeCapabilityGrant      = "capability_grant"
	TypePluginExecution      = "plugin_execution"
	TypePluginHTTPRequest    = "plugin_http_request"
	TypePluginFileAccess     = "plugin_file_access"
)

func (ToolCall) ActionType() string             { return TypeToolCall }
func (FileRead) ActionType() string             { return TypeFileRead }
func (FileDelete) ActionType() string           { return TypeFileDelete }
func (FileWriteOutside) ActionType() string     { return TypeFileWriteOutside }
func (CommandExec) ActionType() string          { return TypeCommandExec }
func (NetworkRequest) ActionType() string       { return TypeNetworkRequest }
func (DataTransmit) ActionType() string         { return TypeDataTransmit }
func (FinancialTransaction) ActionType() string { return TypeFinancialTransaction }
func (AccessControlChange) ActionType() string  { return TypeAccessControlChange }
func (CapabilityGrant) ActionType() string      { return TypeCapabilityGrant }
func (PluginExecution) ActionType() string      { return TypePluginExecution }
func (PluginHTTPRequest) ActionType() string    { return TypePluginHTTPRequest }
func (PluginFileAccess) ActionType() string     { return TypePluginFileAccess }

func (FileRead) DefaultRiskLevel() RiskLevel             { return RiskMedium }
func (NetworkRequest) DefaultRiskLevel() RiskLevel       { return RiskMedium }
func (ToolCall) DefaultRiskLevel() RiskLevel             { return RiskMedium }
func (FileDelete) DefaultRiskLevel() RiskLevel           { return RiskHigh }
func (FileWriteOutside) DefaultRiskLevel() RiskLevel     { return RiskHigh }
func (CommandExec) DefaultRiskLevel() RiskLevel          { return RiskHigh }
func (DataTransmit) DefaultRiskLevel() RiskLevel         { return RiskHigh }
func (CapabilityGrant) DefaultRiskLevel() RiskLevel      { return RiskHigh }
func (PluginExecution) DefaultRiskLevel() RiskLevel      { return RiskHigh }
func (PluginHTTPRequest) DefaultRiskLevel() RiskLevel    { return RiskHigh }
func (PluginFileAccess) DefaultRiskLevel() RiskLevel     { return RiskHigh }
func (FinancialTransaction) DefaultRiskLevel() RiskLevel { return RiskCritical }
func (AccessControlChange) DefaultRiskLevel() RiskLevel  { return RiskCritical }

func (a ToolCall) Summary() string {
	return fmt.Sprintf("Tool call: %s/%s", a.Server, a.Tool)
}

func (a FileRead) Summary() string {
	return "Read: " + a.Path
}

func (a FileDelete) Summary() string {
	return "Delete file: " + a.Path
}

func (a FileWriteOutside) Summary() string {
	return "Write file outside workspace: " + a.Path
}

func (a CommandExec) Summary() string {
	if len(a.Args) == 0 {
		return "Execute: " + a.Command
	}
	return fmt.Sprintf("Execute: %s %s", a.Command, strings.Join(a.Args, " "))
}

func (a NetworkRequest) Summary() string {
	return fmt.Sprintf("Network request to %s:%d", a.Host, a.Port)
}

func (a DataTransmit) Summary() string {
	return fmt.Sprintf("Transmit %s to %s", a.DataType, a.Destination)
}

func (a FinancialTransaction) Summary() string {
	return fmt.Sprintf("Financial transaction: %s to %s", a.Amount, a.Recipient)
}

func (a AccessControlChange) Summary() string {
	return fmt.Sprintf("Access control change on %s: %s", a.Resource, a.Change)
}

func (a CapabilityGrant) Summary() string {
	perms := make([]string, len(a.Permissions))
	for i, p := range a.Permissions {
		perms[i] = string(p)
	}
	return fmt.Sprintf("Grant capability: [%s] on %s", strings.Join(perms, ", "), a.ResourcePattern)
}

func (a PluginExecution) Summary() string {
	return fmt.Sprintf("Plugin %q wants to invoke capability %q", a.PluginID, a.Capability)
}

func (a PluginHTTPRequest) Summary() string {
	return fmt.Sprintf("Plugin %q wants to %s %s", a.PluginID, a.Method, a.URL)
}

func (a PluginFileAccess) Summary() string {
	return fmt.Sprintf("Plugin %q wants to %s %s", a.PluginID, a.Mode, a.Path)
}
