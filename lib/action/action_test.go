// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"testing"
)

func TestActionTypeLabels(t *testing.T) {
	tests := []struct {
		action SensitiveAction
		want   string
	}{
		{FileDelete{Path: "/tmp/test"}, "file_delete"},
		{ToolCall{Server: "fs", Tool: "read"}, "tool_call"},
		{PluginExecution{PluginID: "weather", Capability: "config_read"}, "plugin_execution"},
		{PluginHTTPRequest{PluginID: "weather", URL: "https://api.weather.com", Method: "GET"}, "plugin_http_request"},
		{PluginFileAccess{PluginID: "weather", Path: "/tmp/cache.json", Mode: PermissionRead}, "plugin_file_access"},
	}
	for _, test := range tests {
		if got := test.action.ActionType(); got != test.want {
			t.Errorf("ActionType() = %q, want %q", got, test.want)
		}
	}
}

func TestDefaultRiskLevels(t *testing.T) {
	tests := []struct {
		action SensitiveAction
		want   RiskLevel
	}{
		{FileRead{}, RiskMedium},
		{NetworkRequest{}, RiskMedium},
		{ToolCall{}, RiskMedium},
		{FileDelete{}, RiskHigh},
		{FileWriteOutside{}, RiskHigh},
		{CommandExec{}, RiskHigh},
		{DataTransmit{}, RiskHigh},
		{CapabilityGrant{}, RiskHigh},
		{PluginExecution{}, RiskHigh},
		{PluginHTTPRequest{}, RiskHigh},
		{PluginFileAccess{}, RiskHigh},
		{FinancialTransaction{}, RiskCritical},
		{AccessControlChange{}, RiskCritical},
	}
	for _, test := range tests {
		if got := test.action.DefaultRiskLevel(); got != test.want {
			t.Errorf("%s DefaultRiskLevel() = %v, want %v", test.action.ActionType(), got, test.want)
		}
	}
}

func TestRiskLevelOrdering(t *testing.T) {
	if !(RiskLow < RiskMedium && RiskMedium < RiskHigh && RiskHigh < RiskCritical) {
		t.Error("risk levels are not ordered low < medium < high < critical")
	}
	if RiskMedium.RequiresApproval() {
		t.Error("medium risk requires approval by default")
	}
	if !RiskHigh.RequiresApproval() || !RiskCritical.RequiresApproval() {
		t.Error("high and critical risk must require approval")
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		action SensitiveAction
		want   string
	}{
		{FileDelete{Path: "/home/user/important.txt"}, "Delete file: /home/user/important.txt"},
		{CommandExec{Command: "rm", Args: []string{"-rf", "/tmp/build"}}, "Execute: rm -rf /tmp/build"},
		{CommandExec{Command: "ls"}, "Execute: ls"},
		{NetworkRequest{Host: "api.example.com", Port: 443}, "Network request to api.example.com:443"},
		{ToolCall{Server: "github", Tool: "create_issue"}, "Tool call: github/create_issue"},
		{
			CapabilityGrant{ResourcePattern: "file:/workspace/**", Permissions: []Permission{PermissionRead, PermissionWrite}},
			"Grant capability: [read, write] on file:/workspace/**",
		},
		{
			PluginHTTPRequest{PluginID: "weather", URL: "https://api.weather.com/v1", Method: "POST"},
			`Plugin "weather" wants to POST https://api.weather.com/v1`,
		},
		{
			PluginFileAccess{PluginID: "cache", Path: "/tmp/cache.json", Mode: PermissionWrite},
			`Plugin "cache" wants to write /tmp/cache.json`,
		},
	}
	for _, test := range tests {
		if got := test.action.Summary(); got != test.want {
			t.Errorf("Summary() = %q, want %q", got, test.want)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	actions := []SensitiveAction{
		ToolCall{Server: "github", Tool: "create_issue"},
		FileRead{Path: "/etc/hosts"},
		FileDelete{Path: "/tmp/scratch"},
		FileWriteOutside{Path: "/etc/crontab"},
		CommandExec{Command: "git", Args: []string{"push", "--force"}},
		NetworkRequest{Host: "api.example.com", Port: 443},
		DataTransmit{Destination: "s3://bucket", DataType: "telemetry"},
		FinancialTransaction{Amount: "12.50", Recipient: "acct-99"},
		AccessControlChange{Resource: "repo/main", Change: "make public"},
		CapabilityGrant{ResourcePattern: "cmd:git *", Permissions: []Permission{PermissionExecute}},
		PluginExecution{PluginID: "p1", Capability: "kv_write"},
		PluginHTTPRequest{PluginID: "p2", URL: "https://example.com", Method: "GET"},
		PluginFileAccess{PluginID: "p3", Path: "/tmp/file", Mode: PermissionDelete},
	}

	for _, original := range actions {
		data, err := Encode(original)
		if err != nil {
			t.Fatalf("Encode(%s): %v", original.ActionType(), err)
		}
		decoded, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%s): %v", original.ActionType(), err)
		}
		if decoded.ActionType() != original.ActionType() {
			t.Errorf("round trip changed type: %q -> %q", original.ActionType(), decoded.ActionType())
		}
		if decoded.Summary() != original.Summary() {
			t.Errorf("round trip changed summary: %q -> %q", original.Summary(), decoded.Summary())
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"mind_control","fields":{}}`)); err == nil {
		t.Error("Decode accepted an unknown action type")
	}
}

func TestRiskLevelTextRoundTrip(t *testing.T) {
	for _, level := range []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical} {
		text, err := level.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", level, err)
		}
		var parsed RiskLevel
		if err := parsed.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if parsed != level {
			t.Errorf("round trip changed level: %v -> %v", level, parsed)
		}
	}

	var bad RiskLevel
	if err := bad.UnmarshalText([]byte("extreme")); err == nil {
		t.Error("UnmarshalText accepted an unknown label")
	}
}

func TestPermissionValid(t *testing.T) {
	for _, p := range []Permission{
		PermissionRead, PermissionWrite, PermissionExecute,
		PermissionDelete, PermissionInvoke, PermissionList, PermissionCreate,
	} {
		if !p.Valid() {
			t.Errorf("Permission(%q).Valid() = false", p)
		}
	}
	if Permission("root").Valid() {
		t.Error(`Permission("root").Valid() = true`)
	}
}
