// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import "fmt"

// Proof records how an action was authorized. It is the evidentiary
// link between an allowed action and the grant or decision that
// permitted it; the matching audit entry carries the same reference.
// The set of variants is closed.
type Proof interface {
	// Kind returns the stable snake_case label for the variant.
	Kind() string

	// String returns a human-readable description of the proof.
	String() string

	proofSealed()
}

// PolicyAllowed proves the static policy permitted the action without
// human involvement.
type PolicyAllowed struct {
	Reason string
}

// Capability proves an existing valid token covered the action.
type Capability struct {
	TokenID     string
	IssuerKeyID string
}

// CapabilityCreated proves a fresh always-allow approval, which minted
// a persistent token for future calls.
type CapabilityCreated struct {
	TokenID string
	// ApprovalAuditID is the audit entry recording the approval the
	// token was minted from.
	ApprovalAuditID string
}

// Allowance proves an existing pre-approved grant covered the action
// and one use was consumed.
type Allowance struct {
	AllowanceID string
}

// SessionApproval proves a fresh human approval scoped to the rest of
// the session, which created a session allowance.
type SessionApproval struct {
	AllowanceID string
}

// WorkspaceApproval proves a fresh human approval scoped to the
// workspace, which created a workspace allowance.
type WorkspaceApproval struct {
	AllowanceID string
}

// UserApproval proves a fresh one-time human approval. It is also the
// degraded form of the scoped approvals when grant creation fails: the
// action itself stays approved.
type UserApproval struct {
	// ApprovalAuditID is the audit entry recording the approval.
	ApprovalAuditID string
}

func (PolicyAllowed) proofSealed()     {}
func (Capability) proofSealed()        {}
func (CapabilityCreated) proofSealed() {}
func (Allowance) proofSealed()         {}
func (SessionApproval) proofSealed()   {}
func (WorkspaceApproval) proofSealed() {}
func (UserApproval) proofSealed()      {}

// Proof kind labels, stable across releases.
const (
	KindPolicyAllowed     = "policy_allowed"
	KindCapability        = "capability"
	KindCapabilityCreated = "capability_created"
	KindAllowance         = "allowance"
	KindSessionApproval   = "session_approval"
	KindWorkspaceApproval = "workspace_approval"
	KindUserApproval      = "user_approval"
)

func (PolicyAllowed) Kind() string     { return KindPolicyAllowed }
func (Capability) Kind() string        { return KindCapability }
func (CapabilityCreated) Kind() string { return KindCapabilityCreated }
func (Allowance) Kind() string         { return KindAllowance }
func (SessionApproval) Kind() string   { return KindSessionApproval }
func (WorkspaceApproval) Kind() string { return KindWorkspaceApproval }
func (UserApproval) Kind() string      { return KindUserApproval }

func (p PolicyAllowed) String() string {
	return "allowed by policy: " + p.Reason
}

func (p Capability) String() string {
	return fmt.Sprintf("covered by capability token %s", p.TokenID)
}

func (p CapabilityCreated) String() string {
	return fmt.Sprintf("approved always; minted capability token %s", p.TokenID)
}

func (p Allowance) String() string {
	return fmt.Sprintf("covered by allowance %s", p.AllowanceID)
}

func (p SessionApproval) String() string {
	return fmt.Sprintf("approved for session; created allowance %s", p.AllowanceID)
}

func (p WorkspaceApproval) String() string {
	return fmt.Sprintf("approved for workspace; created allowance %s", p.AllowanceID)
}

func (p UserApproval) String() string {
	return "approved by user"
}
