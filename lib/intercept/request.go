// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aegis-foundation/aegis/lib/action"
	"github.com/aegis-foundation/aegis/lib/policy"
)

// Request asks the interceptor to authorize one sensitive action.
type Request struct {
	// Action is the sensitive action the agent wants to perform.
	Action action.SensitiveAction

	// Context is the agent's stated reason for the action, shown to
	// the human when approval is needed and recorded in the audit
	// entry detail.
	Context string

	// EstimatedCostUSD is the expected cost of the action. Zero for
	// cost-free actions; only positive costs are charged against the
	// budget.
	EstimatedCostUSD float64
}

// Result is a successful authorization: the proof, the audit entry
// recording it, and an optional non-fatal budget warning.
type Result struct {
	Proof        Proof
	AuditEntryID string

	// BudgetWarning is set when the budget crossed its warn threshold.
	// The action proceeds; the warning is surfaced to the caller.
	BudgetWarning string
}

// DeniedError is returned when authorization is denied. The audit
// entry ID references the Failure entry recording the denial.
type DeniedError struct {
	Reason       string
	AuditEntryID string
}

func (e *DeniedError) Error() string {
	return "authorization denied: " + e.Reason
}

// ApprovalRequest is presented to the human approval handler. It
// carries everything needed for an informed decision.
type ApprovalRequest struct {
	// ID identifies this request; the response must echo it.
	ID string `json:"id"`

	// Action is the sensitive action awaiting approval.
	Action action.SensitiveAction `json:"-"`

	// Assessment is the policy's risk assessment for the action.
	Assessment policy.Assessment `json:"assessment"`

	// Context is the agent's stated reason for the action.
	Context string `json:"context,omitempty"`

	// Timestamp is when the request was created.
	Timestamp time.Time `json:"timestamp"`
}

func (r *ApprovalRequest) String() string {
	return fmt.Sprintf("[%s] %s - %s", r.Assessment.Level, r.Action.Summary(), r.Context)
}

// Decision is the human's verdict on an approval request.
type Decision int

const (
	// DecisionDeny rejects the action.
	DecisionDeny Decision = iota
	// DecisionApprove permits the action once; nothing is stored.
	DecisionApprove
	// DecisionApproveSession permits the action and creates a
	// session-scoped allowance for matching future actions.
	DecisionApproveSession
	// DecisionApproveWorkspace permits the action and creates a
	// workspace-scoped allowance that outlives the session.
	DecisionApproveWorkspace
	// DecisionApproveAlways permits the action and mints a persistent
	// capability token.
	DecisionApproveAlways
)

func (d Decision) String() string {
	switch d {
	case DecisionDeny:
		return "deny"
	case DecisionApprove:
		return "approve"
	case DecisionApproveSession:
		return "approve_session"
	case DecisionApproveWorkspace:
		return "approve_workspace"
	case DecisionApproveAlways:
		return "approve_always"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Approved reports whether the decision permits the action.
func (d Decision) Approved() bool { return d != DecisionDeny }

// Response is the handler's answer to an approval request.
type Response struct {
	// RequestID echoes the request this response addresses.
	RequestID string `json:"request_id"`

	// Decision is the verdict.
	Decision Decision `json:"decision"`

	// Reason explains a denial. Ignored for approvals.
	Reason string `json:"reason,omitempty"`
}

// Handler presents approval requests to a human and returns their
// decision. Implementations live outside this core (a TUI, an IDE
// extension, a chat bridge).
type Handler interface {
	// RequestApproval blocks until the human decides or ctx is done.
	// A nil response with a nil error is treated as a denial.
	RequestApproval(ctx context.Context, req *ApprovalRequest) (*Response, error)

	// Available reports whether the handler can currently reach a
	// human. An unavailable handler denies rather than queueing.
	Available() bool
}

// newRequestID creates a random 16-byte hex string identifying an
// approval request.
func newRequestID() (string, error) {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer[:]), nil
}
