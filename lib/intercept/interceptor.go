// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegis-foundation/aegis/lib/action"
	"github.com/aegis-foundation/aegis/lib/allowance"
	"github.com/aegis-foundation/aegis/lib/audit"
	"github.com/aegis-foundation/aegis/lib/budget"
	"github.com/aegis-foundation/aegis/lib/capability"
	"github.com/aegis-foundation/aegis/lib/clock"
	"github.com/aegis-foundation/aegis/lib/policy"
	"github.com/aegis-foundation/aegis/lib/signing"
)

// AllowAlwaysTTL is the lifetime of capability tokens minted by an
// always-allow approval.
const AllowAlwaysTTL = time.Hour

// Config assembles an Interceptor. The stores are injected, not
// owned: several interceptors (one per session) may share the
// workspace-scoped state behind them.
type Config struct {
	// SessionID names the session this interceptor authorizes for.
	// Audit entries chain per session under this ID.
	SessionID string

	// WorkspaceRoot is the current workspace root, empty when not in
	// a workspace. Scopes workspace allowances and tokens.
	WorkspaceRoot string

	// Key is the runtime keypair. It signs allowances and capability
	// tokens minted from approvals.
	Key *signing.KeyPair

	Policy       *policy.SecurityPolicy
	Capabilities *capability.Store
	Allowances   *allowance.Store

	// Budget is the per-session spend tracker.
	Budget *budget.Tracker
	// WorkspaceBudget optionally caps spend across sessions sharing a
	// workspace. Nil disables the workspace check.
	WorkspaceBudget *budget.WorkspaceTracker

	Audit     *audit.Log
	Approvals *Manager

	// Clock and Logger default to the real clock and slog.Default().
	Clock  clock.Clock
	Logger *slog.Logger
}

// Interceptor is the single authorization entry point for a session.
type Interceptor struct {
	sessionID     string
	workspaceRoot string
	key           *signing.KeyPair
	policy        *policy.SecurityPolicy
	capabilities  *capability.Store
	allowances    *allowance.Store
	budget        *budget.Tracker
	wsBudget      *budget.WorkspaceTracker
	audit         *audit.Log
	approvals     *Manager
	clk           clock.Clock
	logger        *slog.Logger
}

// New creates an interceptor from the config. All stores, the key,
// the policy, the audit log, and the approval manager are required.
func New(config Config) (*Interceptor, error) {
	switch {
	case config.SessionID == "":
		return nil, errors.New("intercept: session ID is required")
	case config.Key == nil:
		return nil, errors.New("intercept: runtime key is required")
	case config.Policy == nil:
		return nil, errors.New("intercept: policy is required")
	case config.Capabilities == nil:
		return nil, errors.New("intercept: capability store is required")
	case config.Allowances == nil:
		return nil, errors.New("intercept: allowance store is required")
	case config.Budget == nil:
		return nil, errors.New("intercept: budget tracker is required")
	case config.Audit == nil:
		return nil, errors.New("intercept: audit log is required")
	case config.Approvals == nil:
		return nil, errors.New("intercept: approval manager is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Interceptor{
		sessionID:     config.SessionID,
		workspaceRoot: config.WorkspaceRoot,
		key:           config.Key,
		policy:        config.Policy,
		capabilities:  config.Capabilities,
		allowances:    config.Allowances,
		budget:        config.Budget,
		wsBudget:      config.WorkspaceBudget,
		audit:         config.Audit,
		approvals:     config.Approvals,
		clk:           clk,
		logger:        logger,
	}, nil
}

// Authorize decides whether the requested action may proceed.
//
// The evaluation order is fixed: policy, capability, the
// policy-allowed short-circuit, budget, then allowance and human
// approval. On success the returned Result carries the proof and the
// ID of the audit entry recording the decision; on denial the error
// is a *DeniedError referencing the Failure entry. Every return path
// has written exactly one audit entry, and a failed append fails the
// authorization.
func (i *Interceptor) Authorize(ctx context.Context, req Request) (*Result, error) {
	if req.Action == nil {
		return nil, errors.New("intercept: request carries no action")
	}
	now := i.clk.Now()

	// 1. Policy. A hard block denies before budget or token state is
	// touched, so a blocked action can neither drain budget nor mint
	// grants.
	verdict := i.policy.Evaluate(req.Action)
	if verdict.Blocked() {
		return nil, i.deny(req, "blocked by policy: "+verdict.Reason)
	}

	// 2. Capability. An existing token authorizes without human
	// involvement; cost-bearing actions still charge the budget.
	if result, handled, err := i.tryCapability(req, now); handled {
		return result, err
	}

	// 3. Policy allowed: no approval required and no token needed.
	if verdict.Allowed() {
		refund, warning, denial := i.reserve(req.EstimatedCostUSD)
		if denial != nil {
			return nil, i.deny(req, denial.String())
		}
		reason := verdict.Reason
		if reason == "" {
			reason = "no approval required"
		}
		proof := PolicyAllowed{Reason: reason}
		entry, err := i.allow(req, proof, audit.Authorization{
			Type:   "policy",
			Reason: reason,
		})
		if err != nil {
			refund()
			return nil, err
		}
		return &Result{Proof: proof, AuditEntryID: entry.ID, BudgetWarning: warning}, nil
	}

	// 4. Budget. Reserving before the allowance lookup means a
	// budget denial never burns a use of a bounded allowance.
	refund, warning, denial := i.reserve(req.EstimatedCostUSD)
	if denial != nil {
		return nil, i.deny(req, denial.String())
	}

	// 5. Allowance, then human approval.
	resolution := i.approvals.Check(ctx, req.Action, i.workspaceRoot, verdict.Assessment, req.Context)
	result, err := i.resolve(req, resolution, now)
	if err != nil {
		refund()
		return nil, err
	}
	result.BudgetWarning = warning
	return result, nil
}

// tryCapability attempts the capability short-circuit. handled is
// false when no token covers the action and evaluation should
// continue.
func (i *Interceptor) tryCapability(req Request, now time.Time) (*Result, bool, error) {
	resource, permission, ok := capability.ResourceForAction(req.Action)
	if !ok {
		return nil, false, nil
	}
	token := i.capabilities.FindAt(resource, permission, i.workspaceRoot, now)
	if token == nil {
		return nil, false, nil
	}

	refund, warning, denial := i.reserve(req.EstimatedCostUSD)
	if denial != nil {
		err := i.deny(req, denial.String())
		return nil, true, err
	}

	if token.SingleUse {
		if err := i.capabilities.MarkUsed(token.ID); err != nil {
			// Lost the race for the last use; continue as if no token
			// had matched.
			refund()
			i.logger.Debug("single-use token consumed concurrently",
				"token_id", token.ID, "error", err)
			return nil, false, nil
		}
	}

	proof := Capability{TokenID: token.ID, IssuerKeyID: token.IssuerKeyID}
	entry, err := i.allow(req, proof, audit.Authorization{
		Type:      "capability",
		Reference: token.ID,
		KeyID:     token.IssuerKeyID,
	})
	if err != nil {
		refund()
		return nil, true, err
	}
	return &Result{Proof: proof, AuditEntryID: entry.ID, BudgetWarning: warning}, true, nil
}

// resolve converts an approval resolution into a result, creating the
// grant a scoped decision asks for. The budget reservation is held by
// the caller and refunded when an error comes back.
func (i *Interceptor) resolve(req Request, resolution Resolution, now time.Time) (*Result, error) {
	switch {
	case resolution.Allowance != nil:
		proof := Allowance{AllowanceID: resolution.Allowance.ID}
		entry, err := i.allow(req, proof, audit.Authorization{
			Type:      "allowance",
			Reference: resolution.Allowance.ID,
			KeyID:     resolution.Allowance.SignerKeyID,
		})
		if err != nil {
			return nil, err
		}
		return &Result{Proof: proof, AuditEntryID: entry.ID}, nil

	case resolution.DenyReason != "":
		return nil, i.deny(req, resolution.DenyReason)
	}

	response := resolution.Response
	if response == nil {
		return nil, i.deny(req, "approval produced no decision")
	}
	switch response.Decision {
	case DecisionApprove:
		entry, err := i.allow(req, UserApproval{}, audit.Authorization{
			Type:   "user_approval",
			Reason: "approved once",
		})
		if err != nil {
			return nil, err
		}
		return &Result{Proof: UserApproval{ApprovalAuditID: entry.ID}, AuditEntryID: entry.ID}, nil

	case DecisionApproveSession:
		return i.approveScoped(req, true, now)

	case DecisionApproveWorkspace:
		return i.approveScoped(req, false, now)

	case DecisionApproveAlways:
		return i.approveAlways(req, now)

	case DecisionDeny:
		reason := response.Reason
		if reason == "" {
			reason = "denied by user"
		}
		return nil, i.deny(req, reason)

	default:
		return nil, i.deny(req, fmt.Sprintf("unknown approval decision %d", response.Decision))
	}
}

// approveScoped handles a session- or workspace-scoped approval: one
// audit entry for the approval itself, then an allowance so matching
// future actions skip the prompt. Allowance creation failing degrades
// to a one-time approval; the action stays permitted.
func (i *Interceptor) approveScoped(req Request, sessionOnly bool, now time.Time) (*Result, error) {
	authType, scope := "workspace_approval", "workspace"
	if sessionOnly {
		authType, scope = "session_approval", "session"
	}
	entry, err := i.allow(req, UserApproval{}, audit.Authorization{
		Type:   authType,
		Reason: "approved for " + scope,
	})
	if err != nil {
		return nil, err
	}
	degraded := &Result{Proof: UserApproval{ApprovalAuditID: entry.ID}, AuditEntryID: entry.ID}

	pat, ok := allowance.PatternForAction(req.Action)
	if !ok {
		// Action kinds with no pattern mapping are approved once by
		// construction.
		return degraded, nil
	}
	spec := allowance.Spec{Pattern: pat, SessionOnly: sessionOnly}
	if !sessionOnly {
		spec.WorkspaceRoot = i.workspaceRoot
	}
	granted, err := allowance.NewAt(i.key, spec, now)
	if err == nil {
		err = i.allowances.Add(granted)
	}
	if err != nil {
		i.logger.Warn("allowance creation failed; approval degrades to one-time",
			"action", req.Action.Summary(), "scope", scope, "error", err)
		return degraded, nil
	}

	if sessionOnly {
		return &Result{Proof: SessionApproval{AllowanceID: granted.ID}, AuditEntryID: entry.ID}, nil
	}
	return &Result{Proof: WorkspaceApproval{AllowanceID: granted.ID}, AuditEntryID: entry.ID}, nil
}

// approveAlways handles an always-allow approval: one audit entry,
// then a persistent capability token linked back to that entry. Mint
// or store failure degrades to a one-time approval.
func (i *Interceptor) approveAlways(req Request, now time.Time) (*Result, error) {
	entry, err := i.allow(req, UserApproval{}, audit.Authorization{
		Type:   "user_approval",
		Reason: "approved always",
	})
	if err != nil {
		return nil, err
	}
	degraded := &Result{Proof: UserApproval{ApprovalAuditID: entry.ID}, AuditEntryID: entry.ID}

	resource, permission, ok := capability.ResourceForAction(req.Action)
	if !ok {
		return degraded, nil
	}
	pattern, err := capability.NewResourcePattern(resource)
	if err == nil {
		var token *capability.Token
		token, err = capability.MintAt(i.key, capability.MintSpec{
			Resource:        pattern,
			Permissions:     []action.Permission{permission},
			Scope:           capability.ScopePersistent,
			ApprovalAuditID: entry.ID,
			TTL:             AllowAlwaysTTL,
		}, now)
		if err == nil {
			if err = i.capabilities.AddAt(token, now); err == nil {
				return &Result{
					Proof:        CapabilityCreated{TokenID: token.ID, ApprovalAuditID: entry.ID},
					AuditEntryID: entry.ID,
				}, nil
			}
		}
	}
	i.logger.Warn("capability minting failed; approval degrades to one-time",
		"action", req.Action.Summary(), "error", err)
	return degraded, nil
}

// reserve charges the estimated cost against the session tracker and,
// when configured, the workspace tracker. Either tracker exceeding
// returns the denial and leaves nothing reserved. The returned refund
// releases the reservation when a later step fails.
func (i *Interceptor) reserve(cost float64) (refund func(), warning string, denial *budget.Result) {
	if cost <= 0 {
		return func() {}, "", nil
	}

	session := i.budget.CheckAndReserve(cost)
	if session.Exceeded() {
		return nil, "", &session
	}
	if i.wsBudget != nil {
		workspace := i.wsBudget.CheckAndReserve(cost)
		if workspace.Exceeded() {
			i.budget.Refund(cost)
			return nil, "", &workspace
		}
		if workspace.Decision == budget.WarnAndAllow {
			warning = workspace.String()
		}
	}
	if session.Decision == budget.WarnAndAllow {
		warning = session.String()
	}
	refund = func() {
		i.budget.Refund(cost)
		if i.wsBudget != nil {
			i.wsBudget.Refund(cost)
		}
	}
	return refund, warning, nil
}

// allow writes the single Success audit entry for an authorized
// action. An append failure fails the authorization: an action is
// never permitted without its log entry.
func (i *Interceptor) allow(req Request, proof Proof, auth audit.Authorization) (*audit.Entry, error) {
	entry, err := i.audit.Append(i.sessionID, req.Action, auth, audit.SuccessWith(proof.String()))
	if err != nil {
		return nil, fmt.Errorf("intercept: recording authorization: %w", err)
	}
	i.logger.Debug("action authorized",
		"session_id", i.sessionID,
		"action", req.Action.Summary(),
		"proof", proof.Kind(),
		"entry_id", entry.ID)
	return entry, nil
}

// deny writes the single Failure audit entry for a denied action and
// returns the *DeniedError callers see. If even the denial cannot be
// logged, the append error takes precedence.
func (i *Interceptor) deny(req Request, reason string) error {
	entry, err := i.audit.Append(i.sessionID, req.Action, audit.Authorization{
		Type:   "denied",
		Reason: reason,
	}, audit.Failure(reason))
	if err != nil {
		return fmt.Errorf("intercept: recording denial: %w", err)
	}
	i.logger.Info("action denied",
		"session_id", i.sessionID,
		"action", req.Action.Summary(),
		"reason", reason)
	return &DeniedError{Reason: reason, AuditEntryID: entry.ID}
}
