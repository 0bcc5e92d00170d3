// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegis-foundation/aegis/lib/action"
	"github.com/aegis-foundation/aegis/lib/allowance"
	"github.com/aegis-foundation/aegis/lib/clock"
	"github.com/aegis-foundation/aegis/lib/policy"
)

// DefaultApprovalTimeout bounds how long an approval request waits
// for a human decision before denying.
const DefaultApprovalTimeout = 5 * time.Minute

// Manager resolves approval requirements. A matching allowance is
// consumed before the human is asked; the human wait is bounded by
// the timeout and cancellable through the caller's context.
type Manager struct {
	handler    Handler
	allowances *allowance.Store
	timeout    time.Duration
	clk        clock.Clock
	logger     *slog.Logger
}

// ManagerOptions configures a Manager. Zero values select the default
// timeout, the real clock, and slog.Default().
type ManagerOptions struct {
	Timeout time.Duration
	Clock   clock.Clock
	Logger  *slog.Logger
}

// NewManager creates a manager asking handler, consulting allowances
// first. A nil handler denies every request that no allowance covers.
func NewManager(handler Handler, allowances *allowance.Store, opts ManagerOptions) *Manager {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultApprovalTimeout
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		handler:    handler,
		allowances: allowances,
		timeout:    timeout,
		clk:        clk,
		logger:     logger,
	}
}

// Resolution is the outcome of an approval check. Exactly one of the
// fields is set: a consumed allowance, a handler response, or a
// denial reason when neither could be obtained.
type Resolution struct {
	Allowance  *allowance.Allowance
	Response   *Response
	DenyReason string
}

// Check resolves the approval requirement for an action. Session and
// workspace allowances are consulted and consumed first; only when
// none match is the handler asked. Timeout, cancellation, a missing
// or unavailable handler, and a nil response all deny.
func (m *Manager) Check(ctx context.Context, a action.SensitiveAction, workspaceRoot string, assessment policy.Assessment, reason string) Resolution {
	now := m.clk.Now()

	if granted := m.allowances.FindAndConsumeAt(a, workspaceRoot, now); granted != nil {
		m.logger.Debug("allowance consumed",
			"allowance_id", granted.ID,
			"pattern", granted.Pattern.String(),
			"action", a.Summary())
		return Resolution{Allowance: granted}
	}

	if m.handler == nil || !m.handler.Available() {
		return Resolution{DenyReason: "no approval handler available"}
	}

	id, err := newRequestID()
	if err != nil {
		return Resolution{DenyReason: fmt.Sprintf("generating approval request ID: %v", err)}
	}
	req := &ApprovalRequest{
		ID:         id,
		Action:     a,
		Assessment: assessment,
		Context:    reason,
		Timestamp:  now,
	}

	response, err := m.ask(ctx, req)
	switch {
	case err != nil:
		return Resolution{DenyReason: err.Error()}
	case response == nil:
		return Resolution{DenyReason: "approval handler returned no decision"}
	}
	return Resolution{Response: response}
}

// ask runs the handler in its own goroutine so the wait can be
// bounded by the clock even when the handler ignores ctx.
func (m *Manager) ask(ctx context.Context, req *ApprovalRequest) (*Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type answer struct {
		response *Response
		err      error
	}
	done := make(chan answer, 1)
	go func() {
		response, err := m.handler.RequestApproval(ctx, req)
		done <- answer{response, err}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			return nil, fmt.Errorf("approval handler: %w", a.err)
		}
		return a.response, nil
	case <-m.clk.After(m.timeout):
		return nil, fmt.Errorf("approval request timed out after %s", m.timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("approval request cancelled: %w", ctx.Err())
	}
}
