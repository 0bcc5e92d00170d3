// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import "fmt"

// Config holds the budget limits for a session.
type Config struct {
	// SessionMaxUSD is the total spending cap for the session.
	SessionMaxUSD float64 `json:"session_max_usd" yaml:"session_max_usd"`

	// PerActionMaxUSD is the maximum cost of any single action.
	PerActionMaxUSD float64 `json:"per_action_max_usd" yaml:"per_action_max_usd"`

	// WarnAtPercent is the warning threshold as a percentage of the
	// session budget (0-100). Values above 100 are clamped.
	WarnAtPercent int `json:"warn_at_percent" yaml:"warn_at_percent"`
}

// DefaultWarnAtPercent is the warning threshold used when a config
// does not set one.
const DefaultWarnAtPercent = 80

// NewConfig creates a config with the given limits and the default
// warning threshold.
func NewConfig(sessionMaxUSD, perActionMaxUSD float64) Config {
	return Config{
		SessionMaxUSD:   sessionMaxUSD,
		PerActionMaxUSD: perActionMaxUSD,
		WarnAtPercent:   DefaultWarnAtPercent,
	}
}

// DefaultConfig returns the default limits: $100 per session, $10 per
// action, warning at 80%.
func DefaultConfig() Config {
	return NewConfig(100, 10)
}

// WarnThresholdUSD returns the warning threshold as a dollar amount.
func (c Config) WarnThresholdUSD() float64 {
	percent := min(c.WarnAtPercent, 100)
	return c.SessionMaxUSD * float64(percent) / 100
}

// Decision is the outcome class of a budget check.
type Decision int

const (
	// Allowed means the cost fits with room to spare.
	Allowed Decision = iota
	// WarnAndAllow means the cost fits but crosses the warning
	// threshold; the caller should surface the warning to the user.
	WarnAndAllow
	// Exceeded means the cost does not fit and the action must not
	// proceed.
	Exceeded
)

// ExceededReason identifies which limit was hit.
type ExceededReason string

const (
	// ReasonPerActionLimit means the single action's estimated cost
	// exceeds the per-action cap.
	ReasonPerActionLimit ExceededReason = "per-action limit"
	// ReasonSessionBudget means the session cap would be exceeded.
	ReasonSessionBudget ExceededReason = "session budget"
	// ReasonWorkspaceBudget means the workspace cumulative cap would
	// be exceeded.
	ReasonWorkspaceBudget ExceededReason = "workspace budget"
)

// Result reports the outcome of a budget check.
type Result struct {
	Decision Decision

	// Reason is set when Decision is Exceeded.
	Reason ExceededReason
	// Requested and Available are set when Decision is Exceeded.
	Requested float64
	Available float64

	// CurrentSpend, SessionMax, and PercentUsed are set when Decision
	// is WarnAndAllow.
	CurrentSpend float64
	SessionMax   float64
	PercentUsed  float64
}

// Allowed reports whether the action may proceed (possibly with a
// warning).
func (r Result) Allowed() bool { return r.Decision != Exceeded }

// Exceeded reports whether the action is blocked.
func (r Result) Exceeded() bool { return r.Decision == Exceeded }

// String renders the result for logs and deny reasons.
func (r Result) String() string {
	switch r.Decision {
	case Allowed:
		return "within budget"
	case WarnAndAllow:
		return fmt.Sprintf("budget warning: %.0f%% used", r.PercentUsed)
	case Exceeded:
		return fmt.Sprintf("budget exceeded (%s): requested $%.2f, available $%.2f",
			r.Reason, r.Requested, r.Available)
	default:
		return fmt.Sprintf("budget decision(%d)", int(r.Decision))
	}
}
