// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"

	"github.com/aegis-foundation/aegis/lib/signing"
)

// IssueKind classifies a chain verification finding.
type IssueKind int

const (
	// IssueInvalidGenesis marks a first entry whose previous hash is
	// not the zero hash.
	IssueInvalidGenesis IssueKind = iota
	// IssueInvalidSignature marks an entry whose signature does not
	// verify against its embedded runtime key.
	IssueInvalidSignature
	// IssueBrokenLink marks an entry whose previous hash does not
	// match the preceding entry's content hash.
	IssueBrokenLink
)

func (k IssueKind) String() string {
	switch k {
	case IssueInvalidGenesis:
		return "invalid genesis"
	case IssueInvalidSignature:
		return "invalid signature"
	case IssueBrokenLink:
		return "broken link"
	default:
		return fmt.Sprintf("issue(%d)", int(k))
	}
}

// Issue is one finding from chain verification.
type Issue struct {
	Kind    IssueKind
	EntryID string

	// Expected and Actual are set for broken links.
	Expected signing.Hash
	Actual   signing.Hash
}

func (i Issue) String() string {
	switch i.Kind {
	case IssueBrokenLink:
		return fmt.Sprintf("broken link at entry %s: expected previous %s, found %s",
			i.EntryID, i.Expected, i.Actual)
	default:
		return fmt.Sprintf("%s at entry %s", i.Kind, i.EntryID)
	}
}

// Report is the result of verifying one session chain.
type Report struct {
	// Valid is true when no issues were found.
	Valid bool
	// EntriesVerified counts the entries examined.
	EntriesVerified int
	// Issues lists every finding. Verification never stops at the
	// first problem: a tampered ledger should surface all damage.
	Issues []Issue
}

// SessionReport pairs a session ID with its verification report.
type SessionReport struct {
	SessionID string
	Report    Report
}

// VerifyChain checks one session's chain: the genesis entry must
// carry the zero hash, every signature must verify, and every entry
// must link to its predecessor's content hash.
func VerifyChain(storage Storage, sessionID string) (Report, error) {
	entries, err := storage.SessionEntries(sessionID)
	if err != nil {
		return Report{}, err
	}
	if len(entries) == 0 {
		return Report{Valid: true}, nil
	}

	var issues []Issue

	if !entries[0].PreviousHash.IsZero() {
		issues = append(issues, Issue{Kind: IssueInvalidGenesis, EntryID: entries[0].ID})
	}

	for _, entry := range entries {
		if err := entry.VerifySignature(); err != nil {
			issues = append(issues, Issue{Kind: IssueInvalidSignature, EntryID: entry.ID})
		}
	}

	for i := 1; i < len(entries); i++ {
		expected, err := entries[i-1].ContentHash()
		if err != nil {
			return Report{}, err
		}
		if entries[i].PreviousHash != expected {
			issues = append(issues, Issue{
				Kind:     IssueBrokenLink,
				EntryID:  entries[i].ID,
				Expected: expected,
				Actual:   entries[i].PreviousHash,
			})
		}
	}

	return Report{
		Valid:           len(issues) == 0,
		EntriesVerified: len(entries),
		Issues:          issues,
	}, nil
}

// VerifyAll verifies every session chain in storage.
func VerifyAll(storage Storage) ([]SessionReport, error) {
	sessions, err := storage.ListSessions()
	if err != nil {
		return nil, err
	}
	reports := make([]SessionReport, 0, len(sessions))
	for _, sessionID := range sessions {
		report, err := VerifyChain(storage, sessionID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, SessionReport{SessionID: sessionID, Report: report})
	}
	return reports, nil
}
