// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// aegis-audit is the operator tool for inspecting and verifying audit
// chains from a runtime state directory. It reads the per-session
// audit files directly; the runtime does not need to be running.
//
// Commands:
//
//	sessions            list session IDs with entry counts
//	count [session]     total entry count, or one session's count
//	verify <session>    verify one session's hash chain
//	verify-all          verify every session chain
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/aegis-foundation/aegis/lib/audit"
	"github.com/aegis-foundation/aegis/lib/version"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errVerificationFailed) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

// errVerificationFailed marks a clean run that found invalid chains:
// exit code 1, distinct from usage and I/O errors.
var errVerificationFailed = errors.New("verification failed")

func run() error {
	var stateDir string
	var verbose bool

	flagSet := pflag.NewFlagSet("aegis-audit", pflag.ContinueOnError)
	flagSet.StringVar(&stateDir, "state-dir", "", "runtime state directory containing the audit files")
	flagSet.BoolVar(&verbose, "verbose", false, "log storage warnings (torn records, skipped files)")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("aegis-audit")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return errors.New("a command is required")
	}
	if stateDir == "" {
		return errors.New("--state-dir is required")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	storage, err := audit.OpenFileStorage(stateDir, audit.FileStorageOptions{Logger: logger})
	if err != nil {
		return err
	}

	command, rest := args[0], args[1:]
	switch command {
	case "sessions":
		return listSessions(storage, rest)
	case "count":
		return countEntries(storage, rest)
	case "verify":
		return verifySession(storage, rest)
	case "verify-all":
		return verifyAll(storage, rest)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func listSessions(storage audit.Storage, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("sessions takes no arguments")
	}
	sessions, err := storage.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, sessionID := range sessions {
		n, err := storage.CountSession(sessionID)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d entries\n", sessionID, n)
	}
	return nil
}

func countEntries(storage audit.Storage, args []string) error {
	switch len(args) {
	case 0:
		n, err := storage.Count()
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	case 1:
		n, err := storage.CountSession(args[0])
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	default:
		return fmt.Errorf("count takes at most one session ID")
	}
}

func verifySession(storage audit.Storage, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("verify takes exactly one session ID")
	}
	report, err := audit.VerifyChain(storage, args[0])
	if err != nil {
		return err
	}
	printReport(args[0], report)
	if !report.Valid {
		return errVerificationFailed
	}
	return nil
}

func verifyAll(storage audit.Storage, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("verify-all takes no arguments")
	}
	reports, err := audit.VerifyAll(storage)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	failed := 0
	for _, session := range reports {
		printReport(session.SessionID, session.Report)
		if !session.Report.Valid {
			failed++
		}
	}
	if failed > 0 {
		fmt.Printf("%d of %d session chains invalid\n", failed, len(reports))
		return errVerificationFailed
	}
	fmt.Printf("all %d session chains valid\n", len(reports))
	return nil
}

func printReport(sessionID string, report audit.Report) {
	status := "valid"
	if !report.Valid {
		status = "INVALID"
	}
	fmt.Printf("%s\t%s\t%d entries\n", sessionID, status, report.EntriesVerified)
	for _, issue := range report.Issues {
		fmt.Printf("  %s\n", issue)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Aegis audit chain inspector.

Reads the per-session audit files from a runtime state directory and
verifies the signed hash chains offline: each entry's Ed25519
signature is checked against the runtime key embedded in the entry,
and each entry must link to its predecessor's content hash.

Usage:
  aegis-audit --state-dir DIR <command>

Commands:
  sessions            list session IDs with entry counts
  count [session]     total entry count, or one session's count
  verify <session>    verify one session's hash chain
  verify-all          verify every session chain

Exit codes: 0 valid, 1 invalid chain found, 2 usage or I/O error.

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
