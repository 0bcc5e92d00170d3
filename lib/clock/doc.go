// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability.
//
// Production code injects [Real]; tests inject [Fake] with
// deterministic time control. Every Aegis component that checks
// expiry or waits on a timeout accepts a Clock (or is a method on a
// struct with a Clock field) instead of calling the time package
// directly, so expiry and approval-timeout behavior can be tested
// without real sleeps.
package clock
