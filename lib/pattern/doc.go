// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package pattern implements glob matching over Aegis resource
// strings: file paths, command names, and server/tool identifiers.
//
// Patterns use hierarchical glob conventions: "*" matches a single
// /-separated segment, "**" matches any number of segments, "?"
// matches one non-slash character. [MatchPath] additionally rejects
// paths containing ".." components, so a glob can never be walked out
// of via traversal.
package pattern
