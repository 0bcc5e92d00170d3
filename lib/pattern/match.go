// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package pattern

import (
	"path"
	"strings"
)

// Match checks whether a resource string matches a glob pattern using
// Aegis's hierarchical resource conventions:
//
//   - Exact match: "git" matches only "git"
//   - Single-segment wildcard: "search/*" matches "search/web" but not "search/web/cached"
//   - Recursive wildcard: "src/**" matches "src/main.go", "src/lib/util.go", etc.
//   - Universal: "**" matches any resource
//   - Interior recursive: "src/**/testdata" matches "src/testdata", "src/a/testdata", etc.
//   - Character wildcards: "?" matches a single non-slash character
//
// Wildcards in * and ? work in all positions, including around **. For
// example, "team-*/**/build-?" matches "team-a/sub/build-x". The
// single-segment wildcard "*" does not match "/" — this is the standard
// path.Match behavior and matches the gitignore convention. Use "**" to
// match across hierarchy boundaries.
//
// Returns false for malformed patterns (unmatched brackets, etc.) rather
// than propagating errors — a malformed pattern should never grant access.
func Match(pattern, resource string) bool {
	// Universal match.
	if pattern == "**" {
		return true
	}

	// No ** in the pattern — delegate to path.Match which handles
	// single-segment * and ? correctly (not matching /).
	if !strings.Contains(pattern, "**") {
		matched, err := path.Match(pattern, resource)
		if err != nil {
			// Malformed pattern — deny.
			return false
		}
		return matched
	}

	// Pattern contains **. Handle the three cases: suffix, prefix, interior.

	// Suffix: "src/**" or "team-*/**" — match the prefix (with glob
	// wildcards), then anything after.
	if strings.HasSuffix(pattern, "/**") {
		prefix := pattern[:len(pattern)-3]
		// ** matches zero additional segments: entire resource is the prefix.
		if matchGlob(prefix, resource) {
			return true
		}
		// ** matches one or more additional segments.
		return hasMatchingPrefix(prefix, resource)
	}

	// Prefix: "**/build" or "**/build-*" — match anything before, then
	// the suffix (with glob wildcards).
	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[3:]
		// ** matches zero additional segments: entire resource is the suffix.
		if matchGlob(suffix, resource) {
			return true
		}
		// ** matches one or more additional segments.
		return hasMatchingSuffix(suffix, resource)
	}

	// Interior: "src/**/testdata" or "team-*/**/build-?" — split on the
	// first /**, match prefix and suffix independently with glob wildcards.
	separatorIndex := strings.Index(pattern, "/**/")
	if separatorIndex >= 0 {
		prefix := pattern[:separatorIndex]
		suffix := pattern[separatorIndex+4:]

		// Zero-segment case: ** matches nothing, prefix and suffix
		// are adjacent. "src/**/testdata" matches "src/testdata".
		if matchGlob(prefix+"/"+suffix, resource) {
			return true
		}

		// Multi-segment case: prefix matches the start, suffix matches
		// the end, with at least one segment between for ** to consume.
		prefixDepth := strings.Count(prefix, "/") + 1
		suffixDepth := strings.Count(suffix, "/") + 1
		segments := strings.Split(resource, "/")

		if len(segments) < prefixDepth+1+suffixDepth {
			return false
		}

		prefixCandidate := strings.Join(segments[:prefixDepth], "/")
		if !matchGlob(prefix, prefixCandidate) {
			return false
		}

		suffixCandidate := strings.Join(segments[len(segments)-suffixDepth:], "/")
		if !matchGlob(suffix, suffixCandidate) {
			return false
		}

		// Verify segments consumed by ** are all non-empty (reject
		// resources with consecutive slashes between prefix and suffix).
		for _, segment := range segments[prefixDepth : len(segments)-suffixDepth] {
			if segment == "" {
				return false
			}
		}
		return true
	}

	// Multiple ** segments or other complex patterns — not supported.
	// Deny by default.
	return false
}

// MatchPath matches a file path against a glob pattern with traversal
// protection: paths containing a ".." component never match, so an
// allowance for "/workspace/**" cannot be satisfied by
// "/workspace/../etc/passwd". Leading slashes are preserved as-is;
// patterns for absolute paths must themselves be absolute.
func MatchPath(pattern, filePath string) bool {
	for _, segment := range strings.Split(filePath, "/") {
		if segment == ".." {
			return false
		}
	}
	return Match(pattern, filePath)
}

// MatchAny checks whether a resource matches any of the given glob
// patterns. Returns true on the first match. Returns false if the
// patterns slice is empty (default-deny).
func MatchAny(patterns []string, resource string) bool {
	for _, pattern := range patterns {
		if Match(pattern, resource) {
			return true
		}
	}
	return false
}

// IsLiteral reports whether the pattern contains no glob
// metacharacters and therefore matches exactly one resource. Literal
// patterns outrank glob patterns when several capability tokens cover
// the same action.
func IsLiteral(pattern string) bool {
	return !strings.ContainsAny(pattern, "*?[")
}

// matchGlob matches a pattern against a string using path.Match semantics
// (wildcards * and ? do not cross / boundaries). Returns false for
// malformed patterns.
func matchGlob(pattern, s string) bool {
	matched, err := path.Match(pattern, s)
	return err == nil && matched
}

// hasMatchingPrefix reports whether the resource starts with segments
// that match the given glob pattern, with at least one additional segment
// after the matched portion. The pattern's depth (number of /-separated
// segments) determines how many leading segments of resource are tested.
func hasMatchingPrefix(pattern, resource string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.SplitN(resource, "/", depth+1)
	if len(segments) <= depth {
		return false
	}
	candidate := strings.Join(segments[:depth], "/")
	return matchGlob(pattern, candidate)
}

// hasMatchingSuffix reports whether the resource ends with segments
// that match the given glob pattern, with at least one additional segment
// before the matched portion.
func hasMatchingSuffix(pattern, resource string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.Split(resource, "/")
	if len(segments) <= depth {
		return false
	}
	candidate := strings.Join(segments[len(segments)-depth:], "/")
	return matchGlob(pattern, candidate)
}
