// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package pattern

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern  string
		resource string
		want     bool
	}{
		// Exact matches.
		{"git", "git", true},
		{"git", "git-lfs", false},
		{"search/web", "search/web", true},

		// Single-segment wildcard.
		{"search/*", "search/web", true},
		{"search/*", "search/web/cached", false},
		{"search/*", "search", false},
		{"*", "git", true},
		{"*", "search/web", false},

		// Recursive wildcard.
		{"**", "anything", true},
		{"**", "a/b/c", true},
		{"src/**", "src", true},
		{"src/**", "src/main.go", true},
		{"src/**", "src/lib/util.go", true},
		{"src/**", "srcx/main.go", false},

		// Prefix recursive.
		{"**/build", "build", true},
		{"**/build", "a/build", true},
		{"**/build", "a/b/build", true},
		{"**/build", "a/builder", false},

		// Interior recursive.
		{"src/**/testdata", "src/testdata", true},
		{"src/**/testdata", "src/a/testdata", true},
		{"src/**/testdata", "src/a/b/testdata", true},
		{"src/**/testdata", "src/a/b/other", false},

		// Wildcards combined with **.
		{"team-*/**", "team-a/sub/file", true},
		{"team-*/**/build-?", "team-a/sub/build-x", true},
		{"team-*/**/build-?", "other/sub/build-x", false},

		// Character wildcard.
		{"build-?", "build-x", true},
		{"build-?", "build-xy", false},

		// Malformed pattern denies.
		{"[unclosed", "anything", false},
	}

	for _, test := range tests {
		got := Match(test.pattern, test.resource)
		if got != test.want {
			t.Errorf("Match(%q, %q) = %v, want %v", test.pattern, test.resource, got, test.want)
		}
	}
}

func TestMatchPathRejectsTraversal(t *testing.T) {
	if MatchPath("/workspace/**", "/workspace/../etc/passwd") {
		t.Error("path with .. component matched")
	}
	if !MatchPath("/workspace/**", "/workspace/src/main.go") {
		t.Error("clean path under workspace did not match")
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"git", "search/*"}
	if !MatchAny(patterns, "search/web") {
		t.Error("MatchAny missed a matching pattern")
	}
	if MatchAny(patterns, "exec") {
		t.Error("MatchAny matched a non-matching resource")
	}
	if MatchAny(nil, "anything") {
		t.Error("empty pattern list matched (want default-deny)")
	}
}

func TestIsLiteral(t *testing.T) {
	tests := []struct {
		pattern string
		want    bool
	}{
		{"git", true},
		{"search/web", true},
		{"search/*", false},
		{"build-?", false},
		{"[ab]c", false},
	}
	for _, test := range tests {
		if got := IsLiteral(test.pattern); got != test.want {
			t.Errorf("IsLiteral(%q) = %v, want %v", test.pattern, got, test.want)
		}
	}
}
