package session

import (
	"regexp"
	"strings"
)

// testPrefixes are the function name prefixes go test discovers.
var testPrefixes = []string{"Test", "Example", "Fuzz", "Benchmark"}

// Selection is a --tests selector resolved to go test arguments.
type Selection struct {
	// Package is the import path to test
	Package string
	// Run is the -run pattern, empty when the whole package is selected
	Run string
}

// ParseSelector splits a reproduce selector into a package and a -run
// pattern. "example.com/pkg.TestFoo/case_1" selects TestFoo's case_1
// subtest; a selector naming no test function selects the whole package.
func ParseSelector(selector string) Selection {
	for i := 0; i < len(selector); i++ {
		if selector[i] != '.' {
			continue
		}
		rest := selector[i+1:]
		for _, prefix := range testPrefixes {
			if strings.HasPrefix(rest, prefix) {
				return Selection{Package: selector[:i], Run: RunPattern(rest)}
			}
		}
	}
	return Selection{Package: selector}
}

// RunPattern returns a -run pattern matching exactly the named test and,
// for subtests, each level of its path.
func RunPattern(name string) string {
	parts := strings.Split(name, "/")
	for i, part := range parts {
		parts[i] = "^" + regexp.QuoteMeta(part) + "$"
	}
	return strings.Join(parts, "/")
}
