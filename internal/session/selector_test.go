//go:build unit

package session

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSelector(t *testing.T) {
	tests := []struct {
		selector string
		want     Selection
	}{
		{"example.com/a", Selection{Package: "example.com/a"}},
		{"example.com/a.TestBad", Selection{Package: "example.com/a", Run: "^TestBad$"}},
		{"example.com/a.TestBad/case_1", Selection{Package: "example.com/a", Run: "^TestBad$/^case_1$"}},
		{"github.com/x/y.v2.ExampleFoo", Selection{Package: "github.com/x/y.v2", Run: "^ExampleFoo$"}},
		{"./internal/capture.FuzzWrap", Selection{Package: "./internal/capture", Run: "^FuzzWrap$"}},
		{"pkg.BenchmarkSpill", Selection{Package: "pkg", Run: "^BenchmarkSpill$"}},
		{"example.com/a.TestX/a+b(1)", Selection{Package: "example.com/a", Run: `^TestX$/^a\+b\(1\)$`}},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSelector(tt.selector))
		})
	}
}

func TestRunPattern_MatchesOnlyTheNamedTest(t *testing.T) {
	pattern := RunPattern("TestA")
	assert.Equal(t, "^TestA$", pattern)
	assert.True(t, regexp.MustCompile(pattern).MatchString("TestA"))
	assert.False(t, regexp.MustCompile(pattern).MatchString("TestAB"))
}
