package pathsync

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/paulschiretz/recall/pkg/plog"
)

func TestExclusionSetMatches(t *testing.T) {
	testCases := []struct {
		name     string
		patterns []string
		path     string
		want     bool
	}{
		{"basename literal at root", []string{".git"}, ".git", true},
		{"basename literal nested", []string{".git"}, "vendor/lib/.git", true},
		{"basename literal no partial", []string{".git"}, ".github", false},
		{"suffix at any depth", []string{"*.tmp"}, "a/b/c.tmp", true},
		{"suffix no match", []string{"*.tmp"}, "a/b/c.txt", false},
		{"anchored literal at root", []string{"/proc"}, "proc", true},
		{"anchored literal not nested", []string{"/proc"}, "home/proc", false},
		{"full path literal", []string{"docs/draft.md"}, "docs/draft.md", true},
		{"full path literal other dir", []string{"docs/draft.md"}, "src/draft.md", false},
		{"dir prefix star", []string{"build/*"}, "build/out/app.bin", true},
		{"dir prefix star keeps dir itself", []string{"build/*"}, "build", false},
		{"dir prefix star no false positive", []string{"build/*"}, "build-tools/x", false},
		{"trailing slash basename", []string{"cache/"}, "home/cache", true},
		{"trailing slash full path descendant", []string{"var/cache/"}, "var/cache/apt/x.deb", true},
		{"general glob", []string{"report-??.csv"}, "out/report-01.csv", true},
		{"general glob full path", []string{"logs/*.log"}, "logs/app.log", true},
		{"general glob full path nested miss", []string{"logs/*.log"}, "logs/old/app.log", false},
		{"star stays within one segment", []string{"src*.rs"}, "src/main.rs", false},
		{"star within one segment", []string{"src*.rs"}, "src_main.rs", true},
		{"no patterns", nil, "anything", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			set := CompileExclusions(tc.patterns)
			if got := set.Matches(tc.path); got != tc.want {
				t.Errorf("Matches(%q) with %v = %v, want %v", tc.path, tc.patterns, got, tc.want)
			}
		})
	}
}

func TestCompileExclusionsDropsMalformedPatterns(t *testing.T) {
	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	t.Cleanup(func() { plog.SetOutput(os.Stderr) })

	set := CompileExclusions([]string{"[unterminated", "*.tmp", "*.tmp", "", "  "})

	if set.Len() != 1 {
		t.Errorf("expected 1 compiled pattern, got %d", set.Len())
	}
	if !strings.Contains(logBuf.String(), "Dropping malformed exclusion pattern") {
		t.Errorf("expected a warning for the malformed pattern, got: %s", logBuf.String())
	}
	if !set.Matches("x.tmp") {
		t.Error("expected remaining pattern to still match")
	}
}

func TestNilExclusionSetMatchesNothing(t *testing.T) {
	var set *ExclusionSet
	if set.Matches("a") {
		t.Error("nil set should not match")
	}
}
