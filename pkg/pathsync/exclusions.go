package pathsync

import (
	"path"
	"strings"

	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/util"
)

type exclusionMatchType int

const (
	prefixMatch exclusionMatchType = iota
	suffixMatch
	globMatch
)

// ExclusionSet holds compiled exclusion patterns.
//
// Patterns use path.Match syntax over the forward-slash relative path.
// A pattern without a slash matches the entry's basename at any depth
// (".git", "*.tmp"). A leading slash anchors the pattern at the source root
// ("/proc"). Any other pattern matches the full relative path
// ("build/*", "docs/draft.md"). A trailing slash ("cache/") matches that
// directory and everything below it.
type ExclusionSet struct {
	literals         map[string]struct{}
	basenameLiterals map[string]struct{}
	nonLiterals      []exclusion
	foldCase         bool
}

type exclusion struct {
	pattern       string
	cleanPattern  string
	matchType     exclusionMatchType
	matchBasename bool
	dirPrefix     bool
}

// CompileExclusions validates and categorizes patterns once before a walk.
// Malformed patterns are logged and dropped.
func CompileExclusions(patterns []string) *ExclusionSet {
	set := &ExclusionSet{
		literals:         make(map[string]struct{}),
		basenameLiterals: make(map[string]struct{}),
		foldCase:         util.IsHostCaseInsensitiveFS(),
	}

	for _, raw := range util.MergeAndDeduplicate(patterns) {
		p := set.normalize(strings.TrimSpace(raw))
		if p == "" || p == "/" {
			continue
		}
		if _, err := path.Match(p, ""); err != nil {
			plog.Warn("Dropping malformed exclusion pattern", "pattern", raw, "error", err)
			continue
		}

		anchored := strings.HasPrefix(p, "/")
		p = strings.TrimPrefix(p, "/")
		matchBasename := !anchored && !strings.Contains(strings.TrimSuffix(p, "/"), "/")

		switch {
		case strings.HasSuffix(p, "/"):
			set.nonLiterals = append(set.nonLiterals, exclusion{
				pattern:       raw,
				cleanPattern:  strings.TrimSuffix(p, "/"),
				matchType:     globMatch,
				matchBasename: matchBasename,
				dirPrefix:     true,
			})
		case !strings.ContainsAny(p, "*?[\\"):
			if matchBasename {
				set.basenameLiterals[p] = struct{}{}
			} else {
				set.literals[p] = struct{}{}
			}
		case strings.HasSuffix(p, "/*") && !strings.ContainsAny(p[:len(p)-2], "*?[\\"):
			set.nonLiterals = append(set.nonLiterals, exclusion{
				pattern:      raw,
				cleanPattern: strings.TrimSuffix(p, "*"),
				matchType:    prefixMatch,
			})
		case strings.HasPrefix(p, "*") && !strings.ContainsAny(p[1:], "*?[\\/"):
			set.nonLiterals = append(set.nonLiterals, exclusion{
				pattern:       raw,
				cleanPattern:  p[1:],
				matchType:     suffixMatch,
				matchBasename: matchBasename,
			})
		default:
			set.nonLiterals = append(set.nonLiterals, exclusion{
				pattern:       raw,
				cleanPattern:  p,
				matchType:     globMatch,
				matchBasename: matchBasename,
			})
		}
	}
	return set
}

// Len returns the number of patterns that survived compilation.
func (es *ExclusionSet) Len() int {
	return len(es.literals) + len(es.basenameLiterals) + len(es.nonLiterals)
}

// Matches reports whether the forward-slash relative path is excluded.
func (es *ExclusionSet) Matches(relPath string) bool {
	if es == nil {
		return false
	}
	p := es.normalize(relPath)
	base := path.Base(p)

	if _, ok := es.literals[p]; ok {
		return true
	}
	if _, ok := es.basenameLiterals[base]; ok {
		return true
	}

	for _, ex := range es.nonLiterals {
		subject := p
		if ex.matchBasename {
			subject = base
		}
		switch ex.matchType {
		case prefixMatch:
			if strings.HasPrefix(p, ex.cleanPattern) {
				return true
			}
		case suffixMatch:
			if strings.HasSuffix(subject, ex.cleanPattern) {
				return true
			}
		case globMatch:
			if ok, _ := path.Match(ex.cleanPattern, subject); ok {
				return true
			}
			if ex.dirPrefix && !ex.matchBasename && es.matchesAncestor(ex.cleanPattern, p) {
				return true
			}
		}
	}
	return false
}

// matchesAncestor reports whether any parent directory of p matches pattern.
func (es *ExclusionSet) matchesAncestor(pattern, p string) bool {
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if ok, _ := path.Match(pattern, dir); ok {
			return true
		}
	}
	return false
}

func (es *ExclusionSet) normalize(p string) string {
	p = util.NormalizePath(p)
	if es.foldCase {
		p = strings.ToLower(p)
	}
	return p
}
