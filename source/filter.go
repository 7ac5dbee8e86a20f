package source

import (
	"path"
	"path/filepath"
	"regexp"
)

// Filter decides which files or object keys under a directory or prefix are
// audit logs. Patterns are tried as globs against the base name and as regular
// expressions against the full name.
type Filter struct {
	includeGlobs []string
	includeRegex []*regexp.Regexp
	excludeGlobs []string
	excludeRegex []*regexp.Regexp
}

func NewFilter(includePatterns, excludePatterns []string) *Filter {
	return &Filter{
		includeGlobs: append([]string(nil), includePatterns...),
		includeRegex: compileRegex(includePatterns),
		excludeGlobs: append([]string(nil), excludePatterns...),
		excludeRegex: compileRegex(excludePatterns),
	}
}

// Match reports whether name passes the include list (when one is set) and
// matches no exclude pattern.
func (f *Filter) Match(name string) bool {
	if f == nil {
		return true
	}
	if (len(f.includeGlobs) > 0 || len(f.includeRegex) > 0) && !matchAny(name, f.includeGlobs, f.includeRegex) {
		return false
	}
	if (len(f.excludeGlobs) > 0 || len(f.excludeRegex) > 0) && matchAny(name, f.excludeGlobs, f.excludeRegex) {
		return false
	}
	return true
}

func matchAny(name string, globs []string, regexes []*regexp.Regexp) bool {
	base := filepath.Base(filepath.FromSlash(name))
	for _, pattern := range globs {
		if matched, _ := path.Match(pattern, base); matched {
			return true
		}
	}
	for _, re := range regexes {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func compileRegex(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if re, err := regexp.Compile(pattern); err == nil {
			compiled = append(compiled, re)
		}
	}
	return compiled
}
