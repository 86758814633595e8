package scanner

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// Filter selects which files of a tree are enumerated.
// Patterns are matched against slash-separated paths relative to the root.
//
// Pattern syntax is that of github.com/gobwas/glob with "/" as separator:
// "*" and "?" stay within one segment, "**" spans segments, and "[...]" and
// "{a,b}" work as usual. A leading "**/" also matches at the root. A pattern
// without "/" is matched against the base name only.
type Filter struct {
	// Include keeps only files matching at least one pattern, when non-empty
	Include []string

	// Exclude drops matching files. A pattern ending in "/" prunes a whole subtree.
	Exclude []string

	compiled bool
	include  []matcher
	exclude  []matcher
}

// matcher is one compiled pattern.
type matcher struct {
	globs []glob.Glob

	// base matches against the last path segment only
	base bool

	// dir matches a directory and everything below it
	dir bool
}

// Compile returns f with every pattern compiled. Compiling a compiled
// filter is a no-op.
func (f Filter) Compile() (Filter, error) {
	if f.compiled {
		return f, nil
	}
	include, err := compileAll(f.Include)
	if err != nil {
		return f, err
	}
	exclude, err := compileAll(f.Exclude)
	if err != nil {
		return f, err
	}
	f.include, f.exclude, f.compiled = include, exclude, true
	return f, nil
}

// Validate reports the first malformed pattern.
func (f Filter) Validate() error {
	_, err := f.Compile()
	return err
}

func compileAll(patterns []string) ([]matcher, error) {
	matchers := make([]matcher, 0, len(patterns))
	for i, pattern := range patterns {
		m, err := compile(pattern)
		if err != nil {
			return nil, &PatternError{Pattern: pattern, Index: i, Err: err}
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}

func compile(pattern string) (matcher, error) {
	var m matcher
	if strings.HasSuffix(pattern, "/") {
		m.dir = true
		pattern = strings.TrimRight(pattern, "/")
	} else {
		m.base = !strings.Contains(pattern, "/")
	}

	sources := []string{pattern}
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		sources = append(sources, rest)
	}
	for _, src := range sources {
		g, err := glob.Compile(src, '/')
		if err != nil {
			return matcher{}, err
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

func (m matcher) match(rel string) bool {
	for _, g := range m.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// matchFile reports whether the file at rel is selected by m.
func (m matcher) matchFile(rel string) bool {
	switch {
	case m.dir:
		for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if m.match(dir) {
				return true
			}
		}
		return false
	case m.base:
		return m.match(path.Base(rel))
	default:
		return m.match(rel)
	}
}

// IncludesFile reports whether the file at rel is enumerated.
// Excludes take precedence over includes.
func (f Filter) IncludesFile(rel string) bool {
	f = f.mustCompile()
	for _, m := range f.exclude {
		if m.matchFile(rel) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, m := range f.include {
		if m.matchFile(rel) {
			return true
		}
	}
	return false
}

// PrunesDir reports whether the directory at rel is excluded with everything below it.
// Include patterns never prune directories.
func (f Filter) PrunesDir(rel string) bool {
	f = f.mustCompile()
	for _, m := range f.exclude {
		if m.dir && m.match(rel) {
			return true
		}
	}
	return false
}

// mustCompile compiles an uncompiled filter. A malformed filter selects no file.
func (f Filter) mustCompile() Filter {
	if c, err := f.Compile(); err == nil {
		return c
	}
	return Filter{compiled: true, include: []matcher{{}}}
}

// PatternError represents an error with a pattern.
type PatternError struct {
	Pattern string
	Index   int
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern at index %d '%s': %v", e.Index, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}
