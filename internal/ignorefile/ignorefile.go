// Package ignorefile reads .codeguardignore files: gitignore-style globs that keep
// paths out of directory scans.
package ignorefile

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Name is the file looked up at the root of a scanned directory.
const Name = ".codeguardignore"

// Patterns is a compiled ignore list. The zero value and nil ignore nothing.
type Patterns struct {
	entries []pattern
}

type pattern struct {
	negated bool
	dirOnly bool
	re      *regexp.Regexp
}

// Load reads an ignore file. A missing file yields nil patterns and no error.
func Load(path string) (*Patterns, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return Parse(lines), nil
}

// Parse compiles pattern lines. Blank lines and # comments are skipped, a leading
// ! re-includes, a trailing / matches directories only.
func Parse(lines []string) *Patterns {
	p := &Patterns{}
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var e pattern
		if strings.HasPrefix(line, "!") {
			e.negated = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			e.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		line = strings.TrimPrefix(line, "/")
		if line == "" {
			continue
		}
		re, err := regexp.Compile(globToRegexp(line))
		if err != nil {
			continue
		}
		e.re = re
		p.entries = append(p.entries, e)
	}
	return p
}

// Extend appends more pattern lines, e.g. from --exclude flags.
func (p *Patterns) Extend(lines []string) *Patterns {
	more := Parse(lines)
	if p == nil {
		return more
	}
	return &Patterns{entries: append(append([]pattern(nil), p.entries...), more.entries...)}
}

// Match reports whether relPath, relative to the scan root, is excluded. The last
// matching pattern wins.
func (p *Patterns) Match(relPath string, isDir bool) bool {
	if p == nil || len(p.entries) == 0 {
		return false
	}
	relPath = filepath.ToSlash(strings.TrimSpace(relPath))
	if relPath == "" || relPath == "." {
		return false
	}
	ignored := false
	for _, e := range p.entries {
		if e.dirOnly && !isDir {
			continue
		}
		if e.re.MatchString(relPath) {
			ignored = !e.negated
		}
	}
	return ignored
}

// globToRegexp translates a glob. Without a slash the glob matches a base name at
// any depth; ** spans directories.
func globToRegexp(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	r := []rune(filepath.ToSlash(glob))
	if !strings.ContainsRune(string(r), '/') {
		b.WriteString("(?:.*/)?")
	}
	for i := 0; i < len(r); i++ {
		switch r[i] {
		case '*':
			if i+1 < len(r) && r[i+1] == '*' {
				if i+2 < len(r) && r[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
					continue
				}
				b.WriteString(".*")
				i++
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(r[i])))
		}
	}
	b.WriteString("$")
	return b.String()
}
