package document

import (
	"fmt"
	"regexp"
	"strings"
)

// Cleaner strips configured boilerplate from extracted content and
// normalizes whitespace. Patterns are applied case-insensitively.
type Cleaner struct {
	patterns []*regexp.Regexp
	minWords int
}

var (
	// Horizontal whitespace runs collapse to one space; blank-line runs
	// collapse to a single paragraph break so the splitter's "\n\n"
	// separator stays meaningful.
	spaceRun = regexp.MustCompile(`[ \t]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
	edgeWS   = regexp.MustCompile(`(?m)^[ \t]+|[ \t]+$`)
)

// NewCleaner compiles the boilerplate patterns. An invalid pattern is a
// configuration error and fails construction.
func NewCleaner(patterns []string, minWords int) (*Cleaner, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("compiling boilerplate pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Cleaner{patterns: compiled, minWords: minWords}, nil
}

// Clean removes boilerplate and collapses whitespace.
func (c *Cleaner) Clean(content string) string {
	for _, re := range c.patterns {
		content = re.ReplaceAllString(content, "")
	}
	content = spaceRun.ReplaceAllString(content, " ")
	content = edgeWS.ReplaceAllString(content, "")
	content = blankRun.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// Keep reports whether a cleaned document carries enough content to be
// worth indexing.
func (c *Cleaner) Keep(d Document) bool {
	return d.WordCount() >= c.minWords
}
