// Package classifier decides, for a request path, whether the resource is
// a static asset or a dynamic (user-report) resource. The decision is a
// pure function over the path string so routing policy can be tested
// without any cache or network in the loop.
package classifier

import (
	"regexp"

	"github.com/beautycare/edgecache/internal/errors"
)

// Kind is the classification verdict for a request path.
type Kind int

const (
	// Static resources are served cache-first. Unmatched paths,
	// including navigations, default to Static.
	Static Kind = iota
	// Dynamic resources (reports, generated cards, data files) are
	// served network-first.
	Dynamic
)

// String returns the verdict name for logging.
func (k Kind) String() string {
	if k == Dynamic {
		return "dynamic"
	}
	return "static"
}

// Classifier matches request paths against the dynamic resource patterns.
type Classifier struct {
	dynamic []*regexp.Regexp
}

// New compiles the given dynamic patterns. A pattern that fails to
// compile aborts construction; policy typos should not silently turn
// report resources cache-first.
func New(patterns []string) (*Classifier, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Newf("compiling dynamic pattern %q: %w", p, err).
				Component("classifier").
				Category(errors.CategoryConfiguration).
				Build()
		}
		compiled = append(compiled, re)
	}
	return &Classifier{dynamic: compiled}, nil
}

// Classify returns Dynamic if the path matches any dynamic pattern,
// Static otherwise. It never fails; an empty pattern set classifies
// everything Static.
func (c *Classifier) Classify(path string) Kind {
	for _, re := range c.dynamic {
		if re.MatchString(path) {
			return Dynamic
		}
	}
	return Static
}
