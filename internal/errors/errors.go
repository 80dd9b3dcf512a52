// Package errors provides enhanced errors carrying a component, a
// category, and arbitrary context, built through a fluent builder:
//
//	errors.Newf("precache failed for %q", url).
//		Component("worker").
//		Category(errors.CategoryNetwork).
//		Context("generation", gen).
//		Build()
//
// Enhanced errors unwrap to their cause, so stdlib errors.Is/As (re-exported
// here) work as expected.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Category classifies an error for logging and metrics.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryNetwork       Category = "network"
	CategoryCache         Category = "cache"
	CategoryConfiguration Category = "configuration"
	CategoryNotFound      Category = "not-found"
)

// EnhancedError is an error with component, category, and context metadata.
type EnhancedError struct {
	cause     error
	component string
	category  Category
	context   map[string]any
}

// Error renders the cause followed by bracketed metadata.
func (e *EnhancedError) Error() string {
	var b strings.Builder
	b.WriteString(e.cause.Error())
	if e.component != "" {
		fmt.Fprintf(&b, " [component=%s]", e.component)
	}
	if e.category != "" {
		fmt.Fprintf(&b, " [category=%s]", e.category)
	}
	if len(e.context) > 0 {
		keys := make([]string, 0, len(e.context))
		for k := range e.context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " [%s=%v]", k, e.context[k])
		}
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *EnhancedError) Unwrap() error {
	return e.cause
}

// GetComponent returns the component that produced the error, if any.
func (e *EnhancedError) GetComponent() string {
	return e.component
}

// GetCategory returns the error's category, if any.
func (e *EnhancedError) GetCategory() Category {
	return e.category
}

// GetContext returns the context value stored under key.
func (e *EnhancedError) GetContext(key string) (any, bool) {
	v, ok := e.context[key]
	return v, ok
}

// Builder accumulates metadata before producing an EnhancedError.
type Builder struct {
	err *EnhancedError
}

// New starts a builder wrapping an existing error.
func New(cause error) *Builder {
	return &Builder{err: &EnhancedError{cause: cause}}
}

// Newf starts a builder with a formatted message as the cause.
// The format string supports %w wrapping.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

// Component records which component produced the error.
func (b *Builder) Component(name string) *Builder {
	b.err.component = name
	return b
}

// Category classifies the error.
func (b *Builder) Category(c Category) *Builder {
	b.err.category = c
	return b
}

// Context attaches a key/value pair to the error.
func (b *Builder) Context(key string, value any) *Builder {
	if b.err.context == nil {
		b.err.context = make(map[string]any)
	}
	b.err.context[key] = value
	return b
}

// Build finalizes the enhanced error.
func (b *Builder) Build() error {
	return b.err
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
