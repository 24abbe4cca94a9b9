// Package errors aggregates the recoverable failures of a multi-step pass,
// such as a library scan or a teardown, into a single error value. Each
// failure stays attributed to the item it concerns: a library path, an
// instance name or a preset.
package errors

import (
	"fmt"
	"strings"
)

// Failure is one recoverable failure of a pass
type Failure struct {
	// Item names what failed; empty when the failure concerns the pass itself
	Item string
	Err  error
}

// Error implements the error interface
func (f Failure) Error() string {
	if f.Item == "" {
		return f.Err.Error()
	}
	return fmt.Sprintf("%s: %s", f.Item, f.Err.Error())
}

// Unwrap exposes the underlying error
func (f Failure) Unwrap() error {
	return f.Err
}

// Failures collects the failures of one pass
type Failures struct {
	pass     string
	failures []Failure
}

// NewFailures creates an empty collection for the named pass
func NewFailures(pass string) *Failures {
	return &Failures{pass: pass}
}

// Add records err against item. A nil err is ignored, so release results can
// be passed straight through.
func (f *Failures) Add(item string, err error) {
	if err != nil {
		f.failures = append(f.failures, Failure{Item: item, Err: err})
	}
}

// Len returns the number of failures
func (f *Failures) Len() int {
	if f == nil {
		return 0
	}
	return len(f.failures)
}

// Items returns the failed items in the order they failed
func (f *Failures) Items() []string {
	if f == nil {
		return nil
	}
	items := make([]string, len(f.failures))
	for i, failure := range f.failures {
		items[i] = failure.Item
	}
	return items
}

// Failures returns a copy of the recorded failures
func (f *Failures) Failures() []Failure {
	if f == nil {
		return nil
	}
	return append([]Failure(nil), f.failures...)
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (f *Failures) Unwrap() []error {
	errs := make([]error, len(f.failures))
	for i, failure := range f.failures {
		errs[i] = failure
	}
	return errs
}

// Error implements the error interface
func (f *Failures) Error() string {
	switch len(f.failures) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s: %s", f.pass, f.failures[0].Error())
	}

	lines := make([]string, len(f.failures))
	for i, failure := range f.failures {
		lines[i] = fmt.Sprintf("  %d. %s", i+1, failure.Error())
	}
	return fmt.Sprintf("%s (%d failures):\n%s", f.pass, len(f.failures), strings.Join(lines, "\n"))
}

// Err returns the collection as a single error, or nil when nothing failed
func (f *Failures) Err() error {
	if f.Len() == 0 {
		return nil
	}
	return f
}
