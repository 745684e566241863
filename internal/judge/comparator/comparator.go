// Package comparator decides whether a program's output matches the expected output of a test case.
package comparator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	appErr "codejudge/pkg/errors"
)

// Func compares actual program output with the expected output.
type Func func(actual, expected string) bool

const (
	NameDefault          = "default"
	NameUnorderedIntList = "unordered-int-list"
	NameInteger          = "integer"
	NameTokensCI         = "tokens-ci"
)

// DefaultBindings binds the built-in problems to their comparators.
func DefaultBindings() map[int64]string {
	return map[int64]string{
		1: NameUnorderedIntList,
		2: NameInteger,
	}
}

type binding struct {
	name string
	fn   Func
}

// Registry maps problem ids to comparators. Unbound problems use the default comparator.
type Registry struct {
	mu       sync.RWMutex
	named    map[string]Func
	problems map[int64]binding
}

// NewRegistry creates a registry with the built-in comparators and the given bindings.
func NewRegistry(bindings map[int64]string) (*Registry, error) {
	r := &Registry{
		named: map[string]Func{
			NameDefault:          Default,
			NameUnorderedIntList: UnorderedIntList,
			NameInteger:          Integer,
			NameTokensCI:         TokensCI,
		},
		problems: make(map[int64]binding),
	}
	ids := make([]int64, 0, len(bindings))
	for id := range bindings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := r.Bind(id, bindings[id]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNewRegistry is NewRegistry for static bindings.
func MustNewRegistry(bindings map[int64]string) *Registry {
	r, err := NewRegistry(bindings)
	if err != nil {
		panic(err)
	}
	return r
}

// Define adds or replaces a named comparator.
func (r *Registry) Define(name string, fn Func) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return appErr.ValidationError("comparator", "name is required")
	}
	if fn == nil {
		return appErr.ValidationError("comparator", "func is required")
	}
	r.mu.Lock()
	r.named[name] = fn
	r.mu.Unlock()
	return nil
}

// Bind attaches a named comparator to a problem.
func (r *Registry) Bind(problemID int64, name string) error {
	fn, ok := r.Lookup(name)
	if !ok {
		return appErr.ValidationError("comparator", fmt.Sprintf("unknown comparator %q for problem %d", name, problemID))
	}
	r.mu.Lock()
	r.problems[problemID] = binding{name: name, fn: fn}
	r.mu.Unlock()
	return nil
}

// Register attaches an anonymous comparator to a problem.
func (r *Registry) Register(problemID int64, fn Func) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.problems[problemID] = binding{name: fmt.Sprintf("problem-%d", problemID), fn: fn}
	r.mu.Unlock()
}

// Lookup returns a named comparator.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.named[strings.TrimSpace(name)]
	return fn, ok
}

// NameFor reports which comparator judges a problem.
func (r *Registry) NameFor(problemID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.problems[problemID]; ok {
		return b.name
	}
	return NameDefault
}

// Compare reports whether actual matches expected for the problem.
// A panicking comparator counts as a mismatch.
func (r *Registry) Compare(problemID int64, actual, expected string) bool {
	ok, err := r.CompareSafe(problemID, actual, expected)
	return err == nil && ok
}

// CompareSafe is Compare with comparator panics surfaced as ComparatorFault errors.
func (r *Registry) CompareSafe(problemID int64, actual, expected string) (ok bool, err error) {
	fn := r.funcFor(problemID)
	defer func() {
		if p := recover(); p != nil {
			ok = false
			err = appErr.Newf(appErr.ComparatorFault, "comparator for problem %d panicked: %v", problemID, p)
		}
	}()
	return fn(actual, expected), nil
}

func (r *Registry) funcFor(problemID int64) Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.problems[problemID]; ok {
		return b.fn
	}
	return r.named[NameDefault]
}

// Default compares whitespace-separated tokens, case-sensitive.
func Default(actual, expected string) bool {
	return tokensEqual(strings.Fields(actual), strings.Fields(expected))
}

// TokensCI compares whitespace-separated tokens ignoring case.
func TokensCI(actual, expected string) bool {
	return tokensEqual(strings.Fields(strings.ToLower(actual)), strings.Fields(strings.ToLower(expected)))
}

// Integer compares both sides as signed base-10 integers.
func Integer(actual, expected string) bool {
	a, err := strconv.ParseInt(strings.TrimSpace(actual), 10, 64)
	if err != nil {
		return false
	}
	e, err := strconv.ParseInt(strings.TrimSpace(expected), 10, 64)
	if err != nil {
		return false
	}
	return a == e
}

// UnorderedIntList compares bracketed integer lists as multisets: "[1,0]" matches "[0,1]".
func UnorderedIntList(actual, expected string) bool {
	a, ok := parseIntList(actual)
	if !ok {
		return false
	}
	e, ok := parseIntList(expected)
	if !ok || len(a) != len(e) {
		return false
	}
	counts := make(map[int64]int, len(e))
	for _, v := range e {
		counts[v]++
	}
	for _, v := range a {
		if counts[v] == 0 {
			return false
		}
		counts[v]--
	}
	return true
}

func parseIntList(s string) ([]int64, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, false
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []int64{}, true
	}
	parts := strings.Split(body, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func tokensEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
