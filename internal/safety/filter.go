package safety

import (
	"fmt"
	"path/filepath"
	"strings"
)

// GraphQL operation types as they appear in a document.
const (
	OpQuery        = "query"
	OpMutation     = "mutation"
	OpSubscription = "subscription"
)

// Filter decides which GraphQL operations may be submitted through the MCP
// tools. Operations are identified by their type and name; anonymous
// operations are matched under the name "anonymous".
//
// Patterns are filepath.Match globs over the operation name. A pattern may be
// qualified with an operation type, as in "mutation:Delete*", in which case it
// only applies to that type.
//
// Rules, in order:
//   - In read-only mode every mutation and subscription is rejected.
//   - A denylist match rejects the operation.
//   - A non-empty allowlist must match, otherwise the operation is rejected.
type Filter struct {
	allowlist []pattern
	denylist  []pattern
	readOnly  bool
}

type pattern struct {
	opType string // empty matches any type
	glob   string
	raw    string
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// ReadOnly rejects mutations and subscriptions when enabled.
func ReadOnly(enabled bool) FilterOption {
	return func(f *Filter) { f.readOnly = enabled }
}

// NewFilter constructs a Filter from allowlist and denylist patterns. Either
// list may be empty.
func NewFilter(allowlist, denylist []string, opts ...FilterOption) *Filter {
	f := &Filter{
		allowlist: parsePatterns(allowlist),
		denylist:  parsePatterns(denylist),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// DeniedError reports why an operation was rejected.
type DeniedError struct {
	OpType string
	Name   string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s %q is not permitted: %s", e.OpType, e.Name, e.Reason)
}

// Check returns a *DeniedError when the operation is rejected. A nil Filter
// permits everything. An empty opType is treated as a query.
func (f *Filter) Check(opType, name string) error {
	if f == nil {
		return nil
	}
	opType = strings.ToLower(strings.TrimSpace(opType))
	if opType == "" {
		opType = OpQuery
	}

	if f.readOnly && opType != OpQuery {
		return &DeniedError{OpType: opType, Name: name, Reason: "read-only mode"}
	}
	for _, p := range f.denylist {
		if p.matches(opType, name) {
			return &DeniedError{OpType: opType, Name: name, Reason: fmt.Sprintf("matches denylist pattern %q", p.raw)}
		}
	}
	if len(f.allowlist) == 0 {
		return nil
	}
	for _, p := range f.allowlist {
		if p.matches(opType, name) {
			return nil
		}
	}
	return &DeniedError{OpType: opType, Name: name, Reason: "not in allowlist"}
}

// IsAllowed reports whether the operation is permitted.
func (f *Filter) IsAllowed(opType, name string) bool {
	return f.Check(opType, name) == nil
}

func parsePatterns(raw []string) []pattern {
	out := make([]pattern, 0, len(raw))
	for _, r := range raw {
		p := pattern{glob: strings.TrimSpace(r), raw: r}
		if prefix, glob, ok := strings.Cut(p.glob, ":"); ok {
			switch t := strings.ToLower(strings.TrimSpace(prefix)); t {
			case OpQuery, OpMutation, OpSubscription:
				p.opType = t
				p.glob = strings.TrimSpace(glob)
			}
		}
		out = append(out, p)
	}
	return out
}

func (p pattern) matches(opType, name string) bool {
	if p.opType != "" && p.opType != opType {
		return false
	}
	return matchGlob(p.glob, name)
}

// matchGlob returns true when name matches the given glob pattern.
// filepath.Match errors (malformed patterns) are treated as non-matching.
func matchGlob(pattern, name string) bool {
	matched, err := filepath.Match(pattern, name)
	if err != nil {
		return false
	}
	return matched
}
