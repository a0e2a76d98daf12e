// Package graphql provides a GraphQL HTTP transport that attaches a session
// credential to every exchange and transparently refreshes it when the
// endpoint reports that the credential has expired.
package graphql

import (
	"context"
	"encoding/json"
	"strings"
)

// GraphQLError represents a single error returned in a GraphQL response.
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Client defines the interface for executing GraphQL queries.
type Client interface {
	Execute(ctx context.Context, query string, variables map[string]any) ([]byte, error)
}

// Operation describes a single query or mutation. Name and ID are carried for
// logging and correlation only; they are not part of the request body.
type Operation struct {
	Name      string
	Query     string
	Variables map[string]any
	ID        string
}

// label returns a short human-readable name for logs and metrics.
func (op Operation) label() string {
	if op.Name != "" {
		return op.Name
	}
	if op.ID != "" {
		return op.ID
	}
	return "anonymous"
}

// DefaultRefreshQuery is the refresh exchange sent when none is configured.
const DefaultRefreshQuery = `query RefreshToken { refreshToken }`

// RefreshOperation returns the fixed, parameterless refresh operation for the
// given query text. An empty query selects DefaultRefreshQuery.
func RefreshOperation(query string) Operation {
	if strings.TrimSpace(query) == "" {
		query = DefaultRefreshQuery
	}
	return Operation{Name: "RefreshToken", Query: query}
}

// Response is a decoded GraphQL response body.
type Response struct {
	Body map[string]any
}

// Data returns the "data" member of the body, or nil when absent.
func (r *Response) Data() map[string]any {
	if r == nil || r.Body == nil {
		return nil
	}
	data, _ := r.Body["data"].(map[string]any)
	return data
}

// Errors returns the GraphQL errors carried in the body.
func (r *Response) Errors() []GraphQLError {
	if r == nil || r.Body == nil {
		return nil
	}
	raw, ok := r.Body["errors"].([]any)
	if !ok {
		return nil
	}
	errs := make([]GraphQLError, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ge := GraphQLError{}
		ge.Message, _ = entry["message"].(string)
		ge.Path, _ = entry["path"].([]any)
		errs = append(errs, ge)
	}
	return errs
}

// DataJSON re-encodes the "data" member as JSON.
func (r *Response) DataJSON() ([]byte, error) {
	if r == nil || r.Body == nil {
		return []byte("null"), nil
	}
	return json.Marshal(r.Body["data"])
}

// Callback receives the result of one request. Exactly one of resp and err
// is non-nil.
type Callback func(resp *Response, err error)

// Cancellable is returned by Send.
type Cancellable interface {
	// Cancel withdraws the request. A request still waiting for a credential
	// refresh is removed synchronously and its callback never runs; a request
	// already on the wire has its exchange context cancelled.
	Cancel()
}
