package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jamesprial/gqlauth/internal/safety"
	"github.com/jamesprial/gqlauth/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	toolNameGraphQLQuery   = "graphql_query"
	toolNameTransportState = "graphql_transport_status"
)

// StatusProvider exposes transport diagnostics. *Transport implements it.
type StatusProvider interface {
	Snapshot() Snapshot
}

var (
	operationNamePattern = regexp.MustCompile(`^\s*(?:query|mutation|subscription)\s+([_A-Za-z][_0-9A-Za-z]*)`)
	operationTypePattern = regexp.MustCompile(`^\s*(query|mutation|subscription)\b`)
)

// OperationName returns the name declared by a GraphQL document, or
// "anonymous" for shorthand and unnamed operations.
func OperationName(query string) string {
	if m := operationNamePattern.FindStringSubmatch(query); m != nil {
		return m[1]
	}
	return "anonymous"
}

// OperationType returns "query", "mutation" or "subscription" for the
// document's leading operation. Shorthand documents are queries.
func OperationType(query string) string {
	if m := operationTypePattern.FindStringSubmatch(query); m != nil {
		return m[1]
	}
	return safety.OpQuery
}

// GraphQLTools returns the MCP tool registrations backed by client. The
// graphql_query tool is always present; graphql_transport_status is added
// when client also implements StatusProvider. A nil filter admits every
// operation.
func GraphQLTools(client Client, filter *safety.Filter, audit *safety.AuditLogger) []tools.Registration {
	regs := []tools.Registration{
		toolGraphQLQuery(client, filter, audit),
	}
	if sp, ok := client.(StatusProvider); ok {
		regs = append(regs, toolTransportStatus(sp, audit))
	}
	return regs
}

// toolGraphQLQuery constructs the graphql_query Registration.
func toolGraphQLQuery(client Client, filter *safety.Filter, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameGraphQLQuery,
		mcp.WithDescription("Execute a GraphQL query or mutation. Expired session credentials are refreshed transparently."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The GraphQL query or mutation string to execute."),
		),
		mcp.WithString("variables",
			mcp.Description("Optional JSON object string of variables to pass with the query."),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		query := req.GetString("query", "")
		variablesStr := req.GetString("variables", "")
		opName := OperationName(query)
		opType := OperationType(query)

		params := map[string]any{
			"operation": opName,
			"type":      opType,
			"variables": variablesStr,
		}

		if err := filter.Check(opType, opName); err != nil {
			tools.LogAudit(audit, toolNameGraphQLQuery, params, "denied", start)
			return tools.ErrorResult(err.Error()), nil
		}

		var parsedVars map[string]any
		if variablesStr != "" {
			if err := json.Unmarshal([]byte(variablesStr), &parsedVars); err != nil {
				errMsg := fmt.Sprintf("parse variables JSON: %v", err)
				tools.LogAudit(audit, toolNameGraphQLQuery, params, "error: "+errMsg, start)
				return tools.ErrorResult(errMsg), nil
			}
		}

		data, err := client.Execute(ctx, query, parsedVars)
		if err != nil {
			env := Envelope(err)
			tools.LogAudit(audit, toolNameGraphQLQuery, params, "error: "+env.TextCode, start)
			return tools.ErrorResult(fmt.Sprintf("%s (%s, HTTP %d)", err.Error(), env.TextCode, env.Code)), nil
		}

		var parsed any
		if err := json.Unmarshal(data, &parsed); err != nil {
			tools.LogAudit(audit, toolNameGraphQLQuery, params, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}

		tools.LogAudit(audit, toolNameGraphQLQuery, params, "ok", start)
		return tools.JSONResult(parsed), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// transportStatus is the JSON shape returned by graphql_transport_status.
type transportStatus struct {
	State           string `json:"state"`
	QueueDepth      int    `json:"queue_depth"`
	Refreshes       int    `json:"refreshes"`
	RefreshFailures int    `json:"refresh_failures"`
	HasCredential   bool   `json:"has_credential"`
}

func toolTransportStatus(sp StatusProvider, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameTransportState,
		mcp.WithDescription("Report the GraphQL transport state: whether a credential refresh is in flight, how many requests are queued, and refresh counters."),
	)

	handler := func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		snap := sp.Snapshot()
		tools.LogAudit(audit, toolNameTransportState, nil, "ok", start)
		return tools.JSONResult(transportStatus{
			State:           snap.State.String(),
			QueueDepth:      snap.QueueDepth,
			Refreshes:       snap.Refreshes,
			RefreshFailures: snap.RefreshFailures,
			HasCredential:   snap.HasCredential,
		}), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// AuditTransitions returns a TransitionHook that records each transition in
// audit. A nil logger yields a nil hook.
func AuditTransitions(audit *safety.AuditLogger) TransitionHook {
	if audit == nil {
		return nil
	}
	return func(tr Transition) {
		_ = audit.Log(safety.AuditEntry{
			Timestamp: tr.At,
			Kind:      safety.KindTransition,
			Tool:      tr.Operation,
			Params: map[string]any{
				"from":       tr.From.String(),
				"to":         tr.To.String(),
				"queue":      tr.QueueLen,
				"drained":    tr.Drained,
				"request_id": tr.RequestID,
			},
			Result: tr.Reason,
		})
	}
}
