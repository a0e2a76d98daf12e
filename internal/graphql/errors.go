package graphql

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to envelopes built by Envelope.
const (
	TextCodeServerError     = "GRAPHQL_SERVER_ERROR"
	TextCodeInvalidResponse = "GRAPHQL_INVALID_RESPONSE"
	TextCodeTransport       = "GRAPHQL_TRANSPORT_FAILURE"
	TextCodeRefreshFailed   = "GRAPHQL_REFRESH_FAILED"
	TextCodeQueryErrors     = "GRAPHQL_QUERY_ERRORS"
	TextCodeInternal        = "GRAPHQL_INTERNAL"
)

// ErrRefreshFailed matches every *RefreshFailedError via errors.Is.
var ErrRefreshFailed = errors.New("graphql: credential refresh failed")

// ServerError is a non-success, non-auth HTTP status from the endpoint.
type ServerError struct {
	Status int
	Body   []byte
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("graphql: unexpected HTTP status %d", e.Status)
}

// InvalidResponseError is a success status whose body is missing or cannot
// be decoded.
type InvalidResponseError struct {
	Status int
	Body   []byte
	Cause  error
}

func (e *InvalidResponseError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("graphql: invalid response (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("graphql: invalid response (HTTP %d): %v", e.Status, e.Cause)
}

func (e *InvalidResponseError) Unwrap() error { return e.Cause }

// TransportError wraps a failure below HTTP semantics, such as a refused
// connection or a cancelled context. Unwrap returns the cause unchanged.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("graphql: request failed: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// RefreshFailedError is delivered to every request that was waiting on a
// refresh that did not yield a usable credential.
type RefreshFailedError struct {
	// Status is the refresh exchange's HTTP status, or zero when the exchange
	// never produced one.
	Status int
	Cause  error
}

func (e *RefreshFailedError) Error() string {
	var b strings.Builder
	b.WriteString(ErrRefreshFailed.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *RefreshFailedError) Unwrap() error { return e.Cause }

func (e *RefreshFailedError) Is(target error) bool { return target == ErrRefreshFailed }

// QueryError carries the messages of a response whose "errors" member is
// non-empty. It is produced by Execute, never by Send.
type QueryError struct {
	Errors []GraphQLError
}

func (e *QueryError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ge := range e.Errors {
		msgs[i] = ge.Message
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Envelope maps a transport error onto a categorised go-errors value for
// caller-facing surfaces. It returns nil for a nil error.
func Envelope(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var (
		serverErr  *ServerError
		invalidErr *InvalidResponseError
		transErr   *TransportError
		refreshErr *RefreshFailedError
		queryErr   *QueryError
	)
	switch {
	case errors.As(err, &refreshErr):
		return goerrors.Wrap(err, goerrors.CategoryAuth, "credential refresh failed").
			WithCode(http.StatusUnauthorized).
			WithTextCode(TextCodeRefreshFailed)
	case errors.As(err, &serverErr):
		env := goerrors.Wrap(err, goerrors.CategoryExternal, "graphql endpoint returned an error status").
			WithCode(serverErr.Status).
			WithTextCode(TextCodeServerError)
		env.WithMetadata(map[string]any{"body": string(serverErr.Body)})
		return env
	case errors.As(err, &invalidErr):
		return goerrors.Wrap(err, goerrors.CategoryExternal, "graphql endpoint returned an invalid response").
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeInvalidResponse)
	case errors.As(err, &queryErr):
		return goerrors.Wrap(err, goerrors.CategoryOperation, queryErr.Error()).
			WithCode(http.StatusUnprocessableEntity).
			WithTextCode(TextCodeQueryErrors)
	case errors.As(err, &transErr):
		return goerrors.Wrap(err, goerrors.CategoryExternal, "graphql exchange failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeTransport)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, err.Error()).
		WithCode(http.StatusInternalServerError).
		WithTextCode(TextCodeInternal)
}
