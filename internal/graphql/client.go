package graphql

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jamesprial/gqlauth/internal/config"
)

const (
	defaultAuthHeader        = "auth"
	defaultAuthExpiredStatus = http.StatusUnauthorized
)

// Dispatcher performs exactly one exchange per call and classifies its
// result. Implementations never retry.
type Dispatcher interface {
	Execute(ctx context.Context, op Operation, credential string) Outcome
}

// HTTPDispatcher is the net/http Dispatcher. It is safe for concurrent use.
type HTTPDispatcher struct {
	httpClient        *http.Client
	graphqlURL        string
	authHeader        string
	authScheme        string
	authExpiredStatus int
	codec             Codec
}

// NewHTTPDispatcher constructs an HTTPDispatcher from the provided
// GraphQLConfig. It returns an error if cfg.URL is empty. A positive
// cfg.Timeout bounds each exchange; otherwise no client timeout is set and
// only the caller's context or the underlying transport ends an exchange.
func NewHTTPDispatcher(cfg config.GraphQLConfig) (*HTTPDispatcher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("graphql: URL is required")
	}

	var timeout time.Duration
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	header := strings.TrimSpace(cfg.AuthHeader)
	if header == "" {
		header = defaultAuthHeader
	}
	status := cfg.AuthExpiredStatus
	if status == 0 {
		status = defaultAuthExpiredStatus
	}

	return &HTTPDispatcher{
		httpClient:        &http.Client{Timeout: timeout},
		graphqlURL:        normalizeURL(cfg.URL),
		authHeader:        header,
		authScheme:        strings.TrimSpace(cfg.AuthScheme),
		authExpiredStatus: status,
		codec:             JSONCodec{},
	}, nil
}

// WithHTTPClient replaces the underlying *http.Client and returns d.
func (d *HTTPDispatcher) WithHTTPClient(c *http.Client) *HTTPDispatcher {
	if c != nil {
		d.httpClient = c
	}
	return d
}

// WithCodec replaces the serialization codec and returns d.
func (d *HTTPDispatcher) WithCodec(c Codec) *HTTPDispatcher {
	if c != nil {
		d.codec = c
	}
	return d
}

// URL returns the normalized endpoint URL.
func (d *HTTPDispatcher) URL() string { return d.graphqlURL }

// normalizeURL trims any trailing slash from rawURL and appends /graphql if
// the path does not already end with that suffix.
func normalizeURL(rawURL string) string {
	u := strings.TrimRight(rawURL, "/")
	if !strings.HasSuffix(u, "/graphql") {
		u += "/graphql"
	}
	return u
}

// Execute POSTs op to the endpoint carrying credential and classifies the
// result:
//   - a transport-level failure is OutcomeTransportFailure
//   - the configured auth-expired status is OutcomeAuthExpired
//   - any other non-2xx status is OutcomeServerError
//   - a 2xx status with a missing or undecodable body is OutcomeInvalidResponse
//   - otherwise OutcomeSuccess
func (d *HTTPDispatcher) Execute(ctx context.Context, op Operation, credential string) Outcome {
	bodyBytes, err := d.codec.EncodeRequest(op)
	if err != nil {
		return Outcome{Kind: OutcomeTransportFailure, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.graphqlURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return Outcome{Kind: OutcomeTransportFailure, Err: fmt.Errorf("graphql: create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set(d.authHeader, d.headerValue(credential))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Outcome{Kind: OutcomeTransportFailure, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, readErr := io.ReadAll(resp.Body)
	out := Outcome{
		Status:     resp.StatusCode,
		Raw:        raw,
		Credential: d.stripScheme(resp.Header.Get(d.authHeader)),
	}

	switch {
	case resp.StatusCode == d.authExpiredStatus:
		out.Kind = OutcomeAuthExpired
		return out
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		out.Kind = OutcomeServerError
		return out
	}

	if readErr != nil {
		out.Kind = OutcomeInvalidResponse
		out.Err = fmt.Errorf("graphql: read response: %w", readErr)
		return out
	}
	body, err := d.codec.DecodeBody(raw)
	if err != nil {
		out.Kind = OutcomeInvalidResponse
		out.Err = err
		return out
	}
	out.Kind = OutcomeSuccess
	out.Body = body
	return out
}

func (d *HTTPDispatcher) headerValue(credential string) string {
	if d.authScheme == "" {
		return credential
	}
	return d.authScheme + " " + credential
}

func (d *HTTPDispatcher) stripScheme(value string) string {
	value = strings.TrimSpace(value)
	if d.authScheme != "" {
		value = strings.TrimPrefix(value, d.authScheme+" ")
	}
	return value
}

var _ Dispatcher = (*HTTPDispatcher)(nil)
