package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jamesprial/gqlauth/internal/config"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestConfig returns a GraphQLConfig pointing at the given URL with
// reasonable defaults for testing.
func newTestConfig(t *testing.T, url string) config.GraphQLConfig {
	t.Helper()
	return config.GraphQLConfig{
		URL:     url,
		Timeout: 5,
	}
}

// newTestDispatcher starts an httptest server backed by handler and returns
// a dispatcher pointed at it.
func newTestDispatcher(t *testing.T, cfg config.GraphQLConfig, handler http.HandlerFunc) *HTTPDispatcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.URL = srv.URL
	if cfg.Timeout == 0 {
		cfg.Timeout = 5
	}
	d, err := NewHTTPDispatcher(cfg)
	if err != nil {
		t.Fatalf("NewHTTPDispatcher() error: %v", err)
	}
	return d
}

// graphqlRequestBody is the expected shape of a GraphQL HTTP request body.
type graphqlRequestBody struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// ---------------------------------------------------------------------------
// normalizeURL tests
// ---------------------------------------------------------------------------

func Test_normalizeURL_Cases(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bare host", input: "http://api.local", want: "http://api.local/graphql"},
		{name: "trailing slash", input: "http://api.local/", want: "http://api.local/graphql"},
		{name: "already has suffix", input: "http://api.local/graphql", want: "http://api.local/graphql"},
		{name: "suffix with trailing slash", input: "http://api.local/graphql/", want: "http://api.local/graphql"},
		{name: "multiple trailing slashes", input: "http://api.local///", want: "http://api.local/graphql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeURL(tt.input); got != tt.want {
				t.Errorf("normalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// NewHTTPDispatcher tests
// ---------------------------------------------------------------------------

func Test_NewHTTPDispatcher_Cases(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.GraphQLConfig
		wantErr    bool
		wantHeader string
		wantStatus int
		wantTO     time.Duration
	}{
		{
			name:    "empty URL is rejected",
			cfg:     config.GraphQLConfig{},
			wantErr: true,
		},
		{
			name:       "zero values use defaults",
			cfg:        config.GraphQLConfig{URL: "http://api.local"},
			wantHeader: "auth",
			wantStatus: http.StatusUnauthorized,
			wantTO:     0,
		},
		{
			name:       "negative timeout means none",
			cfg:        config.GraphQLConfig{URL: "http://api.local", Timeout: -1},
			wantHeader: "auth",
			wantStatus: http.StatusUnauthorized,
			wantTO:     0,
		},
		{
			name: "explicit values are kept",
			cfg: config.GraphQLConfig{
				URL:               "http://api.local",
				Timeout:           7,
				AuthHeader:        "Authorization",
				AuthScheme:        "Bearer",
				AuthExpiredStatus: http.StatusBadRequest,
			},
			wantHeader: "Authorization",
			wantStatus: http.StatusBadRequest,
			wantTO:     7 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewHTTPDispatcher(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.authHeader != tt.wantHeader {
				t.Errorf("authHeader = %q, want %q", d.authHeader, tt.wantHeader)
			}
			if d.authExpiredStatus != tt.wantStatus {
				t.Errorf("authExpiredStatus = %d, want %d", d.authExpiredStatus, tt.wantStatus)
			}
			if d.httpClient.Timeout != tt.wantTO {
				t.Errorf("timeout = %v, want %v", d.httpClient.Timeout, tt.wantTO)
			}
			if d.URL() != "http://api.local/graphql" {
				t.Errorf("URL() = %q, want %q", d.URL(), "http://api.local/graphql")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Execute: request shape
// ---------------------------------------------------------------------------

func Test_Execute_RequestShape(t *testing.T) {
	var (
		gotMethod string
		gotType   string
		gotCred   string
		gotBody   graphqlRequestBody
		rawBody   string
	)
	d := newTestDispatcher(t, config.GraphQLConfig{}, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		gotCred = r.Header.Get("auth")
		data, _ := io.ReadAll(r.Body)
		rawBody = string(data)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	})

	op := Operation{
		Name:      "GetUser",
		Query:     "query GetUser($id: ID!) { user(id: $id) { name } }",
		Variables: map[string]any{"id": "42"},
	}
	out := d.Execute(context.Background(), op, "cred-A")

	if out.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %v, want success (err=%v)", out.Kind, out.Err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotType)
	}
	if gotCred != "cred-A" {
		t.Errorf("auth header = %q, want %q", gotCred, "cred-A")
	}
	if gotBody.Query != op.Query {
		t.Errorf("query = %q, want %q", gotBody.Query, op.Query)
	}
	if gotBody.Variables["id"] != "42" {
		t.Errorf("variables = %v, want id=42", gotBody.Variables)
	}
	var members map[string]any
	_ = json.Unmarshal([]byte(rawBody), &members)
	if len(members) != 2 {
		t.Errorf("body members = %v, want only query and variables", members)
	}
}

func Test_Execute_NilVariablesOmitted(t *testing.T) {
	var rawBody string
	d := newTestDispatcher(t, config.GraphQLConfig{}, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rawBody = string(data)
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	d.Execute(context.Background(), Operation{Query: "{ me { id } }"}, "")

	if strings.Contains(rawBody, "variables") {
		t.Errorf("body = %s, want no variables member", rawBody)
	}
}

func Test_Execute_EmptyCredentialSendsNoHeader(t *testing.T) {
	var present bool
	d := newTestDispatcher(t, config.GraphQLConfig{}, func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["Auth"]
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	d.Execute(context.Background(), Operation{Query: "{ me { id } }"}, "")

	if present {
		t.Error("auth header was sent for an empty credential")
	}
}

func Test_Execute_CustomHeaderAndScheme(t *testing.T) {
	var got string
	cfg := config.GraphQLConfig{AuthHeader: "Authorization", AuthScheme: "Bearer"}
	d := newTestDispatcher(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Header().Set("Authorization", "Bearer fresh")
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	out := d.Execute(context.Background(), Operation{Query: "{ me { id } }"}, "cred-A")

	if got != "Bearer cred-A" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer cred-A")
	}
	if out.Credential != "fresh" {
		t.Errorf("Credential = %q, want scheme stripped %q", out.Credential, "fresh")
	}
}

// ---------------------------------------------------------------------------
// Execute: classification
// ---------------------------------------------------------------------------

func Test_Execute_Classification(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.GraphQLConfig
		status     int
		body       string
		wantKind   OutcomeKind
		wantStatus int
	}{
		{
			name:       "200 with data is success",
			status:     http.StatusOK,
			body:       `{"data":{"user":{"name":"ada"}}}`,
			wantKind:   OutcomeSuccess,
			wantStatus: http.StatusOK,
		},
		{
			name:       "200 with errors is still success",
			status:     http.StatusOK,
			body:       `{"errors":[{"message":"boom"}]}`,
			wantKind:   OutcomeSuccess,
			wantStatus: http.StatusOK,
		},
		{
			name:       "401 is auth expired by default",
			status:     http.StatusUnauthorized,
			body:       `{"error":"expired"}`,
			wantKind:   OutcomeAuthExpired,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "400 is auth expired when configured",
			cfg:        config.GraphQLConfig{AuthExpiredStatus: http.StatusBadRequest},
			status:     http.StatusBadRequest,
			body:       "",
			wantKind:   OutcomeAuthExpired,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "401 is a server error when 400 is configured",
			cfg:        config.GraphQLConfig{AuthExpiredStatus: http.StatusBadRequest},
			status:     http.StatusUnauthorized,
			wantKind:   OutcomeServerError,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "500 is server error",
			status:     http.StatusInternalServerError,
			body:       "internal",
			wantKind:   OutcomeServerError,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "304 is server error",
			status:     http.StatusNotModified,
			wantKind:   OutcomeServerError,
			wantStatus: http.StatusNotModified,
		},
		{
			name:       "200 with empty body is invalid",
			status:     http.StatusOK,
			body:       "",
			wantKind:   OutcomeInvalidResponse,
			wantStatus: http.StatusOK,
		},
		{
			name:       "200 with malformed JSON is invalid",
			status:     http.StatusOK,
			body:       `{not json`,
			wantKind:   OutcomeInvalidResponse,
			wantStatus: http.StatusOK,
		},
		{
			name:       "200 with trailing content is invalid",
			status:     http.StatusOK,
			body:       `{"data":{}} garbage`,
			wantKind:   OutcomeInvalidResponse,
			wantStatus: http.StatusOK,
		},
		{
			name:       "200 with JSON array is invalid",
			status:     http.StatusOK,
			body:       `[1,2,3]`,
			wantKind:   OutcomeInvalidResponse,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(t, tt.cfg, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			out := d.Execute(context.Background(), Operation{Query: "{ me { id } }"}, "cred")

			if out.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v (err=%v)", out.Kind, tt.wantKind, out.Err)
			}
			if out.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", out.Status, tt.wantStatus)
			}
		})
	}
}

func Test_Execute_ServerErrorKeepsBody(t *testing.T) {
	d := newTestDispatcher(t, config.GraphQLConfig{}, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	})

	out := d.Execute(context.Background(), Operation{Query: "{ me { id } }"}, "cred")

	var serverErr *ServerError
	if !errors.As(out.Error(), &serverErr) {
		t.Fatalf("Error() = %T, want *ServerError", out.Error())
	}
	if serverErr.Status != http.StatusServiceUnavailable || string(serverErr.Body) != "maintenance" {
		t.Errorf("ServerError = %+v, want 503 with body", serverErr)
	}
}

func Test_Execute_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d, err := NewHTTPDispatcher(newTestConfig(t, url))
	if err != nil {
		t.Fatalf("NewHTTPDispatcher() error: %v", err)
	}

	out := d.Execute(context.Background(), Operation{Query: "{ me { id } }"}, "cred")

	if out.Kind != OutcomeTransportFailure {
		t.Fatalf("Kind = %v, want transport_failure", out.Kind)
	}
	var transErr *TransportError
	if !errors.As(out.Error(), &transErr) {
		t.Errorf("Error() = %T, want *TransportError", out.Error())
	}
}

func Test_Execute_ContextCancelled(t *testing.T) {
	d := newTestDispatcher(t, config.GraphQLConfig{}, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := d.Execute(ctx, Operation{Query: "{ me { id } }"}, "cred")

	if out.Kind != OutcomeTransportFailure {
		t.Fatalf("Kind = %v, want transport_failure", out.Kind)
	}
	if !errors.Is(out.Error(), context.Canceled) {
		t.Errorf("Error() = %v, want to wrap context.Canceled", out.Error())
	}
}

// ---------------------------------------------------------------------------
// Benchmarks
// ---------------------------------------------------------------------------

func Benchmark_Execute_HappyPath(b *testing.B) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	d, err := NewHTTPDispatcher(config.GraphQLConfig{URL: srv.URL, Timeout: 5})
	if err != nil {
		b.Fatalf("NewHTTPDispatcher() error: %v", err)
	}
	op := Operation{Query: "{ ok }"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Execute(context.Background(), op, "cred")
	}
}
