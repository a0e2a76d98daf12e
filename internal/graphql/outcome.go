package graphql

// OutcomeKind classifies the result of one exchange.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeAuthExpired
	OutcomeServerError
	OutcomeInvalidResponse
	OutcomeTransportFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeAuthExpired:
		return "auth_expired"
	case OutcomeServerError:
		return "server_error"
	case OutcomeInvalidResponse:
		return "invalid_response"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one exchange.
type Outcome struct {
	Kind   OutcomeKind
	Status int
	// Body is the decoded response body; set only for OutcomeSuccess.
	Body map[string]any
	// Raw is the undecoded response body, when one was read.
	Raw []byte
	// Credential is the credential header value carried by the response, if any.
	Credential string
	// Err is the underlying cause for decode and transport failures.
	Err error
}

// Response returns the decoded body as a Response.
func (o Outcome) Response() *Response {
	return &Response{Body: o.Body}
}

// Error returns the caller-facing error for a non-success outcome and nil
// for success. AuthExpired has no caller-facing form; if one ever reaches a
// caller (a replay rejected again) it is reported as a ServerError.
func (o Outcome) Error() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeInvalidResponse:
		return &InvalidResponseError{Status: o.Status, Body: o.Raw, Cause: o.Err}
	case OutcomeTransportFailure:
		return &TransportError{Cause: o.Err}
	default:
		return &ServerError{Status: o.Status, Body: o.Raw}
	}
}
