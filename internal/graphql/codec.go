package graphql

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Codec encodes outgoing operations and decodes response bodies.
type Codec interface {
	EncodeRequest(op Operation) ([]byte, error)
	DecodeBody(data []byte) (map[string]any, error)
}

// errEmptyBody is returned by DecodeBody for a zero-length body.
var errEmptyBody = errors.New("graphql: empty response body")

var errTrailingData = errors.New("graphql: decode response: trailing data after JSON object")

// graphqlRequest is the JSON body shape for a GraphQL HTTP request.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// JSONCodec is the default Codec. Numbers in decoded bodies are kept as
// json.Number so large identifiers survive the round trip.
type JSONCodec struct{}

// EncodeRequest marshals op as {"query": ..., "variables": ...}. Variables are
// omitted when nil or empty.
func (JSONCodec) EncodeRequest(op Operation) ([]byte, error) {
	data, err := json.Marshal(graphqlRequest{Query: op.Query, Variables: op.Variables})
	if err != nil {
		return nil, fmt.Errorf("graphql: marshal request: %w", err)
	}
	return data, nil
}

// DecodeBody decodes data into a JSON object. Anything other than a single
// object at the top level is rejected, including trailing content.
func (JSONCodec) DecodeBody(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("graphql: decode response: %w", err)
	}
	if body == nil {
		return nil, fmt.Errorf("graphql: decode response: body is not a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return body, nil
}

var _ Codec = JSONCodec{}
