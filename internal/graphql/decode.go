package graphql

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode copies the response's "data" object into out, which must be a
// pointer to a struct or map. Struct fields are matched by their json tags.
func Decode(resp *Response, out any) error {
	data := resp.Data()
	if data == nil {
		return fmt.Errorf("graphql: decode: response has no data")
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("graphql: decode: %w", err)
	}
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("graphql: decode: %w", err)
	}
	return nil
}
