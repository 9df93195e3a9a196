package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Job parameters are persisted as JSON. Decoding uses json.Number so that
// integers and floats survive a round trip instead of collapsing to float64.
// Supported shapes: null, booleans, numbers, strings, sequences, and
// string-keyed maps, nested arbitrarily.

// EncodeParams serializes params for storage. A nil value encodes to nil.
func EncodeParams(params any) ([]byte, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return data, nil
}

// DecodeParams deserializes a stored parameters column. Empty input decodes
// to nil.
func DecodeParams(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return v, nil
}
