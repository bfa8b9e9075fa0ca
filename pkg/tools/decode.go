package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// validator is implemented by input types with required fields.
type validator interface {
	validate() error
}

// decodeInput decodes raw into T, rejecting unknown fields and trailing data.
// An empty input decodes as {}.
func decodeInput[T any](raw json.RawMessage) (T, error) {
	var in T
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return in, fmt.Errorf("%w: %v", ErrInvalidToolInput, err)
	}
	if dec.More() {
		return in, fmt.Errorf("%w: unexpected data after input object", ErrInvalidToolInput)
	}
	if v, ok := any(in).(validator); ok {
		if err := v.validate(); err != nil {
			return in, err
		}
	}
	return in, nil
}

// typed adapts a handler over a concrete input type into an ExecuteFunc.
func typed[T any](fn func(ctx context.Context, in T) (any, error)) ExecuteFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		in, err := decodeInput[T](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

// required fails with ErrInvalidToolInput naming the first blank field.
// Pairs are (name, value).
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidToolInput, pairs[i])
		}
	}
	return nil
}
