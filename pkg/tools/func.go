package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// Func builds a tool whose arguments decode into T. The parameter schema is
// generated from T.
func Func[T any](name, description string, fn func(ctx context.Context, arg T) (any, error)) (*Tool, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("tools: schema for %s: %w", name, err)
	}
	return &Tool{
		Declaration: Declaration{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			data, err := json.Marshal(args)
			if err != nil {
				return nil, err
			}
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, fmt.Errorf("unmarshal %s arguments: %w", name, err)
			}
			return fn(ctx, v)
		},
	}, nil
}

// MustFunc is like Func but panics on error.
func MustFunc[T any](name, description string, fn func(ctx context.Context, arg T) (any, error)) *Tool {
	t, err := Func(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseArguments decodes a function call's JSON argument string into an
// object. An empty string is an empty object. Malformed JSON is repaired
// once before giving up.
func ParseArguments(s string) (map[string]any, error) {
	args := map[string]any{}
	if s == "" {
		return args, nil
	}
	if err := unmarshalJSON([]byte(s), &args); err != nil {
		return nil, fmt.Errorf("tools: parse arguments: %w", err)
	}
	if args == nil {
		// "null"
		args = map[string]any{}
	}
	return args, nil
}

// unmarshalJSON unmarshals data into v, repairing malformed JSON on a
// syntax error.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, err := jsonrepair.JSONRepair(string(data))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
