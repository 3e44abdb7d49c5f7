package tool

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dealroom/orchestrator/internal/apperr"
)

// schemaDoc is the subset of a JSON-schema object BuildSchema produces
// that validateAndCoerce needs to read back.
type schemaDoc struct {
	Properties map[string]schemaProp `json:"properties"`
	Required   []string              `json:"required"`
}

type schemaProp struct {
	Type string `json:"type"`
}

// validateAndCoerce checks args against schema's required fields and
// rejects unknown fields (SchemaViolation), then coerces any
// string-typed values the LLM emitted for non-string declared types
// (integer, number, boolean) to their declared JSON type in place.
//
// LLMs frequently emit `"leverage": "10"` instead of `"leverage": 10`;
// this keeps such responses usable without the caller having to special
// case every numeric/boolean field.
func validateAndCoerce(schema json.RawMessage, args json.RawMessage) (json.RawMessage, error) {
	if len(schema) == 0 {
		return args, nil
	}

	var doc schemaDoc
	if err := json.Unmarshal(schema, &doc); err != nil {
		// A tool whose schema doesn't parse can't be validated; pass args through.
		return args, nil
	}

	values := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &values); err != nil {
			return nil, fmt.Errorf("%w: arguments are not a JSON object: %v", apperr.ErrSchemaViolation, err)
		}
	}

	for _, name := range doc.Required {
		if _, ok := values[name]; !ok {
			return nil, fmt.Errorf("%w: missing required field %q", apperr.ErrSchemaViolation, name)
		}
	}

	for name, v := range values {
		prop, known := doc.Properties[name]
		if !known {
			return nil, fmt.Errorf("%w: unknown field %q", apperr.ErrSchemaViolation, name)
		}
		coerced, err := coerceValue(prop.Type, v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", apperr.ErrSchemaViolation, name, err)
		}
		values[name] = coerced
	}

	out, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("%w: re-marshal arguments: %v", apperr.ErrSchemaViolation, err)
	}
	return out, nil
}

// coerceValue converts v to the declared schema type when v arrived as a
// string (the common LLM-emitted shape) but leaves already-typed values
// and unrecognized declared types untouched.
func coerceValue(declaredType string, v any) (any, error) {
	s, isString := v.(string)
	if !isString {
		return v, nil
	}

	switch declaredType {
	case "integer":
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to integer", s)
		}
		return n, nil
	case "number":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to number", s)
		}
		return f, nil
	case "boolean":
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to boolean", s)
		}
		return b, nil
	default:
		return v, nil
	}
}
