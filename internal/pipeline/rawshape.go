package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wrightlabs/gamewright/internal/artifact"
	"github.com/wrightlabs/gamewright/internal/compiler"
)

// Raw-output gates. The collaborator returns free text on a bad day;
// these JSON Schemas reject anything that is not even the right shape of
// object before the CUE compiler sees it, so shape noise and semantic
// errors stay distinguishable in retry context.
var rawSchemaSources = map[artifact.Kind]string{
	artifact.KindStateSchema: `{
		"type": "object",
		"required": ["shared", "participant"],
		"properties": {
			"shared": {"type": "object"},
			"participant": {"type": "object"}
		}
	}`,
	artifact.KindTransitionGraph: `{
		"type": "object",
		"required": ["phases", "initial", "rules"],
		"properties": {
			"phases": {"type": "array", "items": {"type": "string"}, "minItems": 1},
			"initial": {"type": "string"},
			"rules": {"type": "array"}
		}
	}`,
	artifact.KindMutationTemplates: `{
		"type": "object",
		"required": ["templates"],
		"properties": {
			"templates": {"type": "array"}
		}
	}`,
}

type rawValidator struct {
	schemas map[artifact.Kind]*jsonschema.Schema
}

func newRawValidator() (*rawValidator, error) {
	v := &rawValidator{schemas: make(map[artifact.Kind]*jsonschema.Schema, len(rawSchemaSources))}
	for kind, src := range rawSchemaSources {
		schema, err := jsonschema.CompileString(string(kind)+".json", src)
		if err != nil {
			return nil, fmt.Errorf("raw schema for %s: %w", kind, err)
		}
		v.schemas[kind] = schema
	}
	return v, nil
}

// check validates raw collaborator output against the kind's JSON Schema
// gate. Findings come back in the compiler's error shape so the retry
// context has one format.
func (v *rawValidator) check(kind artifact.Kind, raw []byte) []compiler.ValidationError {
	schema, ok := v.schemas[kind]
	if !ok {
		return []compiler.ValidationError{{
			Code: compiler.ErrUnsupportedKind, Kind: compiler.KindSchemaViolation,
			Field: "kind", Message: fmt.Sprintf("unsupported artifact kind %q", kind),
		}}
	}

	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return []compiler.ValidationError{{
			Code: compiler.ErrShapeViolation, Kind: compiler.KindSchemaViolation,
			Field: "payload", Message: fmt.Sprintf("output is not JSON: %v", err),
		}}
	}

	if err := schema.Validate(decoded); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return []compiler.ValidationError{{
				Code: compiler.ErrShapeViolation, Kind: compiler.KindSchemaViolation,
				Field: "payload", Message: err.Error(),
			}}
		}
		return flattenJSONSchemaErrors(ve)
	}
	return nil
}

// flattenJSONSchemaErrors walks the cause tree and reports the leaves,
// which carry the specific violations.
func flattenJSONSchemaErrors(ve *jsonschema.ValidationError) []compiler.ValidationError {
	if len(ve.Causes) == 0 {
		field := "payload"
		if ve.InstanceLocation != "" {
			field = ve.InstanceLocation
		}
		return []compiler.ValidationError{{
			Code: compiler.ErrShapeViolation, Kind: compiler.KindSchemaViolation,
			Field: field, Message: ve.Message,
		}}
	}

	var out []compiler.ValidationError
	for _, cause := range ve.Causes {
		out = append(out, flattenJSONSchemaErrors(cause)...)
	}
	return out
}
