package httpapi

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Request shapes are validated against JSON Schemas before any
// transaction opens; a malformed body is a validation error with no
// state change.

const pushSchemaJSON = `{
	"type": "object",
	"required": ["clientGroupID", "mutations"],
	"properties": {
		"clientGroupID": {"type": "string", "minLength": 1, "maxLength": 36},
		"mutations": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "clientID", "name"],
				"properties": {
					"id": {"type": "integer", "minimum": 1},
					"clientID": {"type": "string", "minLength": 1, "maxLength": 36},
					"name": {"type": "string", "minLength": 1},
					"args": {}
				}
			}
		}
	}
}`

const pullSchemaJSON = `{
	"type": "object",
	"required": ["clientGroupID"],
	"properties": {
		"clientGroupID": {"type": "string", "minLength": 1, "maxLength": 36},
		"cookie": {}
	}
}`

type requestSchemas struct {
	push *jsonschema.Schema
	pull *jsonschema.Schema
}

func compileSchemas() (*requestSchemas, error) {
	compiler := jsonschema.NewCompiler()
	for name, raw := range map[string]string{
		"push.json": pushSchemaJSON,
		"pull.json": pullSchemaJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", name)
		}
		if err := compiler.AddResource(name, doc); err != nil {
			return nil, errors.Wrapf(err, "adding %s", name)
		}
	}
	push, err := compiler.Compile("push.json")
	if err != nil {
		return nil, errors.Wrap(err, "compiling push schema")
	}
	pull, err := compiler.Compile("pull.json")
	if err != nil {
		return nil, errors.Wrap(err, "compiling pull schema")
	}
	return &requestSchemas{push: push, pull: pull}, nil
}

func validateBody(schema *jsonschema.Schema, body []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "invalid json body")
	}
	return schema.Validate(inst)
}
