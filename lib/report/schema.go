// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
)

//go:embed schema.json
var schemaDocument []byte

const schemaResource = "inmemory://report.schema.json"

// Validator checks serialized reports against the embedded report
// schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResource, bytes.NewReader(schemaDocument)); err != nil {
		return nil, fmt.Errorf("adding report schema: %w", err)
	}
	compiled, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compiling report schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate checks one JSON document.
func (v *Validator) Validate(document []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(document))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return agenterr.Wrap(agenterr.SerializingToJSON, "decoding report for validation", err)
	}
	if err := v.schema.Validate(value); err != nil {
		return agenterr.Wrap(agenterr.SerializingToJSON, "report failed schema validation", err)
	}
	return nil
}
