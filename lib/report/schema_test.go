// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"strings"
	"testing"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
)

func TestValidatorAcceptsReports(t *testing.T) {
	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	options := Options{Validator: validator}

	connect := NewConnect(options, map[string]any{"app.name": "billing", "system.cores.logical": 8}, testJars())
	hash, err := NewIdentityHash().Ensure(connect)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := connect.Serialize(); err != nil {
		t.Errorf("connect failed validation: %v", err)
	}
	if _, err := NewUpdate(options, hash, testJars()).Serialize(); err != nil {
		t.Errorf("update failed validation: %v", err)
	}
}

func TestValidatorRejectsMalformed(t *testing.T) {
	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	tests := map[string]string{
		"no version":        `{"jars":{"version":"1.0.0","jars":[]}}`,
		"no subreport":      `{"version":"1.0.0"}`,
		"both subreports":   `{"version":"1.0.0","idHash":"` + strings.Repeat("a", 128) + `","jars":{"version":"1.0.0","jars":[]},"updated-jars":{"version":"1.0.0","jars":[]}}`,
		"update without id": `{"version":"1.0.0","updated-jars":{"version":"1.0.0","jars":[]}}`,
		"bad identity":      `{"version":"1.0.0","jars":{"version":"1.0.0","jars":[{"name":"x.jar"}]}}`,
		"not json":          `{"version":`,
	}
	for name, document := range tests {
		t.Run(name, func(t *testing.T) {
			err := validator.Validate([]byte(document))
			if !agenterr.Is(err, agenterr.SerializingToJSON) {
				t.Errorf("Validate = %v, want SerializingToJSON", err)
			}
		})
	}
}

func TestUpdateWithBadHashFailsValidation(t *testing.T) {
	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	if _, err := NewUpdate(Options{Validator: validator}, "not-a-hash", nil).Serialize(); err == nil {
		t.Error("update with a malformed idHash passed validation")
	}
}
