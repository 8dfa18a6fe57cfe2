// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"strings"
	"testing"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		kind   string
		code   agenterr.Code
	}{
		{201, "accepted", agenterr.None},
		{202, "accepted", agenterr.None},
		{200, "retryable", agenterr.HTTPSendServerError},
		{401, "rejected", agenterr.HTTPSendAuthError},
		{403, "rejected", agenterr.HTTPSendForbidden},
		{404, "rejected", agenterr.HTTPSendClientError},
		{413, "rejected", agenterr.HTTPSendPayload},
		{415, "rejected", agenterr.HTTPSendInvalidContentType},
		{500, "retryable", agenterr.HTTPSendServerError},
		{503, "retryable", agenterr.HTTPSendServerError},
	}
	for _, test := range tests {
		outcome := Classify(test.status, "")
		var kind string
		var err error
		switch typed := outcome.(type) {
		case Accepted:
			kind = "accepted"
			if typed.Status != test.status {
				t.Errorf("Classify(%d) Accepted.Status = %d", test.status, typed.Status)
			}
		case Retryable:
			kind, err = "retryable", typed.Err
		case Rejected:
			kind, err = "rejected", typed.Err
		}
		if kind != test.kind {
			t.Errorf("Classify(%d) = %s, want %s", test.status, kind, test.kind)
			continue
		}
		if got := agenterr.CodeOf(err); got != test.code {
			t.Errorf("Classify(%d) code = %v, want %v", test.status, got, test.code)
		}
	}
}

func TestClassifyIncludesBody(t *testing.T) {
	rejected, ok := Classify(413, `{"error":"too big"}`).(Rejected)
	if !ok {
		t.Fatal("413 is not Rejected")
	}
	if !strings.Contains(rejected.Err.Error(), "too big") {
		t.Errorf("error %q does not include the response body", rejected.Err)
	}
}
