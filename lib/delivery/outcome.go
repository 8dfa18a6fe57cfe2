// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"fmt"
	"net/http"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
)

// Outcome is the classification of one upload response. It is a
// closed set: Accepted, Retryable, Rejected.
type Outcome interface {
	outcome()
}

// Accepted means the service took the report.
type Accepted struct {
	Status int
}

// Retryable means the failure may clear up; backoff should try again.
type Retryable struct {
	Err error
}

// Rejected means the service refused this request and will refuse it
// again.
type Rejected struct {
	Err error
}

func (Accepted) outcome()  {}
func (Retryable) outcome() {}
func (Rejected) outcome()  {}

// Classify maps an upload response status to an Outcome. body is the
// (bounded) response body for the error message.
func Classify(status int, body string) Outcome {
	detail := func(message string) string {
		if body == "" {
			return message
		}
		return fmt.Sprintf("%s: %s", message, body)
	}

	switch {
	case status == http.StatusCreated || status == http.StatusAccepted:
		return Accepted{Status: status}
	case status == http.StatusUnauthorized:
		return Rejected{Err: agenterr.New(agenterr.HTTPSendAuthError, detail("authentication missing from request"))}
	case status == http.StatusForbidden:
		return Rejected{Err: agenterr.New(agenterr.HTTPSendForbidden, detail("upload forbidden"))}
	case status == http.StatusRequestEntityTooLarge:
		return Rejected{Err: agenterr.New(agenterr.HTTPSendPayload, detail("payload too large"))}
	case status == http.StatusUnsupportedMediaType:
		return Rejected{Err: agenterr.New(agenterr.HTTPSendInvalidContentType, detail("content type of payload is unsupported"))}
	case status >= 400 && status < 500:
		return Rejected{Err: agenterr.New(agenterr.HTTPSendClientError, detail(fmt.Sprintf("request rejected with code %d", status)))}
	default:
		return Retryable{Err: agenterr.New(agenterr.HTTPSendServerError, detail(fmt.Sprintf("request failed on the server with code %d", status)))}
	}
}
