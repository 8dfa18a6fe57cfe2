// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agenterr

import (
	"errors"
	"fmt"
)

// Code is a stable agent error code. Values are protocol constants.
type Code int

const (
	None                       Code = 0
	OptOut                     Code = 1
	WritingFile                Code = 2
	GzipFile                   Code = 3
	ScheduledSend              Code = 4
	GeneratingHash             Code = 5
	GeneratingArchiveHash      Code = 6
	SerializingToJSON          Code = 7
	HTTPSendServerError        Code = 8
	HTTPSendInvalidContentType Code = 9
	HTTPSendPayload            Code = 10
	HTTPSendAuthError          Code = 11
	HTTPSend                   Code = 12
	TLSReadingCerts            Code = 13
	TLSParsingCerts            Code = 14
	TLSCreatingContext         Code = 15
	TLSReadingCertsInvalidMode Code = 16
	TLSCertsProblem            Code = 17
	IdentificationNotDefined   Code = 18
	ClientFailed               Code = 19
	ClientBackoffRetriesFailed Code = 20
	InterruptedThread          Code = 21
	HTTPSendForbidden          Code = 22
	HTTPSendClientError        Code = 23
	UploadDirCreation          Code = 24
)

const prefix = "I4ASR"

// String returns the rendered code token, e.g. "I4ASR0020". None
// renders as the empty string.
func (c Code) String() string {
	if c <= None {
		return ""
	}
	return fmt.Sprintf("%s%04d", prefix, int(c))
}

// Error is an error carrying a stable Code. The wrapped Err, if any,
// is reachable through errors.Unwrap.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// New returns an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap returns an *Error wrapping err. A nil err yields an *Error with
// no cause rather than nil, so callers can wrap unconditionally at
// policy boundaries.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	text := e.Message
	if e.Err != nil {
		text = text + ": " + e.Err.Error()
	}
	if token := e.Code.String(); token != "" {
		return token + ": " + text
	}
	return text
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the Code of the outermost *Error in err's chain, or
// None when err carries no code.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return None
}

// Is reports whether any *Error in err's chain carries code.
func Is(err error, code Code) bool {
	for err != nil {
		var coded *Error
		if !errors.As(err, &coded) {
			return false
		}
		if coded.Code == code {
			return true
		}
		err = coded.Err
	}
	return false
}
