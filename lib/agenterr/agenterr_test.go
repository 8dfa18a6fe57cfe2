// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agenterr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"bare", New(OptOut, "opting out"), "I4ASR0001: opting out"},
		{"wrapped", Wrap(WritingFile, "could not write", io.ErrShortWrite), "I4ASR0002: could not write: short write"},
		{"no code", New(None, "plain"), "plain"},
		{"two digit", New(UploadDirCreation, "mkdir"), "I4ASR0024: mkdir"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.err.Error(); got != test.want {
				t.Errorf("Error() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestIsWalksNestedCodes(t *testing.T) {
	inner := New(InterruptedThread, "interrupted")
	outer := Wrap(ClientFailed, "all clients failed", fmt.Errorf("attempt: %w", inner))

	if !Is(outer, ClientFailed) {
		t.Error("Is(outer, ClientFailed) = false")
	}
	if !Is(outer, InterruptedThread) {
		t.Error("Is(outer, InterruptedThread) = false, want nested code found")
	}
	if Is(outer, OptOut) {
		t.Error("Is(outer, OptOut) = true")
	}
	if CodeOf(outer) != ClientFailed {
		t.Errorf("CodeOf = %v, want %v", CodeOf(outer), ClientFailed)
	}
	if CodeOf(errors.New("plain")) != None {
		t.Error("CodeOf(plain) should be None")
	}
	if !errors.Is(outer, inner) {
		t.Error("errors.Is should reach the nested error")
	}
}
