// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agenterr defines the agent's stable, user-visible error
// codes. Every fatal condition surfaced by the agent (opt-out, missing
// identity, exhausted delivery, interrupted backoff) carries one of
// these codes so operators can grep logs for a fixed token regardless
// of the wrapped cause.
//
// Codes render as "I4ASR" followed by a zero-padded four digit number:
//
//	I4ASR0001: opting out of the runtime insights client
//
// The numbering matches the codes emitted by earlier agents and must
// not be reassigned.
package agenterr
