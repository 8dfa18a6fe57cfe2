// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the agent's standard CBOR encoding
// configuration.
//
// Reports are JSON on the wire to the collection service. CBOR is used
// where the agent controls both ends: the compact file-fallback format
// and the envelope pushed onto a Redis list. The encoder uses Core
// Deterministic Encoding (RFC 8949 §4.2): sorted map keys, smallest
// integer encoding, no indefinite-length items, so the same report
// always produces identical bytes.
//
//	data, err := codec.Marshal(envelope)
//	err = codec.Unmarshal(data, &envelope)
//
// [FromJSON] converts an already-serialized JSON report into CBOR
// without knowing its Go type.
//
// Types serialized by this package carry `json` tags; fxamacker/cbor
// reads them when `cbor` tags are absent, so one tag set controls both
// formats.
package codec
