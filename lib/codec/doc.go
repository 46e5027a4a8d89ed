// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used by iostream's binary
// surfaces: the "iostream.cbor" WebSocket subprotocol and the CBOR
// form of the /history export.
//
// JSON stays the default on every surface because browser dashboards
// consume it directly. CBOR is offered to programmatic subscribers that
// want smaller frames and cheaper decoding.
//
// Types keep their `json` struct tags. fxamacker/cbor falls back to
// `json` tags when `cbor` tags are absent, so one tag set defines the
// field names for both encodings and the two can never drift apart.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer and float encodings, no indefinite-length
// items. Identical samples always produce identical bytes.
package codec
