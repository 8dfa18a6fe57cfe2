// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"encoding/json"
	"maps"

	"github.com/runtime-insights/insights-agent/lib/hashstream"
)

// UnknownVersion is reported when no version could be determined. The
// collection service expects a single space, not an empty string.
const UnknownVersion = " "

// PathAttribute carries the parent-qualified logical path of a nested
// archive, e.g. "app.war/WEB-INF/lib/pdfbox-2.0.27.jar".
const PathAttribute = "path"

// Identity is the inventory record for one archive. It is immutable:
// accessors return copies and WithAttribute returns a new value.
type Identity struct {
	name       string
	version    string
	attributes map[string]string
	// unopened marks an archive whose bytes could not be read at all.
	unopened bool
}

// NewIdentity returns an Identity owning a copy of attributes.
func NewIdentity(name, version string, attributes map[string]string) Identity {
	return Identity{name: name, version: version, attributes: maps.Clone(attributes)}
}

// Unopened returns the identity of an archive named name that could not
// be opened: the name is kept, the version is [UnknownVersion] and
// there are no checksums.
func Unopened(name string) Identity {
	return Identity{name: name, version: UnknownVersion, unopened: true}
}

func (i Identity) Name() string    { return i.name }
func (i Identity) Version() string { return i.version }

// Attributes returns a copy of the attribute map.
func (i Identity) Attributes() map[string]string {
	if i.attributes == nil {
		return map[string]string{}
	}
	return maps.Clone(i.attributes)
}

// Attribute returns one attribute.
func (i Identity) Attribute(key string) (string, bool) {
	value, ok := i.attributes[key]
	return value, ok
}

// WithAttribute returns a copy of i with key set to value.
func (i Identity) WithAttribute(key, value string) Identity {
	attributes := maps.Clone(i.attributes)
	if attributes == nil {
		attributes = make(map[string]string, 1)
	}
	attributes[key] = value
	return Identity{name: i.name, version: i.version, attributes: attributes, unopened: i.unopened}
}

// IsUnopened reports whether i came from an archive that could not be
// opened. Such an identity is still reportable but may be worth
// fingerprinting again later.
func (i Identity) IsUnopened() bool {
	return i.unopened
}

// ContentHash returns the strongest checksum present, used for
// content deduplication. Empty when the archive was never hashed.
func (i Identity) ContentHash() string {
	for _, algorithm := range []hashstream.Algorithm{hashstream.SHA512, hashstream.SHA256, hashstream.BLAKE3, hashstream.SHA1} {
		if digest, ok := i.attributes[algorithm.AttributeKey()]; ok && digest != "" {
			return string(algorithm) + ":" + digest
		}
	}
	return ""
}

type identityJSON struct {
	Name       string            `json:"name"`
	Version    string            `json:"version"`
	Attributes map[string]string `json:"attributes"`
}

// MarshalJSON renders the report wire form.
func (i Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(identityJSON{Name: i.name, Version: i.version, Attributes: i.Attributes()})
}

// UnmarshalJSON accepts the report wire form.
func (i *Identity) UnmarshalJSON(data []byte) error {
	var decoded identityJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*i = NewIdentity(decoded.Name, decoded.Version, decoded.Attributes)
	return nil
}
