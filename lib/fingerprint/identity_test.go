// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"encoding/json"
	"testing"
)

func TestIdentityIsImmutable(t *testing.T) {
	source := map[string]string{"sha256Checksum": "aa"}
	identity := NewIdentity("a.jar", "1.0", source)

	source["sha256Checksum"] = "mutated"
	if got, _ := identity.Attribute("sha256Checksum"); got != "aa" {
		t.Error("NewIdentity aliased the caller's map")
	}

	copied := identity.Attributes()
	copied["extra"] = "x"
	if _, ok := identity.Attribute("extra"); ok {
		t.Error("Attributes returned the internal map")
	}

	tagged := identity.WithAttribute(PathAttribute, "app.war/WEB-INF/lib/a.jar")
	if _, ok := identity.Attribute(PathAttribute); ok {
		t.Error("WithAttribute modified the receiver")
	}
	if got, _ := tagged.Attribute(PathAttribute); got != "app.war/WEB-INF/lib/a.jar" {
		t.Errorf("path = %q", got)
	}
}

func TestContentHashPrefersStrongest(t *testing.T) {
	identity := NewIdentity("a.jar", "1", map[string]string{
		"sha1Checksum":   "11",
		"sha256Checksum": "22",
		"sha512Checksum": "55",
	})
	if got := identity.ContentHash(); got != "sha512:55" {
		t.Errorf("ContentHash = %q", got)
	}
	if got := NewIdentity("a.jar", "1", map[string]string{"sha256Checksum": "22"}).ContentHash(); got != "sha256:22" {
		t.Errorf("ContentHash fallback = %q", got)
	}
	if Unopened("a.jar").ContentHash() != "" {
		t.Error("unopened identity has a content hash")
	}
}

func TestIdentityJSON(t *testing.T) {
	identity := NewIdentity("a.jar", UnknownVersion, nil)
	encoded, err := json.Marshal(identity)
	if err != nil {
		t.Fatal(err)
	}
	if string(encoded) != `{"name":"a.jar","version":" ","attributes":{}}` {
		t.Errorf("json = %s", encoded)
	}
}
