// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nested

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/runtime-insights/insights-agent/lib/archive"
	"github.com/runtime-insights/insights-agent/lib/fingerprint"
	"github.com/runtime-insights/insights-agent/lib/testutil"
)

func newTestWalker(config Config) *Walker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := archive.NewResolver(archive.OSFS{}, 0)
	fingerprinter := fingerprint.New(resolver, fingerprint.Config{}, logger)
	return New(resolver, fingerprinter, config, logger)
}

func libraryJar(t *testing.T, version, group, artifact string) []byte {
	t.Helper()
	return testutil.Zip(t,
		testutil.ZipEntry{Name: "META-INF/MANIFEST.MF", Body: testutil.Manifest("Implementation-Version", version)},
		testutil.ZipEntry{
			Name: "META-INF/maven/" + group + "/" + artifact + "/pom.properties",
			Body: []byte("groupId=" + group + "\nartifactId=" + artifact + "\nversion=" + version + "\n"),
		},
		testutil.ZipEntry{Name: artifact + "/Main.class", Body: []byte(artifact + " bytecode")},
	)
}

func sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func byName(identities []fingerprint.Identity) map[string]fingerprint.Identity {
	result := make(map[string]fingerprint.Identity, len(identities))
	for _, identity := range identities {
		result[identity.Name()] = identity
	}
	return result
}

func requireEmptyDir(t *testing.T, directory string) {
	t.Helper()
	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("reading %s: %v", directory, err)
	}
	if len(entries) != 0 {
		t.Errorf("%s not cleaned up: %d entries left", directory, len(entries))
	}
}

func TestExpandWarWithThreeLibraries(t *testing.T) {
	base := t.TempDir()
	scratch := filepath.Join(base, "scratch")
	if err := os.Mkdir(scratch, 0o700); err != nil {
		t.Fatal(err)
	}

	fontbox := libraryJar(t, "2.0.27", "org.apache.pdfbox", "fontbox")
	pdfbox := libraryJar(t, "2.0.27", "org.apache.pdfbox", "pdfbox")
	logging := libraryJar(t, "1.2", "commons-logging", "commons-logging")
	war := testutil.WriteZip(t, filepath.Join(base, "numberguess.war"),
		testutil.ZipEntry{Name: "WEB-INF/"},
		testutil.ZipEntry{Name: "WEB-INF/web.xml", Body: []byte("<web-app/>")},
		testutil.ZipEntry{Name: "WEB-INF/classes/Game.class", Body: []byte("game")},
		testutil.ZipEntry{Name: "WEB-INF/lib/fontbox-2.0.27.jar", Body: fontbox},
		testutil.ZipEntry{Name: "WEB-INF/lib/pdfbox-2.0.27.jar", Body: pdfbox},
		testutil.ZipEntry{Name: "WEB-INF/lib/commons-logging-1.2.jar", Body: logging},
	)

	identities, err := newTestWalker(Config{}).Expand(archive.FromPath(war), "numberguess.war", scratch)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(identities) != 3 {
		t.Fatalf("Expand returned %d identities, want 3", len(identities))
	}

	expected := map[string]struct {
		path   string
		digest string
	}{
		"fontbox-2.0.27.jar":      {"numberguess.war/WEB-INF/lib/fontbox-2.0.27.jar", sha256Hex(fontbox)},
		"pdfbox-2.0.27.jar":       {"numberguess.war/WEB-INF/lib/pdfbox-2.0.27.jar", sha256Hex(pdfbox)},
		"commons-logging-1.2.jar": {"numberguess.war/WEB-INF/lib/commons-logging-1.2.jar", sha256Hex(logging)},
	}
	found := byName(identities)
	for name, want := range expected {
		identity, ok := found[name]
		if !ok {
			t.Errorf("%s not found", name)
			continue
		}
		if got, _ := identity.Attribute(fingerprint.PathAttribute); got != want.path {
			t.Errorf("%s path = %q, want %q", name, got, want.path)
		}
		if got, _ := identity.Attribute("sha256Checksum"); got != want.digest {
			t.Errorf("%s sha256 = %s, want %s", name, got, want.digest)
		}
	}
	if version := found["commons-logging-1.2.jar"].Version(); version != "1.2" {
		t.Errorf("commons-logging version = %q", version)
	}
	requireEmptyDir(t, scratch)
}

func TestExpandSkipsArchiveWithoutNesting(t *testing.T) {
	base := t.TempDir()
	scratch := filepath.Join(base, "scratch")
	if err := os.Mkdir(scratch, 0o700); err != nil {
		t.Fatal(err)
	}
	jar := testutil.WriteZip(t, filepath.Join(base, "plain.jar"),
		testutil.ZipEntry{Name: "a/B.class", Body: []byte("bytecode")},
	)

	identities, err := newTestWalker(Config{}).Expand(archive.FromPath(jar), "plain.jar", scratch)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(identities) != 0 {
		t.Errorf("identities = %d, want 0", len(identities))
	}
	requireEmptyDir(t, scratch)
}

func TestExpandRecursesThroughLevels(t *testing.T) {
	base := t.TempDir()
	inner := libraryJar(t, "3.0", "org.example", "inner")
	web := testutil.Zip(t, testutil.ZipEntry{Name: "WEB-INF/lib/inner-3.0.jar", Body: inner})
	ear := testutil.WriteZip(t, filepath.Join(base, "app.ear"),
		testutil.ZipEntry{Name: "META-INF/application.xml", Body: []byte("<application/>")},
		testutil.ZipEntry{Name: "web.war", Body: web},
	)

	identities, err := newTestWalker(Config{}).Expand(archive.FromPath(ear), "app.ear", base)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	found := byName(identities)
	if len(found) != 2 {
		t.Fatalf("identities = %v, want web.war and inner-3.0.jar", identities)
	}
	if got, _ := found["inner-3.0.jar"].Attribute(fingerprint.PathAttribute); got != "app.ear/web.war/WEB-INF/lib/inner-3.0.jar" {
		t.Errorf("inner path = %q", got)
	}
	if got, _ := found["web.war"].Attribute(fingerprint.PathAttribute); got != "app.ear/web.war" {
		t.Errorf("war path = %q", got)
	}
}

func TestExpandRejectsPathEscape(t *testing.T) {
	base := t.TempDir()
	scratch := filepath.Join(base, "work", "scratch")
	if err := os.MkdirAll(scratch, 0o700); err != nil {
		t.Fatal(err)
	}
	library := libraryJar(t, "1.0", "org.example", "ok")
	war := testutil.WriteZip(t, filepath.Join(base, "evil.war"),
		testutil.ZipEntry{Name: "../evil.jar", Body: library},
		testutil.ZipEntry{Name: "../../../evil.jar", Body: library},
		testutil.ZipEntry{Name: "WEB-INF/lib/../../../evil.txt", Body: []byte("owned")},
		testutil.ZipEntry{Name: "WEB-INF/lib/ok-1.0.jar", Body: library},
	)

	identities, err := newTestWalker(Config{}).Expand(archive.FromPath(war), "evil.war", scratch)
	if !errors.Is(err, ErrPathEscape) {
		t.Fatalf("Expand error = %v, want ErrPathEscape", err)
	}
	if len(identities) != 1 || identities[0].Name() != "ok-1.0.jar" {
		t.Errorf("sibling entry not processed: %v", identities)
	}
	for _, leaked := range []string{
		filepath.Join(scratch, "evil.jar"),
		filepath.Join(scratch, "evil.txt"),
		filepath.Join(base, "evil.jar"),
		filepath.Join(base, "work", "evil.jar"),
	} {
		if _, statErr := os.Stat(leaked); !os.IsNotExist(statErr) {
			t.Errorf("%s was written outside the extraction root", leaked)
		}
	}
	requireEmptyDir(t, scratch)
}

func TestExpandEntryLimit(t *testing.T) {
	base := t.TempDir()
	library := libraryJar(t, "1.0", "org.example", "lib")
	war := testutil.WriteZip(t, filepath.Join(base, "big.war"),
		testutil.ZipEntry{Name: "a.jar", Body: library},
		testutil.ZipEntry{Name: "b.jar", Body: library},
		testutil.ZipEntry{Name: "c.jar", Body: library},
	)

	identities, err := newTestWalker(Config{MaxEntries: 2}).Expand(archive.FromPath(war), "big.war", base)
	if !errors.Is(err, ErrExtractionLimit) {
		t.Fatalf("Expand error = %v, want ErrExtractionLimit", err)
	}
	if len(identities) != 2 {
		t.Errorf("identities = %d, want the 2 extracted before the limit", len(identities))
	}
}

func TestExpandSizeLimit(t *testing.T) {
	base := t.TempDir()
	library := libraryJar(t, "1.0", "org.example", "lib")
	war := testutil.WriteZip(t, filepath.Join(base, "big.war"),
		testutil.ZipEntry{Name: "a.jar", Body: library},
	)

	_, err := newTestWalker(Config{MaxTotalSize: 8}).Expand(archive.FromPath(war), "big.war", base)
	if !errors.Is(err, ErrExtractionLimit) {
		t.Fatalf("Expand error = %v, want ErrExtractionLimit", err)
	}
}

func TestSecureJoin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "scratch", "unarchive1")
	tests := []struct {
		name   string
		want   string
		escape bool
	}{
		{name: "WEB-INF/lib/a.jar", want: filepath.Join(root, "WEB-INF", "lib", "a.jar")},
		{name: "/WEB-INF/web.xml", want: filepath.Join(root, "WEB-INF", "web.xml")},
		{name: "a/../b.jar", want: filepath.Join(root, "b.jar")},
		{name: "../b.jar", escape: true},
		{name: "a/../../b.jar", escape: true},
		{name: "..", escape: true},
	}
	for _, test := range tests {
		got, err := SecureJoin(root, test.name)
		if test.escape {
			if !errors.Is(err, ErrPathEscape) {
				t.Errorf("SecureJoin(%q) = %q, %v; want ErrPathEscape", test.name, got, err)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("SecureJoin(%q) = %q, %v; want %q", test.name, got, err, test.want)
		}
	}
}
