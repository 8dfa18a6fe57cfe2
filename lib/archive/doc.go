// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive parses and opens archive addresses, including
// entries nested inside other archives.
//
// An address uses the container-marker convention found in class
// loader URLs: "/srv/app.war!/WEB-INF/lib/pdfbox.jar!/" names the
// pdfbox jar inside the war. The recognized markers are ".jar!/",
// ".war!/" and ".ear!/". Addresses may carry a "jar:", "file:" or "jrt:"
// scheme; jrt: names the runtime's built-in module image and is never
// opened.
//
// [Resolver] opens the outermost file through an fs.FS and descends one
// container per entry in the address chain, buffering each
// intermediate container in memory up to a configured cap. It never
// opens deeper than the address asks for.
package archive
