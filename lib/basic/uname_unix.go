// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package basic

import "golang.org/x/sys/unix"

// uname returns the kernel name and release from uname(2).
func uname() (name, release string) {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err != nil {
		return "", ""
	}
	return unix.ByteSliceToString(utsname.Sysname[:]), unix.ByteSliceToString(utsname.Release[:])
}
