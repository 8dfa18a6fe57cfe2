// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package controller schedules the agent's two reports.
//
// A CONNECT report is sent at startup and then every connect period. It
// carries the basic facts and the classpath archives, and its first
// successful build fixes the process identity hash. An UPDATE report
// is sent on the update period whenever the discovery queue holds
// newly noticed archives; it requires the identity hash, so nothing is
// drained before the first CONNECT has been built.
//
// Both tasks run on one worker goroutine, so a slow delivery delays the
// next tick instead of overlapping it. Any task error is fatal: the
// controller shuts down, [Controller.Done] closes, and
// [Controller.Err] reports the cause.
package controller
