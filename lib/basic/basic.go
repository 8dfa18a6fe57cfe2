// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package basic harvests the process and host facts carried in the
// "basic" section of a CONNECT report.
//
// Collection never fails: a fact that cannot be read is left out or
// falls back to a placeholder, and a host with nothing but a hostname
// still produces a valid report.
package basic

import (
	"os"
	"os/user"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/runtime-insights/insights-agent/lib/clock"
	"github.com/runtime-insights/insights-agent/lib/version"
)

// Fact keys.
const (
	AppName        = "app.name"
	Hostname       = "system.hostname"
	LogicalCores   = "system.cores.logical"
	Arch           = "system.arch"
	OSName         = "system.os.name"
	OSVersion      = "system.os.version"
	UserDir        = "app.user.dir"
	UserName       = "app.user.name"
	AgentVersion   = "agent.version"
	AgentInstance  = "agent.instance"
	ReportTime     = "report_time"
	PID            = "pid"
	ProcessArgs    = "process.args"
	RuntimeVersion = "runtime.go.version"
)

// Source collects facts for one process. The instance id is fixed at
// construction so every CONNECT from this process carries the same one.
type Source struct {
	appName    string
	instanceID string
	clock      clock.Clock
	filtering  Filtering
	args       []string
}

// NewSource returns a Source for an application named appName.
// filtering is applied to every collected map as the last step.
func NewSource(appName string, clk clock.Clock, filtering Filtering) *Source {
	if filtering == nil {
		filtering = Default
	}
	return &Source{
		appName:    appName,
		instanceID: uuid.NewString(),
		clock:      clk,
		filtering:  filtering,
		args:       os.Args,
	}
}

// InstanceID returns the per-process agent instance id.
func (s *Source) InstanceID() string { return s.instanceID }

// Facts collects the current facts.
func (s *Source) Facts() map[string]any {
	facts := map[string]any{
		AppName:        s.appName,
		LogicalCores:   runtime.NumCPU(),
		Arch:           runtime.GOARCH,
		AgentVersion:   version.Short(),
		AgentInstance:  s.instanceID,
		ReportTime:     s.clock.Now().UnixMilli(),
		PID:            os.Getpid(),
		ProcessArgs:    strings.Join(s.args, " "),
		RuntimeVersion: runtime.Version(),
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	facts[Hostname] = hostname

	name, release := uname()
	if name == "" {
		name = runtime.GOOS
	}
	facts[OSName] = name
	if release != "" {
		facts[OSVersion] = release
	}

	if dir, err := os.Getwd(); err == nil {
		facts[UserDir] = dir
	}
	if current, err := user.Current(); err == nil {
		facts[UserName] = current.Username
	}

	return s.filtering(facts)
}
