// Copyright 2026 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package diag defines the diagnostics sink handed to the scanning code.
package diag

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// Logger receives diagnostics at four severities.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Glog returns a Logger which writes to glog. Debug messages are logged at
// verbosity 2 and info messages at verbosity 1.
func Glog() Logger {
	return glogLogger{}
}

type glogLogger struct{}

func (glogLogger) Debugf(format string, args ...interface{}) {
	glog.V(2).InfoDepth(1, fmt.Sprintf(format, args...))
}

func (glogLogger) Infof(format string, args ...interface{}) {
	glog.V(1).InfoDepth(1, fmt.Sprintf(format, args...))
}

func (glogLogger) Warningf(format string, args ...interface{}) {
	glog.WarningDepth(1, fmt.Sprintf(format, args...))
}

func (glogLogger) Errorf(format string, args ...interface{}) {
	glog.ErrorDepth(1, fmt.Sprintf(format, args...))
}

// Nop discards everything.
var Nop Logger = nop{}

type nop struct{}

func (nop) Debugf(string, ...interface{})   {}
func (nop) Infof(string, ...interface{})    {}
func (nop) Warningf(string, ...interface{}) {}
func (nop) Errorf(string, ...interface{})   {}

// Severity of a recorded line.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
)

// Line is a single recorded message.
type Line struct {
	Severity Severity
	Msg      string
}

// Recorder is a Logger which keeps everything it is given, for tests.
type Recorder struct {
	mu    sync.Mutex
	lines []Line
}

func (r *Recorder) add(s Severity, format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, Line{Severity: s, Msg: fmt.Sprintf(format, args...)})
}

func (r *Recorder) Debugf(format string, args ...interface{})   { r.add(Debug, format, args...) }
func (r *Recorder) Infof(format string, args ...interface{})    { r.add(Info, format, args...) }
func (r *Recorder) Warningf(format string, args ...interface{}) { r.add(Warning, format, args...) }
func (r *Recorder) Errorf(format string, args ...interface{})   { r.add(Error, format, args...) }

// Lines returns the messages recorded at severity s.
func (r *Recorder) Lines(s Severity) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, l := range r.lines {
		if l.Severity == s {
			out = append(out, l.Msg)
		}
	}
	return out
}
