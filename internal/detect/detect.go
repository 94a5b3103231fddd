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

// Package detect probes a stream for AM335x boot images and works out how
// large they are without the help of a filesystem.
//
// Every probe is speculative: most offsets on a device hold no image, so a
// probe which finds nothing returns an error wrapping ErrNotFound rather than
// a failure.
package detect

import (
	"errors"
	"fmt"

	"github.com/google/am335x-update-firmware/internal/diag"
	"github.com/google/am335x-update-firmware/internal/dtc"
)

// ErrNotFound is returned when no image of the probed kind starts at the
// current stream position.
var ErrNotFound = errors.New("no image found")

// Prober runs the format probes. The zero value uses the external dtc tool
// for FIT images and discards diagnostics.
type Prober struct {
	// Decompiler converts FIT device trees into a tree.
	Decompiler dtc.Decompiler
	// Log receives diagnostics.
	Log diag.Logger
}

func (p *Prober) log() diag.Logger {
	if p == nil || p.Log == nil {
		return diag.Nop
	}
	return p.Log
}

func (p *Prober) decompiler() dtc.Decompiler {
	if p == nil || p.Decompiler == nil {
		return dtc.Tool{}
	}
	return p.Decompiler
}

func notFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
