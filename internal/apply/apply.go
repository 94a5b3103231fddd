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

// Package apply writes candidate images over outdated installed ones.
package apply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/am335x-update-firmware/api"
	"github.com/google/am335x-update-firmware/internal/diag"
	"github.com/google/am335x-update-firmware/internal/plan"
	"github.com/google/am335x-update-firmware/internal/rawio"
)

// ErrVerify is returned when the bytes read back after a write do not match
// the candidate.
var ErrVerify = errors.New("written image does not match candidate")

const chunk = 1 << 20

// Applier carries out a planned update.
type Applier interface {
	Apply(ctx context.Context, u plan.Update) error
}

// Raw copies the candidate straight onto the raw device, at the offset the
// installed image occupies, and reads it back to check it landed intact.
type Raw struct {
	// Log receives diagnostics.
	Log diag.Logger
}

var _ Applier = Raw{}

func (r Raw) log() diag.Logger {
	if r.Log == nil {
		return diag.Nop
	}
	return r.Log
}

// Apply implements Applier.
func (r Raw) Apply(ctx context.Context, u plan.Update) error {
	if u.New.Kind != u.Old.Kind {
		return fmt.Errorf("refusing to replace %v with a %v", u.Old, u.New.Kind)
	}
	srcPath, srcOff := u.New.Source()
	src, err := rawio.Open(srcPath, rawio.Read)
	if err != nil {
		return &api.CandidateError{Path: srcPath, Err: err}
	}
	defer src.Close()
	fi, err := src.Stat()
	if err != nil {
		return &api.CandidateError{Path: srcPath, Err: err}
	}
	if fi.Mode().IsRegular() && fi.Size()-srcOff != u.New.Size {
		return &api.CandidateError{Path: srcPath, Err: fmt.Errorf("holds %d bytes after 0x%x, expected %d", fi.Size()-srcOff, srcOff, u.New.Size)}
	}
	if _, err := src.Seek(srcOff, io.SeekStart); err != nil {
		return &api.CandidateError{Path: srcPath, Err: err}
	}

	r.log().Infof("Writing %s from %q over %v", humanize.IBytes(uint64(u.New.Size)), srcPath, u.Old)
	dst, err := rawio.Open(u.Old.Device, rawio.Write)
	if err != nil {
		return &api.DeviceError{Device: u.Old.Device, Err: err}
	}
	if err := copyRegion(ctx, dst, src, u.Old.Offset, u.New.Size); err != nil {
		dst.Close()
		return &api.DeviceError{Device: u.Old.Device, Err: err}
	}
	if err := rawio.SyncClose(dst); err != nil {
		return &api.DeviceError{Device: u.Old.Device, Err: err}
	}

	return r.verify(u)
}

// copyRegion copies size bytes from src to offset on dst.
func copyRegion(ctx context.Context, dst *os.File, src io.Reader, offset, size int64) error {
	if _, err := dst.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to 0x%x: %w", offset, err)
	}
	for remaining := size; remaining > 0; {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := int64(chunk)
		if remaining < n {
			n = remaining
		}
		b, err := rawio.ReadExact(src, int(n))
		if err != nil {
			return fmt.Errorf("failed to read candidate: %w", err)
		}
		if _, err := dst.Write(b); err != nil {
			return fmt.Errorf("failed to write at 0x%x: %w", offset+size-remaining, err)
		}
		remaining -= n
	}
	return nil
}

// verify hashes the freshly written region and compares it to the candidate.
func (r Raw) verify(u plan.Update) error {
	written, err := api.NewDeviceImage(u.Old.Device, u.Old.Offset, u.New.Kind, u.New.Size)
	if err != nil {
		return err
	}
	same, err := written.ContentEquals(u.New)
	if err != nil {
		return &api.DeviceError{Device: u.Old.Device, Err: err}
	}
	if !same {
		return fmt.Errorf("%w: %v", ErrVerify, written)
	}
	r.log().Infof("Verified %v", written)
	return nil
}
