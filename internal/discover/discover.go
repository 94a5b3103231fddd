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

// Package discover finds the boot images installed on a device.
package discover

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/am335x-update-firmware/api"
	"github.com/google/am335x-update-firmware/internal/detect"
	"github.com/google/am335x-update-firmware/internal/diag"
	"github.com/google/am335x-update-firmware/internal/rawio"
)

// Offsets are the byte offsets at which the AM335x boot ROM looks for
// a boot image on raw storage.
var Offsets = []int64{0x00000, 0x20000, 0x40000, 0x60000}

// Discoverer scans devices for installed images.
type Discoverer struct {
	// Prober runs the format probes. A nil Prober uses the defaults.
	Prober *detect.Prober
	// Log receives diagnostics.
	Log diag.Logger
}

func (d *Discoverer) log() diag.Logger {
	if d == nil || d.Log == nil {
		return diag.Nop
	}
	return d.Log
}

// Images probes every offset in Offsets on device, in order, and returns the
// images found. Offsets holding nothing recognisable are skipped.
//
// The returned error is an *api.DeviceError if the device cannot be read, or
// an *api.ToolError if a FIT probe could not run its decompiler.
func (d *Discoverer) Images(ctx context.Context, device string) ([]*api.FirmwareImage, error) {
	f, err := rawio.Open(device, rawio.Read)
	if err != nil {
		return nil, &api.DeviceError{Device: device, Err: err}
	}
	defer f.Close()

	var imgs []*api.FirmwareImage
	for _, off := range Offsets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := d.probe(ctx, f, device, off)
		switch {
		case errors.Is(err, detect.ErrNotFound):
			d.log().Debugf("Nothing found on %q at 0x%x: %v", device, off, err)
			continue
		case err != nil:
			return nil, err
		}
		d.log().Infof("Found %v", img)
		imgs = append(imgs, img)
	}
	return imgs, nil
}

// probe identifies the image at off, trying MLO first and U-Boot second.
func (d *Discoverer) probe(ctx context.Context, rs io.ReadSeeker, device string, off int64) (*api.FirmwareImage, error) {
	if _, err := rs.Seek(off, io.SeekStart); err != nil {
		return nil, &api.DeviceError{Device: device, Err: fmt.Errorf("seeking to 0x%x: %w", off, err)}
	}
	kind := api.MLO
	size, err := d.Prober.MLOSize(rs)
	if errors.Is(err, detect.ErrNotFound) {
		if _, err := rs.Seek(off, io.SeekStart); err != nil {
			return nil, &api.DeviceError{Device: device, Err: fmt.Errorf("seeking to 0x%x: %w", off, err)}
		}
		kind = api.UBOOT
		size, err = d.Prober.UBootSize(ctx, rs)
	}
	if err != nil {
		return nil, err
	}
	img, err := api.NewDeviceImage(device, off, kind, size)
	if err != nil {
		// A zero-sized image is no image at all.
		return nil, fmt.Errorf("%w: %v", detect.ErrNotFound, err)
	}
	return img, nil
}
