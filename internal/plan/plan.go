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

// Package plan decides which installed boot images need replacing.
package plan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/google/am335x-update-firmware/api"
	"github.com/google/am335x-update-firmware/internal/diag"
	"github.com/google/am335x-update-firmware/internal/discover"
	"github.com/google/am335x-update-firmware/internal/mbr"
	"github.com/google/am335x-update-firmware/internal/rawio"
)

// Update pairs an installed image with the candidate which should replace it.
type Update struct {
	// New is the candidate image.
	New *api.FirmwareImage
	// Old is the image installed on the device.
	Old *api.FirmwareImage
}

func (u Update) String() string {
	path, _ := u.New.Source()
	return fmt.Sprintf("%v would be overwritten by %q", u.Old, path)
}

// Planner compares the images installed on devices against candidates.
type Planner struct {
	// Discoverer finds installed images. A nil Discoverer uses the defaults.
	Discoverer *discover.Discoverer
	// Log receives diagnostics.
	Log diag.Logger
}

func (p *Planner) log() diag.Logger {
	if p == nil || p.Log == nil {
		return diag.Nop
	}
	return p.Log
}

func (p *Planner) discoverer() *discover.Discoverer {
	if p == nil || p.Discoverer == nil {
		return &discover.Discoverer{Log: p.log()}
	}
	return p.Discoverer
}

// Plan returns the images on devices whose content differs from the
// candidate of the same kind, sorted by kind, device and offset.
//
// Devices which do not exist or carry no usable partition table are skipped.
// Images which cannot safely be replaced, because they sit where the MBR
// lives or because the candidate would run into the first partition, are
// logged and left out.
//
// Failures to read a candidate, a device or to run a decompiler abort the
// whole plan and are returned as *api.CandidateError, *api.DeviceError or
// *api.ToolError respectively.
func (p *Planner) Plan(ctx context.Context, newMLO, newUBoot *api.FirmwareImage, devices []string) ([]Update, error) {
	candidates := map[api.FirmwareImageKind]*api.FirmwareImage{
		api.MLO:   newMLO,
		api.UBOOT: newUBoot,
	}
	for _, c := range []*api.FirmwareImage{newMLO, newUBoot} {
		if _, err := c.Hash(); err != nil {
			path, _ := c.Source()
			return nil, &api.CandidateError{Path: path, Err: err}
		}
	}

	var updates []Update
	for _, dev := range devices {
		boundary, ok, err := p.boundary(dev)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		p.log().Debugf("First partition on %q starts at 0x%x", dev, boundary)

		imgs, err := p.discoverer().Images(ctx, dev)
		if err != nil {
			return nil, err
		}
		for _, img := range imgs {
			u, ok, err := p.compare(img, candidates, boundary)
			if err != nil {
				return nil, err
			}
			if ok {
				updates = append(updates, u)
			}
		}
	}

	sort.SliceStable(updates, func(i, j int) bool {
		a, b := updates[i].Old, updates[j].Old
		if a.Kind != b.Kind {
			return a.Kind.Less(b.Kind)
		}
		if a.Device != b.Device {
			return a.Device < b.Device
		}
		return a.Offset < b.Offset
	})
	return updates, nil
}

// boundary returns the offset of the first partition on dev, which no image
// may reach. ok is false if dev should be skipped.
func (p *Planner) boundary(dev string) (int64, bool, error) {
	f, err := rawio.Open(dev, rawio.Read)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.log().Warningf("Skipping %q: %v", dev, err)
			return 0, false, nil
		}
		return 0, false, &api.DeviceError{Device: dev, Err: err}
	}
	defer f.Close()

	off, err := mbr.FirstPartitionOffset(f)
	switch {
	case errors.Is(err, mbr.ErrNoMBR), errors.Is(err, mbr.ErrNoPartitions):
		p.log().Infof("Skipping %q: %v", dev, err)
		return 0, false, nil
	case err != nil:
		return 0, false, &api.DeviceError{Device: dev, Err: err}
	}
	return off, true, nil
}

// compare decides whether img should be replaced by its candidate.
func (p *Planner) compare(img *api.FirmwareImage, candidates map[api.FirmwareImageKind]*api.FirmwareImage, boundary int64) (Update, bool, error) {
	if img.Offset == 0 {
		p.log().Errorf("Ignoring %v: offset 0 holds the MBR", img)
		return Update{}, false, nil
	}
	cand, ok := candidates[img.Kind]
	if !ok {
		return Update{}, false, fmt.Errorf("no candidate for %v of unknown kind %d", img, img.Kind)
	}
	projected, err := cand.WithOffset(img.Device, img.Offset)
	if err != nil {
		return Update{}, false, fmt.Errorf("failed to place candidate at %v: %w", img, err)
	}
	if projected.EndOffsetCompare(boundary) >= 0 {
		p.log().Errorf("Ignoring %v: replacement ending at 0x%x would run into the first partition at 0x%x", img, projected.End(), boundary)
		return Update{}, false, nil
	}

	if _, err := img.Hash(); err != nil {
		if !errors.Is(err, rawio.ErrShortRead) {
			return Update{}, false, &api.DeviceError{Device: img.Device, Err: err}
		}
		// The image claims to run past the end of the device, so it cannot
		// match a complete candidate.
		p.log().Warningf("%v is truncated: %v", img, err)
		p.log().Infof("%v is outdated", img)
		return Update{New: cand, Old: img}, true, nil
	}
	same, err := projected.ContentEquals(img)
	if err != nil {
		return Update{}, false, &api.DeviceError{Device: img.Device, Err: err}
	}
	if same {
		p.log().Debugf("%v is up to date", img)
		return Update{}, false, nil
	}
	p.log().Infof("%v is outdated", img)
	return Update{New: cand, Old: img}, true, nil
}
