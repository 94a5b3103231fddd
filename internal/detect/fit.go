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

package detect

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/am335x-update-firmware/internal/dtc"
	"github.com/google/am335x-update-firmware/internal/rawio"
)

const (
	// FDTMagic starts every flattened device tree, and so every FIT.
	FDTMagic = 0xd00dfeed

	fdtHeaderLen = 40
	// maxFDTSize bounds how much is read for a FIT whose header claims to be
	// enormous. With external data the tree itself stays small.
	maxFDTSize = 32 << 20
)

// FITSize returns the size of the U-Boot FIT image starting at the current
// position of rs.
//
// The tree is decompiled and the image entry with the largest data-offset is
// found; the FIT ends where that entry's data ends, rounded up to 4 bytes,
// after the tree itself. When two entries share the largest offset the first
// one seen wins, which depends on the order the decompiler reports them in.
//
// An error other than ErrNotFound is only returned when the decompiler
// cannot be run at all.
func (p *Prober) FITSize(ctx context.Context, rs io.ReadSeeker) (int64, error) {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, notFound("finding stream position: %v", err)
	}
	b, err := rawio.ReadExact(rs, 8)
	if err != nil {
		return 0, notFound("reading FDT header: %v", err)
	}
	magic, total := binary.BigEndian.Uint32(b[0:4]), binary.BigEndian.Uint32(b[4:8])
	if magic != FDTMagic {
		p.log().Debugf("FDT magic 0x%08x at 0x%x does not match", magic, start)
		return 0, notFound("FDT magic 0x%08x", magic)
	}
	if total < fdtHeaderLen || total > maxFDTSize {
		p.log().Infof("FDT at 0x%x has an implausible size of 0x%x bytes", start, total)
		return 0, notFound("FDT size 0x%x", total)
	}

	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return 0, notFound("seeking back to FDT: %v", err)
	}
	blob, err := rawio.ReadExact(rs, int(total))
	if err != nil {
		return 0, notFound("reading FDT: %v", err)
	}
	root, err := p.decompiler().Decompile(ctx, blob)
	if err != nil {
		if dtc.IsToolError(err) {
			return 0, err
		}
		p.log().Infof("FIT at 0x%x could not be decompiled: %v", start, err)
		return 0, notFound("decompiling FIT: %v", err)
	}
	extent, err := p.dataExtent(root)
	if err != nil {
		p.log().Infof("Invalid FIT at 0x%x: %v", start, err)
		return 0, notFound("FIT: %v", err)
	}
	return int64(total) + int64(roundUp4(extent)), nil
}

// dataExtent returns where the data of the image with the largest data-offset
// ends, relative to the end of the tree.
func (p *Prober) dataExtent(root *dtc.Node) (uint64, error) {
	images, ok := root.Child("images")
	if !ok {
		return 0, errors.New("no images node")
	}
	var (
		found         bool
		largest, size uint64
	)
	for _, img := range images.Children {
		off, err := singleCell(img, "data-offset")
		if err != nil {
			return 0, err
		}
		sz, err := singleCell(img, "data-size")
		if err != nil {
			return 0, err
		}
		p.log().Debugf("Found image %q with offset 0x%x and size %d", img.Name, off, sz)
		if !found || off > largest {
			found, largest, size = true, off, sz
		}
	}
	return largest + size, nil
}

func singleCell(n *dtc.Node, name string) (uint64, error) {
	prop, ok := n.Property(name)
	if !ok {
		return 0, fmt.Errorf("image %q has no %s", n.Name, name)
	}
	if len(prop.Cells) != 1 {
		return 0, fmt.Errorf("image %q: %s has %d cells, want 1", n.Name, name, len(prop.Cells))
	}
	return prop.Cells[0], nil
}

func roundUp4(n uint64) uint64 {
	return (n + 3) &^ 3
}
