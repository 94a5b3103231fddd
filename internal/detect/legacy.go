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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/am335x-update-firmware/internal/rawio"
)

const (
	// LegacyMagic starts every U-Boot legacy image.
	LegacyMagic = 0x27051956
	// LegacyHeaderLen is the length of the legacy image header.
	LegacyHeaderLen = 64
)

// LegacyHeader is the U-Boot legacy image header (image_header_t), stored
// big-endian.
type LegacyHeader struct {
	Magic     uint32
	HeaderCRC uint32
	Time      uint32
	Size      uint32
	Load      uint32
	Entry     uint32
	DataCRC   uint32
	OS        uint8
	Arch      uint8
	Type      uint8
	Comp      uint8
	Name      [32]byte
}

func (h LegacyHeader) String() string {
	return fmt.Sprintf("uImage name=%q size=%d load=0x%08x entry=0x%08x", bytes.TrimRight(h.Name[:], "\x00"), h.Size, h.Load, h.Entry)
}

// LegacySize returns the size of the U-Boot legacy image starting at the
// current position of r: the header plus the data size it declares.
func (p *Prober) LegacySize(r io.Reader) (int64, error) {
	b, err := rawio.ReadExact(r, LegacyHeaderLen)
	if err != nil {
		return 0, notFound("reading legacy header: %v", err)
	}
	var h LegacyHeader
	if err := binary.Read(bytes.NewReader(b), binary.BigEndian, &h); err != nil {
		return 0, notFound("parsing legacy header: %v", err)
	}
	if h.Magic != LegacyMagic {
		p.log().Debugf("Legacy magic 0x%08x does not match", h.Magic)
		return 0, notFound("legacy magic 0x%08x", h.Magic)
	}
	p.log().Debugf("Found %v", h)
	return LegacyHeaderLen + int64(h.Size), nil
}
