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

// Package testonly builds byte-exact boot images, device trees and disk
// images for tests.
package testonly

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// TOCLen is the length of the MLO table of contents.
const TOCLen = 512

// TOC returns the fixed AM335x table of contents which prefixes MLO images: a
// single CHSETTINGS item, the 0xff terminator item and the CHSETTINGS block.
func TOC() []byte {
	b := new(bytes.Buffer)
	// Item 0: offset and size of the CHSETTINGS block, 12 reserved bytes, name.
	binary.Write(b, binary.LittleEndian, []uint32{0x40, 0x0c})
	b.Write(make([]byte, 12))
	name := make([]byte, 12)
	copy(name, "CHSETTINGS")
	b.Write(name)
	// Item 1: end of the table.
	b.Write(bytes.Repeat([]byte{0xff}, 32))
	// CHSETTINGS: key, valid, version, reserved, flags.
	binary.Write(b, binary.LittleEndian, uint32(0xc0c0c0c1))
	b.Write([]byte{0x00, 0x01})
	binary.Write(b, binary.LittleEndian, uint16(0))
	binary.Write(b, binary.LittleEndian, uint32(0))
	b.Write(make([]byte, TOCLen-b.Len()))
	return b.Bytes()
}

// MLO returns an MLO image whose length field holds imageLen, so that the
// whole image is TOCLen+imageLen bytes long. The body is filled with a pattern
// derived from seed.
func MLO(imageLen uint32, seed byte) []byte {
	b := bytes.NewBuffer(TOC())
	binary.Write(b, binary.LittleEndian, imageLen)
	if imageLen > 4 {
		b.Write(Pattern(int(imageLen)-4, seed))
	}
	return b.Bytes()[:TOCLen+int(imageLen)]
}

// LegacyMagic is the U-Boot legacy image magic number.
const LegacyMagic = 0x27051956

// LegacyHeader returns a 64-byte U-Boot legacy image header.
func LegacyHeader(magic, dataSize uint32) []byte {
	b := new(bytes.Buffer)
	binary.Write(b, binary.BigEndian, []uint32{
		magic,
		0x12345678, // header CRC
		0x5f5e1000, // timestamp
		dataSize,
		0x80800000, // load address
		0x80800000, // entry point
		0x9abcdef0, // data CRC
	})
	b.Write([]byte{5, 2, 5, 0}) // firmware, ARM, firmware, uncompressed
	name := make([]byte, 32)
	copy(name, "U-Boot 2026.01")
	b.Write(name)
	return b.Bytes()
}

// Legacy returns a U-Boot legacy image carrying dataSize bytes of payload.
func Legacy(dataSize uint32, seed byte) []byte {
	return append(LegacyHeader(LegacyMagic, dataSize), Pattern(int(dataSize), seed)...)
}

// Pattern returns n bytes of deterministic filler which depends on seed.
func Pattern(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*31) ^ seed
	}
	return p
}

// MBR returns a 512-byte boot sector with a primary partition starting at
// each of the given LBAs, one per slot. A zero LBA leaves the slot empty.
func MBR(lbaStarts ...uint32) []byte {
	s := make([]byte, 512)
	for i, lba := range lbaStarts {
		if lba == 0 {
			continue
		}
		e := s[0x1be+16*i : 0x1be+16*(i+1)]
		e[0] = 0x00
		copy(e[1:4], []byte{0x20, 0x21, 0x00})
		e[4] = 0x0c
		copy(e[5:8], []byte{0xfe, 0xff, 0xff})
		binary.LittleEndian.PutUint32(e[8:12], lba)
		binary.LittleEndian.PutUint32(e[12:16], 0x1000)
	}
	s[0x1fe], s[0x1ff] = 0x55, 0xaa
	return s
}

// Region is a chunk of bytes placed at an offset within a disk image.
type Region struct {
	Offset int64
	Data   []byte
}

// WriteDisk writes a zero-filled disk image of the given size to a temporary
// directory, overlays the regions, and returns its path.
func WriteDisk(t testing.TB, size int64, regions ...Region) string {
	t.Helper()
	disk := make([]byte, size)
	for _, r := range regions {
		if r.Offset+int64(len(r.Data)) > size {
			t.Fatalf("region at 0x%x (0x%x bytes) does not fit a 0x%x byte disk", r.Offset, len(r.Data), size)
		}
		copy(disk[r.Offset:], r.Data)
	}
	return WriteFile(t, "disk.img", disk)
}

// WriteFile writes data to a new file in a temporary directory and returns
// its path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("Failed to write %q: %v", p, err)
	}
	return p
}
