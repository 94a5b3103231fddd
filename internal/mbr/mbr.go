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

// Package mbr locates the first partition described by a Master Boot Record.
package mbr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/am335x-update-firmware/internal/rawio"
)

const (
	// SectorSize is the size of the sectors LBA values count in.
	SectorSize = 512

	bootSigOffset    = 0x1fe
	partTableOffset  = 0x1be
	partEntrySize    = 16
	primaryPartCount = 4
)

var (
	// ErrNoMBR is returned when the boot signature is missing.
	ErrNoMBR = errors.New("no MBR boot signature")
	// ErrNoPartitions is returned when every primary partition slot is empty.
	ErrNoPartitions = errors.New("no partitions in MBR")

	bootSig = []byte{0x55, 0xaa}
)

// PartitionEntry is a primary partition table entry. The CHS addresses are
// kept packed as they are not needed.
type PartitionEntry struct {
	Status   uint8
	CHSStart [3]byte
	Type     uint8
	CHSEnd   [3]byte
	LBAStart uint32
	Sectors  uint32
}

// FirstPartitionOffset returns the byte offset of the partition with the
// lowest starting sector.
//
// rs is expected to be positioned at the start of a raw device; offsets are
// taken relative to that position. ErrNoMBR is returned if there is no boot
// signature, and ErrNoPartitions if the table is empty.
func FirstPartitionOffset(rs io.ReadSeeker) (int64, error) {
	entries, err := ReadPartitionTable(rs)
	if err != nil {
		return 0, err
	}
	lowest := int64(-1)
	for _, e := range entries {
		if e == (PartitionEntry{}) {
			continue
		}
		if start := int64(e.LBAStart); lowest < 0 || start < lowest {
			lowest = start
		}
	}
	if lowest < 0 {
		return 0, ErrNoPartitions
	}
	return lowest * SectorSize, nil
}

// ReadPartitionTable checks the boot signature and returns the four primary
// partition entries, empty slots included.
func ReadPartitionTable(rs io.ReadSeeker) ([primaryPartCount]PartitionEntry, error) {
	var entries [primaryPartCount]PartitionEntry
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return entries, fmt.Errorf("failed to find stream position: %w", err)
	}

	if _, err := rs.Seek(start+bootSigOffset, io.SeekStart); err != nil {
		return entries, fmt.Errorf("failed to seek to boot signature: %w", err)
	}
	sig, err := rawio.ReadExact(rs, len(bootSig))
	if err != nil {
		if errors.Is(err, rawio.ErrShortRead) {
			return entries, fmt.Errorf("%w: %v", ErrNoMBR, err)
		}
		return entries, fmt.Errorf("failed to read boot signature: %w", err)
	}
	if !bytes.Equal(sig, bootSig) {
		return entries, fmt.Errorf("%w: found % x", ErrNoMBR, sig)
	}

	if _, err := rs.Seek(start+partTableOffset, io.SeekStart); err != nil {
		return entries, fmt.Errorf("failed to seek to partition table: %w", err)
	}
	table, err := rawio.ReadExact(rs, primaryPartCount*partEntrySize)
	if err != nil {
		return entries, fmt.Errorf("failed to read partition table: %w", err)
	}
	if err := binary.Read(bytes.NewReader(table), binary.LittleEndian, &entries); err != nil {
		return entries, fmt.Errorf("failed to parse partition table: %w", err)
	}
	return entries, nil
}
