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

package api

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/am335x-update-firmware/internal/rawio"
)

// FirmwareImageKind identifies which boot stage an image belongs to.
type FirmwareImageKind int

const (
	// MLO is the first stage loader, called SPL by U-Boot and MLO in the
	// AM335x Technical Reference Manual.
	MLO FirmwareImageKind = iota + 1
	// UBOOT covers both U-Boot legacy and FIT images.
	UBOOT
)

// String returns a human-readable name for the kind.
func (k FirmwareImageKind) String() string {
	switch k {
	case MLO:
		return "MLO image"
	case UBOOT:
		return "U-Boot image"
	}
	return fmt.Sprintf("FirmwareImageKind(%d)", int(k))
}

// Valid reports whether k is one of the known kinds.
func (k FirmwareImageKind) Valid() bool {
	return k == MLO || k == UBOOT
}

// Less reports whether k sorts before o. MLO images sort before U-Boot images.
func (k FirmwareImageKind) Less(o FirmwareImageKind) bool {
	return k == MLO && o == UBOOT
}

// FirmwareImage is a bootloader image at a location on a device, or a
// replacement image read from a file.
//
// Images are compared by content: two images are the same firmware iff the
// bytes they cover hash identically, wherever those bytes live.
type FirmwareImage struct {
	// Device is the device name the image was found on, or the path of the
	// file a candidate image was read from.
	Device string
	// Offset is the byte offset of the image on Device.
	Offset int64
	// Kind is the kind of image.
	Kind FirmwareImageKind
	// Size is the length of the image in bytes.
	Size int64

	// content is where the bytes of the image are read from. It only differs
	// from (Device, Offset) for images produced by WithOffset.
	content *content
}

// content memoizes the hash of a region; it is shared between an image and
// the copies WithOffset makes of it.
type content struct {
	path   string
	offset int64
	size   int64

	once sync.Once
	sum  [sha256.Size]byte
	err  error
}

func (c *content) hash() ([sha256.Size]byte, error) {
	c.once.Do(func() {
		c.sum, c.err = rawio.HashRegion(c.path, c.offset, c.size)
	})
	return c.sum, c.err
}

// NewDeviceImage returns an image of the given kind and size found at offset
// on device.
func NewDeviceImage(device string, offset int64, kind FirmwareImageKind, size int64) (*FirmwareImage, error) {
	if err := validate(offset, kind, size); err != nil {
		return nil, err
	}
	return &FirmwareImage{
		Device: device,
		Offset: offset,
		Kind:   kind,
		Size:   size,
		content: &content{
			path:   device,
			offset: offset,
			size:   size,
		},
	}, nil
}

// NewCandidateImage returns an image of the given kind covering the whole of
// the file at path.
//
// Relative paths are made absolute, as relative device names are taken to
// live in /dev.
func NewCandidateImage(path string, kind FirmwareImageKind) (*FirmwareImage, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, &CandidateError{Path: path, Err: err}
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &CandidateError{Path: path, Err: err}
	}
	if !fi.Mode().IsRegular() {
		return nil, &CandidateError{Path: path, Err: errors.New("not a regular file")}
	}
	img, err := NewDeviceImage(path, 0, kind, fi.Size())
	if err != nil {
		return nil, &CandidateError{Path: path, Err: err}
	}
	return img, nil
}

func validate(offset int64, kind FirmwareImageKind, size int64) error {
	switch {
	case !kind.Valid():
		return fmt.Errorf("unknown image kind %v", kind)
	case offset < 0:
		return fmt.Errorf("offset %d must not be negative", offset)
	case size <= 0:
		return fmt.Errorf("size %d must be positive", size)
	}
	return nil
}

// End returns the offset of the first byte past the image.
func (i *FirmwareImage) End() int64 {
	return i.Offset + i.Size
}

// Hash returns the SHA-256 of the image content. It is computed on first use
// and remembered.
func (i *FirmwareImage) Hash() ([sha256.Size]byte, error) {
	if i.content == nil {
		i.content = &content{path: i.Device, offset: i.Offset, size: i.Size}
	}
	return i.content.hash()
}

// ContentEquals reports whether i and o hold identical bytes. Only the
// content hashes are compared; devices and offsets play no part.
func (i *FirmwareImage) ContentEquals(o *FirmwareImage) (bool, error) {
	a, err := i.Hash()
	if err != nil {
		return false, fmt.Errorf("failed to hash %v: %w", i, err)
	}
	b, err := o.Hash()
	if err != nil {
		return false, fmt.Errorf("failed to hash %v: %w", o, err)
	}
	return a == b, nil
}

// EndOffsetCompare compares the end of the image against boundary, returning
// -1, 0 or +1 as Offset+Size is less than, equal to or greater than boundary.
// This answers whether the image runs into the boundary, not which of the two
// comes first.
func (i *FirmwareImage) EndOffsetCompare(boundary int64) int {
	switch end := i.End(); {
	case end < boundary:
		return -1
	case end > boundary:
		return 1
	}
	return 0
}

// EndOffsetCompareImage is EndOffsetCompare with the start of o as the
// boundary.
func (i *FirmwareImage) EndOffsetCompareImage(o *FirmwareImage) int {
	return i.EndOffsetCompare(o.Offset)
}

// WithOffset returns a copy of the image placed at offset on device. Kind,
// size and content are unchanged, so the copy hashes as the image would if it
// were written there.
func (i *FirmwareImage) WithOffset(device string, offset int64) (*FirmwareImage, error) {
	if offset < 0 {
		return nil, fmt.Errorf("the new offset (%d) must not be negative", offset)
	}
	if i.content == nil {
		i.content = &content{path: i.Device, offset: i.Offset, size: i.Size}
	}
	return &FirmwareImage{
		Device:  device,
		Offset:  offset,
		Kind:    i.Kind,
		Size:    i.Size,
		content: i.content,
	}, nil
}

// Source returns the path and offset the image content is read from.
func (i *FirmwareImage) Source() (string, int64) {
	if i.content == nil {
		return i.Device, i.Offset
	}
	return i.content.path, i.content.offset
}

// String returns a human-readable representation of the image, with the
// offset and size in hex.
func (i *FirmwareImage) String() string {
	return fmt.Sprintf("%s on %q at 0x%x (0x%x bytes)", i.Kind, i.Device, i.Offset, i.Size)
}
