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

// Package rawio provides the byte-level primitives used to probe raw block
// devices and image files: exact-length reads, device opening and hashing of
// byte regions.
package rawio

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// DevDir is the directory that relative device names are resolved against.
const DevDir = "/dev"

// hashChunk bounds the buffer used when a region is hashed by reading.
const hashChunk = 1 << 20

// ErrShortRead is returned when the data ran out before the requested number
// of bytes could be read.
var ErrShortRead = fmt.Errorf("short read: %w", io.ErrUnexpectedEOF)

// Mode selects how a device is opened.
type Mode int

const (
	// Read opens the device read-only.
	Read Mode = iota
	// Write opens the device write-only with write-through semantics.
	Write
	// ReadWrite opens the device for reading and writing with write-through semantics.
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadWrite:
		return "read-write"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ReadExact reads exactly length bytes from r.
//
// Reads which return neither data nor an error are retried, paced by an
// exponential backoff. If r runs out of data first, the bytes read so far are
// returned along with an error wrapping ErrShortRead. Any other read error is
// returned as is, again with the partial data.
func ReadExact(r io.Reader, length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("invalid read length %d", length)
	}
	buf := make([]byte, length)
	var bo *backoff.ExponentialBackOff
	n := 0
	for n < length {
		m, err := r.Read(buf[n:])
		n += m
		if n == length {
			break
		}
		switch {
		case errors.Is(err, io.EOF):
			return buf[:n], fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, n, length)
		case err != nil:
			return buf[:n], err
		case m == 0:
			if bo == nil {
				bo = stallBackOff()
			}
			time.Sleep(bo.NextBackOff())
		case bo != nil:
			bo.Reset()
		}
	}
	return buf, nil
}

// stallBackOff paces retries of reads which made no progress. It never gives
// up: a device which stops returning data stalls the caller.
func stallBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Millisecond
	bo.MaxInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Path returns the filesystem path for the named device. Absolute names are
// returned unchanged, anything else is taken to live in DevDir.
func Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(DevDir, name)
}

// Open opens the named block device or regular file.
//
// Devices opened for writing use O_SYNC so that every write reaches the
// device before the call returns, and writes are never reordered by a buffer
// sitting between the caller and the device. Callers must release write-mode
// files with SyncClose.
func Open(name string, mode Mode) (*os.File, error) {
	var flags int
	switch mode {
	case Read:
		flags = os.O_RDONLY
	case Write:
		flags = os.O_WRONLY | unix.O_SYNC
	case ReadWrite:
		flags = os.O_RDWR | unix.O_SYNC
	default:
		return nil, fmt.Errorf("unknown open mode %v", mode)
	}
	return os.OpenFile(Path(name), flags, 0)
}

// SyncClose flushes f to stable storage and closes it.
func SyncClose(f *os.File) error {
	if err := unix.Fsync(int(f.Fd())); err != nil {
		f.Close()
		return fmt.Errorf("failed to fsync %q: %w", f.Name(), err)
	}
	return f.Close()
}

// HashRegion returns the SHA-256 of exactly size bytes starting at offset in
// the named device or file.
//
// If the region holds fewer than size bytes an error wrapping ErrShortRead is
// returned.
func HashRegion(name string, offset, size int64) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	if offset < 0 || size < 0 {
		return sum, fmt.Errorf("invalid region (offset %d, size %d)", offset, size)
	}
	f, err := Open(name, Read)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	if m, ok := mapRegion(f, offset, size); ok {
		sum = sha256.Sum256(m)
		if err := m.Unmap(); err != nil {
			return sum, fmt.Errorf("failed to unmap %q: %w", f.Name(), err)
		}
		return sum, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return sum, fmt.Errorf("failed to seek to 0x%x on %q: %w", offset, f.Name(), err)
	}
	h := sha256.New()
	for remaining := size; remaining > 0; {
		n := int64(hashChunk)
		if remaining < n {
			n = remaining
		}
		b, err := ReadExact(f, int(n))
		if err != nil {
			return sum, fmt.Errorf("failed to read 0x%x bytes at 0x%x on %q: %w", size, offset, f.Name(), err)
		}
		h.Write(b)
		remaining -= n
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// mapRegion maps the region into memory when that is safe: only page aligned
// regions lying entirely within a regular file qualify, as touching a mapped
// page beyond the end of a file faults.
func mapRegion(f *os.File, offset, size int64) (mmap.MMap, bool) {
	if size == 0 || offset%int64(os.Getpagesize()) != 0 || size > int64(int(^uint(0)>>1)) {
		return nil, false
	}
	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() || offset+size > fi.Size() {
		return nil, false
	}
	m, err := mmap.MapRegion(f, int(size), mmap.RDONLY, 0, offset)
	if err != nil {
		return nil, false
	}
	return m, true
}
