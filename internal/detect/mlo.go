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
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/google/am335x-update-firmware/internal/rawio"
)

const (
	// TOCLen is the length of the table of contents which starts an MLO image.
	TOCLen = 512

	// TOCHash is the SHA-256 of the table of contents. The TOC is a fixed
	// structure read by the boot ROM, so it is identified by hash rather
	// than field by field.
	TOCHash = "21a542439d495f829f448325a75a2a377bf84c107751fe77a0aeb321d1e23868"
)

// MLOSize returns the size of the MLO image starting at the current position
// of r: the TOC plus the image length stored right after it.
func (p *Prober) MLOSize(r io.Reader) (int64, error) {
	toc, err := rawio.ReadExact(r, TOCLen)
	if err != nil {
		return 0, notFound("reading TOC: %v", err)
	}
	sum := sha256.Sum256(toc)
	if got := hex.EncodeToString(sum[:]); got != TOCHash {
		p.log().Debugf("TOC hash %s did not match", got)
		return 0, notFound("TOC hash %s", got)
	}
	b, err := rawio.ReadExact(r, 4)
	if err != nil {
		return 0, notFound("reading MLO image length: %v", err)
	}
	return TOCLen + int64(binary.LittleEndian.Uint32(b)), nil
}
