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
	"errors"
	"io"
)

// UBootSize returns the size of the U-Boot image starting at the current
// position of rs. The legacy format is tried first; if that finds nothing the
// stream is rewound and probed for a FIT.
func (p *Prober) UBootSize(ctx context.Context, rs io.ReadSeeker) (int64, error) {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, notFound("finding stream position: %v", err)
	}
	size, err := p.LegacySize(rs)
	if !errors.Is(err, ErrNotFound) {
		return size, err
	}
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return 0, notFound("rewinding stream: %v", err)
	}
	return p.FITSize(ctx, rs)
}
