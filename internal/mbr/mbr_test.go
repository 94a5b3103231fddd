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

package mbr

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/am335x-update-firmware/internal/testonly"
)

func TestFirstPartitionOffset(t *testing.T) {
	for _, test := range []struct {
		desc    string
		sector  []byte
		want    int64
		wantErr error
	}{
		{
			desc:   "single partition",
			sector: testonly.MBR(2048),
			want:   2048 * 512,
		}, {
			desc:   "lowest of several",
			sector: testonly.MBR(8192, 2048, 0x100000),
			want:   2048 * 512,
		}, {
			desc:   "empty slots skipped",
			sector: testonly.MBR(0, 0, 0, 4096),
			want:   4096 * 512,
		}, {
			desc:    "no partitions",
			sector:  testonly.MBR(),
			wantErr: ErrNoPartitions,
		}, {
			desc:    "no signature",
			sector:  make([]byte, 512),
			wantErr: ErrNoMBR,
		}, {
			desc:    "reversed signature",
			sector:  func() []byte { s := testonly.MBR(2048); s[0x1fe], s[0x1ff] = 0xaa, 0x55; return s }(),
			wantErr: ErrNoMBR,
		}, {
			desc:    "truncated device",
			sector:  make([]byte, 100),
			wantErr: ErrNoMBR,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			got, err := FirstPartitionOffset(bytes.NewReader(test.sector))
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("FirstPartitionOffset() err = %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FirstPartitionOffset() = %v", err)
			}
			if got != test.want {
				t.Errorf("FirstPartitionOffset() = 0x%x, want 0x%x", got, test.want)
			}
		})
	}
}

func TestFirstPartitionOffsetRelativeToPosition(t *testing.T) {
	data := append(make([]byte, 1024), testonly.MBR(63)...)
	r := bytes.NewReader(data)
	if _, err := r.Seek(1024, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	got, err := FirstPartitionOffset(r)
	if err != nil {
		t.Fatalf("FirstPartitionOffset() = %v", err)
	}
	if want := int64(63 * 512); got != want {
		t.Errorf("FirstPartitionOffset() = 0x%x, want 0x%x", got, want)
	}
}

func TestReadPartitionTable(t *testing.T) {
	entries, err := ReadPartitionTable(bytes.NewReader(testonly.MBR(2048, 0, 70000)))
	if err != nil {
		t.Fatalf("ReadPartitionTable() = %v", err)
	}
	if got := entries[0]; got.LBAStart != 2048 || got.Type != 0x0c || got.Sectors != 0x1000 {
		t.Errorf("entry 0 = %+v", got)
	}
	if got := entries[1]; got != (PartitionEntry{}) {
		t.Errorf("entry 1 = %+v, want empty", got)
	}
	if got := entries[2].LBAStart; got != 70000 {
		t.Errorf("entry 2 LBA = %d, want 70000", got)
	}
}
