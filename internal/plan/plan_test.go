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

package plan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/am335x-update-firmware/api"
	"github.com/google/am335x-update-firmware/internal/detect"
	"github.com/google/am335x-update-firmware/internal/diag"
	"github.com/google/am335x-update-firmware/internal/discover"
	"github.com/google/am335x-update-firmware/internal/dtc"
	"github.com/google/am335x-update-firmware/internal/testonly"
)

const (
	diskSize = 0x80000
	// lba2048 is where a partition starting at LBA 2048 begins.
	lba2048 = 0x100000
)

// unusedDecompiler fails the test if a FIT probe ever gets as far as
// decompiling a tree.
type unusedDecompiler struct {
	t *testing.T
}

func (d unusedDecompiler) Decompile(context.Context, []byte) (*dtc.Node, error) {
	d.t.Error("Decompile() called")
	return nil, dtc.ErrInconclusive
}

func candidate(t *testing.T, name string, kind api.FirmwareImageKind, data []byte) *api.FirmwareImage {
	t.Helper()
	c, err := api.NewCandidateImage(testonly.WriteFile(t, name, data), kind)
	if err != nil {
		t.Fatalf("NewCandidateImage(%q) = %v", name, err)
	}
	return c
}

func newPlanner(log diag.Logger) *Planner {
	return &Planner{
		Discoverer: &discover.Discoverer{
			Prober: &detect.Prober{Decompiler: dtc.Native{}, Log: log},
			Log:    log,
		},
		Log: log,
	}
}

// entry summarises an update for comparison.
type entry struct {
	kind   api.FirmwareImageKind
	device string
	offset int64
	size   int64
}

func entries(us []Update) []entry {
	var out []entry
	for _, u := range us {
		out = append(out, entry{u.Old.Kind, u.Old.Device, u.Old.Offset, u.Old.Size})
	}
	return out
}

func equal(a, b []entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPlan(t *testing.T) {
	mlo := testonly.MLO(1000, 1)
	legacy := testonly.Legacy(204800, 2)
	for _, test := range []struct {
		desc     string
		regions  []testonly.Region
		mlo      []byte
		uboot    []byte
		want     func(dev string) []entry
		wantErrs int
	}{
		{
			desc: "MLO up to date",
			regions: []testonly.Region{
				{Offset: 0, Data: testonly.MBR(2048)},
				{Offset: 0x20000, Data: mlo},
			},
			mlo:   mlo,
			uboot: legacy,
			want:  func(string) []entry { return nil },
		}, {
			desc: "MLO outdated",
			regions: []testonly.Region{
				{Offset: 0, Data: testonly.MBR(2048)},
				{Offset: 0x20000, Data: mlo},
			},
			mlo:   testonly.MLO(1000, 9),
			uboot: legacy,
			want: func(dev string) []entry {
				return []entry{{api.MLO, dev, 0x20000, 1512}}
			},
		}, {
			desc: "legacy U-Boot outdated",
			regions: []testonly.Region{
				{Offset: 0, Data: testonly.MBR(2048)},
				{Offset: 0x20000, Data: mlo},
				{Offset: 0x40000, Data: legacy},
			},
			mlo:   mlo,
			uboot: testonly.Legacy(204800, 3),
			want: func(dev string) []entry {
				return []entry{{api.UBOOT, dev, 0x40000, 204864}}
			},
		}, {
			desc: "sorted by kind then offset",
			regions: []testonly.Region{
				{Offset: 0, Data: testonly.MBR(2048)},
				{Offset: 0x20000, Data: testonly.Legacy(100, 1)},
				{Offset: 0x40000, Data: testonly.MLO(100, 1)},
				{Offset: 0x60000, Data: testonly.MLO(200, 1)},
			},
			mlo:   mlo,
			uboot: legacy,
			want: func(dev string) []entry {
				return []entry{
					{api.MLO, dev, 0x40000, 612},
					{api.MLO, dev, 0x60000, 712},
					{api.UBOOT, dev, 0x20000, 164},
				}
			},
		}, {
			desc: "replacement ends exactly at the first partition",
			regions: []testonly.Region{
				{Offset: 0, Data: testonly.MBR(2048)},
				{Offset: 0x60000, Data: testonly.Legacy(100, 1)},
			},
			mlo:      mlo,
			uboot:    testonly.Legacy(lba2048-0x60000-64, 1),
			want:     func(string) []entry { return nil },
			wantErrs: 1,
		}, {
			desc: "replacement ends just before the first partition",
			regions: []testonly.Region{
				{Offset: 0, Data: testonly.MBR(2048)},
				{Offset: 0x60000, Data: testonly.Legacy(100, 1)},
			},
			mlo:   mlo,
			uboot: testonly.Legacy(lba2048-0x60000-64-1, 1),
			want: func(dev string) []entry {
				return []entry{{api.UBOOT, dev, 0x60000, 164}}
			},
		}, {
			desc: "installed image beyond the first partition",
			regions: []testonly.Region{
				{Offset: 0, Data: testonly.MBR(0, 0x180)},
				{Offset: 0x20000, Data: testonly.MLO(100, 1)},
				{Offset: 0x40000, Data: testonly.Legacy(100, 1)},
			},
			mlo:   mlo,
			uboot: legacy,
			want: func(dev string) []entry {
				return []entry{{api.MLO, dev, 0x20000, 612}}
			},
			wantErrs: 1,
		}, {
			desc: "image sharing the MBR sector",
			regions: []testonly.Region{
				{Offset: 0, Data: testonly.Legacy(1024, 1)},
				{Offset: 0x1be, Data: testonly.MBR(2048)[0x1be:]},
			},
			mlo:      mlo,
			uboot:    legacy,
			want:     func(string) []entry { return nil },
			wantErrs: 1,
		}, {
			desc: "installed image runs off the end of the device",
			regions: []testonly.Region{
				{Offset: 0, Data: testonly.MBR(2048)},
				{Offset: 0x60000, Data: testonly.LegacyHeader(detect.LegacyMagic, 0x10000000)},
			},
			mlo:   mlo,
			uboot: legacy,
			want: func(dev string) []entry {
				return []entry{{api.UBOOT, dev, 0x60000, 0x10000040}}
			},
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			dev := testonly.WriteDisk(t, diskSize, test.regions...)
			rec := &diag.Recorder{}
			got, err := newPlanner(rec).Plan(context.Background(),
				candidate(t, "MLO", api.MLO, test.mlo),
				candidate(t, "u-boot.img", api.UBOOT, test.uboot),
				[]string{dev})
			if err != nil {
				t.Fatalf("Plan() = %v", err)
			}
			if g, w := entries(got), test.want(dev); !equal(g, w) {
				t.Errorf("Plan() = %+v, want %+v", g, w)
			}
			if errs := rec.Lines(diag.Error); len(errs) != test.wantErrs {
				t.Errorf("Plan() logged errors %q, want %d", errs, test.wantErrs)
			}
			for _, u := range got {
				if u.New.Kind != u.Old.Kind {
					t.Errorf("Plan() paired %v with %v", u.Old, u.New)
				}
			}
		})
	}
}

func TestPlanSkipsDevices(t *testing.T) {
	fit := testonly.FIT(1, testonly.FITImage{Name: "firmware-1", DataSize: 0x10})
	for _, test := range []struct {
		desc    string
		regions []testonly.Region
	}{
		{
			desc: "no boot signature",
			regions: []testonly.Region{
				{Offset: 0x20000, Data: fit},
			},
		}, {
			desc: "no partitions",
			regions: []testonly.Region{
				{Offset: 0, Data: testonly.MBR()},
				{Offset: 0x20000, Data: fit},
			},
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			dev := testonly.WriteDisk(t, diskSize, test.regions...)
			rec := &diag.Recorder{}
			p := &Planner{
				Discoverer: &discover.Discoverer{Prober: &detect.Prober{Decompiler: unusedDecompiler{t}}},
				Log:        rec,
			}
			got, err := p.Plan(context.Background(),
				candidate(t, "MLO", api.MLO, testonly.MLO(10, 0)),
				candidate(t, "u-boot.img", api.UBOOT, fit),
				[]string{dev})
			if err != nil {
				t.Fatalf("Plan() = %v", err)
			}
			if len(got) != 0 {
				t.Errorf("Plan() = %v, want nothing", got)
			}
			if len(rec.Lines(diag.Info)) == 0 {
				t.Error("Plan() did not log why the device was skipped")
			}
		})
	}
}

func TestPlanMissingDevice(t *testing.T) {
	rec := &diag.Recorder{}
	present := testonly.WriteDisk(t, diskSize,
		testonly.Region{Offset: 0, Data: testonly.MBR(2048)},
		testonly.Region{Offset: 0x20000, Data: testonly.MLO(100, 1)})
	missing := filepath.Join(t.TempDir(), "mmcblk1")

	got, err := newPlanner(rec).Plan(context.Background(),
		candidate(t, "MLO", api.MLO, testonly.MLO(100, 2)),
		candidate(t, "u-boot.img", api.UBOOT, testonly.Legacy(10, 0)),
		[]string{missing, present})
	if err != nil {
		t.Fatalf("Plan() = %v", err)
	}
	if want := []entry{{api.MLO, present, 0x20000, 612}}; !equal(entries(got), want) {
		t.Errorf("Plan() = %+v, want %+v", entries(got), want)
	}
	if len(rec.Lines(diag.Warning)) != 1 {
		t.Errorf("Plan() warnings = %q, want one", rec.Lines(diag.Warning))
	}
}

func TestPlanSortsDevices(t *testing.T) {
	var devs []string
	for i := 0; i < 3; i++ {
		devs = append(devs, testonly.WriteDisk(t, diskSize,
			testonly.Region{Offset: 0, Data: testonly.MBR(2048)},
			testonly.Region{Offset: 0x20000, Data: testonly.MLO(100, 1)},
			testonly.Region{Offset: 0x40000, Data: testonly.Legacy(100, 1)}))
	}
	sorted := append([]string(nil), devs...)
	sort.Strings(sorted)
	var want []entry
	for _, d := range sorted {
		want = append(want, entry{api.MLO, d, 0x20000, 612})
	}
	for _, d := range sorted {
		want = append(want, entry{api.UBOOT, d, 0x40000, 164})
	}

	// Scan in reverse order to check the result does not depend on it.
	rev := []string{sorted[2], sorted[1], sorted[0]}
	got, err := newPlanner(nil).Plan(context.Background(),
		candidate(t, "MLO", api.MLO, testonly.MLO(100, 2)),
		candidate(t, "u-boot.img", api.UBOOT, testonly.Legacy(100, 2)),
		rev)
	if err != nil {
		t.Fatalf("Plan() = %v", err)
	}
	if !equal(entries(got), want) {
		t.Errorf("Plan() = %+v, want %+v", entries(got), want)
	}
}

func TestPlanCandidateGone(t *testing.T) {
	dev := testonly.WriteDisk(t, diskSize, testonly.Region{Offset: 0, Data: testonly.MBR(2048)})
	mlo := candidate(t, "MLO", api.MLO, testonly.MLO(10, 0))
	path, _ := mlo.Source()
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() = %v", err)
	}

	_, err := newPlanner(nil).Plan(context.Background(), mlo, candidate(t, "u-boot.img", api.UBOOT, testonly.Legacy(10, 0)), []string{dev})
	var ce *api.CandidateError
	if !errors.As(err, &ce) || ce.Path != path {
		t.Fatalf("Plan() err = %v, want *api.CandidateError for %q", err, path)
	}
}

func TestPlanUnreadableDevice(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read anything")
	}
	dev := testonly.WriteDisk(t, diskSize, testonly.Region{Offset: 0, Data: testonly.MBR(2048)})
	if err := os.Chmod(dev, 0); err != nil {
		t.Fatalf("Chmod() = %v", err)
	}

	_, err := newPlanner(nil).Plan(context.Background(),
		candidate(t, "MLO", api.MLO, testonly.MLO(10, 0)),
		candidate(t, "u-boot.img", api.UBOOT, testonly.Legacy(10, 0)),
		[]string{dev})
	var de *api.DeviceError
	if !errors.As(err, &de) || de.Device != dev {
		t.Fatalf("Plan() err = %v, want *api.DeviceError for %q", err, dev)
	}
}
