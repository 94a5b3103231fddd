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

// update_firmware checks the MLO and U-Boot images installed on the raw MMC
// devices of an AM335x board against the ones shipped by the distribution,
// and replaces those which differ.
//
// Usage:
//   go run ./cmd/update_firmware/ --dry_run
//   go run ./cmd/update_firmware/ --device=mmcblk1 --uboot=/path/to/u-boot.img --force
//
// The exit status is 0 if every image is up to date, 1 if any outdated image
// was found (whether or not it was then replaced) and 255 on error.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/golang/glog"
	"github.com/google/am335x-update-firmware/cmd/update_firmware/impl"
	"github.com/google/am335x-update-firmware/devices/am335x"
	"github.com/google/am335x-update-firmware/internal/diag"
	"github.com/google/am335x-update-firmware/internal/dtc"
	"github.com/mattn/go-isatty"
)

const (
	exitUpToDate = 0
	exitOutdated = 1
	exitError    = 255
)

// deviceList is a flag which may be given more than once, each time with a
// comma separated list of devices.
type deviceList []string

func (d *deviceList) String() string {
	return strings.Join(*d, ",")
}

func (d *deviceList) Set(v string) error {
	for _, dev := range strings.Split(v, ",") {
		if dev = strings.TrimSpace(dev); dev != "" {
			*d = append(*d, dev)
		}
	}
	return nil
}

var (
	mloPath        = flag.String("mlo", am335x.DefaultMLOPath, "Path to the MLO file to use")
	ubootPath      = flag.String("uboot", am335x.DefaultUBootPath, "Path to the U-Boot file to use")
	dryRun         = flag.Bool("dry_run", false, "Only report installed images which do not match the files. The default when stdout is not a terminal")
	interactive    = flag.Bool("interactive", false, "Ask before replacing each image. The default when stdout is a terminal")
	force          = flag.Bool("force", false, "Replace installed images which do not match the files without asking")
	decompiler     = flag.String("decompiler", "dtc", "How FIT images are decoded, one of [dtc, native]")
	dtcPath        = flag.String("dtc_path", dtc.DefaultPath, "Device tree compiler to run for --decompiler=dtc")
	quiet          = flag.Bool("quiet", false, "Suppress all diagnostics")
	skipHostChecks = flag.Bool("skip_host_checks", false, "Do not check for root, or that this is an AM335x board")

	devices deviceList
)

func init() {
	flag.Var(&devices, "device", "MMC device to check, relative to /dev. May be repeated or comma separated (default mmcblk0,mmcblk1). Missing devices are skipped")
}

func main() {
	flag.Set("logtostderr", "true")
	flag.Parse()
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	action, err := chooseAction()
	if err != nil {
		return fail(err)
	}
	devs := []string(devices)
	if len(devs) == 0 {
		devs = am335x.DefaultDevices
	}
	var log diag.Logger = diag.Glog()
	if *quiet {
		log = diag.Nop
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	outdated, err := impl.Main(ctx, impl.UpdateOpts{
		MLOPath:        *mloPath,
		UBootPath:      *ubootPath,
		Devices:        devs,
		Action:         action,
		Decompiler:     *decompiler,
		DTCPath:        *dtcPath,
		SkipHostChecks: *skipHostChecks,
		In:             os.Stdin,
		Out:            os.Stdout,
		Log:            log,
	})
	if err != nil {
		return fail(err)
	}
	if outdated {
		return exitOutdated
	}
	return exitUpToDate
}

func chooseAction() (impl.Action, error) {
	var chosen []impl.Action
	for _, a := range []struct {
		set    bool
		action impl.Action
	}{
		{*dryRun, impl.DryRun},
		{*interactive, impl.Interactive},
		{*force, impl.Force},
	} {
		if a.set {
			chosen = append(chosen, a.action)
		}
	}
	switch len(chosen) {
	case 0:
		if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			return impl.Interactive, nil
		}
		return impl.DryRun, nil
	case 1:
		return chosen[0], nil
	}
	return 0, errors.New("only one of --dry_run, --interactive and --force may be given")
}

func fail(err error) int {
	if !*quiet {
		glog.Error(err)
	}
	return exitError
}
