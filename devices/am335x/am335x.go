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

// Package am335x holds the defaults and host checks for updating the boot
// loaders of TI AM335x boards, such as the BeagleBone family.
package am335x

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	// DefaultMLOPath is where the Debian u-boot-omap package installs MLO.
	DefaultMLOPath = "/usr/lib/u-boot/am335x_evm/MLO"
	// DefaultUBootPath is where the Debian u-boot-omap package installs
	// U-Boot.
	DefaultUBootPath = "/usr/lib/u-boot/am335x_evm/u-boot.img"
	// ModelPath is the device tree model of the running board.
	ModelPath = "/proc/device-tree/model"
)

// DefaultDevices are the MMC devices checked when none are given: the SD card
// and the on-board eMMC, in whichever order the kernel enumerated them.
var DefaultDevices = []string{"mmcblk0", "mmcblk1"}

var (
	// ErrNotAM335x is returned when the host is not an AM335x board.
	ErrNotAM335x = errors.New("this does not appear to be an AM335x device")
	// ErrNotRoot is returned when raw devices cannot be accessed.
	ErrNotRoot = errors.New("this program must be run as root")
)

// CheckHost returns an error wrapping ErrNotAM335x unless the device tree
// model at modelPath names an AM335x board.
func CheckHost(modelPath string) error {
	model, err := os.ReadFile(modelPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: no device tree model at %q", ErrNotAM335x, modelPath)
		}
		return fmt.Errorf("failed to read device tree model: %w", err)
	}
	name := strings.TrimRight(string(model), "\x00\n")
	if !strings.Contains(strings.ToLower(name), "am335x") {
		return fmt.Errorf("%w: model is %q", ErrNotAM335x, name)
	}
	return nil
}

// CheckRoot returns ErrNotRoot unless the effective user is root.
func CheckRoot() error {
	if unix.Geteuid() != 0 {
		return ErrNotRoot
	}
	return nil
}
