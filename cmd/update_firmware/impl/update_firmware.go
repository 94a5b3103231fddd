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

// Package impl is the implementation of a util to check, and optionally
// replace, the MLO and U-Boot images installed on the raw MMC devices of an
// AM335x board.
package impl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/google/am335x-update-firmware/api"
	"github.com/google/am335x-update-firmware/devices/am335x"
	"github.com/google/am335x-update-firmware/internal/apply"
	"github.com/google/am335x-update-firmware/internal/detect"
	"github.com/google/am335x-update-firmware/internal/diag"
	"github.com/google/am335x-update-firmware/internal/discover"
	"github.com/google/am335x-update-firmware/internal/dtc"
	"github.com/google/am335x-update-firmware/internal/plan"
)

// Action says what to do with outdated images.
type Action int

const (
	// DryRun only reports outdated images.
	DryRun Action = iota
	// Interactive asks before replacing each outdated image.
	Interactive
	// Force replaces outdated images without asking.
	Force
)

func (a Action) String() string {
	switch a {
	case DryRun:
		return "dry-run"
	case Interactive:
		return "interactive"
	case Force:
		return "force"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// UpdateOpts encapsulates update tool parameters.
type UpdateOpts struct {
	MLOPath   string
	UBootPath string
	Devices   []string
	Action    Action

	// Decompiler is "dtc" to run DTCPath, or "native".
	Decompiler string
	DTCPath    string

	SkipHostChecks bool
	// ModelPath overrides am335x.ModelPath.
	ModelPath string

	// In is read for answers in interactive mode.
	In io.Reader
	// Out receives the report.
	Out io.Writer
	// Applier replaces images. Defaults to apply.Raw.
	Applier apply.Applier
	// Log receives diagnostics. Defaults to diag.Nop.
	Log diag.Logger
}

// Main checks the images on opts.Devices against the candidates and deals
// with outdated ones according to opts.Action. It reports whether any
// outdated image was found.
func Main(ctx context.Context, opts UpdateOpts) (bool, error) {
	if opts.Log == nil {
		opts.Log = diag.Nop
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Applier == nil {
		opts.Applier = apply.Raw{Log: opts.Log}
	}

	if !opts.SkipHostChecks {
		if err := am335x.CheckRoot(); err != nil {
			return false, err
		}
		modelPath := opts.ModelPath
		if modelPath == "" {
			modelPath = am335x.ModelPath
		}
		if err := am335x.CheckHost(modelPath); err != nil {
			return false, err
		}
	}

	d, err := decompiler(opts.Decompiler, opts.DTCPath)
	if err != nil {
		return false, err
	}
	prober := &detect.Prober{Decompiler: d, Log: opts.Log}

	mlo, err := candidate(ctx, prober, opts.MLOPath, api.MLO)
	if err != nil {
		return false, err
	}
	uboot, err := candidate(ctx, prober, opts.UBootPath, api.UBOOT)
	if err != nil {
		return false, err
	}

	p := &plan.Planner{
		Discoverer: &discover.Discoverer{Prober: prober, Log: opts.Log},
		Log:        opts.Log,
	}
	updates, err := p.Plan(ctx, mlo, uboot, opts.Devices)
	if err != nil {
		return false, err
	}
	if len(updates) == 0 {
		opts.Log.Infof("All images are up to date")
		return false, nil
	}

	r := &reporter{out: opts.Out, in: bufio.NewScanner(opts.In)}
	for _, u := range updates {
		if err := r.handle(ctx, opts.Action, opts.Applier, u); err != nil {
			return true, err
		}
	}
	return true, nil
}

func decompiler(name, path string) (dtc.Decompiler, error) {
	switch name {
	case "", "dtc":
		return dtc.Tool{Path: path}, nil
	case "native":
		return dtc.Native{}, nil
	}
	return nil, fmt.Errorf("decompiler must be one of: 'dtc', 'native', got %q", name)
}

// candidate checks the file at path holds an image of the given kind.
func candidate(ctx context.Context, prober *detect.Prober, path string, kind api.FirmwareImageKind) (*api.FirmwareImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &api.CandidateError{Path: path, Err: err}
	}
	defer f.Close()

	switch kind {
	case api.MLO:
		_, err = prober.MLOSize(f)
	case api.UBOOT:
		_, err = prober.UBootSize(ctx, f)
	}
	if errors.Is(err, detect.ErrNotFound) {
		return nil, &api.CandidateError{Path: path, Err: fmt.Errorf("not a valid %v: %w", kind, err)}
	}
	if err != nil {
		return nil, err
	}
	return api.NewCandidateImage(path, kind)
}

// reporter tells the user about outdated images and asks what to do.
type reporter struct {
	out io.Writer
	in  *bufio.Scanner
}

var (
	destColor = color.New(color.FgYellow).SprintFunc()
	srcColor  = color.New(color.FgGreen).SprintFunc()
)

func (r *reporter) handle(ctx context.Context, action Action, a apply.Applier, u plan.Update) error {
	path, _ := u.New.Source()
	dest := destColor(fmt.Sprintf("%v at 0x%x on %s", u.Old.Kind, u.Old.Offset, u.Old.Device))
	src := srcColor(fmt.Sprintf("%s (%s bytes)", path, humanize.Comma(u.New.Size)))

	switch action {
	case DryRun:
		fmt.Fprintf(r.out, "%s would be overwritten by %s\n", dest, src)
		return nil
	case Force:
		fmt.Fprintf(r.out, "%s will be overwritten with the contents of %s\n", dest, src)
	case Interactive:
		fmt.Fprintf(r.out, "Should %s be overwritten by %s? [y/N] ", dest, src)
		if !r.confirmed() {
			fmt.Fprintln(r.out, "Skipping...")
			return nil
		}
	default:
		return fmt.Errorf("unknown action %v", action)
	}
	if err := a.Apply(ctx, u); err != nil {
		return fmt.Errorf("failed to update %v: %w", u.Old, err)
	}
	return nil
}

func (r *reporter) confirmed() bool {
	if !r.in.Scan() {
		// No answer is a no.
		fmt.Fprintln(r.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(r.in.Text())) {
	case "y", "yes":
		return true
	}
	return false
}
