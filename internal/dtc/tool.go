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

package dtc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/am335x-update-firmware/api"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"
)

// DefaultPath is the dtc binary looked up on PATH when Tool.Path is empty.
const DefaultPath = "dtc"

// Tool decompiles blobs by running the device tree compiler twice: once to
// turn the blob into source, and once more to turn the source into YAML.
type Tool struct {
	// Path is the dtc binary to run.
	Path string
}

var _ Decompiler = Tool{}

func (t Tool) path() string {
	if t.Path == "" {
		return DefaultPath
	}
	return t.Path
}

// Decompile implements Decompiler.
//
// If dtc cannot be run at all an *api.ToolError is returned; a dtc which
// fails or produces output that cannot be parsed yields ErrInconclusive.
func (t Tool) Decompile(ctx context.Context, blob []byte) (*Node, error) {
	p := t.path()
	if _, err := exec.LookPath(p); err != nil {
		return nil, &api.ToolError{Tool: p, Err: err}
	}

	toDTS := exec.CommandContext(ctx, p, "-I", "dtb", "-O", "dts", "-o", "-", "-")
	toYAML := exec.CommandContext(ctx, p, "-I", "dts", "-O", "yaml", "-o", "-", "-")
	toDTS.Stdin = bytes.NewReader(blob)
	dts, err := toDTS.StdoutPipe()
	if err != nil {
		return nil, &api.ToolError{Tool: p, Err: err}
	}
	toYAML.Stdin = dts
	var out, dtsErr, yamlErr bytes.Buffer
	toYAML.Stdout = &out
	toDTS.Stderr = &dtsErr
	toYAML.Stderr = &yamlErr

	if err := toDTS.Start(); err != nil {
		return nil, &api.ToolError{Tool: p, Err: err}
	}
	if err := toYAML.Start(); err != nil {
		toDTS.Process.Kill()
		toDTS.Wait()
		return nil, &api.ToolError{Tool: p, Err: err}
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := toDTS.Wait(); err != nil {
			return fmt.Errorf("dtb to dts conversion failed: %v: %s", err, strings.TrimSpace(dtsErr.String()))
		}
		return nil
	})
	g.Go(func() error {
		if err := toYAML.Wait(); err != nil {
			return fmt.Errorf("dts to yaml conversion failed: %v: %s", err, strings.TrimSpace(yamlErr.String()))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInconclusive, err)
	}
	return parseYAML(out.Bytes())
}

// parseYAML reads the first tree of the first document in dtc's YAML output.
// Mapping order is kept, so children appear in the order dtc wrote them.
func parseYAML(b []byte) (*Node, error) {
	var trees []yaml.MapSlice
	if err := yaml.Unmarshal(b, &trees); err != nil {
		return nil, fmt.Errorf("%w: bad YAML from dtc: %v", ErrInconclusive, err)
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("%w: dtc produced no trees", ErrInconclusive)
	}
	return fromMapSlice("", trees[0]), nil
}

func fromMapSlice(name string, m yaml.MapSlice) *Node {
	n := &Node{Name: name}
	for _, item := range m {
		key := fmt.Sprint(item.Key)
		if child, ok := item.Value.(yaml.MapSlice); ok {
			n.Children = append(n.Children, fromMapSlice(key, child))
			continue
		}
		n.Properties = append(n.Properties, Property{Name: key, Cells: yamlCells(item.Value)})
	}
	return n
}

// yamlCells flattens dtc's representation of integer properties, a list of
// cell groups such as [[0x1, 0x2], [0x3]], into a list of cells.
func yamlCells(v interface{}) []uint64 {
	groups, ok := v.([]interface{})
	if !ok || len(groups) == 0 {
		return nil
	}
	var cells []uint64
	for _, g := range groups {
		group, ok := g.([]interface{})
		if !ok {
			return nil
		}
		for _, c := range group {
			u, ok := toUint64(c)
			if !ok {
				return nil
			}
			cells = append(cells, u)
		}
	}
	return cells
}

func toUint64(v interface{}) (uint64, bool) {
	switch i := v.(type) {
	case int:
		return uint64(i), i >= 0
	case int64:
		return uint64(i), i >= 0
	case uint64:
		return i, true
	case uint:
		return uint64(i), true
	}
	return 0, false
}

// IsToolError reports whether err means the decompiler could not be run.
func IsToolError(err error) bool {
	var te *api.ToolError
	return errors.As(err, &te)
}
