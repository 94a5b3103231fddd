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
	"fmt"

	"github.com/u-root/u-root/pkg/dt"
)

// Native decompiles blobs in process.
type Native struct{}

var _ Decompiler = Native{}

// Decompile implements Decompiler.
func (Native) Decompile(_ context.Context, blob []byte) (*Node, error) {
	fdt, err := dt.ReadFDT(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInconclusive, err)
	}
	if fdt.RootNode == nil {
		return nil, fmt.Errorf("%w: no root node", ErrInconclusive)
	}
	return fromDT(fdt.RootNode), nil
}

func fromDT(d *dt.Node) *Node {
	n := &Node{Name: d.Name}
	for _, p := range d.Properties {
		n.Properties = append(n.Properties, Property{Name: p.Name, Cells: cells32(p.Value)})
	}
	for _, c := range d.Children {
		n.Children = append(n.Children, fromDT(c))
	}
	return n
}
