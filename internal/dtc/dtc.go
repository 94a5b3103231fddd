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

// Package dtc turns flattened device tree blobs into a tree of nodes and
// properties, either with the external dtc compiler or in process.
package dtc

import (
	"context"
	"encoding/binary"
	"errors"
)

// ErrInconclusive is returned when a blob could not be turned into a tree.
var ErrInconclusive = errors.New("device tree could not be decompiled")

// Decompiler converts a flattened device tree blob into a tree.
type Decompiler interface {
	// Decompile returns the root node of the tree in blob. Failures caused
	// by the blob itself wrap ErrInconclusive.
	Decompile(ctx context.Context, blob []byte) (*Node, error)
}

// Node is a device tree node.
type Node struct {
	Name       string
	Properties []Property
	Children   []*Node
}

// Property is a device tree property. Cells holds the value as a list of
// integer cells when it has that form, and is nil otherwise.
type Property struct {
	Name  string
	Cells []uint64
}

// Child returns the first child of n called name.
func (n *Node) Child(name string) (*Node, bool) {
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Property returns the property of n called name.
func (n *Node) Property(name string) (Property, bool) {
	for _, p := range n.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// cells32 splits a raw property value into big-endian 32-bit cells.
func cells32(v []byte) []uint64 {
	if len(v) == 0 || len(v)%4 != 0 {
		return nil
	}
	c := make([]uint64, 0, len(v)/4)
	for i := 0; i < len(v); i += 4 {
		c = append(c, uint64(binary.BigEndian.Uint32(v[i:])))
	}
	return c
}
