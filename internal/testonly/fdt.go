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

package testonly

import (
	"bytes"
	"encoding/binary"
)

const (
	fdtMagic      = 0xd00dfeed
	fdtBeginNode  = 0x1
	fdtEndNode    = 0x2
	fdtProp       = 0x3
	fdtEnd        = 0x9
	fdtHeaderLen  = 40
	fdtRsvmapLen  = 16
	fdtVersion    = 17
	fdtLastCompat = 16
)

// Node is a device tree node used to build flattened device trees.
type Node struct {
	Name     string
	Props    []Prop
	Children []*Node
}

// Prop is a device tree property.
type Prop struct {
	Name  string
	Value []byte
}

// U32 encodes v as a single big-endian cell.
func U32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// String encodes s as a NUL-terminated property value.
func String(s string) []byte {
	return append([]byte(s), 0)
}

// FDT flattens the tree rooted at root into a version 17 device tree blob.
func FDT(root *Node) []byte {
	strs := new(bytes.Buffer)
	offsets := map[string]uint32{}
	nameOff := func(name string) uint32 {
		if off, ok := offsets[name]; ok {
			return off
		}
		off := uint32(strs.Len())
		strs.WriteString(name)
		strs.WriteByte(0)
		offsets[name] = off
		return off
	}

	st := new(bytes.Buffer)
	var emit func(n *Node)
	emit = func(n *Node) {
		binary.Write(st, binary.BigEndian, uint32(fdtBeginNode))
		st.WriteString(n.Name)
		st.WriteByte(0)
		pad4(st)
		for _, p := range n.Props {
			binary.Write(st, binary.BigEndian, []uint32{fdtProp, uint32(len(p.Value)), nameOff(p.Name)})
			st.Write(p.Value)
			pad4(st)
		}
		for _, c := range n.Children {
			emit(c)
		}
		binary.Write(st, binary.BigEndian, uint32(fdtEndNode))
	}
	emit(root)
	binary.Write(st, binary.BigEndian, uint32(fdtEnd))
	pad4(strs)

	offStruct := uint32(fdtHeaderLen + fdtRsvmapLen)
	offStrings := offStruct + uint32(st.Len())
	total := offStrings + uint32(strs.Len())

	out := new(bytes.Buffer)
	binary.Write(out, binary.BigEndian, []uint32{
		fdtMagic,
		total,
		offStruct,
		offStrings,
		fdtHeaderLen, // memory reservation map
		fdtVersion,
		fdtLastCompat,
		0, // boot CPU
		uint32(strs.Len()),
		uint32(st.Len()),
	})
	out.Write(make([]byte, fdtRsvmapLen))
	out.Write(st.Bytes())
	out.Write(strs.Bytes())
	return out.Bytes()
}

func pad4(b *bytes.Buffer) {
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
}

// FITImage describes an image entry with external data in a FIT.
type FITImage struct {
	Name       string
	DataOffset uint32
	DataSize   uint32
}

// FITTree returns the device tree of a FIT whose images node lists images.
func FITTree(images ...FITImage) *Node {
	imgs := &Node{Name: "images"}
	for _, i := range images {
		imgs.Children = append(imgs.Children, &Node{
			Name: i.Name,
			Props: []Prop{
				{Name: "description", Value: String(i.Name)},
				{Name: "type", Value: String("firmware")},
				{Name: "data-size", Value: U32(i.DataSize)},
				{Name: "data-offset", Value: U32(i.DataOffset)},
			},
		})
	}
	return &Node{
		Props: []Prop{
			{Name: "description", Value: String("Firmware image with one or more FDT blobs")},
			{Name: "#address-cells", Value: U32(1)},
		},
		Children: []*Node{
			imgs,
			{
				Name:  "configurations",
				Props: []Prop{{Name: "default", Value: String("conf-1")}},
			},
		},
	}
}

// FIT returns a FIT with external data: the flattened tree followed by the
// image data, padded to a 4-byte boundary.
func FIT(seed byte, images ...FITImage) []byte {
	blob := FDT(FITTree(images...))
	var extra uint32
	for _, i := range images {
		if end := i.DataOffset + i.DataSize; end > extra {
			extra = end
		}
	}
	extra = (extra + 3) &^ 3
	return append(blob, Pattern(int(extra), seed)...)
}
