//
// Copyright (c) SAS Institute Inc.
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
//

// Package pecofftest builds synthetic EFI stub images for tests. Images are
// laid out by hand from raw bytes so that they do not depend on the pecoff
// writer.
package pecofftest

import (
	"encoding/binary"
)

const (
	MachineAMD64 = 0x8664
	MachineARM64 = 0xaa64

	peStart        = 0x80
	optHeaderSize  = 240
	sectionHdrSize = 40
	checksumPos    = peStart + 4 + 20 + 64
)

// Section describes one section of a synthetic stub.
type Section struct {
	Name            string
	Data            []byte
	Characteristics uint32
}

// Options controls the layout of a synthetic stub. Zero values select a
// 3-section x86_64 stub with FileAlignment 0x200 and SectionAlignment 0x1000.
type Options struct {
	Machine          uint16
	FileAlignment    uint32
	SectionAlignment uint32
	Sections         []Section
	// SpareHeaders reserves room for this many more section headers before
	// the first section's raw data.
	SpareHeaders int
	// Overlay is appended after the last section.
	Overlay []byte
	// Certificates, if set, is appended as the certificate table.
	Certificates []byte
	// DebugDirectory sets data directory 6 (RVA, size).
	DebugDirectory [2]uint32
}

// DefaultSections are the sections of the default stub.
func DefaultSections() []Section {
	text := make([]byte, 0x1234)
	for i := range text {
		text[i] = byte(i*7 + 1)
	}
	return []Section{
		{Name: ".text", Data: text, Characteristics: 0x60000020},
		{Name: ".data", Data: []byte("stub data section"), Characteristics: 0xc0000040},
		{Name: ".reloc", Data: []byte{0, 0x10, 0, 0, 0x0c, 0, 0, 0}, Characteristics: 0x42000040},
	}
}

// Layout is where Build placed a section.
type Layout struct {
	VirtualAddress   uint32
	PointerToRawData uint32
	SizeOfRawData    uint32
}

// Stub is a synthetic image along with its computed layout.
type Stub struct {
	Bytes         []byte
	Sections      []Layout
	SizeOfHeaders uint32
	SizeOfImage   uint32
}

// Build lays out and serializes a stub.
func Build(opts Options) *Stub {
	if opts.Machine == 0 {
		opts.Machine = MachineAMD64
	}
	if opts.FileAlignment == 0 {
		opts.FileAlignment = 0x200
	}
	if opts.SectionAlignment == 0 {
		opts.SectionAlignment = 0x1000
	}
	if opts.Sections == nil {
		opts.Sections = DefaultSections()
	}
	fa, sa := opts.FileAlignment, opts.SectionAlignment
	nsec := len(opts.Sections)
	hdrEnd := uint32(peStart + 4 + 20 + optHeaderSize + (nsec+opts.SpareHeaders)*sectionHdrSize)
	st := &Stub{SizeOfHeaders: align(hdrEnd, fa)}
	va := align(st.SizeOfHeaders, sa)
	raw := st.SizeOfHeaders
	var sizeOfCode, sizeOfData uint32
	for _, s := range opts.Sections {
		l := Layout{VirtualAddress: va, SizeOfRawData: align(uint32(len(s.Data)), fa)}
		if l.SizeOfRawData != 0 {
			l.PointerToRawData = raw
			raw += l.SizeOfRawData
		}
		if s.Characteristics&0x20 != 0 {
			sizeOfCode += l.SizeOfRawData
		} else {
			sizeOfData += l.SizeOfRawData
		}
		span := uint32(len(s.Data))
		if span == 0 {
			span = 1
		}
		va = align(va+span, sa)
		st.Sections = append(st.Sections, l)
	}
	st.SizeOfImage = va
	fileSize := raw + uint32(len(opts.Overlay))
	var certStart uint32
	if len(opts.Certificates) != 0 {
		certStart = align(fileSize, 8)
		fileSize = certStart + uint32(len(opts.Certificates))
	}
	buf := make([]byte, fileSize)
	// DOS header
	buf[0], buf[1] = 'M', 'Z'
	le.PutUint32(buf[0x3c:], peStart)
	copy(buf[0x40:], "This program cannot be run in DOS mode.")
	// COFF header
	p := buf[peStart:]
	copy(p, "PE\x00\x00")
	le.PutUint16(p[4:], opts.Machine)
	le.PutUint16(p[6:], uint16(nsec))
	le.PutUint16(p[20:], optHeaderSize)
	le.PutUint16(p[22:], 0x0022) // executable, large address aware
	// optional header
	o := p[24:]
	le.PutUint16(o[0:], 0x20b)
	o[2] = 2
	le.PutUint32(o[4:], sizeOfCode)
	le.PutUint32(o[8:], sizeOfData)
	if nsec != 0 {
		le.PutUint32(o[16:], st.Sections[0].VirtualAddress)
		le.PutUint32(o[20:], st.Sections[0].VirtualAddress)
	}
	le.PutUint32(o[32:], sa)
	le.PutUint32(o[36:], fa)
	le.PutUint32(o[56:], st.SizeOfImage)
	le.PutUint32(o[60:], st.SizeOfHeaders)
	le.PutUint16(o[68:], 10) // EFI application
	le.PutUint64(o[72:], 0x100000)
	le.PutUint64(o[80:], 0x1000)
	le.PutUint32(o[108:], 16)
	if opts.DebugDirectory[1] != 0 {
		le.PutUint32(o[112+6*8:], opts.DebugDirectory[0])
		le.PutUint32(o[112+6*8+4:], opts.DebugDirectory[1])
	}
	if certStart != 0 {
		le.PutUint32(o[112+4*8:], certStart)
		le.PutUint32(o[112+4*8+4:], uint32(len(opts.Certificates)))
		copy(buf[certStart:], opts.Certificates)
	}
	// section table
	tbl := o[optHeaderSize:]
	for i, s := range opts.Sections {
		h := tbl[i*sectionHdrSize:]
		l := st.Sections[i]
		copy(h[:8], s.Name)
		le.PutUint32(h[8:], uint32(len(s.Data)))
		le.PutUint32(h[12:], l.VirtualAddress)
		le.PutUint32(h[16:], l.SizeOfRawData)
		le.PutUint32(h[20:], l.PointerToRawData)
		le.PutUint32(h[36:], s.Characteristics)
		copy(buf[l.PointerToRawData:], s.Data)
	}
	copy(buf[raw:], opts.Overlay)
	le.PutUint32(buf[checksumPos:], Checksum(buf))
	st.Bytes = buf
	return st
}

// Default returns the bytes of the default 3-section stub.
func Default() []byte {
	return Build(Options{}).Bytes
}

// Checksum computes the PE checksum of an image whose PE header starts at the
// offset stored at 0x3c, skipping the CheckSum field.
func Checksum(data []byte) uint32 {
	ckpos := int(le.Uint32(data[0x3c:])) + 4 + 20 + 64
	var sum uint64
	for i := 0; i < len(data); i += 2 {
		if i == ckpos || i == ckpos+2 {
			continue
		}
		word := uint64(data[i])
		if i+1 < len(data) {
			word |= uint64(data[i+1]) << 8
		}
		sum += word
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint32(sum) + uint32(len(data))
}

var le = binary.LittleEndian

func align(v, a uint32) uint32 {
	return (v + a - 1) &^ (a - 1)
}
