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

// Package pecoff reads, extends and writes PE32+ EFI executables.
package pecoff

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"strings"
)

// PE-COFF: https://learn.microsoft.com/en-us/windows/win32/debug/pe-format

const (
	dosHeaderSize     = 64
	signatureSize     = 4
	fileHeaderSize    = 20
	optHeaderFixed64  = 112 // PE32+ optional header without data directories
	optHeaderSize64   = 240 // binary.Size(pe.OptionalHeader64{})
	dataDirSize       = 8
	sectionHeaderSize = 40

	// offsets within the optional header
	checksumOffset = 64
	certDirOffset  = optHeaderFixed64 + pe.IMAGE_DIRECTORY_ENTRY_SECURITY*dataDirSize

	optHeaderMagicPE32Plus = 0x20b

	// CertificateAlignment is the alignment of the certificate table and of
	// each record in it.
	CertificateAlignment = 8
)

// Image is an in-memory PE32+ executable. Section order is file order.
type Image struct {
	// DOS holds everything before the PE signature: the DOS header and stub.
	// Its length is the e_lfanew value.
	DOS            []byte
	FileHeader     pe.FileHeader
	OptionalHeader pe.OptionalHeader64
	Sections       []*Section
	// Overlay is data that follows the last section but is not part of the
	// certificate table.
	Overlay []byte
	// Certificates is the raw certificate table, nil if the image is unsigned.
	Certificates []byte

	// optional header bytes beyond the PE32+ structure, if any
	optTail []byte
}

// Section is a section header with its raw data. len(Data) always equals
// Header.SizeOfRawData.
type Section struct {
	Header pe.SectionHeader32
	Data   []byte
}

// Name returns the section name without NUL padding.
func (s *Section) Name() string {
	return strings.TrimRight(string(s.Header.Name[:]), "\x00")
}

// span is the size the section occupies in memory for layout purposes. Empty
// sections still claim one byte so that addresses keep increasing.
func (s *Section) span() uint32 {
	switch {
	case s.Header.VirtualSize != 0:
		return s.Header.VirtualSize
	case s.Header.SizeOfRawData != 0:
		return s.Header.SizeOfRawData
	default:
		return 1
	}
}

func (s *Section) clone() *Section {
	return &Section{Header: s.Header, Data: bytes.Clone(s.Data)}
}

// PEStart returns the file offset of the PE signature (e_lfanew).
func (img *Image) PEStart() int64 {
	return int64(len(img.DOS))
}

// ChecksumOffset returns the file offset of the CheckSum field.
func (img *Image) ChecksumOffset() int64 {
	return img.optStart() + checksumOffset
}

// CertificateDirectoryOffset returns the file offset of the certificate table
// data directory entry.
func (img *Image) CertificateDirectoryOffset() int64 {
	return img.optStart() + certDirOffset
}

// CertificateTable returns the certificate table data directory entry.
func (img *Image) CertificateTable() pe.DataDirectory {
	return img.OptionalHeader.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_SECURITY]
}

// FileAlignment returns the alignment of raw section data in the file.
func (img *Image) FileAlignment() uint32 {
	return img.OptionalHeader.FileAlignment
}

// SectionAlignment returns the alignment of sections in memory.
func (img *Image) SectionAlignment() uint32 {
	return img.OptionalHeader.SectionAlignment
}

// Section returns the first section with the given name, or nil.
func (img *Image) Section(name string) *Section {
	for _, s := range img.Sections {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Clone returns a deep copy of the image.
func (img *Image) Clone() *Image {
	out := *img
	out.DOS = bytes.Clone(img.DOS)
	out.Overlay = bytes.Clone(img.Overlay)
	out.Certificates = bytes.Clone(img.Certificates)
	out.optTail = bytes.Clone(img.optTail)
	out.Sections = make([]*Section, len(img.Sections))
	for i, s := range img.Sections {
		out.Sections[i] = s.clone()
	}
	return &out
}

func (img *Image) optStart() int64 {
	return img.PEStart() + signatureSize + fileHeaderSize
}

// end of the section table, given the number of sections
func (img *Image) headerEnd(numSections int) int64 {
	return img.optStart() + int64(img.FileHeader.SizeOfOptionalHeader) + int64(numSections)*sectionHeaderSize
}

// ContentEnd returns the file offset just past the last byte of raw section
// data, or SizeOfHeaders if no section has raw data.
func (img *Image) ContentEnd() int64 {
	end := int64(img.OptionalHeader.SizeOfHeaders)
	for _, s := range img.Sections {
		if s.Header.SizeOfRawData == 0 {
			continue
		}
		if e := int64(s.Header.PointerToRawData) + int64(s.Header.SizeOfRawData); e > end {
			end = e
		}
	}
	return end
}

// imageSize computes SizeOfImage from the section layout.
func (img *Image) imageSize() uint64 {
	if len(img.Sections) == 0 {
		return alignUp64(uint64(img.OptionalHeader.SizeOfHeaders), uint64(img.SectionAlignment()))
	}
	last := img.Sections[len(img.Sections)-1]
	return alignUp64(uint64(last.Header.VirtualAddress)+uint64(last.span()), uint64(img.SectionAlignment()))
}

// Validate checks the header fields and layout invariants of the image.
func (img *Image) Validate() error {
	if len(img.DOS) < dosHeaderSize || img.DOS[0] != 'M' || img.DOS[1] != 'Z' {
		return malformed("missing DOS header")
	}
	if lfanew := binary.LittleEndian.Uint32(img.DOS[0x3c:]); int64(lfanew) != img.PEStart() || lfanew%4 != 0 {
		return malformed("PE header offset 0x%x does not match DOS header length 0x%x", lfanew, len(img.DOS))
	}
	opt := &img.OptionalHeader
	if opt.Magic != optHeaderMagicPE32Plus {
		return malformed("optional header magic 0x%x is not PE32+", opt.Magic)
	}
	if opt.Subsystem != pe.IMAGE_SUBSYSTEM_EFI_APPLICATION {
		return malformed("subsystem %d is not an EFI application", opt.Subsystem)
	}
	if img.FileHeader.Characteristics&pe.IMAGE_FILE_EXECUTABLE_IMAGE == 0 {
		return malformed("COFF characteristics 0x%x do not mark an executable image", img.FileHeader.Characteristics)
	}
	if int(img.FileHeader.NumberOfSections) != len(img.Sections) {
		return malformed("header declares %d sections but image has %d", img.FileHeader.NumberOfSections, len(img.Sections))
	}
	fa, sa := opt.FileAlignment, opt.SectionAlignment
	if !isPow2(fa) || !isPow2(sa) || sa < fa {
		return malformed("bad alignment: file 0x%x, section 0x%x", fa, sa)
	}
	if opt.SizeOfHeaders%fa != 0 {
		return malformed("SizeOfHeaders 0x%x is not aligned to 0x%x", opt.SizeOfHeaders, fa)
	}
	if end := img.headerEnd(len(img.Sections)); int64(opt.SizeOfHeaders) < end {
		return malformed("SizeOfHeaders 0x%x is smaller than the header region 0x%x", opt.SizeOfHeaders, end)
	}
	nextRaw := int64(opt.SizeOfHeaders)
	nextVA := uint64(opt.SizeOfHeaders)
	for i, s := range img.Sections {
		h := &s.Header
		if len(s.Data) != int(h.SizeOfRawData) {
			return malformed("section %d (%s) has 0x%x bytes of data but SizeOfRawData 0x%x", i, s.Name(), len(s.Data), h.SizeOfRawData)
		}
		if h.VirtualAddress%sa != 0 {
			return malformed("section %d (%s) address 0x%x is not aligned to 0x%x", i, s.Name(), h.VirtualAddress, sa)
		}
		if uint64(h.VirtualAddress) < nextVA {
			return malformed("section %d (%s) address 0x%x overlaps previous section ending at 0x%x", i, s.Name(), h.VirtualAddress, nextVA)
		}
		nextVA = uint64(h.VirtualAddress) + uint64(s.span())
		if h.SizeOfRawData == 0 {
			continue
		}
		if h.PointerToRawData%fa != 0 {
			return malformed("section %d (%s) file offset 0x%x is not aligned to 0x%x", i, s.Name(), h.PointerToRawData, fa)
		}
		if int64(h.PointerToRawData) < nextRaw {
			return malformed("section %d (%s) file offset 0x%x overlaps data ending at 0x%x", i, s.Name(), h.PointerToRawData, nextRaw)
		}
		nextRaw = int64(h.PointerToRawData) + int64(h.SizeOfRawData)
	}
	if want := img.imageSize(); uint64(opt.SizeOfImage) != want {
		return malformed("SizeOfImage 0x%x does not match section layout 0x%x", opt.SizeOfImage, want)
	}
	if dd := img.CertificateTable(); dd.Size != 0 {
		if dd.VirtualAddress%CertificateAlignment != 0 {
			return malformed("certificate table at 0x%x is not 8-byte aligned", dd.VirtualAddress)
		}
		if int64(dd.VirtualAddress) < img.ContentEnd()+int64(len(img.Overlay)) {
			return malformed("certificate table at 0x%x overlaps section data", dd.VirtualAddress)
		}
	}
	return nil
}

func isPow2(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

func alignUp64(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
