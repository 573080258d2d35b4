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

package pecoff

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// PayloadCharacteristics marks an embedded section as initialized,
	// read-only, non-executable data.
	PayloadCharacteristics = pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ

	maxSectionName = 8

	// IMAGE_DEBUG_DIRECTORY
	debugEntrySize      = 28
	debugRawPtrOffset   = 24
	debugDirectoryIndex = pe.IMAGE_DIRECTORY_ENTRY_DEBUG
)

// Payload is a blob to be added to an image as a new section.
type Payload struct {
	Name string
	Data []byte
	// VirtualAddress pins the section at a fixed RVA. Zero places it directly
	// after the previous section.
	VirtualAddress uint32
}

// Embed returns a copy of img with one new section per payload appended, in
// the order given. img itself is not modified. Any certificate table on img is
// dropped since adding sections invalidates it.
func Embed(img *Image, payloads []Payload) (*Image, error) {
	if err := checkPayloadNames(img, payloads); err != nil {
		return nil, err
	}
	if total := len(img.Sections) + len(payloads); total > math.MaxUint16 {
		return nil, tooLarge("image would have %d sections", total)
	}
	out := img.Clone()
	out.Certificates = nil
	out.OptionalHeader.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_SECURITY] = pe.DataDirectory{}
	oldContentEnd := out.ContentEnd()
	headerDelta, err := out.growHeaders(len(payloads))
	if err != nil {
		return nil, err
	}
	initData := uint64(out.OptionalHeader.SizeOfInitializedData)
	for _, p := range payloads {
		s, err := out.nextSection(p)
		if err != nil {
			return nil, err
		}
		out.Sections = append(out.Sections, s)
		initData += uint64(s.Header.SizeOfRawData)
	}
	if initData > math.MaxUint32 {
		return nil, tooLarge("SizeOfInitializedData 0x%x", initData)
	}
	out.OptionalHeader.SizeOfInitializedData = uint32(initData)
	out.FileHeader.NumberOfSections = uint16(len(out.Sections))
	size := out.imageSize()
	if size > math.MaxUint32 {
		return nil, tooLarge("image size 0x%x", size)
	}
	out.OptionalHeader.SizeOfImage = uint32(size)
	// anything that pointed into the overlay moves with it
	overlayDelta := out.ContentEnd() - oldContentEnd
	if err := out.rebaseFilePointers(oldContentEnd, headerDelta, overlayDelta); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func checkPayloadNames(img *Image, payloads []Payload) error {
	seen := make(map[string]bool, len(img.Sections)+len(payloads))
	for _, s := range img.Sections {
		seen[s.Name()] = true
	}
	for _, p := range payloads {
		if len(p.Name) == 0 || len(p.Name) > maxSectionName {
			return fmt.Errorf("%w: section name %q must be 1 to %d bytes", ErrInvalidPayload, p.Name, maxSectionName)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: %s", ErrSectionNameCollision, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// growHeaders makes room in the header region for n more section headers,
// shifting all section data forward if needed. Returns the shift applied.
func (img *Image) growHeaders(n int) (int64, error) {
	need := img.headerEnd(len(img.Sections) + n)
	soh := int64(img.OptionalHeader.SizeOfHeaders)
	if need <= soh {
		return 0, nil
	}
	newSOH := int64(alignUp64(uint64(need), uint64(img.FileAlignment())))
	if len(img.Sections) != 0 {
		if first := int64(img.Sections[0].Header.VirtualAddress); newSOH > first {
			return 0, tooLarge("headers would grow to 0x%x, past the first section at 0x%x", newSOH, first)
		}
	}
	delta := newSOH - soh
	for _, s := range img.Sections {
		if s.Header.SizeOfRawData == 0 {
			continue
		}
		ptr := int64(s.Header.PointerToRawData) + delta
		if ptr+int64(s.Header.SizeOfRawData) > math.MaxUint32 {
			return 0, tooLarge("section %s would move to 0x%x", s.Name(), ptr)
		}
		s.Header.PointerToRawData = uint32(ptr)
	}
	img.OptionalHeader.SizeOfHeaders = uint32(newSOH)
	return delta, nil
}

// nextSection lays out a payload after the current last section.
func (img *Image) nextSection(p Payload) (*Section, error) {
	fa, sa := uint64(img.FileAlignment()), uint64(img.SectionAlignment())
	var va uint64
	if len(img.Sections) == 0 {
		va = alignUp64(uint64(img.OptionalHeader.SizeOfHeaders), sa)
	} else {
		last := img.Sections[len(img.Sections)-1]
		va = alignUp64(uint64(last.Header.VirtualAddress)+uint64(last.span()), sa)
	}
	if p.VirtualAddress != 0 {
		pinned := uint64(p.VirtualAddress)
		if pinned%sa != 0 || pinned < va {
			return nil, fmt.Errorf("%w: section %s address 0x%x must be aligned to 0x%x and at least 0x%x", ErrInvalidPayload, p.Name, pinned, sa, va)
		}
		va = pinned
	}
	size := uint64(len(p.Data))
	rawSize := alignUp64(size, fa)
	if va+alignUp64(size, sa) > math.MaxUint32 {
		return nil, tooLarge("section %s at 0x%x with size 0x%x", p.Name, va, size)
	}
	if rawSize > math.MaxUint32 {
		return nil, tooLarge("section %s raw size 0x%x", p.Name, rawSize)
	}
	s := &Section{Data: make([]byte, rawSize)}
	copy(s.Data, p.Data)
	copy(s.Header.Name[:], p.Name)
	s.Header.VirtualSize = uint32(size)
	s.Header.VirtualAddress = uint32(va)
	s.Header.SizeOfRawData = uint32(rawSize)
	s.Header.Characteristics = PayloadCharacteristics
	if rawSize != 0 {
		ptr := alignUp64(uint64(img.ContentEnd()), fa)
		if ptr+rawSize > math.MaxUint32 {
			return nil, tooLarge("section %s would end at file offset 0x%x", p.Name, ptr+rawSize)
		}
		s.Header.PointerToRawData = uint32(ptr)
	}
	return s, nil
}

// rebaseFilePointers fixes up file offsets stored outside the section table:
// the COFF symbol table pointer and the raw data pointers of debug directory
// entries. Offsets into section data move by headerDelta, offsets into the
// overlay by overlayDelta.
func (img *Image) rebaseFilePointers(oldContentEnd, headerDelta, overlayDelta int64) error {
	if headerDelta == 0 && overlayDelta == 0 {
		return nil
	}
	rebase := func(ptr uint32) (uint32, error) {
		if ptr == 0 {
			return 0, nil
		}
		moved := int64(ptr)
		if moved >= oldContentEnd {
			moved += overlayDelta
		} else {
			moved += headerDelta
		}
		if moved > math.MaxUint32 {
			return 0, tooLarge("file pointer 0x%x would move to 0x%x", ptr, moved)
		}
		return uint32(moved), nil
	}
	var err error
	if img.FileHeader.PointerToSymbolTable, err = rebase(img.FileHeader.PointerToSymbolTable); err != nil {
		return err
	}
	if img.OptionalHeader.NumberOfRvaAndSizes <= debugDirectoryIndex {
		return nil
	}
	dd := img.OptionalHeader.DataDirectory[debugDirectoryIndex]
	if dd.Size == 0 {
		return nil
	}
	for _, s := range img.Sections {
		start := s.Header.VirtualAddress
		if dd.VirtualAddress < start || uint64(dd.VirtualAddress)+uint64(dd.Size) > uint64(start)+uint64(len(s.Data)) {
			continue
		}
		tbl := s.Data[dd.VirtualAddress-start:][:dd.Size]
		for pos := 0; pos+debugEntrySize <= len(tbl); pos += debugEntrySize {
			field := tbl[pos+debugRawPtrOffset:]
			ptr, err := rebase(binary.LittleEndian.Uint32(field))
			if err != nil {
				return err
			}
			binary.LittleEndian.PutUint32(field, ptr)
		}
		break
	}
	return nil
}
