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
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"strings"
)

// Machine types that can carry a PE32+ EFI application.
var efiMachines = map[uint16]string{
	pe.IMAGE_FILE_MACHINE_AMD64:       "x86_64",
	pe.IMAGE_FILE_MACHINE_ARM64:       "arm64",
	pe.IMAGE_FILE_MACHINE_RISCV64:     "riscv64",
	pe.IMAGE_FILE_MACHINE_LOONGARCH64: "loongarch64",
}

// MachineName returns a short architecture name for a COFF machine type.
func MachineName(machine uint16) string {
	if name, ok := efiMachines[machine]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%x)", machine)
}

var machineAliases = map[string]uint16{
	"x64":     pe.IMAGE_FILE_MACHINE_AMD64,
	"amd64":   pe.IMAGE_FILE_MACHINE_AMD64,
	"aa64":    pe.IMAGE_FILE_MACHINE_ARM64,
	"aarch64": pe.IMAGE_FILE_MACHINE_ARM64,
	"loong64": pe.IMAGE_FILE_MACHINE_LOONGARCH64,
}

// MachineByName looks up a COFF machine type by architecture name, accepting
// the names returned by MachineName as well as common aliases.
func MachineByName(name string) (uint16, bool) {
	name = strings.ToLower(name)
	for machine, n := range efiMachines {
		if n == name {
			return machine, true
		}
	}
	machine, ok := machineAliases[name]
	return machine, ok
}

type parseConfig struct {
	machine uint16
}

// ParseOption customizes Parse.
type ParseOption func(*parseConfig)

// WithMachine requires the image to target the given COFF machine type.
// Without it any 64-bit EFI machine is accepted.
func WithMachine(machine uint16) ParseOption {
	return func(pc *parseConfig) { pc.machine = machine }
}

// Parse decodes a PE32+ EFI application. The returned image does not alias
// data. A stub that fails validation is rejected, never repaired.
func Parse(data []byte, opts ...ParseOption) (*Image, error) {
	var cfg parseConfig
	for _, o := range opts {
		o(&cfg)
	}
	if len(data) < dosHeaderSize {
		return nil, truncated("file is smaller than a DOS header")
	}
	if data[0] != 'M' || data[1] != 'Z' {
		return nil, malformed("not a PE file")
	}
	peStart := int64(binary.LittleEndian.Uint32(data[0x3c:]))
	if peStart < dosHeaderSize || peStart%4 != 0 {
		return nil, malformed("invalid PE header offset 0x%x", peStart)
	}
	if peStart+signatureSize+fileHeaderSize > int64(len(data)) {
		return nil, truncated("PE header at 0x%x is past end of file", peStart)
	}
	if !bytes.Equal(data[peStart:peStart+signatureSize], []byte{'P', 'E', 0, 0}) {
		return nil, malformed("invalid PE COFF file signature of %v", data[peStart:peStart+signatureSize])
	}
	img := &Image{DOS: bytes.Clone(data[:peStart])}
	pos := peStart + signatureSize
	if err := binaryReadBytes(data[pos:pos+fileHeaderSize], &img.FileHeader); err != nil {
		return nil, err
	}
	if err := checkMachine(img.FileHeader.Machine, cfg.machine); err != nil {
		return nil, err
	}
	if err := readOptHeader(data, img); err != nil {
		return nil, err
	}
	if err := readSections(data, img); err != nil {
		return nil, err
	}
	if err := readTrailer(data, img); err != nil {
		return nil, err
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

func checkMachine(machine, want uint16) error {
	if want != 0 {
		if machine != want {
			return malformed("machine type %s does not match expected %s", MachineName(machine), MachineName(want))
		}
		return nil
	}
	if _, ok := efiMachines[machine]; !ok {
		return malformed("machine type 0x%x is not a supported EFI architecture", machine)
	}
	return nil
}

func readOptHeader(data []byte, img *Image) error {
	start := img.optStart()
	size := int64(img.FileHeader.SizeOfOptionalHeader)
	if size < 2 {
		return malformed("missing optional header")
	}
	if start+size > int64(len(data)) {
		return truncated("optional header is past end of file")
	}
	raw := data[start : start+size]
	if magic := binary.LittleEndian.Uint16(raw); magic != optHeaderMagicPE32Plus {
		return malformed("optional header magic 0x%x is not PE32+", magic)
	}
	if size < optHeaderFixed64 {
		return malformed("optional header is too short (%d bytes)", size)
	}
	// pad a short header out to the full structure; missing data directories
	// read as zero
	buf := make([]byte, optHeaderSize64)
	copy(buf, raw)
	if err := binaryReadBytes(buf, &img.OptionalHeader); err != nil {
		return err
	}
	n := img.OptionalHeader.NumberOfRvaAndSizes
	if n > 16 || optHeaderFixed64+int64(n)*dataDirSize > size {
		return malformed("optional header declares %d data directories in %d bytes", n, size)
	}
	if size > optHeaderSize64 {
		img.optTail = bytes.Clone(raw[optHeaderSize64:])
	}
	return nil
}

func readSections(data []byte, img *Image) error {
	n := int(img.FileHeader.NumberOfSections)
	tblStart := img.optStart() + int64(img.FileHeader.SizeOfOptionalHeader)
	tblEnd := tblStart + int64(n)*sectionHeaderSize
	if tblEnd > int64(len(data)) {
		return truncated("section table is past end of file")
	}
	img.Sections = make([]*Section, n)
	for i := 0; i < n; i++ {
		s := new(Section)
		pos := tblStart + int64(i)*sectionHeaderSize
		if err := binaryReadBytes(data[pos:pos+sectionHeaderSize], &s.Header); err != nil {
			return err
		}
		start := int64(s.Header.PointerToRawData)
		end := start + int64(s.Header.SizeOfRawData)
		if s.Header.SizeOfRawData != 0 {
			if end > int64(len(data)) {
				return truncated("section %d (%s) data 0x%x-0x%x is past end of file 0x%x", i, s.Name(), start, end, len(data))
			}
			s.Data = bytes.Clone(data[start:end])
		} else {
			s.Data = []byte{}
		}
		img.Sections[i] = s
	}
	return nil
}

// readTrailer splits whatever follows the last section into the overlay and
// the certificate table.
func readTrailer(data []byte, img *Image) error {
	contentEnd := img.ContentEnd()
	fileEnd := int64(len(data))
	dd := img.CertificateTable()
	if dd.Size == 0 {
		if contentEnd < fileEnd {
			img.Overlay = bytes.Clone(data[contentEnd:])
		}
		return nil
	}
	certStart := int64(dd.VirtualAddress)
	certEnd := certStart + int64(dd.Size)
	switch {
	case certEnd > fileEnd:
		return truncated("certificate table 0x%x-0x%x is past end of file 0x%x", certStart, certEnd, fileEnd)
	case certStart < contentEnd:
		return malformed("certificate table at 0x%x overlaps section data ending at 0x%x", certStart, contentEnd)
	case certEnd != fileEnd:
		return malformed("trailing data after certificate table")
	}
	if gap := certStart - contentEnd; gap > 0 {
		// zero padding up to the aligned table start is regenerated by the
		// writer, so it is not part of the overlay
		n := int64(len(bytes.TrimRight(data[contentEnd:certStart], "\x00")))
		if minLen := gap - (CertificateAlignment - 1); n < minLen {
			n = minLen
		}
		if n > 0 {
			img.Overlay = bytes.Clone(data[contentEnd : contentEnd+n])
		}
	}
	img.Certificates = bytes.Clone(data[certStart:certEnd])
	return nil
}

// read from a byte slice into a structure
func binaryReadBytes(buf []byte, val interface{}) error {
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, val)
}
