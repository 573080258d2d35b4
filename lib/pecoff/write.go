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
	"math"
)

// MarshalBinary serializes the image. Header fields that depend on the layout
// (NumberOfSections, SizeOfImage, the certificate table directory and
// CheckSum) are recomputed; the receiver is not modified. The output is a
// pure function of the image.
func (img *Image) MarshalBinary() ([]byte, error) {
	out, err := img.finalize()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(int(out.fileSize()))
	buf.Write(out.DOS)
	buf.WriteString("PE\x00\x00")
	if err := binary.Write(&buf, binary.LittleEndian, out.FileHeader); err != nil {
		return nil, err
	}
	var opt bytes.Buffer
	if err := binary.Write(&opt, binary.LittleEndian, out.OptionalHeader); err != nil {
		return nil, err
	}
	optSize := int(out.FileHeader.SizeOfOptionalHeader)
	if optSize > opt.Len() {
		optSize = opt.Len()
	}
	buf.Write(opt.Bytes()[:optSize])
	buf.Write(out.optTail)
	for _, s := range out.Sections {
		if err := binary.Write(&buf, binary.LittleEndian, s.Header); err != nil {
			return nil, err
		}
	}
	for _, s := range out.Sections {
		if s.Header.SizeOfRawData == 0 {
			continue
		}
		zeroFill(&buf, int64(s.Header.PointerToRawData))
		buf.Write(s.Data)
	}
	zeroFill(&buf, out.ContentEnd())
	buf.Write(out.Overlay)
	if len(out.Certificates) != 0 {
		zeroFill(&buf, int64(out.CertificateTable().VirtualAddress))
		buf.Write(out.Certificates)
	}
	data := buf.Bytes()
	ckpos := out.ChecksumOffset()
	h := NewChecksum(out.PEStart())
	h.Write(data)
	binary.LittleEndian.PutUint32(data[ckpos:], h.Sum32())
	return data, nil
}

// finalize returns a copy of the image with layout-derived fields filled in,
// after checking that it can be written.
func (img *Image) finalize() (*Image, error) {
	out := img.Clone()
	if len(out.Sections) > math.MaxUint16 {
		return nil, tooLarge("%d sections", len(out.Sections))
	}
	out.FileHeader.NumberOfSections = uint16(len(out.Sections))
	size := out.imageSize()
	if size > math.MaxUint32 {
		return nil, tooLarge("image size 0x%x", size)
	}
	out.OptionalHeader.SizeOfImage = uint32(size)
	out.OptionalHeader.CheckSum = 0
	dd := &out.OptionalHeader.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_SECURITY]
	if len(out.Certificates) == 0 {
		out.Certificates = nil
		*dd = pe.DataDirectory{}
	} else {
		if out.OptionalHeader.NumberOfRvaAndSizes <= pe.IMAGE_DIRECTORY_ENTRY_SECURITY {
			return nil, malformed("optional header has no certificate table directory")
		}
		certStart := alignUp64(uint64(out.ContentEnd())+uint64(len(out.Overlay)), CertificateAlignment)
		if certStart+uint64(len(out.Certificates)) > math.MaxUint32 {
			return nil, tooLarge("certificate table at 0x%x", certStart)
		}
		dd.VirtualAddress = uint32(certStart)
		dd.Size = uint32(len(out.Certificates))
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func (img *Image) fileSize() int64 {
	if dd := img.CertificateTable(); dd.Size != 0 {
		return int64(dd.VirtualAddress) + int64(dd.Size)
	}
	return img.ContentEnd() + int64(len(img.Overlay))
}

func zeroFill(buf *bytes.Buffer, offset int64) {
	if n := offset - int64(buf.Len()); n > 0 {
		buf.Write(make([]byte, n))
	}
}
