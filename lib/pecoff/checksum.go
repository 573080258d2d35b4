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
	"encoding/binary"
	"errors"
	"hash"
)

// An undocumented, non-CRC checksum used in PE images
// https://www.codeproject.com/Articles/19326/An-Analysis-of-the-Windows-PE-Checksum-Algorithm

// offset of CheckSum from the PE signature
const checksumFieldOffset = signatureSize + fileHeaderSize + checksumOffset

type peChecksum struct {
	peStart int64
	pos     int64
	sum     uint32
	odd     bool
}

// NewChecksum returns a hasher that calculates the PE image checksum. peStart
// is the offset found at 0x3c in the DOS header; the 4 bytes of the CheckSum
// field are summed as zero. A negative peStart sums every byte.
func NewChecksum(peStart int64) hash.Hash32 {
	return &peChecksum{peStart: peStart}
}

// Checksum computes the PE checksum of a complete image.
func Checksum(data []byte) (uint32, error) {
	if len(data) < dosHeaderSize {
		return 0, truncated("file is smaller than a DOS header")
	}
	peStart := int64(binary.LittleEndian.Uint32(data[0x3c:]))
	if peStart+checksumFieldOffset+4 > int64(len(data)) {
		return 0, truncated("PE header at 0x%x is past end of file", peStart)
	}
	h := NewChecksum(peStart)
	h.Write(data)
	return h.Sum32(), nil
}

func (*peChecksum) Size() int {
	return 4
}

func (*peChecksum) BlockSize() int {
	return 2
}

func (h *peChecksum) Reset() {
	h.pos = 0
	h.sum = 0
	h.odd = false
}

func (h *peChecksum) Write(d []byte) (int, error) {
	// tolerate odd-sized files by adding a final zero byte, but odd writes
	// anywhere but the end are an error
	n := len(d)
	if h.odd {
		return 0, errors.New("odd write")
	} else if n%2 != 0 {
		h.odd = true
		d2 := make([]byte, n+1)
		copy(d2, d)
		d = d2
	}
	ckStart, ckEnd := int64(-1), int64(-1)
	if h.peStart >= 0 {
		ckStart = h.peStart + checksumFieldOffset
		ckEnd = ckStart + 4
	}
	sum := h.sum
	for i := 0; i < len(d); i += 2 {
		pos := h.pos + int64(i)
		if pos >= ckStart && pos < ckEnd {
			continue
		}
		sum += uint32(d[i+1])<<8 | uint32(d[i])
		sum = 0xffff & (sum + (sum >> 16))
	}
	h.sum = sum
	h.pos += int64(n)
	return n, nil
}

func (h *peChecksum) Sum32() uint32 {
	sum := 0xffff & (h.sum + (h.sum >> 16))
	return sum + uint32(h.pos)
}

func (h *peChecksum) Sum(buf []byte) []byte {
	return binary.LittleEndian.AppendUint32(buf, h.Sum32())
}
