/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package authenticode

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"io"
	"sort"
)

var (
	OidSpcIndirectDataContent = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 4}
	OidSpcStatementType       = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 11}
	OidSpcSpOpusInfo          = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 12}
	OidSpcPeImageData         = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 15}
	OidSpcIndividualPurpose   = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 21}
)

type SpcIndirectDataContentPe struct {
	Data          SpcAttributePeImageData
	MessageDigest DigestInfo
}

type SpcAttributePeImageData struct {
	Type  asn1.ObjectIdentifier
	Value SpcPeImageData
}

type DigestInfo struct {
	DigestAlgorithm pkix.AlgorithmIdentifier
	Digest          []byte
}

type SpcPeImageData struct {
	Flags asn1.BitString
	File  asn1.RawValue
}

type SpcSpOpusInfo struct {
	ProgramName asn1.RawValue `asn1:"optional"`
	MoreInfo    asn1.RawValue `asn1:"optional"`
}

type SpcSpStatementType struct {
	Type asn1.ObjectIdentifier
}

// regions of the file that go into the digest, by file offset
type peSection struct{ start, length int64 }
type peSectionList []peSection

func (s peSectionList) Len() int           { return len(s) }
func (s peSectionList) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s peSectionList) Less(i, j int) bool { return s[i].start < s[j].start }

type readerList struct {
	s peSectionList
}

func (l *readerList) Append(start, end int64) {
	length := end - start
	if length <= 0 {
		return
	}
	i := len(l.s) - 1
	if i >= 0 {
		// consolidate
		if l.s[i].start+l.s[i].length == start {
			l.s[i].length += length
			return
		}
	}
	l.s = append(l.s, peSection{start, length})
}

func (l *readerList) Reader(r io.ReaderAt) io.Reader {
	sort.Stable(l.s)
	readers := make([]io.Reader, len(l.s))
	for i, section := range l.s {
		readers[i] = io.NewSectionReader(r, section.start, section.length)
	}
	return io.MultiReader(readers...)
}
