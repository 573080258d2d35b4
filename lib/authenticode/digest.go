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
	"bytes"
	"crypto"
	"debug/pe"
	"errors"
	"io"
	"sort"

	"github.com/sassoftware/sigen/lib/pecoff"
)

// DigestInput returns the bytes of a PE image that an Authenticode signature
// covers: the headers without the CheckSum field and the certificate table
// directory entry, the raw data of each section in file order, anything
// between the last section and the certificate table, and zero padding to a
// multiple of 8.
func DigestInput(data []byte) ([]byte, error) {
	img, err := pecoff.Parse(data)
	if err != nil {
		return nil, err
	}
	return digestInput(img, data)
}

func digestInput(img *pecoff.Image, data []byte) ([]byte, error) {
	var rl readerList
	ckpos := img.ChecksumOffset()
	sizeOfHeaders := int64(img.OptionalHeader.SizeOfHeaders)
	rl.Append(0, ckpos)
	if img.OptionalHeader.NumberOfRvaAndSizes > pe.IMAGE_DIRECTORY_ENTRY_SECURITY {
		ddpos := img.CertificateDirectoryOffset()
		rl.Append(ckpos+4, ddpos)
		rl.Append(ddpos+8, sizeOfHeaders)
	} else {
		rl.Append(ckpos+4, sizeOfHeaders)
	}
	sections := make([]*pecoff.Section, 0, len(img.Sections))
	for _, s := range img.Sections {
		if s.Header.SizeOfRawData != 0 {
			sections = append(sections, s)
		}
	}
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Header.PointerToRawData < sections[j].Header.PointerToRawData
	})
	for _, s := range sections {
		start := int64(s.Header.PointerToRawData)
		rl.Append(start, start+int64(s.Header.SizeOfRawData))
	}
	trailerEnd := int64(len(data))
	if dd := img.CertificateTable(); dd.Size != 0 {
		trailerEnd = int64(dd.VirtualAddress)
	}
	rl.Append(img.ContentEnd(), trailerEnd)

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rl.Reader(bytes.NewReader(data))); err != nil {
		return nil, err
	}
	if n := buf.Len() % pecoff.CertificateAlignment; n != 0 {
		buf.Write(make([]byte, pecoff.CertificateAlignment-n))
	}
	return buf.Bytes(), nil
}

// Digest computes the Authenticode digest of a PE image.
func Digest(data []byte, hash crypto.Hash) ([]byte, error) {
	if !hash.Available() {
		return nil, errors.New("digest algorithm is not available")
	}
	input, err := DigestInput(data)
	if err != nil {
		return nil, err
	}
	d := hash.New()
	d.Write(input)
	return d.Sum(nil), nil
}
