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
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/sassoftware/sigen/lib/pecoff"
)

const (
	// RevisionV2 is WIN_CERT_REVISION_2_0
	RevisionV2 = 0x0200
	// TypePKCSSignedData is WIN_CERT_TYPE_PKCS_SIGNED_DATA
	TypePKCSSignedData = 0x0002

	recordHeaderSize = 8
)

// ErrBadCertificateTable is returned when a certificate table cannot be
// decoded into records.
var ErrBadCertificateTable = errors.New("malformed certificate table")

// Record is one WIN_CERTIFICATE entry in the certificate table.
type Record struct {
	Revision        uint16
	CertificateType uint16
	Data            []byte
}

// NewRecord wraps a PKCS#7 SignedData blob in a record.
func NewRecord(blob []byte) Record {
	return Record{Revision: RevisionV2, CertificateType: TypePKCSSignedData, Data: blob}
}

// MarshalBinary encodes the record, padded to an 8 byte boundary. dwLength
// holds the unpadded length so the blob can be recovered exactly.
func (r Record) MarshalBinary() ([]byte, error) {
	length := uint64(recordHeaderSize) + uint64(len(r.Data))
	padded := (length + pecoff.CertificateAlignment - 1) &^ (pecoff.CertificateAlignment - 1)
	if padded > math.MaxUint32 {
		return nil, fmt.Errorf("%w: signature of %d bytes", pecoff.ErrSizeLimitExceeded, len(r.Data))
	}
	buf := make([]byte, padded)
	binary.LittleEndian.PutUint32(buf, uint32(length))
	binary.LittleEndian.PutUint16(buf[4:], r.Revision)
	binary.LittleEndian.PutUint16(buf[6:], r.CertificateType)
	copy(buf[recordHeaderSize:], r.Data)
	return buf, nil
}

// ParseRecords decodes a raw certificate table.
func ParseRecords(table []byte) ([]Record, error) {
	var records []Record
	for len(table) > 0 {
		if len(table) < recordHeaderSize {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrBadCertificateTable, len(table))
		}
		length := int64(binary.LittleEndian.Uint32(table))
		if length < recordHeaderSize || length > int64(len(table)) {
			return nil, fmt.Errorf("%w: record length %d with %d bytes remaining", ErrBadCertificateTable, length, len(table))
		}
		records = append(records, Record{
			Revision:        binary.LittleEndian.Uint16(table[4:]),
			CertificateType: binary.LittleEndian.Uint16(table[6:]),
			Data:            append([]byte(nil), table[recordHeaderSize:length]...),
		})
		next := (length + pecoff.CertificateAlignment - 1) &^ (pecoff.CertificateAlignment - 1)
		if next > int64(len(table)) {
			next = int64(len(table))
		}
		table = table[next:]
	}
	return records, nil
}

// Records parses a PE image and returns the records in its certificate
// table. An unsigned image has none.
func Records(data []byte) ([]Record, error) {
	img, err := pecoff.Parse(data)
	if err != nil {
		return nil, err
	}
	return ParseRecords(img.Certificates)
}
