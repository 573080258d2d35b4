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

package pkcs7

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
)

// NewContentInfo wraps an ASN.1-marshallable value. A nil value produces
// detached content.
func NewContentInfo(contentType asn1.ObjectIdentifier, data interface{}) (ContentInfo, error) {
	ci := ContentInfo{ContentType: contentType}
	if data == nil {
		return ci, nil
	}
	der, err := asn1.Marshal(data)
	if err != nil {
		return ContentInfo{}, fmt.Errorf("pkcs7: %w", err)
	}
	ci.Content = asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        0,
		IsCompound: true,
		Bytes:      der,
	}
	return ci, nil
}

// Bytes returns the contents octets of the wrapped value, which is what the
// messageDigest attribute is computed over.
func (ci ContentInfo) Bytes() ([]byte, error) {
	if len(ci.Content.Bytes) == 0 {
		return nil, nil
	}
	var value asn1.RawValue
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &value); err != nil {
		return nil, fmt.Errorf("pkcs7: %w", err)
	}
	return value.Bytes, nil
}

// Unmarshal decodes the wrapped value into dest.
func (ci ContentInfo) Unmarshal(dest interface{}) error {
	if len(ci.Content.Bytes) == 0 {
		return errors.New("pkcs7: missing content")
	}
	if _, err := asn1.Unmarshal(ci.Content.Bytes, dest); err != nil {
		return fmt.Errorf("pkcs7: %w", err)
	}
	return nil
}

func MarshalCertificates(certs []*x509.Certificate) RawCertificates {
	var buf bytes.Buffer
	for _, cert := range certs {
		buf.Write(cert.Raw)
	}
	val := asn1.RawValue{Bytes: buf.Bytes(), Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true}
	b, _ := asn1.Marshal(val)
	return RawCertificates{Raw: b}
}

func (raw RawCertificates) Parse() ([]*x509.Certificate, error) {
	var val asn1.RawValue
	if len(raw.Raw) == 0 {
		return nil, nil
	}
	if _, err := asn1.Unmarshal(raw.Raw, &val); err != nil {
		return nil, err
	}
	return x509.ParseCertificates(val.Bytes)
}

// Unmarshal decodes a DER SignedData blob.
func Unmarshal(der []byte) (*ContentInfoSignedData, error) {
	psd := new(ContentInfoSignedData)
	rest, err := asn1.Unmarshal(der, psd)
	if err != nil {
		return nil, fmt.Errorf("pkcs7: %w", err)
	} else if len(bytes.TrimRight(rest, "\x00")) != 0 {
		return nil, errors.New("pkcs7: trailing garbage after signature")
	}
	if !psd.ContentType.Equal(OidSignedData) {
		return nil, fmt.Errorf("pkcs7: content type %s is not signedData", psd.ContentType)
	}
	return psd, nil
}

// ParseCertificates returns the certificates embedded in a DER SignedData
// blob.
func ParseCertificates(der []byte) ([]*x509.Certificate, error) {
	psd, err := Unmarshal(der)
	if err != nil {
		return nil, err
	}
	certs, err := psd.Content.Certificates.Parse()
	if err != nil {
		return nil, fmt.Errorf("pkcs7: %w", err)
	} else if len(certs) == 0 {
		return nil, errors.New("pkcs7: no certificates")
	}
	return certs, nil
}

// Marshal returns the DER encoding of the signature.
func (psd *ContentInfoSignedData) Marshal() ([]byte, error) {
	return asn1.Marshal(*psd)
}
