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
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/sassoftware/sigen/lib/pkcs7"
	"github.com/sassoftware/sigen/lib/x509tools"
)

// PKCS7Signer signs images with a private key, producing a SignedData blob
// whose content is an SpcIndirectDataContent holding the image digest.
type PKCS7Signer struct {
	Key          crypto.Signer
	Certificates []*x509.Certificate
	Hash         crypto.Hash
	// Description and URL populate the optional SpcSpOpusInfo fields
	Description string
	URL         string
}

// NewPKCS7Signer returns a signer for the given key. The first certificate
// must belong to the key; the rest of the chain is embedded in the signature.
func NewPKCS7Signer(key crypto.Signer, certs []*x509.Certificate, hash crypto.Hash) *PKCS7Signer {
	return &PKCS7Signer{Key: key, Certificates: certs, Hash: hash}
}

// SignImage implements Signer.
func (s *PKCS7Signer) SignImage(digestInput []byte) ([]byte, error) {
	if s.Key == nil || len(s.Certificates) == 0 {
		return nil, errors.New("authenticode: key and certificate are required")
	}
	alg, ok := x509tools.PkixDigestAlgorithm(s.Hash)
	if !ok || !s.Hash.Available() {
		return nil, fmt.Errorf("authenticode: unsupported digest algorithm %s", s.Hash)
	}
	d := s.Hash.New()
	d.Write(digestInput)
	indirect, err := indirectContent(alg, d.Sum(nil))
	if err != nil {
		return nil, err
	}
	sb := pkcs7.NewBuilder(s.Key, s.Certificates, s.Hash)
	if err := sb.SetContent(OidSpcIndirectDataContent, indirect); err != nil {
		return nil, err
	}
	opus, err := s.opusInfo()
	if err != nil {
		return nil, err
	}
	if err := sb.AddAuthenticatedAttribute(OidSpcSpOpusInfo, opus); err != nil {
		return nil, err
	}
	if err := sb.AddAuthenticatedAttribute(OidSpcStatementType, SpcSpStatementType{Type: OidSpcIndividualPurpose}); err != nil {
		return nil, err
	}
	psd, err := sb.Sign()
	if err != nil {
		return nil, err
	}
	return psd.Marshal()
}

func indirectContent(alg pkix.AlgorithmIdentifier, digest []byte) (SpcIndirectDataContentPe, error) {
	// SpcLink file choice holding the customary "<<<Obsolete>>>" string
	obsolete, err := asn1.Marshal(contextValue(0, false, x509tools.ToBMPString("<<<Obsolete>>>").Bytes))
	if err != nil {
		return SpcIndirectDataContentPe{}, err
	}
	file, err := asn1.Marshal(contextValue(2, true, obsolete))
	if err != nil {
		return SpcIndirectDataContentPe{}, err
	}
	return SpcIndirectDataContentPe{
		Data: SpcAttributePeImageData{
			Type: OidSpcPeImageData,
			Value: SpcPeImageData{
				File: contextValue(0, true, file),
			},
		},
		MessageDigest: DigestInfo{
			DigestAlgorithm: alg,
			Digest:          digest,
		},
	}, nil
}

func (s *PKCS7Signer) opusInfo() (SpcSpOpusInfo, error) {
	var opus SpcSpOpusInfo
	if s.Description != "" {
		name, err := asn1.Marshal(contextValue(0, false, x509tools.ToBMPString(s.Description).Bytes))
		if err != nil {
			return opus, err
		}
		opus.ProgramName = contextValue(0, true, name)
	}
	if s.URL != "" {
		link, err := asn1.Marshal(contextValue(0, false, []byte(s.URL)))
		if err != nil {
			return opus, err
		}
		opus.MoreInfo = contextValue(1, true, link)
	}
	return opus, nil
}

func contextValue(tag int, compound bool, contents []byte) asn1.RawValue {
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: tag, IsCompound: compound, Bytes: contents}
}
