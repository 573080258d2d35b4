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
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/sassoftware/sigen/lib/x509tools"
)

// SignatureBuilder assembles a SignedData structure with authenticated
// attributes over a single content value.
type SignatureBuilder struct {
	privateKey  crypto.Signer
	certs       []*x509.Certificate
	hash        crypto.Hash
	contentInfo ContentInfo
	digest      []byte
	authAttrs   AttributeList
}

// NewBuilder starts a new signature. The first certificate in certs must
// belong to privKey; the rest of the chain is embedded as-is.
func NewBuilder(privKey crypto.Signer, certs []*x509.Certificate, hash crypto.Hash) *SignatureBuilder {
	return &SignatureBuilder{
		privateKey: privKey,
		certs:      certs,
		hash:       hash,
	}
}

// SetContent marshals data as the signed content and digests it.
func (sb *SignatureBuilder) SetContent(ctype asn1.ObjectIdentifier, data interface{}) error {
	cinfo, err := NewContentInfo(ctype, data)
	if err != nil {
		return err
	}
	blob, err := cinfo.Bytes()
	if err != nil {
		return err
	}
	if !sb.hash.Available() {
		return errors.New("pkcs7: digest algorithm is not available")
	}
	w := sb.hash.New()
	w.Write(blob)
	sb.contentInfo = cinfo
	sb.digest = w.Sum(nil)
	return nil
}

// AddAuthenticatedAttribute adds a signed attribute. contentType and
// messageDigest are added by Sign.
func (sb *SignatureBuilder) AddAuthenticatedAttribute(oid asn1.ObjectIdentifier, data interface{}) error {
	return sb.authAttrs.Add(oid, data)
}

// Sign completes the signature.
func (sb *SignatureBuilder) Sign() (*ContentInfoSignedData, error) {
	if sb.digest == nil {
		return nil, errors.New("pkcs7: content not set")
	}
	digestAlg, ok := x509tools.PkixDigestAlgorithm(sb.hash)
	if !ok {
		return nil, errors.New("pkcs7: unsupported digest algorithm")
	}
	pubKey := sb.privateKey.Public()
	pkeyAlg, ok := x509tools.PkixPublicKeyAlgorithm(pubKey)
	if !ok {
		return nil, errors.New("pkcs7: unsupported public key algorithm")
	}
	if len(sb.certs) < 1 || !x509tools.SameKey(pubKey, sb.certs[0].PublicKey) {
		return nil, errors.New("pkcs7: first certificate must match private key")
	}
	attrs := append(AttributeList{}, sb.authAttrs...)
	if err := attrs.Add(OidAttributeContentType, sb.contentInfo.ContentType); err != nil {
		return nil, err
	}
	if err := attrs.Add(OidAttributeMessageDigest, sb.digest); err != nil {
		return nil, err
	}
	if err := attrs.Sort(); err != nil {
		return nil, err
	}
	attrBytes, err := attrs.Bytes()
	if err != nil {
		return nil, err
	}
	w := sb.hash.New()
	w.Write(attrBytes)
	sig, err := sb.privateKey.Sign(rand.Reader, w.Sum(nil), sb.hash)
	if err != nil {
		return nil, fmt.Errorf("pkcs7: %w", err)
	}
	return &ContentInfoSignedData{
		ContentType: OidSignedData,
		Content: SignedData{
			Version:                    1,
			DigestAlgorithmIdentifiers: []pkix.AlgorithmIdentifier{digestAlg},
			ContentInfo:                sb.contentInfo,
			Certificates:               MarshalCertificates(sb.certs),
			SignerInfos: []SignerInfo{{
				Version: 1,
				IssuerAndSerialNumber: IssuerAndSerial{
					IssuerName:   asn1.RawValue{FullBytes: sb.certs[0].RawIssuer},
					SerialNumber: sb.certs[0].SerialNumber,
				},
				DigestAlgorithm:           digestAlg,
				AuthenticatedAttributes:   attrs,
				DigestEncryptionAlgorithm: pkeyAlg,
				EncryptedDigest:           sig,
			}},
		},
	}, nil
}
