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

package certloader

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/sassoftware/sigen/lib/pkcs7"
	"github.com/sassoftware/sigen/lib/x509tools"
)

const asn1Magic = 0x30 // weak but good enough?
var pkcs7SignedData = []byte{0x06, 0x09, 0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D, 0x01, 0x07, 0x02}

// Certificate is a signing key together with its certificate chain, leaf
// first.
type Certificate struct {
	Leaf         *x509.Certificate
	Certificates []*x509.Certificate
	PrivateKey   crypto.Signer
}

// Chain returns the certificates to embed in a signature: the leaf and any
// intermediates, without self-signed roots.
func (s *Certificate) Chain() []*x509.Certificate {
	var chain []*x509.Certificate
	for i, cert := range s.Certificates {
		if i > 0 && bytes.Equal(cert.RawIssuer, cert.RawSubject) {
			// omit root CA
			continue
		}
		chain = append(chain, cert)
	}
	return chain
}

// Parse a private key from a blob of PEM or DER data
func ParsePrivateKey(pemData []byte) (crypto.Signer, error) {
	if len(pemData) >= 1 && pemData[0] == asn1Magic {
		// already DER form
		return x509tools.ParsePrivateKey(pemData)
	}
	return x509tools.ParsePEMPrivateKey(pemData)
}

// Parse a list of certificates, PEM or DER, X509 or PKCS#7
func ParseCertificates(pemData []byte) (*Certificate, error) {
	if len(pemData) >= 1 && pemData[0] == asn1Magic {
		// already in DER form
		return parseCertificates(pemData)
	}
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		} else if block.Type == "CERTIFICATE" || block.Type == "PKCS7" {
			newcerts, err := parseCertificates(block.Bytes)
			if err != nil {
				return nil, err
			}
			certs = append(certs, newcerts.Certificates...)
		}
	}
	if len(certs) == 0 {
		return nil, ErrNoCerts
	}
	return &Certificate{Leaf: certs[0], Certificates: certs}, nil
}

// Parse certificates from DER
func parseCertificates(der []byte) (*Certificate, error) {
	var certs []*x509.Certificate
	var err error
	head := der
	if len(head) > 32 {
		head = head[:32]
	}
	if bytes.Contains(head, pkcs7SignedData) {
		certs, err = pkcs7.ParseCertificates(der)
	} else {
		certs, err = x509.ParseCertificates(der)
	}
	if err != nil {
		return nil, err
	} else if len(certs) == 0 {
		return nil, ErrNoCerts
	}
	return &Certificate{Leaf: certs[0], Certificates: certs}, nil
}

// LoadX509KeyPair reads a private key and a certificate chain from separate
// files, each either PEM or DER. The chain may also be a PKCS#7 bundle.
func LoadX509KeyPair(certFile, keyFile string) (*Certificate, error) {
	keyblob, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	certblob, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	key, err := ParsePrivateKey(keyblob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyFile, err)
	}
	cert, err := ParseCertificates(certblob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", certFile, err)
	}
	if !x509tools.SameKey(cert.Leaf.PublicKey, key.Public()) {
		return nil, errors.New("private key does not match certificate")
	}
	cert.PrivateKey = key
	return cert, nil
}

type errNoCerts struct{}

func (errNoCerts) Error() string {
	return "failed to find any certificates in PEM file"
}

var ErrNoCerts = errNoCerts{}
