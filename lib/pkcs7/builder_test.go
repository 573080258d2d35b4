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

package pkcs7_test

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/sigen/internal/testcert"
	"github.com/sassoftware/sigen/lib/pkcs7"
)

func TestBuilderRSA(t *testing.T) {
	pair := testcert.New(t, testcert.RSA)
	content := []byte("hello, world")
	sb := pkcs7.NewBuilder(pair.Key, []*x509.Certificate{pair.Cert}, crypto.SHA256)
	require.NoError(t, sb.SetContent(pkcs7.OidData, content))
	require.NoError(t, sb.AddAuthenticatedAttribute(pkcs7.OidAttributeSigningTime, pair.Cert.NotBefore.UTC()))
	psd, err := sb.Sign()
	require.NoError(t, err)
	der, err := psd.Marshal()
	require.NoError(t, err)

	parsed, err := pkcs7.Unmarshal(der)
	require.NoError(t, err)
	sd := parsed.Content
	assert.Equal(t, 1, sd.Version)
	var inner []byte
	require.NoError(t, sd.ContentInfo.Unmarshal(&inner))
	assert.Equal(t, content, inner)

	certs, err := pkcs7.ParseCertificates(der)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, pair.Cert.Raw, certs[0].Raw)

	require.Len(t, sd.SignerInfos, 1)
	si := sd.SignerInfos[0]
	assert.Equal(t, 0, si.IssuerAndSerialNumber.SerialNumber.Cmp(pair.Cert.SerialNumber))
	// messageDigest covers the content octets
	var md []byte
	require.NoError(t, si.AuthenticatedAttributes.GetOne(pkcs7.OidAttributeMessageDigest, &md))
	want := sha256.Sum256(content)
	assert.Equal(t, want[:], md)
	assert.True(t, si.AuthenticatedAttributes.Exists(pkcs7.OidAttributeContentType))
	// the signature is over the attributes re-encoded as a SET, in the order
	// they were transmitted
	attrBytes, err := si.AuthenticatedAttributes.Bytes()
	require.NoError(t, err)
	digest := sha256.Sum256(attrBytes)
	pub := certs[0].PublicKey.(*rsa.PublicKey)
	assert.NoError(t, rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], si.EncryptedDigest))
}

func TestBuilderECDSA(t *testing.T) {
	pair := testcert.New(t, testcert.ECDSA)
	sb := pkcs7.NewBuilder(pair.Key, []*x509.Certificate{pair.Cert}, crypto.SHA256)
	require.NoError(t, sb.SetContent(pkcs7.OidData, []byte("content")))
	psd, err := sb.Sign()
	require.NoError(t, err)
	si := psd.Content.SignerInfos[0]
	attrBytes, err := si.AuthenticatedAttributes.Bytes()
	require.NoError(t, err)
	digest := sha256.Sum256(attrBytes)
	assert.True(t, ecdsa.VerifyASN1(pair.Cert.PublicKey.(*ecdsa.PublicKey), digest[:], si.EncryptedDigest))
}

func TestBuilderErrors(t *testing.T) {
	pair := testcert.New(t, testcert.ECDSA)
	other := testcert.New(t, testcert.ECDSA)

	sb := pkcs7.NewBuilder(pair.Key, []*x509.Certificate{pair.Cert}, crypto.SHA256)
	_, err := sb.Sign()
	assert.ErrorContains(t, err, "content not set")

	sb = pkcs7.NewBuilder(pair.Key, []*x509.Certificate{other.Cert}, crypto.SHA256)
	require.NoError(t, sb.SetContent(pkcs7.OidData, []byte("content")))
	_, err = sb.Sign()
	assert.ErrorContains(t, err, "must match private key")

	sb = pkcs7.NewBuilder(pair.Key, []*x509.Certificate{pair.Cert}, crypto.SHA512_224)
	require.NoError(t, sb.SetContent(pkcs7.OidData, []byte("content")))
	_, err = sb.Sign()
	assert.ErrorContains(t, err, "unsupported digest")

	_, err = pkcs7.Unmarshal([]byte{0x30, 0x03, 0x02, 0x01, 0x01})
	assert.Error(t, err)
}
