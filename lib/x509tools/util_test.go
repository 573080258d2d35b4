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

package x509tools_test

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/sigen/lib/x509tools"
)

func TestSignatureAlgorithm(t *testing.T) {
	t.Parallel()
	assert.Equal(t, x509.SHA256WithRSA, x509tools.X509SignatureAlgorithm(&rsa.PublicKey{}))
	assert.Equal(t, x509.ECDSAWithSHA256, x509tools.X509SignatureAlgorithm(&ecdsa.PublicKey{Curve: elliptic.P224()}))
	assert.Equal(t, x509.ECDSAWithSHA256, x509tools.X509SignatureAlgorithm(&ecdsa.PublicKey{Curve: elliptic.P256()}))
	assert.Equal(t, x509.ECDSAWithSHA384, x509tools.X509SignatureAlgorithm(&ecdsa.PublicKey{Curve: elliptic.P384()}))
	assert.Equal(t, x509.ECDSAWithSHA512, x509tools.X509SignatureAlgorithm(&ecdsa.PublicKey{Curve: elliptic.P521()}))

	assert.Equal(t, x509.UnknownSignatureAlgorithm, x509tools.X509SignatureAlgorithm(ed25519.PublicKey{}))
}

func TestSameKey(t *testing.T) {
	t.Parallel()
	k1, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	k2, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	assert.True(t, x509tools.SameKey(k1.Public(), &k1.PublicKey))
	assert.False(t, x509tools.SameKey(k1.Public(), k2.Public()))
	assert.False(t, x509tools.SameKey(nil, k2.Public()))
}

func TestHashByName(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]crypto.Hash{
		"":        crypto.SHA256,
		"sha256":  crypto.SHA256,
		"SHA-384": crypto.SHA384,
		"sha1":    crypto.SHA1,
	} {
		hash, err := x509tools.HashByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, hash, name)
	}
	_, err := x509tools.HashByName("md5")
	assert.ErrorContains(t, err, "sha256")
}

func TestPkixAlgorithms(t *testing.T) {
	t.Parallel()
	alg, ok := x509tools.PkixDigestAlgorithm(crypto.SHA256)
	require.True(t, ok)
	assert.Equal(t, x509tools.OidDigestSHA256, alg.Algorithm)
	hash, ok := x509tools.PkixDigestToHash(alg)
	assert.True(t, ok)
	assert.Equal(t, crypto.SHA256, hash)
	_, ok = x509tools.PkixDigestAlgorithm(crypto.MD5)
	assert.False(t, ok)
	_, ok = x509tools.PkixPublicKeyAlgorithm(ed25519.PublicKey{})
	assert.False(t, ok)
}
