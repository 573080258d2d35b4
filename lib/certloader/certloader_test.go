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

package certloader

import (
	"crypto/x509"
	"encoding/pem"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/sassoftware/sigen/internal/testcert"
	"github.com/sassoftware/sigen/lib/passprompt"
	"github.com/sassoftware/sigen/lib/x509tools"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoadX509KeyPairPEM(t *testing.T) {
	pair := testcert.New(t, testcert.ECDSA)
	certPath := writeFile(t, "cert.pem", pair.CertPEM())
	keyPath := writeFile(t, "key.pem", pair.KeyPEM(t))
	cert, err := LoadX509KeyPair(certPath, keyPath)
	require.NoError(t, err)
	assert.Equal(t, pair.Cert.Raw, cert.Leaf.Raw)
	assert.True(t, x509tools.SameKey(pair.Key.Public(), cert.PrivateKey.Public()))
	assert.Len(t, cert.Chain(), 1)
}

func TestLoadX509KeyPairDER(t *testing.T) {
	pair := testcert.New(t, testcert.RSA)
	keyDER, err := x509.MarshalPKCS8PrivateKey(pair.Key)
	require.NoError(t, err)
	certPath := writeFile(t, "cert.der", pair.Cert.Raw)
	keyPath := writeFile(t, "key.der", keyDER)
	cert, err := LoadX509KeyPair(certPath, keyPath)
	require.NoError(t, err)
	assert.Equal(t, pair.Cert.Raw, cert.Leaf.Raw)
}

func TestLoadX509KeyPairMismatch(t *testing.T) {
	pair := testcert.New(t, testcert.ECDSA)
	other := testcert.New(t, testcert.ECDSA)
	certPath := writeFile(t, "cert.pem", pair.CertPEM())
	keyPath := writeFile(t, "key.pem", other.KeyPEM(t))
	_, err := LoadX509KeyPair(certPath, keyPath)
	assert.ErrorContains(t, err, "does not match")
}

func TestParseCertificatesEmpty(t *testing.T) {
	_, err := ParseCertificates(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte{1}}))
	assert.Equal(t, ErrNoCerts, err)
}

func TestParseEncryptedKey(t *testing.T) {
	block := &pem.Block{
		Type:    "RSA PRIVATE KEY",
		Headers: map[string]string{"Proc-Type": "4,ENCRYPTED", "DEK-Info": "AES-128-CBC,00"},
		Bytes:   []byte{1, 2, 3},
	}
	_, err := ParsePrivateKey(pem.EncodeToMemory(block))
	assert.ErrorContains(t, err, "encrypted")
}

func TestParsePKCS12(t *testing.T) {
	pair := testcert.New(t, testcert.RSA)
	pfx, err := pkcs12.Modern.Encode(pair.Key, pair.Cert, nil, "s3cret")
	require.NoError(t, err)

	prompt := &passprompt.Static{"wrong", "s3cret"}
	cert, err := ParsePKCS12(pfx, prompt)
	require.NoError(t, err)
	assert.Equal(t, pair.Cert.Raw, cert.Leaf.Raw)
	assert.True(t, x509tools.SameKey(pair.Key.Public(), cert.PrivateKey.Public()))
	assert.Empty(t, *prompt)

	path := writeFile(t, "bundle.p12", pfx)
	t.Setenv("SIGEN_TEST_P12", "s3cret")
	cert, err = LoadPKCS12(path, &passprompt.EnvPassword{Name: "SIGEN_TEST_P12"})
	require.NoError(t, err)
	assert.Equal(t, pair.Cert.Raw, cert.Leaf.Raw)

	_, err = ParsePKCS12(pfx, &passprompt.Static{"nope"})
	assert.ErrorIs(t, err, io.EOF)
	_, err = ParsePKCS12(pfx, &passprompt.Static{"", ""})
	assert.ErrorContains(t, err, "aborted")
}
