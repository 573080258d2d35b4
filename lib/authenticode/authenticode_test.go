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

package authenticode_test

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/sigen/internal/testcert"
	"github.com/sassoftware/sigen/lib/authenticode"
	"github.com/sassoftware/sigen/lib/pecoff"
	"github.com/sassoftware/sigen/lib/pecoff/pecofftest"
	"github.com/sassoftware/sigen/lib/pkcs7"
)

// unsignedImage returns a stub with a few sections embedded
func unsignedImage(t *testing.T) []byte {
	t.Helper()
	img, err := pecoff.Parse(pecofftest.Default())
	require.NoError(t, err)
	img, err = pecoff.Embed(img, []pecoff.Payload{
		{Name: ".cmdline", Data: []byte("console=ttyS0 quiet")},
		{Name: ".linux", Data: bytes.Repeat([]byte{0x4d, 0x5a, 0x90}, 3001)},
	})
	require.NoError(t, err)
	data, err := img.MarshalBinary()
	require.NoError(t, err)
	return data
}

func fixedBlob(n int) []byte {
	blob := make([]byte, n)
	for i := range blob {
		blob[i] = byte(i)
	}
	return blob
}

func TestSignFixedBlob(t *testing.T) {
	unsigned := unsignedImage(t)
	blob := fixedBlob(256)
	var seen []byte
	signed, err := authenticode.Sign(unsigned, authenticode.SignerFunc(func(input []byte) ([]byte, error) {
		seen = append([]byte(nil), input...)
		return blob, nil
	}))
	require.NoError(t, err)

	img, err := pecoff.Parse(signed)
	require.NoError(t, err)
	dd := img.CertificateTable()
	assert.EqualValues(t, 264, dd.Size)
	assert.EqualValues(t, len(unsigned), dd.VirtualAddress)
	assert.Equal(t, len(unsigned)+264, len(signed))
	assert.Zero(t, dd.VirtualAddress%8)

	records, err := authenticode.Records(signed)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.EqualValues(t, authenticode.RevisionV2, records[0].Revision)
	assert.EqualValues(t, authenticode.TypePKCSSignedData, records[0].CertificateType)
	assert.Equal(t, blob, records[0].Data)
	assert.EqualValues(t, 264, binary.LittleEndian.Uint32(signed[dd.VirtualAddress:]))

	ck, err := pecoff.Checksum(signed)
	require.NoError(t, err)
	assert.Equal(t, ck, binary.LittleEndian.Uint32(signed[img.ChecksumOffset():]))
	assert.Equal(t, pecofftest.Checksum(signed), ck)

	// the digest input does not change when the signature is added
	want, err := authenticode.DigestInput(unsigned)
	require.NoError(t, err)
	assert.Equal(t, want, seen)
	got, err := authenticode.DigestInput(signed)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDigestInputExclusions(t *testing.T) {
	data := unsignedImage(t)
	img, err := pecoff.Parse(data)
	require.NoError(t, err)
	ck := img.ChecksumOffset()
	dd := img.CertificateDirectoryOffset()
	var want []byte
	want = append(want, data[:ck]...)
	want = append(want, data[ck+4:dd]...)
	want = append(want, data[dd+8:]...)
	for len(want)%8 != 0 {
		want = append(want, 0)
	}
	got, err := authenticode.DigestInput(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// the checksum field does not contribute
	tweaked := bytes.Clone(data)
	binary.LittleEndian.PutUint32(tweaked[ck:], 0xdeadbeef)
	got2, err := authenticode.DigestInput(tweaked)
	require.NoError(t, err)
	assert.Equal(t, got, got2)

	d, err := authenticode.Digest(data, crypto.SHA256)
	require.NoError(t, err)
	sum := sha256.Sum256(want)
	assert.Equal(t, sum[:], d)
}

func TestResignReplacesTable(t *testing.T) {
	unsigned := unsignedImage(t)
	first, err := authenticode.Sign(unsigned, authenticode.SignerFunc(func([]byte) ([]byte, error) {
		return fixedBlob(1000), nil
	}))
	require.NoError(t, err)
	second, err := authenticode.Sign(first, authenticode.SignerFunc(func([]byte) ([]byte, error) {
		return fixedBlob(13), nil
	}))
	require.NoError(t, err)
	records, err := authenticode.Records(second)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fixedBlob(13), records[0].Data)
	// 8 + 13 padded to 24
	assert.Equal(t, len(unsigned)+24, len(second))
	want, err := authenticode.DigestInput(unsigned)
	require.NoError(t, err)
	got, err := authenticode.DigestInput(second)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

var errHSM = errors.New("token not present")

func TestSignerFailure(t *testing.T) {
	unsigned := unsignedImage(t)
	_, err := authenticode.Sign(unsigned, authenticode.SignerFunc(func([]byte) ([]byte, error) {
		return nil, errHSM
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, authenticode.ErrSignerFailure)
	assert.ErrorIs(t, err, errHSM)
	var serr *authenticode.SignerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, errHSM, serr.Err)

	_, err = authenticode.Sign(unsigned, authenticode.SignerFunc(func([]byte) ([]byte, error) {
		return nil, nil
	}))
	assert.ErrorIs(t, err, authenticode.ErrSignerFailure)
}

func TestSignMalformed(t *testing.T) {
	_, err := authenticode.Sign([]byte("MZ not a PE file"), authenticode.SignerFunc(func([]byte) ([]byte, error) {
		t.Fatal("signer called")
		return nil, nil
	}))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, authenticode.ErrSignerFailure)
}

func TestParseRecords(t *testing.T) {
	a, err := authenticode.NewRecord([]byte("first")).MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, a, 16)
	b, err := authenticode.NewRecord(fixedBlob(8)).MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, b, 16)
	records, err := authenticode.ParseRecords(append(a, b...))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []byte("first"), records[0].Data)
	assert.Equal(t, fixedBlob(8), records[1].Data)

	_, err = authenticode.ParseRecords([]byte{1, 2, 3})
	assert.ErrorIs(t, err, authenticode.ErrBadCertificateTable)
	_, err = authenticode.ParseRecords([]byte{0xff, 0, 0, 0, 0, 2, 2, 0})
	assert.ErrorIs(t, err, authenticode.ErrBadCertificateTable)
	records, err = authenticode.ParseRecords(nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPKCS7Signer(t *testing.T) {
	pair := testcert.New(t, testcert.RSA)
	signer := authenticode.NewPKCS7Signer(pair.Key, []*x509.Certificate{pair.Cert}, crypto.SHA256)
	signer.Description = "sigen test image"
	signer.URL = "https://example.com/"
	signed, err := authenticode.Sign(unsignedImage(t), signer)
	require.NoError(t, err)

	records, err := authenticode.Records(signed)
	require.NoError(t, err)
	require.Len(t, records, 1)
	psd, err := pkcs7.Unmarshal(records[0].Data)
	require.NoError(t, err)
	sd := psd.Content
	assert.True(t, sd.ContentInfo.ContentType.Equal(authenticode.OidSpcIndirectDataContent))

	var indirect authenticode.SpcIndirectDataContentPe
	require.NoError(t, sd.ContentInfo.Unmarshal(&indirect))
	assert.True(t, indirect.Data.Type.Equal(authenticode.OidSpcPeImageData))
	want, err := authenticode.Digest(signed, crypto.SHA256)
	require.NoError(t, err)
	assert.Equal(t, want, indirect.MessageDigest.Digest)

	require.Len(t, sd.SignerInfos, 1)
	si := sd.SignerInfos[0]
	assert.True(t, si.AuthenticatedAttributes.Exists(authenticode.OidSpcSpOpusInfo))
	assert.True(t, si.AuthenticatedAttributes.Exists(authenticode.OidSpcStatementType))
	content, err := sd.ContentInfo.Bytes()
	require.NoError(t, err)
	var md []byte
	require.NoError(t, si.AuthenticatedAttributes.GetOne(pkcs7.OidAttributeMessageDigest, &md))
	contentDigest := sha256.Sum256(content)
	assert.Equal(t, contentDigest[:], md)

	attrBytes, err := si.AuthenticatedAttributes.Bytes()
	require.NoError(t, err)
	attrDigest := sha256.Sum256(attrBytes)
	assert.NoError(t, rsa.VerifyPKCS1v15(pair.Cert.PublicKey.(*rsa.PublicKey), crypto.SHA256, attrDigest[:], si.EncryptedDigest))
}

func TestPKCS7SignerWrongKey(t *testing.T) {
	pair := testcert.New(t, testcert.ECDSA)
	other := testcert.New(t, testcert.ECDSA)
	signer := authenticode.NewPKCS7Signer(pair.Key, []*x509.Certificate{other.Cert}, crypto.SHA256)
	_, err := authenticode.Sign(unsignedImage(t), signer)
	assert.ErrorIs(t, err, authenticode.ErrSignerFailure)
	assert.ErrorContains(t, err, "must match private key")
}
