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

package uki

import (
	"bytes"
	"debug/pe"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/sigen/lib/authenticode"
	"github.com/sassoftware/sigen/lib/pecoff"
	"github.com/sassoftware/sigen/lib/pecoff/pecofftest"
)

func sectionNames(img *pecoff.Image) []string {
	var names []string
	for _, s := range img.Sections {
		names = append(names, s.Name())
	}
	return names
}

func TestAssemble(t *testing.T) {
	cmdline := []byte("root=/dev/sda1 ro")
	kernel := bytes.Repeat([]byte("kernel"), 5000)
	initrds := [][]byte{[]byte("first-initrd"), []byte("second")}
	var logbuf bytes.Buffer
	out, err := Assemble(pecofftest.Default(), cmdline, kernel, initrds,
		WithLogger(zerolog.New(&logbuf).Level(zerolog.DebugLevel)))
	require.NoError(t, err)

	img, err := pecoff.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{".text", ".data", ".reloc", ".cmdline", ".linux", ".initrd"}, sectionNames(img))
	assert.Equal(t, cmdline, img.Section(SectionCmdline).Data[:len(cmdline)])
	assert.EqualValues(t, len(kernel), img.Section(SectionLinux).Header.VirtualSize)
	initrd := img.Section(SectionInitrd)
	assert.Equal(t, "first-initrdsecond", string(initrd.Data[:initrd.Header.VirtualSize]))
	assert.Zero(t, img.CertificateTable().Size)
	assert.Contains(t, logbuf.String(), `"section":".linux"`)
	assert.Contains(t, logbuf.String(), `"digest":"sha256:`)

	f, err := pe.NewFile(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	data, err := f.Section(SectionCmdline).Data()
	require.NoError(t, err)
	assert.Equal(t, cmdline, data[:len(cmdline)])
}

func TestAssembleOptionalSections(t *testing.T) {
	out, err := Assemble(pecofftest.Default(), []byte("quiet"), []byte("kernel"), nil,
		WithOSRelease([]byte("ID=test\n")),
		WithSplash(nil),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	img, err := pecoff.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{".text", ".data", ".reloc", ".osrel", ".cmdline", ".splash", ".linux"}, sectionNames(img))
	assert.Zero(t, img.Section(SectionSplash).Header.SizeOfRawData)
}

func TestAssembleLegacyAddresses(t *testing.T) {
	out, err := Assemble(pecofftest.Default(), []byte("quiet"), []byte("kernel"), [][]byte{[]byte("initrd")},
		WithOSRelease([]byte("ID=test\n")),
		WithLegacyAddresses(),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	img, err := pecoff.Parse(out)
	require.NoError(t, err)
	for name, va := range LegacyAddresses {
		if name == SectionSplash {
			assert.Nil(t, img.Section(name))
			continue
		}
		require.NotNil(t, img.Section(name), name)
		assert.Equal(t, va, img.Section(name).Header.VirtualAddress, name)
	}
	assert.EqualValues(t, 0x3001000, img.OptionalHeader.SizeOfImage)
}

func TestAssembleSigned(t *testing.T) {
	blob := bytes.Repeat([]byte{0xa5}, 256)
	var input []byte
	signer := authenticode.SignerFunc(func(d []byte) ([]byte, error) {
		input = d
		return blob, nil
	})
	out, err := Assemble(pecofftest.Default(), []byte("quiet"), []byte("kernel"), [][]byte{[]byte("initrd")},
		WithSigner(signer), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	records, err := authenticode.Records(out)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, blob, records[0].Data)
	want, err := authenticode.DigestInput(out)
	require.NoError(t, err)
	assert.Equal(t, want, input)

	failure := errors.New("no key")
	_, err = Assemble(pecofftest.Default(), []byte("quiet"), []byte("kernel"), nil,
		WithSigner(authenticode.SignerFunc(func([]byte) ([]byte, error) { return nil, failure })),
		WithLogger(zerolog.Nop()))
	assert.ErrorIs(t, err, authenticode.ErrSignerFailure)
	assert.ErrorIs(t, err, failure)
}

func TestAssembleErrors(t *testing.T) {
	_, err := Assemble([]byte("not a stub"), nil, nil, nil, WithLogger(zerolog.Nop()))
	assert.ErrorIs(t, err, pecoff.ErrTruncatedInput)

	stub := pecofftest.Build(pecofftest.Options{Sections: []pecofftest.Section{
		{Name: ".linux", Data: []byte("old kernel"), Characteristics: 0x40000040},
	}}).Bytes
	_, err = Assemble(stub, nil, []byte("kernel"), nil, WithLogger(zerolog.Nop()))
	assert.ErrorIs(t, err, pecoff.ErrSectionNameCollision)

	_, err = Assemble(pecofftest.Default(), nil, nil, nil,
		WithMachine(pecofftest.MachineARM64), WithLogger(zerolog.Nop()))
	assert.ErrorIs(t, err, pecoff.ErrMalformedStub)
}

func TestPayloadsOrder(t *testing.T) {
	payloads := Payloads([]byte("c"), []byte("k"), [][]byte{[]byte("a"), []byte("b")},
		WithSplash([]byte("s")), WithOSRelease([]byte("o")), WithSectionAddress(SectionLinux, 0x100000))
	var names []string
	for _, p := range payloads {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{".osrel", ".cmdline", ".splash", ".linux", ".initrd"}, names)
	assert.Equal(t, "ab", string(payloads[4].Data))
	assert.EqualValues(t, 0x100000, payloads[3].VirtualAddress)
	assert.Zero(t, payloads[1].VirtualAddress)
}

func TestDefaultStubPath(t *testing.T) {
	path, err := DefaultStubPath(pe.IMAGE_FILE_MACHINE_AMD64)
	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/systemd/boot/efi/linuxx64.efi.stub", path)
	path, err = DefaultStubPath(pe.IMAGE_FILE_MACHINE_ARM64)
	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/systemd/boot/efi/linuxaa64.efi.stub", path)
	_, err = DefaultStubPath(pe.IMAGE_FILE_MACHINE_I386)
	assert.Error(t, err)
}
