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
// Package uki assembles unified kernel images: an EFI stub with the kernel,
// initramfs and command line embedded as sections, optionally signed.
package uki

import (
	"debug/pe"
	"fmt"

	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sassoftware/sigen/lib/authenticode"
	"github.com/sassoftware/sigen/lib/pecoff"
)

// Section names the stub looks for
const (
	SectionOSRelease = ".osrel"
	SectionCmdline   = ".cmdline"
	SectionSplash    = ".splash"
	SectionLinux     = ".linux"
	SectionInitrd    = ".initrd"
)

// LegacyAddresses are the fixed section addresses used by older objcopy
// based tooling.
var LegacyAddresses = map[string]uint32{
	SectionOSRelease: 0x20000,
	SectionCmdline:   0x30000,
	SectionSplash:    0x40000,
	SectionLinux:     0x2000000,
	SectionInitrd:    0x3000000,
}

var stubNames = map[uint16]string{
	pe.IMAGE_FILE_MACHINE_AMD64:       "linuxx64.efi.stub",
	pe.IMAGE_FILE_MACHINE_ARM64:       "linuxaa64.efi.stub",
	pe.IMAGE_FILE_MACHINE_RISCV64:     "linuxriscv64.efi.stub",
	pe.IMAGE_FILE_MACHINE_LOONGARCH64: "linuxloongarch64.efi.stub",
}

// StubDir is where systemd-boot installs its EFI stubs.
const StubDir = "/usr/lib/systemd/boot/efi"

// DefaultStubPath returns the usual location of the EFI stub for a machine
// type.
func DefaultStubPath(machine uint16) (string, error) {
	name, ok := stubNames[machine]
	if !ok {
		return "", fmt.Errorf("no default EFI stub for machine %s", pecoff.MachineName(machine))
	}
	return StubDir + "/" + name, nil
}

type assembleConfig struct {
	signer    authenticode.Signer
	osrel     []byte
	hasOSRel  bool
	splash    []byte
	hasSplash bool
	machine   uint16
	addresses map[string]uint32
	logger    zerolog.Logger
}

// Option customizes Assemble and Payloads.
type Option func(*assembleConfig)

// WithSigner signs the assembled image.
func WithSigner(signer authenticode.Signer) Option {
	return func(c *assembleConfig) { c.signer = signer }
}

// WithOSRelease embeds an os-release file as the .osrel section.
func WithOSRelease(osrel []byte) Option {
	return func(c *assembleConfig) {
		c.osrel = osrel
		c.hasOSRel = true
	}
}

// WithSplash embeds a boot splash bitmap as the .splash section. An empty
// splash still produces the section.
func WithSplash(splash []byte) Option {
	return func(c *assembleConfig) {
		c.splash = splash
		c.hasSplash = true
	}
}

// WithMachine requires the stub to target the given COFF machine type.
func WithMachine(machine uint16) Option {
	return func(c *assembleConfig) { c.machine = machine }
}

// WithLegacyAddresses places every section at its LegacyAddresses address.
func WithLegacyAddresses() Option {
	return func(c *assembleConfig) {
		for name, va := range LegacyAddresses {
			c.setAddress(name, va)
		}
	}
}

// WithSectionAddress pins one section at a fixed RVA.
func WithSectionAddress(name string, va uint32) Option {
	return func(c *assembleConfig) { c.setAddress(name, va) }
}

// WithLogger sets the logger for progress messages
func WithLogger(logger zerolog.Logger) Option {
	return func(c *assembleConfig) { c.logger = logger }
}

func (c *assembleConfig) setAddress(name string, va uint32) {
	if c.addresses == nil {
		c.addresses = make(map[string]uint32)
	}
	c.addresses[name] = va
}

func newConfig(opts []Option) *assembleConfig {
	c := &assembleConfig{logger: log.Logger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Payloads returns the sections to embed, in the order the stub expects:
// .osrel, .cmdline, .splash, .linux, .initrd. All initrds are concatenated
// in the order given into a single .initrd section, which is omitted when
// there are none.
func Payloads(cmdline, kernel []byte, initrds [][]byte, opts ...Option) []pecoff.Payload {
	return newConfig(opts).payloads(cmdline, kernel, initrds)
}

func (c *assembleConfig) payloads(cmdline, kernel []byte, initrds [][]byte) []pecoff.Payload {
	var payloads []pecoff.Payload
	add := func(name string, data []byte) {
		payloads = append(payloads, pecoff.Payload{
			Name:           name,
			Data:           data,
			VirtualAddress: c.addresses[name],
		})
	}
	if c.hasOSRel {
		add(SectionOSRelease, c.osrel)
	}
	add(SectionCmdline, cmdline)
	if c.hasSplash {
		add(SectionSplash, c.splash)
	}
	add(SectionLinux, kernel)
	if len(initrds) != 0 {
		add(SectionInitrd, concat(initrds))
	}
	return payloads
}

func concat(blobs [][]byte) []byte {
	var size int
	for _, b := range blobs {
		size += len(b)
	}
	out := make([]byte, 0, size)
	for _, b := range blobs {
		out = append(out, b...)
	}
	return out
}

// Assemble embeds the command line, kernel and initrds into stub and returns
// the new image, signed if a signer was given. The inputs are not modified.
func Assemble(stub, cmdline, kernel []byte, initrds [][]byte, opts ...Option) ([]byte, error) {
	c := newConfig(opts)
	var parseOpts []pecoff.ParseOption
	if c.machine != 0 {
		parseOpts = append(parseOpts, pecoff.WithMachine(c.machine))
	}
	img, err := pecoff.Parse(stub, parseOpts...)
	if err != nil {
		return nil, fmt.Errorf("parsing stub: %w", err)
	}
	c.logger.Debug().
		Str("machine", pecoff.MachineName(img.FileHeader.Machine)).
		Int("sections", len(img.Sections)).
		Stringer("digest", digest.FromBytes(stub)).
		Msg("loaded EFI stub")
	payloads := c.payloads(cmdline, kernel, initrds)
	for _, p := range payloads {
		c.logger.Debug().
			Str("section", p.Name).
			Int("size", len(p.Data)).
			Stringer("digest", digest.FromBytes(p.Data)).
			Msg("embedding section")
	}
	img, err = pecoff.Embed(img, payloads)
	if err != nil {
		return nil, err
	}
	out, err := img.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if c.signer != nil {
		out, err = authenticode.Sign(out, c.signer)
		if err != nil {
			return nil, err
		}
		c.logger.Debug().Msg("signed image")
	}
	c.logger.Info().
		Int("size", len(out)).
		Stringer("digest", digest.FromBytes(out)).
		Bool("signed", c.signer != nil).
		Msg("assembled unified kernel image")
	return out, nil
}
