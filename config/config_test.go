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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
stub: stubs/linuxx64.efi.stub
osrel: /etc/os-release
legacy_addresses: true
signing:
  pkcs12: keys/signer.p12
  password_env: MY_P12_PASSWORD
  digest: sha384
log_level: debug
log_file: "-"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sigen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestReadFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	dir := filepath.Dir(path)
	cfg, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, filepath.Join(dir, "stubs/linuxx64.efi.stub"), cfg.Stub)
	assert.Equal(t, "/etc/os-release", cfg.OSRelease)
	assert.True(t, cfg.LegacyAddresses)
	require.NotNil(t, cfg.Signing)
	assert.Equal(t, filepath.Join(dir, "keys/signer.p12"), cfg.Signing.PKCS12)
	assert.Equal(t, "MY_P12_PASSWORD", cfg.Signing.PasswordEnvName())
	assert.Equal(t, "sha384", cfg.Signing.Digest)
	assert.True(t, cfg.Signing.Enabled())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "-", cfg.LogFile)
}

func TestReadFileErrors(t *testing.T) {
	_, err := ReadFile(writeConfig(t, "stub: a\nbogus: 1\n"))
	assert.ErrorContains(t, err, "bogus")

	_, err = ReadFile(writeConfig(t, "signing:\n  key: k.pem\n"))
	assert.ErrorContains(t, err, "together")

	_, err = ReadFile(writeConfig(t, "signing:\n  key: k.pem\n  certificate: c.pem\n  pkcs12: b.p12\n"))
	assert.ErrorContains(t, err, "cannot be combined")
}

func TestLoadDefault(t *testing.T) {
	t.Setenv("USERPROFILE", "")
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Path())
	assert.False(t, cfg.GetSigning().Enabled())
	assert.Equal(t, DefaultPasswordEnv, cfg.GetSigning().PasswordEnvName())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEmptyFile(t *testing.T) {
	cfg, err := ReadFile(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Nil(t, cfg.Signing)
}
