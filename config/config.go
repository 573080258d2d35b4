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
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPasswordEnv holds the PKCS#12 password if password_env is not set
const DefaultPasswordEnv = "SIGEN_PKCS12_PASSWORD"

type SigningConfig struct {
	Key         string `yaml:"key,omitempty"`         // Path to PEM or DER private key
	Certificate string `yaml:"certificate,omitempty"` // Path to certificate chain matching Key
	PKCS12      string `yaml:"pkcs12,omitempty"`      // Path to PKCS#12 bundle, instead of Key and Certificate
	PasswordEnv string `yaml:"password_env,omitempty"`
	UseKeyring  bool   `yaml:"use_keyring,omitempty"` // Look up the PKCS#12 password in the system keyring
	Digest      string `yaml:"digest,omitempty"`      // Digest algorithm, default sha256
	Description string `yaml:"description,omitempty"` // Program name to embed in the signature
	URL         string `yaml:"url,omitempty"`
}

type Config struct {
	Stub            string         `yaml:"stub,omitempty"` // EFI stub, default depends on the architecture
	Machine         string         `yaml:"machine,omitempty"`
	OSRelease       string         `yaml:"osrel,omitempty"`
	Splash          string         `yaml:"splash,omitempty"`
	LegacyAddresses bool           `yaml:"legacy_addresses,omitempty"`
	Signing         *SigningConfig `yaml:"signing,omitempty"`
	LogLevel        string         `yaml:"log_level,omitempty"`
	LogFile         string         `yaml:"log_file,omitempty"`

	path string
}

// ReadFile loads a configuration file. Relative paths in it are resolved
// against the directory holding the file.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	config.path = path
	config.resolvePaths(filepath.Dir(path))
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Load reads the named configuration file, or the default one if path is
// empty. A missing default configuration yields an empty Config.
func Load(path string) (*Config, error) {
	if path != "" {
		return ReadFile(path)
	}
	path = DefaultConfig()
	if path == "" {
		return new(Config), nil
	}
	config, err := ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return new(Config), nil
	}
	return config, err
}

func parse(data []byte) (*Config, error) {
	config := new(Config)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && err != io.EOF {
		return nil, err
	}
	return config, nil
}

func (config *Config) resolvePaths(dir string) {
	for _, p := range []*string{&config.Stub, &config.OSRelease, &config.Splash, &config.LogFile} {
		resolvePath(p, dir)
	}
	if s := config.Signing; s != nil {
		for _, p := range []*string{&s.Key, &s.Certificate, &s.PKCS12} {
			resolvePath(p, dir)
		}
	}
}

func resolvePath(p *string, dir string) {
	// "-" means stderr for log_file
	if *p == "" || *p == "-" || filepath.IsAbs(*p) {
		return
	}
	*p = filepath.Join(dir, *p)
}

// Validate checks that the signing settings are consistent.
func (config *Config) Validate() error {
	s := config.Signing
	if s == nil {
		return nil
	}
	switch {
	case s.PKCS12 != "" && (s.Key != "" || s.Certificate != ""):
		return errors.New("signing: pkcs12 cannot be combined with key or certificate")
	case (s.Key == "") != (s.Certificate == ""):
		return errors.New("signing: key and certificate must be set together")
	}
	return nil
}

// Path returns the file the configuration was read from, if any.
func (config *Config) Path() string {
	return config.path
}

// GetSigning returns the signing section, never nil.
func (config *Config) GetSigning() *SigningConfig {
	if config.Signing == nil {
		config.Signing = new(SigningConfig)
	}
	return config.Signing
}

// PasswordEnvName returns the environment variable holding the PKCS#12
// password.
func (s *SigningConfig) PasswordEnvName() string {
	if s.PasswordEnv != "" {
		return s.PasswordEnv
	}
	return DefaultPasswordEnv
}

// Enabled reports whether any signing credential is configured.
func (s *SigningConfig) Enabled() bool {
	return s != nil && (s.PKCS12 != "" || s.Key != "")
}
