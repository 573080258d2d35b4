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

package shared

import (
	"crypto"

	"github.com/spf13/pflag"

	"github.com/sassoftware/sigen/lib/x509tools"
)

var ArgDigest string

const DefaultHash = "sha256"

func AddDigestFlag(flags *pflag.FlagSet) {
	flags.StringVar(&ArgDigest, "digest", "", "Digest algorithm for signing ("+x509tools.SupportedHashes()+", default "+DefaultHash+")")
}

// GetDigest returns the digest from --digest, falling back to the configured
// one.
func GetDigest() (crypto.Hash, error) {
	name := ArgDigest
	if name == "" && CurrentConfig != nil && CurrentConfig.Signing != nil {
		name = CurrentConfig.Signing.Digest
	}
	if name == "" {
		name = DefaultHash
	}
	return x509tools.HashByName(name)
}
