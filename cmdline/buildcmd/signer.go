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

package buildcmd

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sassoftware/sigen/cmdline/shared"
	"github.com/sassoftware/sigen/config"
	"github.com/sassoftware/sigen/lib/authenticode"
	"github.com/sassoftware/sigen/lib/certloader"
	"github.com/sassoftware/sigen/lib/passprompt"
	"github.com/sassoftware/sigen/lib/x509tools"
)

var (
	argKey         string
	argCert        string
	argPKCS12      string
	argDescription string
	argURL         string
	argNoSign      bool
)

func addSigningFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&argKey, "key", "", "Private key for signing, PEM or DER")
	cmd.Flags().StringVar(&argCert, "cert", "", "Certificate chain matching --key, PEM, DER or PKCS#7")
	cmd.Flags().StringVar(&argPKCS12, "pkcs12", "", "PKCS#12 bundle holding the signing key and chain")
	cmd.Flags().StringVar(&argDescription, "description", "", "Program name to embed in the signature")
	cmd.Flags().StringVar(&argURL, "url", "", "URL to embed in the signature")
	cmd.Flags().BoolVar(&argNoSign, "no-sign", false, "Do not sign even if a key is configured")
	shared.AddDigestFlag(cmd.Flags())
}

// signingConfig merges the signing flags over the configuration file
func signingConfig() *config.SigningConfig {
	sc := *shared.CurrentConfig.GetSigning()
	if argPKCS12 != "" {
		sc.PKCS12, sc.Key, sc.Certificate = argPKCS12, "", ""
	} else if argKey != "" || argCert != "" {
		sc.PKCS12, sc.Key, sc.Certificate = "", argKey, argCert
	}
	if argDescription != "" {
		sc.Description = argDescription
	}
	if argURL != "" {
		sc.URL = argURL
	}
	return &sc
}

// loadSigner returns nil if no credentials were given
func loadSigner() (authenticode.Signer, error) {
	if argNoSign {
		return nil, nil
	}
	hash, err := shared.GetDigest()
	if err != nil {
		return nil, err
	}
	sc := signingConfig()
	if sc.PKCS12 == "" && (sc.Key == "") != (sc.Certificate == "") {
		return nil, errors.New("--key and --cert must be used together")
	}
	if !sc.Enabled() {
		return nil, nil
	}
	var cert *certloader.Certificate
	if sc.PKCS12 != "" {
		var prompt passprompt.PasswordGetter = &passprompt.EnvPassword{
			Name:     sc.PasswordEnvName(),
			Fallback: new(passprompt.PasswordPrompt),
		}
		if sc.UseKeyring {
			prompt = &passprompt.KeyringPassword{User: sc.PKCS12, Fallback: prompt}
		}
		cert, err = certloader.LoadPKCS12(sc.PKCS12, prompt)
	} else {
		cert, err = certloader.LoadX509KeyPair(sc.Certificate, sc.Key)
	}
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("subject", x509tools.FormatSubject(cert.Leaf)).
		Str("issuer", x509tools.FormatIssuer(cert.Leaf)).
		Str("digest", hash.String()).
		Msg("signing with certificate")
	signer := authenticode.NewPKCS7Signer(cert.PrivateKey, cert.Chain(), hash)
	signer.Description = sc.Description
	signer.URL = sc.URL
	return signer, nil
}
