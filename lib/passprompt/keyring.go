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

package passprompt

import (
	"errors"
	"io"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name passwords are stored under
const KeyringService = "sigen"

// KeyringPassword answers the first request from the system keyring, then
// defers to Fallback.
type KeyringPassword struct {
	User     string
	Fallback PasswordGetter

	used bool
}

func (k *KeyringPassword) GetPasswd(prompt string) (string, error) {
	if !k.used {
		k.used = true
		passwd, err := keyring.Get(KeyringService, k.User)
		if err == nil {
			return passwd, nil
		} else if !errors.Is(err, keyring.ErrNotFound) && k.Fallback == nil {
			return "", err
		}
	}
	if k.Fallback != nil {
		return k.Fallback.GetPasswd(prompt)
	}
	return "", io.EOF
}

// SaveKeyring stores a password for later use by KeyringPassword.
func SaveKeyring(user, passwd string) error {
	return keyring.Set(KeyringService, user, passwd)
}
