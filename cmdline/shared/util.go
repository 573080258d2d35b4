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
	"io"
	"os"

	"github.com/sassoftware/sigen/config"
)

// InitConfig loads the configuration named by --config, or the default
// configuration if it exists.
func InitConfig() error {
	if CurrentConfig != nil {
		return nil
	}
	cfg, err := config.Load(ArgConfig)
	if err != nil {
		return err
	}
	CurrentConfig = cfg
	return nil
}

// ReadFile reads a whole input file. "-" is stdin.
func ReadFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
