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
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sassoftware/sigen/config"
	"github.com/sassoftware/sigen/internal/logging"
)

var (
	ArgConfig     string
	ArgLogLevel   string
	ArgLogFile    string
	CurrentConfig *config.Config
	argVersion    bool
)

var RootCmd = &cobra.Command{
	Use:               "sigen",
	Short:             "Assemble and sign unified kernel images",
	PersistentPreRunE: setup,
	RunE:              bailUnlessVersion,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&ArgConfig, "config", "", "Configuration file (default "+config.DefaultConfig()+")")
	RootCmd.PersistentFlags().StringVar(&ArgLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	RootCmd.PersistentFlags().StringVar(&ArgLogFile, "log-file", "", "Write JSON logs to this file, or - for stderr")
	RootCmd.PersistentFlags().BoolVar(&argVersion, "version", false, "Show version and exit")
}

func setup(cmd *cobra.Command, args []string) error {
	if argVersion {
		fmt.Printf("sigen version %s (%s)\n", config.Version, config.Commit)
		os.Exit(0)
	}
	if err := InitConfig(); err != nil {
		return err
	}
	level, logFile := CurrentConfig.LogLevel, CurrentConfig.LogFile
	if ArgLogLevel != "" {
		level = ArgLogLevel
	}
	if ArgLogFile != "" {
		logFile = ArgLogFile
	}
	if err := logging.Setup(level, logFile); err != nil {
		return err
	}
	ev := log.Info().Str("version", config.Version)
	if path := CurrentConfig.Path(); path != "" {
		ev.Str("config", path)
	}
	ev.Msg("sigen " + config.Version)
	return nil
}

func bailUnlessVersion(cmd *cobra.Command, args []string) error {
	if !argVersion {
		return errors.New("expected a command")
	}
	return nil
}

func Main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
