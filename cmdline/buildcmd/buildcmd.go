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
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sassoftware/sigen/cmdline/shared"
	"github.com/sassoftware/sigen/lib/atomicfile"
	"github.com/sassoftware/sigen/lib/pecoff"
	"github.com/sassoftware/sigen/lib/uki"
)

var BuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a unified kernel image from an EFI stub, kernel and initrds",
	Args:  cobra.NoArgs,
	RunE:  buildCmd,
}

var (
	argStub            string
	argKernel          string
	argCmdline         string
	argInitrds         []string
	argOSRelease       string
	argSplash          string
	argOutput          string
	argMachine         string
	argLegacyAddresses bool
	argForce           bool
	argBackup          bool
)

func init() {
	shared.RootCmd.AddCommand(BuildCmd)
	BuildCmd.Flags().StringVarP(&argKernel, "kernel", "k", "", "Kernel image to embed (required)")
	BuildCmd.Flags().StringVarP(&argCmdline, "cmdline", "c", "", "File holding the kernel command line (required)")
	BuildCmd.Flags().StringArrayVarP(&argInitrds, "initrd", "i", nil, "Initramfs to embed; may be repeated and is concatenated in order")
	BuildCmd.Flags().StringVarP(&argOutput, "output", "o", "", "Output file, or - for stdout (required)")
	BuildCmd.Flags().StringVar(&argStub, "stub", "", "EFI stub (default depends on --machine)")
	BuildCmd.Flags().StringVar(&argOSRelease, "osrel", "", "os-release file to embed as .osrel")
	BuildCmd.Flags().StringVar(&argSplash, "splash", "", "Bitmap to embed as .splash")
	BuildCmd.Flags().StringVar(&argMachine, "machine", "", "Target architecture: x86_64, arm64, riscv64 or loongarch64 (default: host)")
	BuildCmd.Flags().BoolVar(&argLegacyAddresses, "legacy-addresses", false, "Place sections at the fixed addresses used by objcopy based tools")
	BuildCmd.Flags().BoolVarP(&argForce, "force", "f", false, "Overwrite an existing output file")
	BuildCmd.Flags().BoolVar(&argBackup, "backup", false, "Rename an existing output file to <output>.bak")
	addSigningFlags(BuildCmd)
}

type inputs struct {
	stub, cmdline, kernel []byte
	osrel, splash         []byte
	initrds               [][]byte
}

func buildCmd(cmd *cobra.Command, args []string) error {
	if argKernel == "" || argCmdline == "" || argOutput == "" {
		return errors.New("--kernel, --cmdline and --output are required")
	}
	cfg := shared.CurrentConfig
	machine, err := targetMachine()
	if err != nil {
		return err
	}
	stub := firstOf(argStub, cfg.Stub)
	if stub == "" {
		stub, err = uki.DefaultStubPath(machine)
		if err != nil {
			return err
		}
	}
	osrel := firstOf(argOSRelease, cfg.OSRelease)
	splash := firstOf(argSplash, cfg.Splash)
	in, err := readInputs(stub, osrel, splash)
	if err != nil {
		return err
	}
	opts := []uki.Option{uki.WithMachine(machine), uki.WithLogger(log.Logger)}
	if osrel != "" {
		opts = append(opts, uki.WithOSRelease(in.osrel))
	}
	if splash != "" {
		opts = append(opts, uki.WithSplash(in.splash))
	}
	if argLegacyAddresses || cfg.LegacyAddresses {
		opts = append(opts, uki.WithLegacyAddresses())
	}
	signer, err := loadSigner()
	if err != nil {
		return err
	}
	if signer != nil {
		opts = append(opts, uki.WithSigner(signer))
	}
	log.Debug().Str("stub", stub).Str("machine", pecoff.MachineName(machine)).Msg("building image")
	out, err := uki.Assemble(in.stub, in.cmdline, in.kernel, in.initrds, opts...)
	if err != nil {
		return err
	}
	err = atomicfile.WriteFile(argOutput, out, atomicfile.Options{
		Overwrite: argForce,
		Backup:    argBackup,
	})
	if err != nil {
		return err
	}
	log.Info().Str("output", argOutput).Bool("signed", signer != nil).Msg("wrote unified kernel image")
	return nil
}

// readInputs loads every input file concurrently
func readInputs(stub, osrel, splash string) (*inputs, error) {
	in := &inputs{initrds: make([][]byte, len(argInitrds))}
	var eg errgroup.Group
	read := func(dest *[]byte, path string) {
		if path == "" {
			return
		}
		eg.Go(func() error {
			data, err := shared.ReadFile(path)
			if err != nil {
				return err
			}
			*dest = data
			return nil
		})
	}
	read(&in.stub, stub)
	read(&in.cmdline, argCmdline)
	read(&in.kernel, argKernel)
	read(&in.osrel, osrel)
	read(&in.splash, splash)
	for i, path := range argInitrds {
		read(&in.initrds[i], path)
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

var goarchMachines = map[string]string{
	"amd64":   "x86_64",
	"arm64":   "arm64",
	"riscv64": "riscv64",
	"loong64": "loongarch64",
}

func targetMachine() (uint16, error) {
	name := firstOf(argMachine, shared.CurrentConfig.Machine)
	if name == "" {
		name = goarchMachines[runtime.GOARCH]
		if name == "" {
			return 0, fmt.Errorf("no EFI architecture for %s; use --machine", runtime.GOARCH)
		}
	}
	machine, ok := pecoff.MachineByName(name)
	if !ok {
		return 0, fmt.Errorf("unknown machine %q", name)
	}
	return machine, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
