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

package inspectcmd

import (
	"encoding/binary"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kr/pretty"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"

	"github.com/sassoftware/sigen/cmdline/shared"
	"github.com/sassoftware/sigen/lib/authenticode"
	"github.com/sassoftware/sigen/lib/pecoff"
	"github.com/sassoftware/sigen/lib/pkcs7"
	"github.com/sassoftware/sigen/lib/x509tools"
)

var InspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Show the sections and signatures of an EFI image",
	Args:  cobra.ExactArgs(1),
	RunE:  inspectCmd,
}

var argHeaders bool

func init() {
	shared.RootCmd.AddCommand(InspectCmd)
	InspectCmd.Flags().BoolVar(&argHeaders, "headers", false, "Dump the COFF and optional headers")
}

func inspectCmd(cmd *cobra.Command, args []string) error {
	data, err := shared.ReadFile(args[0])
	if err != nil {
		return err
	}
	img, err := pecoff.Parse(data)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "machine: %s\n", pecoff.MachineName(img.FileHeader.Machine))
	if argHeaders {
		fmt.Fprintf(w, "file header: %# v\n", pretty.Formatter(img.FileHeader))
		fmt.Fprintf(w, "optional header: %# v\n", pretty.Formatter(img.OptionalHeader))
	}
	printSections(w, img)
	stored := binary.LittleEndian.Uint32(data[img.ChecksumOffset():])
	computed, err := pecoff.Checksum(data)
	if err != nil {
		return err
	}
	status := "valid"
	if stored != computed {
		status = fmt.Sprintf("INVALID, expected 0x%08x", computed)
	}
	fmt.Fprintf(w, "checksum: 0x%08x (%s)\n", stored, status)
	return printSignatures(w, img)
}

func printSections(w io.Writer, img *pecoff.Image) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "section\taddress\tvsize\tfile offset\tfile size\tflags\tdigest")
	for _, s := range img.Sections {
		h := s.Header
		contents := s.Data
		if h.VirtualSize != 0 && int(h.VirtualSize) < len(contents) {
			contents = contents[:h.VirtualSize]
		}
		fmt.Fprintf(tw, "%s\t0x%08x\t0x%x\t0x%x\t0x%x\t0x%08x\t%s\n",
			s.Name(), h.VirtualAddress, h.VirtualSize, h.PointerToRawData, h.SizeOfRawData,
			h.Characteristics, digest.FromBytes(contents))
	}
	tw.Flush()
	if len(img.Overlay) != 0 {
		fmt.Fprintf(w, "overlay: %d bytes %s\n", len(img.Overlay), digest.FromBytes(img.Overlay))
	}
}

func printSignatures(w io.Writer, img *pecoff.Image) error {
	records, err := authenticode.ParseRecords(img.Certificates)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "signatures: none")
		return nil
	}
	dd := img.CertificateTable()
	fmt.Fprintf(w, "signatures: %d (table at 0x%x, %d bytes)\n", len(records), dd.VirtualAddress, dd.Size)
	for i, rec := range records {
		fmt.Fprintf(w, "  [%d] revision 0x%04x type 0x%04x length %d\n", i, rec.Revision, rec.CertificateType, len(rec.Data))
		if rec.CertificateType != authenticode.TypePKCSSignedData {
			continue
		}
		certs, err := pkcs7.ParseCertificates(rec.Data)
		if err != nil {
			fmt.Fprintf(w, "      unreadable signature: %s\n", err)
			continue
		}
		fmt.Fprintf(w, "      subject: %s\n", x509tools.FormatSubject(certs[0]))
		fmt.Fprintf(w, "      issuer:  %s\n", x509tools.FormatIssuer(certs[0]))
	}
	return nil
}
