/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package x509tools

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

type rdnAttr struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue
}

type rdnNameSet []rdnAttr

type NameStyle int

const (
	// /C=US/O=Org/CN=name, in encoded order
	NameStyleOpenSsl NameStyle = iota
	// CN=name, O=Org, C=US, most specific first as in RFC 4514
	NameStyleLdap
	// like NameStyleLdap but with the attribute names used by Windows
	NameStyleMsOsco
)

type attrName struct {
	Type asn1.ObjectIdentifier
	Name string
}

var nameStyleLdap = []attrName{
	{asn1.ObjectIdentifier{2, 5, 4, 3}, "CN"},
	{asn1.ObjectIdentifier{2, 5, 4, 4}, "surname"},
	{asn1.ObjectIdentifier{2, 5, 4, 5}, "serialNumber"},
	{asn1.ObjectIdentifier{2, 5, 4, 6}, "C"},
	{asn1.ObjectIdentifier{2, 5, 4, 7}, "L"},
	{asn1.ObjectIdentifier{2, 5, 4, 8}, "ST"},
	{asn1.ObjectIdentifier{2, 5, 4, 9}, "street"},
	{asn1.ObjectIdentifier{2, 5, 4, 10}, "O"},
	{asn1.ObjectIdentifier{2, 5, 4, 11}, "OU"},
	{asn1.ObjectIdentifier{2, 5, 4, 12}, "title"},
	{asn1.ObjectIdentifier{2, 5, 4, 13}, "description"},
	{asn1.ObjectIdentifier{2, 5, 4, 17}, "postalCode"},
	{asn1.ObjectIdentifier{2, 5, 4, 42}, "givenName"},
	{asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 25}, "dc"},
	{asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}, "emailAddress"},
}

// Per [MS-OSCO]
// https://msdn.microsoft.com/en-us/library/dd947276(v=office.12).aspx
var nameStyleMsOsco = []attrName{
	{asn1.ObjectIdentifier{2, 5, 4, 3}, "CN"},
	{asn1.ObjectIdentifier{2, 5, 4, 7}, "L"},
	{asn1.ObjectIdentifier{2, 5, 4, 10}, "O"},
	{asn1.ObjectIdentifier{2, 5, 4, 11}, "OU"},
	{asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}, "E"},
	{asn1.ObjectIdentifier{2, 5, 4, 6}, "C"},
	{asn1.ObjectIdentifier{2, 5, 4, 8}, "S"},
	{asn1.ObjectIdentifier{2, 5, 4, 9}, "STREET"},
	{asn1.ObjectIdentifier{2, 5, 4, 12}, "T"},
	{asn1.ObjectIdentifier{2, 5, 4, 42}, "G"},
	{asn1.ObjectIdentifier{2, 5, 4, 4}, "SN"},
	{asn1.ObjectIdentifier{2, 5, 4, 5}, "SERIALNUMBER"},
	{asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 25}, "DC"},
	{asn1.ObjectIdentifier{2, 5, 4, 13}, "Description"},
	{asn1.ObjectIdentifier{2, 5, 4, 17}, "PostalCode"},
}

const InvalidName = "<invalid>"

// FormatPkixName renders a DER-encoded X.509 Name.
func FormatPkixName(der []byte, style NameStyle) string {
	var seq asn1.RawValue
	if _, err := asn1.Unmarshal(der, &seq); err != nil {
		return InvalidName
	}
	seqbytes := seq.Bytes
	var rdns []string
	for len(seqbytes) > 0 {
		var rdnSet rdnNameSet
		var err error
		seqbytes, err = asn1.UnmarshalWithParams(seqbytes, &rdnSet, "set")
		if err != nil {
			return InvalidName
		}
		var elems []string
		for _, attr := range rdnSet {
			value, ok := attValue(attr.Value)
			if !ok {
				return InvalidName
			}
			elems = append(elems, attName(attr.Type, style)+"="+escapeValue(value, style))
		}
		if style == NameStyleOpenSsl {
			rdns = append(rdns, elems...)
		} else {
			rdns = append(rdns, strings.Join(elems, " + "))
		}
	}
	if len(rdns) == 0 {
		return ""
	}
	if style == NameStyleOpenSsl {
		return "/" + strings.Join(rdns, "/")
	}
	for i, j := 0, len(rdns)-1; i < j; i, j = i+1, j-1 {
		rdns[i], rdns[j] = rdns[j], rdns[i]
	}
	return strings.Join(rdns, ", ")
}

func attName(t asn1.ObjectIdentifier, style NameStyle) string {
	names := nameStyleLdap
	var defaultPrefix string
	if style == NameStyleMsOsco {
		names = nameStyleMsOsco
		defaultPrefix = "OID."
	}
	for _, name := range names {
		if name.Type.Equal(t) {
			return name.Name
		}
	}
	return defaultPrefix + t.String()
}

func attValue(raw asn1.RawValue) (string, bool) {
	switch raw.Tag {
	case asn1.TagUTF8String, asn1.TagIA5String, asn1.TagPrintableString:
		var ret interface{}
		if _, err := asn1.Unmarshal(raw.FullBytes, &ret); err != nil {
			return "", false
		}
		s, ok := ret.(string)
		return s, ok
	case asn1.TagBMPString:
		if len(raw.Bytes)%2 != 0 {
			return "", false
		}
		words := make([]uint16, len(raw.Bytes)/2)
		for i := range words {
			words[i] = binary.BigEndian.Uint16(raw.Bytes[2*i:])
		}
		return string(utf16.Decode(words)), true
	default:
		return "", false
	}
}

func escapeValue(value string, style NameStyle) string {
	if style == NameStyleOpenSsl {
		return strings.ReplaceAll(value, "/", "\\/")
	}
	quote := len(value) == 0 ||
		strings.HasPrefix(value, " ") || strings.HasSuffix(value, " ") ||
		strings.ContainsAny(value, ",+=\n<>#;'\"")
	value = strings.ReplaceAll(value, "\"", "\"\"")
	if quote {
		value = fmt.Sprintf("\"%s\"", value)
	}
	return value
}

func FormatSubject(cert *x509.Certificate) string {
	return FormatPkixName(cert.RawSubject, NameStyleLdap)
}

func FormatIssuer(cert *x509.Certificate) string {
	return FormatPkixName(cert.RawIssuer, NameStyleLdap)
}
