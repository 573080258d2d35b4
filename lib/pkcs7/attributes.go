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

package pkcs7

import (
	"bytes"
	"encoding/asn1"
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// Attribute is a single attribute type with a SET of values.
type Attribute struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue
}

type AttributeList []Attribute

// ErrNoAttribute is returned when an attribute is not present.
type ErrNoAttribute struct {
	ID asn1.ObjectIdentifier
}

func (e ErrNoAttribute) Error() string {
	return fmt.Sprintf("attribute not found: %s", e.ID)
}

// Add appends an attribute holding one value.
func (l *AttributeList) Add(oid asn1.ObjectIdentifier, obj interface{}) error {
	value, err := asn1.Marshal(obj)
	if err != nil {
		return err
	}
	*l = append(*l, Attribute{
		Type: oid,
		Values: asn1.RawValue{
			Class:      asn1.ClassUniversal,
			Tag:        asn1.TagSet,
			IsCompound: true,
			Bytes:      value,
		},
	})
	return nil
}

// Exists reports whether any attribute of the given type is present.
func (l AttributeList) Exists(oid asn1.ObjectIdentifier) bool {
	for _, attr := range l {
		if attr.Type.Equal(oid) {
			return true
		}
	}
	return false
}

// values returns the DER encoding of every value of the given type
func (l AttributeList) values(oid asn1.ObjectIdentifier) ([][]byte, error) {
	var values [][]byte
	for _, attr := range l {
		if !attr.Type.Equal(oid) {
			continue
		}
		rest := attr.Values.Bytes
		for len(rest) > 0 {
			var raw asn1.RawValue
			var err error
			rest, err = asn1.Unmarshal(rest, &raw)
			if err != nil {
				return nil, err
			}
			values = append(values, raw.FullBytes)
		}
	}
	return values, nil
}

// GetOne unmarshals the single value of the given type into dest. It is an
// error for the attribute to be missing or to have more than one value.
func (l AttributeList) GetOne(oid asn1.ObjectIdentifier, dest interface{}) error {
	values, err := l.values(oid)
	if err != nil {
		return err
	}
	switch len(values) {
	case 0:
		return ErrNoAttribute{oid}
	case 1:
		_, err := asn1.Unmarshal(values[0], dest)
		return err
	default:
		return fmt.Errorf("expected 1 value for attribute %s but found %d", oid, len(values))
	}
}

// GetAll unmarshals every value of the given type into dest, which must be a
// pointer to a slice.
func (l AttributeList) GetAll(oid asn1.ObjectIdentifier, dest interface{}) error {
	ptr := reflect.ValueOf(dest)
	if ptr.Kind() != reflect.Ptr || ptr.Elem().Kind() != reflect.Slice {
		return errors.New("destination must be a pointer to a slice")
	}
	values, err := l.values(oid)
	if err != nil {
		return err
	}
	slice := ptr.Elem()
	for _, value := range values {
		elem := reflect.New(slice.Type().Elem())
		if _, err := asn1.Unmarshal(value, elem.Interface()); err != nil {
			return err
		}
		slice.Set(reflect.Append(slice, elem.Elem()))
	}
	return nil
}

// Sort orders the attributes by their DER encoding, as required for a DER SET
// OF. The [0] IMPLICIT encoding in a SignerInfo and the SET encoding that gets
// signed must have the same order.
func (l AttributeList) Sort() error {
	encoded := make([][]byte, len(l))
	for i, attr := range l {
		der, err := asn1.Marshal(attr)
		if err != nil {
			return err
		}
		encoded[i] = der
	}
	sort.Sort(attrSorter{l, encoded})
	return nil
}

type attrSorter struct {
	l       AttributeList
	encoded [][]byte
}

func (s attrSorter) Len() int { return len(s.l) }
func (s attrSorter) Less(i, j int) bool {
	return bytes.Compare(s.encoded[i], s.encoded[j]) < 0
}
func (s attrSorter) Swap(i, j int) {
	s.l[i], s.l[j] = s.l[j], s.l[i]
	s.encoded[i], s.encoded[j] = s.encoded[j], s.encoded[i]
}

// Bytes returns the encoding of the list as a SET, which is what the signer
// signs. See RFC 2315 9.3.
func (l AttributeList) Bytes() ([]byte, error) {
	return marshalUnsortedSet(l)
}

// marshal a SET OF without reordering the elements
func marshalUnsortedSet(l AttributeList) ([]byte, error) {
	var buf bytes.Buffer
	for _, attr := range l {
		der, err := asn1.Marshal(attr)
		if err != nil {
			return nil, err
		}
		buf.Write(der)
	}
	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassUniversal,
		Tag:        asn1.TagSet,
		IsCompound: true,
		Bytes:      buf.Bytes(),
	})
}
