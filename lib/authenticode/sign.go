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

package authenticode

import (
	"errors"
	"fmt"

	"github.com/sassoftware/sigen/lib/pecoff"
)

// ErrSignerFailure matches any error produced by a Signer.
var ErrSignerFailure = errors.New("signer failed")

// Signer produces a detached PKCS#7 SignedData blob over the Authenticode
// digest input of an image.
type Signer interface {
	SignImage(digestInput []byte) ([]byte, error)
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func([]byte) ([]byte, error)

func (f SignerFunc) SignImage(digestInput []byte) ([]byte, error) {
	return f(digestInput)
}

// SignerError wraps the error returned by a Signer unchanged.
type SignerError struct {
	Err error
}

func (e *SignerError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSignerFailure, e.Err)
}

func (e *SignerError) Unwrap() error {
	return e.Err
}

func (e *SignerError) Is(target error) bool {
	return target == ErrSignerFailure
}

// Sign appends an Authenticode signature to a PE image. Any existing
// certificate table is discarded first, so signing twice leaves a single
// record. An error from the signer is returned as a *SignerError that wraps
// it unchanged, so both errors.Is(err, ErrSignerFailure) and errors.Is/As
// against the signer's own error match.
func Sign(data []byte, s Signer) ([]byte, error) {
	img, err := pecoff.Parse(data)
	if err != nil {
		return nil, err
	}
	img.Certificates = nil
	unsigned, err := img.MarshalBinary()
	if err != nil {
		return nil, err
	}
	input, err := DigestInput(unsigned)
	if err != nil {
		return nil, err
	}
	blob, err := s.SignImage(input)
	if err != nil {
		return nil, &SignerError{Err: err}
	}
	if len(blob) == 0 {
		return nil, &SignerError{Err: errors.New("empty signature")}
	}
	table, err := NewRecord(blob).MarshalBinary()
	if err != nil {
		return nil, err
	}
	img.Certificates = table
	return img.MarshalBinary()
}
