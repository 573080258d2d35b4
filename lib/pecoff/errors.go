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

package pecoff

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedStub is returned when an image fails header validation or
	// breaks a layout invariant.
	ErrMalformedStub = errors.New("malformed PE image")
	// ErrSectionNameCollision is returned when a payload would add a section
	// whose name is already taken.
	ErrSectionNameCollision = errors.New("section name collision")
	// ErrSizeLimitExceeded is returned when a size, offset or address would
	// overflow its header field.
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
	// ErrTruncatedInput is returned when a header points past the end of the
	// input.
	ErrTruncatedInput = errors.New("truncated input")
	// ErrInvalidPayload is returned for payloads with an unusable name or
	// placement.
	ErrInvalidPayload = errors.New("invalid payload")
)

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedStub, fmt.Sprintf(format, args...))
}

func truncated(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrTruncatedInput, fmt.Sprintf(format, args...))
}

func tooLarge(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSizeLimitExceeded, fmt.Sprintf(format, args...))
}
