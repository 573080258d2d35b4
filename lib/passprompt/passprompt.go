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

// Package passprompt obtains passwords for encrypted key material, from the
// environment or by prompting on the controlling terminal.
package passprompt

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

type PasswordGetter interface {
	// Ask the user for a password. Returns io.EOF if no more passwords are
	// available.
	GetPasswd(prompt string) (string, error)
}

// PasswordPrompt reads a password from the terminal without echoing it.
type PasswordPrompt struct {
	// Input defaults to stdin
	Input *os.File
	// Output defaults to stderr
	Output io.Writer
}

var ErrNoTerminal = errors.New("password required but no terminal is available")

func (p *PasswordPrompt) GetPasswd(prompt string) (string, error) {
	in, out := p.Input, p.Output
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}
	fmt.Fprint(out, prompt)
	passwd, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(passwd), nil
}

// EnvPassword answers the first request from an environment variable, then
// defers to Fallback. Without a fallback further requests return io.EOF.
type EnvPassword struct {
	Name     string
	Fallback PasswordGetter

	used bool
}

func (e *EnvPassword) GetPasswd(prompt string) (string, error) {
	if !e.used {
		e.used = true
		if value, ok := os.LookupEnv(e.Name); ok {
			return value, nil
		}
	}
	if e.Fallback != nil {
		return e.Fallback.GetPasswd(prompt)
	}
	return "", io.EOF
}

// Static returns each of the given passwords in turn, then io.EOF.
type Static []string

func (s *Static) GetPasswd(prompt string) (string, error) {
	if len(*s) == 0 {
		return "", io.EOF
	}
	passwd := (*s)[0]
	*s = (*s)[1:]
	return passwd, nil
}
