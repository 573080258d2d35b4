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

package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// BackupSuffix is appended to the name of a file replaced with Options.Backup
const BackupSuffix = ".bak"

// ErrExists is returned when the destination exists and neither Overwrite nor
// Backup was requested.
var ErrExists = errors.New("output file already exists")

type AtomicFile interface {
	io.WriteCloser
	Commit() error
}

// Options controls how an existing destination is treated.
type Options struct {
	// Overwrite replaces an existing file
	Overwrite bool
	// Backup renames an existing file to name+BackupSuffix before replacing it
	Backup bool
	// Mode of the committed file, 0644 if unset
	Mode fs.FileMode
}

type atomicFile struct {
	name     string
	opts     Options
	tempfile *os.File
}

// New starts writing a temporary file next to name. Nothing is visible at
// name until Commit.
func New(name string, opts Options) (AtomicFile, error) {
	if err := opts.checkExisting(name); err != nil {
		return nil, err
	}
	tempfile, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".tmp")
	if err != nil {
		return nil, err
	}
	return &atomicFile{name: name, opts: opts, tempfile: tempfile}, nil
}

func (o Options) checkExisting(name string) error {
	if o.Overwrite || o.Backup {
		return nil
	}
	if _, err := os.Lstat(name); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, name)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (f *atomicFile) Write(d []byte) (int, error) {
	return f.tempfile.Write(d)
}

func (f *atomicFile) Close() error {
	if f.tempfile == nil {
		return nil
	}
	f.tempfile.Close()
	os.Remove(f.tempfile.Name())
	f.tempfile = nil
	return nil
}

func (f *atomicFile) Commit() error {
	if f.tempfile == nil {
		return errors.New("file is closed")
	}
	defer f.Close()
	mode := f.opts.Mode
	if mode == 0 {
		mode = 0644
	}
	if err := f.tempfile.Chmod(mode); err != nil {
		return err
	}
	if err := f.tempfile.Sync(); err != nil {
		return err
	}
	if err := f.tempfile.Close(); err != nil {
		return err
	}
	if err := f.opts.checkExisting(f.name); err != nil {
		return err
	}
	if f.opts.Backup {
		if err := os.Rename(f.name, f.name+BackupSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	} else if err := os.Remove(f.name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// rename can't overwrite on windows
		return err
	}
	if err := os.Rename(f.tempfile.Name(), f.name); err != nil {
		return err
	}
	f.tempfile = nil
	return nil
}

// WriteFile writes data to name through a temporary file.
func WriteFile(name string, data []byte, opts Options) error {
	f, err := WriteAny(name, opts)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Commit()
}
