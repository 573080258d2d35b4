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

package logging

import (
	"errors"
	"io/fs"
	"os"
	"sync"
)

// FileWriter appends to a log file, reopening it if it was rotated or removed
// since the last write.
type FileWriter struct {
	path string
	f    *os.File
	fi   os.FileInfo
	mu   sync.Mutex
}

func NewFileWriter(path string) (*FileWriter, error) {
	w := &FileWriter{path: path}
	return w, w.openLocked()
}

func (w *FileWriter) openLocked() error {
	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	// inode to compare against later
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if w.f != nil {
		w.f.Close()
	}
	w.f = f
	w.fi = fi
	return nil
}

func (w *FileWriter) reopenLocked() error {
	if w.f != nil {
		fi, err := os.Stat(w.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if fi != nil && os.SameFile(fi, w.fi) {
			return nil
		}
	}
	return w.openLocked()
}

func (w *FileWriter) Write(d []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.reopenLocked(); err != nil {
		return 0, err
	}
	return w.f.Write(d)
}

func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
