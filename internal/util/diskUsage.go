// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package util

import (
	"io/fs"
	"path/filepath"

	"github.com/cernan/cernan/internal/cernanlog"
)

// DiskUsage reports the combined size, in megabytes, of every regular file
// under dirpath, recursing into subdirectories (the data directory holds one
// directory per channel, and each channel directory holds its segments, its
// manifest and a cursors/ subdirectory).
func DiskUsage(dirpath string) float64 {
	var size int64

	err := filepath.WalkDir(dirpath, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if info, ierr := d.Info(); ierr == nil && info.Mode().IsRegular() {
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		cernanlog.Errorf("DiskUsage() error: %v", err)
		return 0
	}

	return float64(size) * 1e-6
}
