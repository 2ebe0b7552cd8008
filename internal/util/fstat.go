// Copyright (C) 2023 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package util

import (
	"errors"
	"os"
	"strings"

	"github.com/cernan/cernan/internal/cernanlog"
)

func CheckFileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !errors.Is(err, os.ErrNotExist)
}

// GetFilecount reports the number of segment files (*.log) directly inside
// path (a hopper channel directory), or 0 if path can't be read.
func GetFilecount(path string) int {
	files, err := os.ReadDir(path)
	if err != nil {
		cernanlog.Errorf("Error on ReadDir %s: %v", path, err)
		return 0
	}

	n := 0
	for _, f := range files {
		if !f.IsDir() && strings.HasSuffix(f.Name(), ".log") {
			n++
		}
	}
	return n
}
