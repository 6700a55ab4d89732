// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build linux

package device

import (
	"fmt"
	"path/filepath"
)

// Discover returns up to limit event nodes whose device name is exactly
// name, in numeric node order. The first match is slot 0.
func Discover(name string, limit int) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(InputDir, "event*"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", InputDir, err)
	}
	return matchDevices(paths, name, limit, nodeName), nil
}

func nodeName(path string) (string, error) {
	dev, err := openNode(path)
	if err != nil {
		return "", err
	}
	defer dev.Close()
	return dev.Name(), nil
}
