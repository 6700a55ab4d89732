// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package device

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// InputDir holds the evdev nodes scanned by Discover.
const InputDir = "/dev/input"

// eventIndex returns N for a path ending in eventN, or -1.
func eventIndex(path string) int {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "event") {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimPrefix(base, "event"))
	if err != nil {
		return -1
	}
	return n
}

// sortEventPaths orders event nodes numerically so event10 follows event9.
func sortEventPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if eventIndex(p) >= 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return eventIndex(out[i]) < eventIndex(out[j])
	})
	return out
}

// matchDevices walks paths in order and keeps those whose name equals want,
// stopping after limit matches. Nodes whose name cannot be read are skipped.
func matchDevices(paths []string, want string, limit int, nameOf func(string) (string, error)) []string {
	var out []string
	for _, p := range sortEventPaths(paths) {
		if limit > 0 && len(out) >= limit {
			break
		}
		name, err := nameOf(p)
		if err != nil {
			continue
		}
		if name == want {
			out = append(out, p)
		}
	}
	return out
}
