// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package imagefolders

import (
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Validate tries to decode every image in entries and returns the paths of the ones that failed.
// See also Entries.Without.
func Validate(entries *Entries, showProgress bool) (invalid []string) {
	var pBar *progressbar.ProgressBar
	if showProgress {
		pBar = progressbar.NewOptions(entries.Len(),
			progressbar.OptionSetDescription("Validating"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}
	for _, path := range entries.Paths {
		if _, err := imaging.Open(path); err != nil {
			klog.Warningf("imagefolders: failed to decode %q: %v", path, err)
			invalid = append(invalid, path)
		}
		if pBar != nil {
			_ = pBar.Add(1)
		}
	}
	if pBar != nil {
		_ = pBar.Finish()
	}
	return
}

// Without returns a copy of the entries, excluding the given paths.
func (e *Entries) Without(paths []string) *Entries {
	if len(paths) == 0 {
		return e.Subset(allIndices(e.Len()))
	}
	exclude := make(map[string]bool, len(paths))
	for _, path := range paths {
		exclude[path] = true
	}
	indices := make([]int, 0, e.Len())
	for ii, path := range e.Paths {
		if !exclude[path] {
			indices = append(indices, ii)
		}
	}
	return e.Subset(indices)
}

func allIndices(n int) []int {
	indices := make([]int, n)
	for ii := range indices {
		indices[ii] = ii
	}
	return indices
}
