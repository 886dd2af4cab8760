// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package imagefolders

import (
	"fmt"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createFolder creates `<root>/<name>/good` and `<root>/<name>/bad` with the given number of tiny images.
func createFolder(t *testing.T, root, name string, numGood, numBad int) string {
	folder := filepath.Join(root, name)
	for quality, count := range map[Quality]int{Good: numGood, Bad: numBad} {
		dir := filepath.Join(folder, SubDirs[quality])
		must.M(os.MkdirAll(dir, 0755))
		for ii := range count {
			img := imaging.New(4, 4, color.Gray{Y: uint8(10 * ii)})
			require.NoError(t, imaging.Save(img, filepath.Join(dir, fmt.Sprintf("%s_%03d.png", quality, ii))))
		}
	}
	return folder
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	f0 := createFolder(t, root, "f0", 3, 2)
	f1 := createFolder(t, root, "f1", 1, 4)

	t.Run("NoShuffle", func(t *testing.T) {
		entries, err := Load([]string{f0, f1}, Config{})
		require.NoError(t, err)
		require.Equal(t, 10, entries.Len())
		require.Len(t, entries.Labels, entries.Len())
		assert.Equal(t, 4, entries.NumGood())
		assert.Equal(t, 6, entries.NumBad())
		// Good entries come first, then bad ones.
		assert.Equal(t, []float64{1, 1, 1, 1, 0, 0, 0, 0, 0, 0}, entries.Labels)
		assert.Equal(t, filepath.Join(f0, "good", "Good_000.png"), entries.Paths[0])
		assert.Equal(t, filepath.Join(f1, "good", "Good_000.png"), entries.Paths[3])
		assert.Equal(t, filepath.Join(f0, "bad", "Bad_000.png"), entries.Paths[4])
	})

	t.Run("Shuffle", func(t *testing.T) {
		entries, err := Load([]string{f0, f1}, Config{Shuffle: true, Rand: rand.New(rand.NewSource(42))})
		require.NoError(t, err)
		require.Equal(t, 10, entries.Len())
		assert.Equal(t, 4, entries.NumGood())
		for ii, path := range entries.Paths {
			isGood := strings.Contains(path, string(filepath.Separator)+"good"+string(filepath.Separator))
			assert.Equalf(t, isGood, entries.Labels[ii] == 1, "label for %q is %g", path, entries.Labels[ii])
		}
	})

	t.Run("MaxPerFolder", func(t *testing.T) {
		entries, err := Load([]string{f0, f1}, Config{MaxPerFolder: 2})
		require.NoError(t, err)
		// f0: 2 good, 2 bad; f1: 1 good, 2 bad.
		assert.Equal(t, 3, entries.NumGood())
		assert.Equal(t, 4, entries.NumBad())
	})

	t.Run("PreShuffleMaxPerFolder", func(t *testing.T) {
		entries, err := Load([]string{f0}, Config{MaxPerFolder: 1, PreShuffle: true, Rand: rand.New(rand.NewSource(1))})
		require.NoError(t, err)
		assert.Equal(t, 2, entries.Len())
		assert.Equal(t, 1, entries.NumGood())
	})

	t.Run("MakeEqual", func(t *testing.T) {
		entries, err := Load([]string{f0, f1}, Config{MakeEqual: true})
		require.NoError(t, err)
		assert.Equal(t, 4, entries.NumGood())
		assert.Equal(t, 4, entries.NumBad())
	})

	t.Run("Pattern", func(t *testing.T) {
		entries, err := Load([]string{f0}, Config{Pattern: "*.jpg"})
		require.NoError(t, err)
		assert.Zero(t, entries.Len())

		_, err = Load([]string{f0}, Config{Pattern: "["})
		require.Error(t, err)
	})
}

func TestLoadMissingFolders(t *testing.T) {
	root := t.TempDir()
	f0 := createFolder(t, root, "f0", 2, 2)
	missing := filepath.Join(root, "does_not_exist")

	entries, err := Load([]string{f0, missing}, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 4, entries.Len())

	_, err = Load([]string{f0, missing}, Config{Strict: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does_not_exist")

	// Only a "good" subdirectory: bad is missing.
	onlyGood := filepath.Join(root, "only_good")
	must.M(os.MkdirAll(filepath.Join(onlyGood, "good"), 0755))
	entries, err = Load([]string{onlyGood}, Config{})
	require.NoError(t, err)
	assert.Zero(t, entries.Len())
	_, err = Load([]string{onlyGood}, Config{Strict: true})
	require.Error(t, err)
}

func TestSplit(t *testing.T) {
	entries := &Entries{}
	for ii := range 11 {
		entries.Paths = append(entries.Paths, fmt.Sprintf("img_%d.png", ii))
		entries.Labels = append(entries.Labels, float64(ii%2))
	}

	train, test, err := entries.Split(DefaultTrainFraction)
	require.NoError(t, err)
	assert.Equal(t, 8, train.Len()) // int(11 * 0.8)
	assert.Equal(t, 3, test.Len())
	assert.Equal(t, entries.Paths[:8], train.Paths)
	assert.Equal(t, entries.Labels[8:], test.Labels)

	// Split doesn't share storage.
	train.Paths[0] = "changed"
	assert.Equal(t, "img_0.png", entries.Paths[0])

	train, test, err = entries.Split(1.0)
	require.NoError(t, err)
	assert.Equal(t, 11, train.Len())
	assert.Zero(t, test.Len())

	_, _, err = entries.Split(1.5)
	require.Error(t, err)
	_, _, err = entries.Split(-0.1)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	f0 := createFolder(t, root, "f0", 2, 1)
	broken := filepath.Join(f0, "bad", "broken.png")
	require.NoError(t, os.WriteFile(broken, []byte("not a png"), 0644))

	entries := must.M1(Load([]string{f0}, Config{}))
	require.Equal(t, 4, entries.Len())
	invalid := Validate(entries, false)
	require.Equal(t, []string{broken}, invalid)

	clean := entries.Without(invalid)
	assert.Equal(t, 3, clean.Len())
	assert.Equal(t, 2, clean.NumGood())
	assert.NotContains(t, clean.Paths, broken)
}

func TestQuality(t *testing.T) {
	assert.Equal(t, "Good", Good.String())
	assert.Equal(t, "Bad", Bad.String())
	assert.Equal(t, 1.0, Good.Label())
	assert.Equal(t, 0.0, Bad.Label())
	assert.Equal(t, Good, QualityOf(1))
	assert.Equal(t, Bad, QualityOf(0))
}
