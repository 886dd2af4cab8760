// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package imagefolders discovers labeled images in folders laid out as `<folder>/good/*.png` and
// `<folder>/bad/*.png`, and builds the (optionally balanced and shuffled) list of image paths and
// labels used to create training and evaluation datasets.
package imagefolders

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Quality is the class of an image: Good or Bad.
type Quality int8

const (
	Bad Quality = iota
	Good
)

func (q Quality) String() string {
	switch q {
	case Bad:
		return "Bad"
	case Good:
		return "Good"
	}
	return "Unknown"
}

// Label returns the numeric label used for training: 1 for Good and 0 for Bad.
func (q Quality) Label() float64 {
	if q == Good {
		return 1
	}
	return 0
}

// QualityOf converts a label back to a Quality. Any label >= 0.5 is Good.
func QualityOf(label float64) Quality {
	if label >= 0.5 {
		return Good
	}
	return Bad
}

const (
	// DefaultPattern used to match image files inside the class subdirectories.
	DefaultPattern = "*.png"

	// DefaultTrainFraction is the fraction of entries that go to the training split.
	DefaultTrainFraction = 0.8
)

// SubDirs holds the name of the subdirectory for each Quality.
var SubDirs = [2]string{"bad", "good"}

// Config controls how Load discovers and orders the entries.
type Config struct {
	// MaxPerFolder, if > 0, limits the number of files taken from each class of each folder.
	MaxPerFolder int

	// PreShuffle shuffles the files of each folder class before MaxPerFolder truncation, so
	// the files kept are a random sample instead of the first ones in lexical order.
	PreShuffle bool

	// Shuffle the aggregated entries at the end, keeping paths and labels together.
	Shuffle bool

	// MakeEqual truncates both classes to the size of the smaller one.
	MakeEqual bool

	// Pattern matched inside each class subdirectory. Defaults to DefaultPattern.
	Pattern string

	// Strict makes missing folders or class subdirectories an error. Otherwise they are
	// only logged and contribute no entries.
	Strict bool

	// Rand used for shuffling. If nil, one seeded with the current time is created.
	Rand *rand.Rand
}

// DefaultConfig returns a Config that shuffles the final entries and nothing else.
func DefaultConfig() Config {
	return Config{Shuffle: true, Pattern: DefaultPattern}
}

// Load discovers the images of all given folders.
//
// Entries are built in the following order:
//
//  1. For each folder, good and bad files are listed (PreShuffle'd and truncated to MaxPerFolder
//     if configured) and appended to the aggregated lists.
//  2. If MakeEqual, both lists are truncated to the smaller size.
//  3. Labels are assigned, good entries first, then bad entries.
//  4. If Shuffle, the entries are shuffled.
func Load(folders []string, config Config) (*Entries, error) {
	if config.Pattern == "" {
		config.Pattern = DefaultPattern
	}
	rng := config.Rand
	if rng == nil && (config.PreShuffle || config.Shuffle) {
		rng = rand.New(rand.NewSource(time.Now().UTC().UnixNano()))
	}

	var perQuality [2][]string
	for _, folder := range folders {
		for quality, subDir := range SubDirs {
			files, err := listFiles(folder, subDir, config)
			if err != nil {
				return nil, err
			}
			if config.PreShuffle {
				rng.Shuffle(len(files), func(i, j int) { files[i], files[j] = files[j], files[i] })
			}
			if config.MaxPerFolder > 0 && len(files) > config.MaxPerFolder {
				files = files[:config.MaxPerFolder]
			}
			perQuality[quality] = append(perQuality[quality], files...)
		}
	}

	good, bad := perQuality[Good], perQuality[Bad]
	if config.MakeEqual {
		n := min(len(good), len(bad))
		good, bad = good[:n], bad[:n]
	}

	entries := &Entries{
		Paths:  make([]string, 0, len(good)+len(bad)),
		Labels: make([]float64, 0, len(good)+len(bad)),
	}
	for _, path := range good {
		entries.Paths = append(entries.Paths, path)
		entries.Labels = append(entries.Labels, Good.Label())
	}
	for _, path := range bad {
		entries.Paths = append(entries.Paths, path)
		entries.Labels = append(entries.Labels, Bad.Label())
	}
	if config.Shuffle {
		entries.Shuffle(rng)
	}
	klog.V(1).Infof("imagefolders: loaded %d good and %d bad images from %d folders",
		len(good), len(bad), len(folders))
	return entries, nil
}

// listFiles returns the files matching config.Pattern in `<folder>/<subDir>`.
func listFiles(folder, subDir string, config Config) ([]string, error) {
	dir := filepath.Join(folder, subDir)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = errors.Errorf("%q is not a directory", dir)
		}
		if config.Strict {
			return nil, errors.Wrapf(err, "missing %q images for folder %q", subDir, folder)
		}
		klog.Warningf("imagefolders: skipping %q: %v", dir, err)
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, config.Pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid pattern %q for %q", config.Pattern, dir)
	}
	return files, nil
}

// Entries holds paired image paths and labels.
type Entries struct {
	Paths  []string
	Labels []float64
}

// Len returns the number of entries.
func (e *Entries) Len() int { return len(e.Paths) }

// NumGood returns the sum of the labels, that is, the number of good entries.
func (e *Entries) NumGood() int {
	var sum float64
	for _, label := range e.Labels {
		sum += label
	}
	return int(sum)
}

// NumBad returns the number of bad entries.
func (e *Entries) NumBad() int { return e.Len() - e.NumGood() }

// Quality of the entry at index ii.
func (e *Entries) Quality(ii int) Quality { return QualityOf(e.Labels[ii]) }

// Shuffle the entries in place, keeping paths and labels together.
func (e *Entries) Shuffle(rng *rand.Rand) {
	rng.Shuffle(e.Len(), func(i, j int) {
		e.Paths[i], e.Paths[j] = e.Paths[j], e.Paths[i]
		e.Labels[i], e.Labels[j] = e.Labels[j], e.Labels[i]
	})
}

// Subset returns new Entries with the given indices.
func (e *Entries) Subset(indices []int) *Entries {
	subset := &Entries{
		Paths:  make([]string, len(indices)),
		Labels: make([]float64, len(indices)),
	}
	for ii, idx := range indices {
		subset.Paths[ii] = e.Paths[idx]
		subset.Labels[ii] = e.Labels[idx]
	}
	return subset
}

// Split the entries into train and test: the train split takes the first
// `int(Len() * trainFraction)` entries, test takes the remainder.
//
// The returned Entries don't share storage with e.
func (e *Entries) Split(trainFraction float64) (train, test *Entries, err error) {
	if trainFraction < 0 || trainFraction > 1 {
		err = errors.Errorf("train fraction must be in [0, 1], got %g", trainFraction)
		return
	}
	split := int(float64(e.Len()) * trainFraction)
	train = &Entries{
		Paths:  append([]string(nil), e.Paths[:split]...),
		Labels: append([]float64(nil), e.Labels[:split]...),
	}
	test = &Entries{
		Paths:  append([]string(nil), e.Paths[split:]...),
		Labels: append([]float64(nil), e.Labels[split:]...),
	}
	return
}

// String returns a short summary of the entries.
func (e *Entries) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d images: %d good, %d bad", e.Len(), e.NumGood(), e.NumBad())
	return sb.String()
}
