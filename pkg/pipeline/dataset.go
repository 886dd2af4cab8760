// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package pipeline turns the entries discovered by imagefolders into a train.Dataset that yields
// batches of (optionally augmented) grayscale images and their good/bad labels.
//
// For each yielded batch the images go through: decode, grayscale, augmentation (training only),
// central crop and conversion to a tensor shaped `[batch_size, height, width, 1]`.
package pipeline

import (
	"fmt"
	"image"
	_ "image/png"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/trainpipe/trainpipe/pkg/augment"
	"github.com/trainpipe/trainpipe/pkg/imagefolders"
	"k8s.io/klog/v2"
)

// InputName is the name of the images input, as expected by the model.
const InputName = "x"

const (
	DefaultBatchSize    = 50
	DefaultCropFraction = 0.666666
	DefaultMaxValue     = 255.0
)

// Config of a Dataset.
type Config struct {
	// BatchSize is the number of images per batch. The last batch of an epoch may be smaller.
	BatchSize int

	// Training datasets are reshuffled every epoch, augmented, and loop forever.
	// Otherwise, the dataset goes once over the entries in order, and then returns io.EOF.
	Training bool

	// Augment configures the random augmentation, only used if Training.
	Augment augment.Config

	// CropFraction is the central fraction of the image kept, in (0, 1].
	CropFraction float64

	// Standardize each image to zero mean and unit variance.
	Standardize bool

	// DType of the images and labels tensors.
	DType dtypes.DType

	// MaxValue of a pixel intensity: intensities are scaled to [0, MaxValue].
	MaxValue float64

	// Seed for the shuffling and augmentation. If 0, the current time is used.
	Seed int64
}

// DefaultConfig returns the default configuration for a training (if training is true) or an
// evaluation dataset.
func DefaultConfig(training bool) Config {
	return Config{
		BatchSize:    DefaultBatchSize,
		Training:     training,
		Augment:      augment.DefaultConfig(),
		CropFraction: DefaultCropFraction,
		DType:        dtypes.Float32,
		MaxValue:     DefaultMaxValue,
	}
}

// Validate the configuration.
func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return errors.Errorf("batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.CropFraction <= 0 || c.CropFraction > 1 {
		return errors.Errorf("crop fraction must be in (0, 1], got %g", c.CropFraction)
	}
	if !isSupportedDType(c.DType) {
		return errors.Errorf("dtype %s not supported, use one of %v", c.DType, SupportedDTypes)
	}
	if c.Standardize && !c.DType.IsFloat() {
		return errors.Errorf("standardization requires a float dtype, got %s", c.DType)
	}
	if c.MaxValue <= 0 {
		return errors.Errorf("max value must be positive, got %g", c.MaxValue)
	}
	if c.Training {
		if err := c.Augment.Validate(); err != nil {
			return errors.WithMessage(err, "invalid augmentation")
		}
	}
	return nil
}

// Dataset implements train.Dataset, yielding batches of images and labels from imagefolders.Entries.
//
// Yield can be called concurrently, so it can be wrapped with datasets.Parallel.
type Dataset struct {
	name      string
	entries   *imagefolders.Entries
	config    Config
	augmenter *augment.Augmenter

	// muSelection protects the selection order and position below.
	muSelection sync.Mutex
	order       []int
	next, epoch int
	shuffle     *rand.Rand
}

var (
	_ train.Dataset      = (*Dataset)(nil)
	_ train.HasShortName = (*Dataset)(nil)
)

// NewDataset creates a Dataset over the given entries.
//
// Training datasets can't be empty, since they loop forever.
func NewDataset(name string, entries *imagefolders.Entries, config Config) (*Dataset, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "dataset %q", name)
	}
	if len(entries.Paths) != len(entries.Labels) {
		return nil, errors.Errorf("dataset %q has %d paths but %d labels", name, len(entries.Paths), len(entries.Labels))
	}
	if config.Training && entries.Len() == 0 {
		return nil, errors.Errorf("training dataset %q has no images, check the input folders", name)
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	ds := &Dataset{
		name:    name,
		entries: entries,
		config:  config,
		order:   make([]int, entries.Len()),
		shuffle: rand.New(rand.NewSource(seed)),
	}
	if config.Training {
		ds.augmenter = augment.NewAugmenter(config.Augment, rand.New(rand.NewSource(seed+1)))
	}
	ds.Reset()
	return ds, nil
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// ShortName implements train.HasShortName.
func (ds *Dataset) ShortName() string {
	if len(ds.name) <= 3 {
		return ds.name
	}
	return ds.name[:3]
}

// Config returns the dataset configuration.
func (ds *Dataset) Config() Config { return ds.config }

// Entries returns the entries the dataset reads from.
func (ds *Dataset) Entries() *imagefolders.Entries { return ds.entries }

// InputNames returns the name of each of the inputs yielded.
func (ds *Dataset) InputNames() []string { return []string{InputName} }

// Epoch returns the number of completed epochs. It only increases for training datasets.
func (ds *Dataset) Epoch() int {
	ds.muSelection.Lock()
	defer ds.muSelection.Unlock()
	return ds.epoch
}

// Reset implements train.Dataset. It restarts the epoch, and reshuffles the entries for
// training datasets.
func (ds *Dataset) Reset() {
	ds.muSelection.Lock()
	defer ds.muSelection.Unlock()
	ds.resetLocked()
}

func (ds *Dataset) resetLocked() {
	ds.next = 0
	for ii := range ds.order {
		ds.order[ii] = ii
	}
	if ds.config.Training {
		ds.shuffle.Shuffle(len(ds.order), func(i, j int) {
			ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
		})
	}
}

// yieldIndices selects the entries of the next batch.
func (ds *Dataset) yieldIndices() ([]int, error) {
	ds.muSelection.Lock()
	defer ds.muSelection.Unlock()
	if ds.next >= len(ds.order) {
		if !ds.config.Training {
			return nil, io.EOF
		}
		ds.epoch++
		ds.resetLocked()
		klog.V(2).Infof("dataset %q starting epoch %d", ds.name, ds.epoch)
	}
	end := min(ds.next+ds.config.BatchSize, len(ds.order))
	indices := append([]int(nil), ds.order[ds.next:end]...)
	ds.next = end
	return indices, nil
}

// YieldImages returns the next batch as images, with their labels and paths. These are the images
// (augmented and cropped) that Yield converts to tensors.
func (ds *Dataset) YieldImages() (images []image.Image, labels []float64, paths []string, err error) {
	indices, err := ds.yieldIndices()
	if err != nil {
		return
	}
	images = make([]image.Image, 0, len(indices))
	labels = make([]float64, 0, len(indices))
	paths = make([]string, 0, len(indices))
	for _, idx := range indices {
		path := ds.entries.Paths[idx]
		var img image.Image
		img, err = ds.readImage(path)
		if err != nil {
			return nil, nil, nil, err
		}
		if len(images) > 0 && img.Bounds().Size() != images[0].Bounds().Size() {
			err = errors.Errorf("dataset %q: image %q has size %v, but other images in the batch have size %v",
				ds.name, path, img.Bounds().Size(), images[0].Bounds().Size())
			return nil, nil, nil, err
		}
		images = append(images, img)
		labels = append(labels, ds.entries.Labels[idx])
		paths = append(paths, path)
	}
	return
}

// readImage reads and transforms one image.
func (ds *Dataset) readImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset %q failed to read image %q", ds.name, path)
	}
	img = augment.Grayscale(img)
	if ds.augmenter != nil {
		img = ds.augmenter.Apply(img)
	}
	img, err = augment.CentralCrop(img, ds.config.CropFraction)
	if err != nil {
		return nil, errors.WithMessagef(err, "dataset %q, image %q", ds.name, path)
	}
	return img, nil
}

// Yield implements train.Dataset. It returns:
//
//   - spec: the *Dataset itself.
//   - inputs: one tensor with the images, shaped `[batch_size, height, width, 1]`.
//   - labels: one tensor with the labels (1 for good, 0 for bad), shaped `[batch_size]`.
//
// Evaluation datasets return io.EOF at the end of the epoch. Training datasets never end.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	spec = ds
	images, labelValues, _, err := ds.YieldImages()
	if err != nil {
		return
	}
	imagesT, err := ImagesToTensor(images, ds.config.DType, ds.config.MaxValue, ds.config.Standardize)
	if err != nil {
		err = errors.WithMessagef(err, "dataset %q", ds.name)
		return
	}
	labelsT, err := LabelsToTensor(labelValues, ds.config.DType)
	if err != nil {
		err = errors.WithMessagef(err, "dataset %q", ds.name)
		return
	}
	inputs = []*tensors.Tensor{imagesT}
	labels = []*tensors.Tensor{labelsT}
	return
}

// String returns a description of the dataset.
func (ds *Dataset) String() string {
	mode := "eval"
	if ds.config.Training {
		mode = "train"
	}
	return fmt.Sprintf("%s (%s): %s, batch size %d", ds.name, mode, ds.entries, ds.config.BatchSize)
}
