// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package augment implements the random image transformations used to augment training images,
// and the central crop applied to every image before batching.
//
// All functions work on image.Image and return *image.NRGBA, built with the
// github.com/disintegration/imaging package.
package augment

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Config of the random augmentation.
type Config struct {
	// FlipLeftRight and FlipUpDown randomly flip the image (with probability 0.5 each).
	FlipLeftRight, FlipUpDown bool

	// ContrastLower and ContrastUpper are the range of the random contrast factor.
	// Contrast augmentation is disabled if both are 1 or if ContrastUpper <= ContrastLower.
	ContrastLower, ContrastUpper float64

	// BrightnessMaxDelta is the maximum brightness change, in units of the full intensity
	// range (so 0.5 means up to half the range). 0 disables it.
	BrightnessMaxDelta float64

	// MaxRotation in radians. The rotation angle is taken uniformly from [-MaxRotation, MaxRotation].
	// 0 disables it.
	MaxRotation float64
}

// DefaultConfig returns the default augmentation: random flips in both axes, contrast in [0.2, 1.8],
// brightness delta up to 0.5 and any rotation angle.
func DefaultConfig() Config {
	return Config{
		FlipLeftRight:      true,
		FlipUpDown:         true,
		ContrastLower:      0.2,
		ContrastUpper:      1.8,
		BrightnessMaxDelta: 0.5,
		MaxRotation:        math.Pi,
	}
}

// Validate the configuration.
func (c Config) Validate() error {
	if c.ContrastLower < 0 || c.ContrastUpper < 0 {
		return errors.Errorf("contrast range [%g, %g] can't be negative", c.ContrastLower, c.ContrastUpper)
	}
	if c.ContrastUpper < c.ContrastLower {
		return errors.Errorf("contrast upper bound %g is smaller than lower bound %g", c.ContrastUpper, c.ContrastLower)
	}
	if c.BrightnessMaxDelta < 0 || c.BrightnessMaxDelta > 1 {
		return errors.Errorf("brightness max delta must be in [0, 1], got %g", c.BrightnessMaxDelta)
	}
	if c.MaxRotation < 0 {
		return errors.Errorf("max rotation can't be negative, got %g", c.MaxRotation)
	}
	return nil
}

// Augmenter applies random augmentation to images. It is safe for concurrent use.
type Augmenter struct {
	config Config

	muRng sync.Mutex
	rng   *rand.Rand
}

// NewAugmenter creates an Augmenter. If rng is nil, one seeded with the current time is used.
func NewAugmenter(config Config, rng *rand.Rand) *Augmenter {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UTC().UnixNano()))
	}
	return &Augmenter{config: config, rng: rng}
}

// Config returns the augmentation configuration.
func (a *Augmenter) Config() Config { return a.config }

// transform holds one draw of the random parameters.
type transform struct {
	flipLR, flipUD   bool
	contrast, bright float64
	angle            float64
}

func (a *Augmenter) sample() (tr transform) {
	a.muRng.Lock()
	defer a.muRng.Unlock()
	c := a.config
	tr.contrast = 1
	if c.FlipLeftRight {
		tr.flipLR = a.rng.Intn(2) == 1
	}
	if c.FlipUpDown {
		tr.flipUD = a.rng.Intn(2) == 1
	}
	if c.ContrastUpper > c.ContrastLower {
		tr.contrast = c.ContrastLower + a.rng.Float64()*(c.ContrastUpper-c.ContrastLower)
	}
	if c.BrightnessMaxDelta > 0 {
		tr.bright = (2*a.rng.Float64() - 1) * c.BrightnessMaxDelta
	}
	if c.MaxRotation > 0 {
		tr.angle = (2*a.rng.Float64() - 1) * c.MaxRotation
	}
	return
}

// Apply random flips, contrast, brightness and rotation to img, in this order.
func (a *Augmenter) Apply(img image.Image) image.Image {
	tr := a.sample()
	if tr.flipLR {
		img = imaging.FlipH(img)
	}
	if tr.flipUD {
		img = imaging.FlipV(img)
	}
	if tr.contrast != 1 {
		img = AdjustContrast(img, tr.contrast)
	}
	if tr.bright != 0 {
		img = AdjustBrightness(img, tr.bright)
	}
	if tr.angle != 0 {
		img = Rotate(img, tr.angle)
	}
	return img
}

// saturate rounds v and clamps it to a uint8.
func saturate(v float64) uint8 {
	v = math.Round(v)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// AdjustContrast moves every color channel value away from (factor > 1) or towards (factor < 1)
// the channel mean: `(x - mean) * factor + mean`. Alpha is not changed.
func AdjustContrast(img image.Image, factor float64) *image.NRGBA {
	src := imaging.Clone(img)
	var means [3]float64
	numPixels := src.Rect.Dx() * src.Rect.Dy()
	if numPixels == 0 {
		return src
	}
	for ii := 0; ii < len(src.Pix); ii += 4 {
		for ch := range 3 {
			means[ch] += float64(src.Pix[ii+ch])
		}
	}
	for ch := range means {
		means[ch] /= float64(numPixels)
	}
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		c.R = saturate((float64(c.R)-means[0])*factor + means[0])
		c.G = saturate((float64(c.G)-means[1])*factor + means[1])
		c.B = saturate((float64(c.B)-means[2])*factor + means[2])
		return c
	})
}

// AdjustBrightness adds delta (in units of the full intensity range) to every color channel.
func AdjustBrightness(img image.Image, delta float64) *image.NRGBA {
	shift := delta * 255
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		c.R = saturate(float64(c.R) + shift)
		c.G = saturate(float64(c.G) + shift)
		c.B = saturate(float64(c.B) + shift)
		return c
	})
}

// Rotate img counter-clockwise by the given angle in radians, around its center.
// The output has the same size as the input, and the corners not covered are filled with black.
func Rotate(img image.Image, radians float64) *image.NRGBA {
	size := img.Bounds().Size()
	degrees := radians * 180 / math.Pi
	rotated := imaging.Rotate(img, degrees, color.NRGBA{A: 255})
	return imaging.CropCenter(rotated, size.X, size.Y)
}

// CentralCropSize returns the start offset and the size of the central crop of a dimension of
// size dim.
func CentralCropSize(dim int, fraction float64) (start, size int) {
	start = int((float64(dim) - float64(dim)*fraction) / 2)
	size = dim - 2*start
	return
}

// CentralCrop keeps the central `fraction` of the image in each axis.
//
// E.g.: a 21x21 image with fraction 0.666666 is cropped to 15x15.
func CentralCrop(img image.Image, fraction float64) (*image.NRGBA, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, errors.Errorf("central crop fraction must be in (0, 1], got %g", fraction)
	}
	if fraction == 1 {
		return imaging.Clone(img), nil
	}
	bounds := img.Bounds()
	startX, width := CentralCropSize(bounds.Dx(), fraction)
	startY, height := CentralCropSize(bounds.Dy(), fraction)
	rect := image.Rect(bounds.Min.X+startX, bounds.Min.Y+startY,
		bounds.Min.X+startX+width, bounds.Min.Y+startY+height)
	return imaging.Crop(img, rect), nil
}

// Grayscale converts img to grayscale: the luminance is replicated in R, G and B.
func Grayscale(img image.Image) *image.NRGBA {
	return imaging.Grayscale(img)
}
