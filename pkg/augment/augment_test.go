// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package augment

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientImage returns a grayscale image where each pixel value is `(x + y*width) % 256`.
func gradientImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			v := uint8((x + y*width) % 256)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// halfWhite returns an image whose left half is white and right half is black.
func halfWhite(width, height int) *image.NRGBA {
	img := imaging.New(width, height, color.NRGBA{A: 255})
	for y := range height {
		for x := range width / 2 {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	return img
}

func TestCentralCrop(t *testing.T) {
	start, size := CentralCropSize(21, 0.666666)
	assert.Equal(t, 3, start)
	assert.Equal(t, 15, size)

	img := gradientImage(21, 21)
	cropped, err := CentralCrop(img, 0.666666)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(15, 15), cropped.Bounds().Size())
	assert.Equal(t, img.NRGBAAt(3, 3), cropped.NRGBAAt(0, 0))
	assert.Equal(t, img.NRGBAAt(17, 17), cropped.NRGBAAt(14, 14))

	// Non-square image.
	cropped, err = CentralCrop(gradientImage(10, 4), 0.5)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(6, 2), cropped.Bounds().Size())

	same, err := CentralCrop(img, 1)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, same.Pix)

	_, err = CentralCrop(img, 0)
	require.Error(t, err)
	_, err = CentralCrop(img, 1.2)
	require.Error(t, err)
}

func TestAdjustContrast(t *testing.T) {
	img := gradientImage(4, 4) // Values 0...15, mean 7.5.
	assert.Equal(t, img.Pix, AdjustContrast(img, 1).Pix)

	flat := AdjustContrast(img, 0)
	for y := range 4 {
		for x := range 4 {
			c := flat.NRGBAAt(x, y)
			assert.Equal(t, uint8(8), c.R) // Round(7.5)
			assert.Equal(t, c.R, c.G)
			assert.Equal(t, uint8(255), c.A)
		}
	}

	stretched := AdjustContrast(img, 2)
	assert.Equal(t, uint8(0), stretched.NRGBAAt(0, 0).R)   // (0-7.5)*2+7.5 < 0
	assert.Equal(t, uint8(23), stretched.NRGBAAt(3, 3).R)  // (15-7.5)*2+7.5 = 22.5
	assert.Equal(t, uint8(255), stretched.NRGBAAt(3, 3).A) // Alpha is preserved.
}

func TestAdjustBrightness(t *testing.T) {
	img := gradientImage(4, 4)
	assert.Equal(t, img.Pix, AdjustBrightness(img, 0).Pix)

	brighter := AdjustBrightness(img, 0.1)
	assert.Equal(t, uint8(26), brighter.NRGBAAt(0, 0).R) // Round(25.5)
	assert.Equal(t, uint8(255), AdjustBrightness(img, 1).NRGBAAt(3, 3).R)
	assert.Equal(t, uint8(0), AdjustBrightness(img, -1).NRGBAAt(3, 3).R)
}

func TestRotate(t *testing.T) {
	img := halfWhite(10, 10)
	rotated := Rotate(img, math.Pi)
	require.Equal(t, image.Pt(10, 10), rotated.Bounds().Size())
	assert.Equal(t, uint8(0), rotated.NRGBAAt(1, 5).R)
	assert.Equal(t, uint8(255), rotated.NRGBAAt(8, 5).R)

	// Non-square images keep their size.
	rotated = Rotate(gradientImage(12, 6), 0.3)
	assert.Equal(t, image.Pt(12, 6), rotated.Bounds().Size())
}

func TestGrayscale(t *testing.T) {
	img := imaging.New(2, 2, color.NRGBA{R: 200, G: 10, B: 30, A: 255})
	gray := Grayscale(img)
	c := gray.NRGBAAt(1, 1)
	assert.Equal(t, c.R, c.G)
	assert.Equal(t, c.R, c.B)
}

func TestAugmenter(t *testing.T) {
	img := gradientImage(21, 21)

	// Nothing enabled: identity.
	noop := NewAugmenter(Config{}, rand.New(rand.NewSource(1)))
	assert.Equal(t, img.Pix, imaging.Clone(noop.Apply(img)).Pix)

	// Same seed, same augmentation.
	a0 := NewAugmenter(DefaultConfig(), rand.New(rand.NewSource(7)))
	a1 := NewAugmenter(DefaultConfig(), rand.New(rand.NewSource(7)))
	for range 5 {
		out0 := imaging.Clone(a0.Apply(img))
		out1 := imaging.Clone(a1.Apply(img))
		require.Equal(t, image.Pt(21, 21), out0.Bounds().Size())
		require.Equal(t, out0.Pix, out1.Pix)
	}

	// Concurrent use.
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := a0.Apply(img)
			assert.Equal(t, image.Pt(21, 21), out.Bounds().Size())
		}()
	}
	wg.Wait()
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, Config{}.Validate())
	require.Error(t, Config{ContrastLower: 1.5, ContrastUpper: 1}.Validate())
	require.Error(t, Config{BrightnessMaxDelta: 2}.Validate())
	require.Error(t, Config{MaxRotation: -1}.Validate())
}
