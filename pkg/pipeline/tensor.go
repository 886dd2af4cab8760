// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"image"
	"image/color"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// SupportedDTypes for the images and labels tensors.
var SupportedDTypes = []dtypes.DType{dtypes.Float32, dtypes.Float64, dtypes.Float16, dtypes.Uint8}

func isSupportedDType(dtype dtypes.DType) bool {
	return slices.Contains(SupportedDTypes, dtype)
}

// ParseDType converts a dtype name (e.g. "float32", case-insensitive) to one of the SupportedDTypes.
func ParseDType(name string) (dtypes.DType, error) {
	for _, dtype := range SupportedDTypes {
		if strings.EqualFold(dtype.String(), name) {
			return dtype, nil
		}
	}
	return dtypes.InvalidDType, errors.Errorf("unknown or unsupported dtype %q, use one of %v", name, SupportedDTypes)
}

// ImagesToTensor converts the images (all of the same size) to a tensor shaped
// `[len(images), height, width, 1]` with the luminance of each pixel scaled to [0, maxValue].
//
// If standardize is true, each image is shifted and scaled to zero mean and unit variance, with the
// standard deviation lower bounded by `1/sqrt(height*width)`.
func ImagesToTensor(images []image.Image, dtype dtypes.DType, maxValue float64, standardize bool) (*tensors.Tensor, error) {
	if len(images) == 0 {
		return nil, errors.New("no images given to convert to tensor")
	}
	size := images[0].Bounds().Size()
	imageSize := size.X * size.Y
	values := make([]float64, len(images)*imageSize)
	for ii, img := range images {
		bounds := img.Bounds()
		if bounds.Size() != size {
			return nil, errors.Errorf("image #%d has size %v, but image #0 has size %v", ii, bounds.Size(), size)
		}
		imgValues := values[ii*imageSize : (ii+1)*imageSize]
		for y := range size.Y {
			for x := range size.X {
				gray := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
				imgValues[y*size.X+x] = float64(gray.Y) * maxValue / 255.0
			}
		}
		if standardize {
			standardizeValues(imgValues)
		}
	}

	t := tensors.FromShape(shapes.Make(dtype, len(images), size.Y, size.X, 1))
	if err := fillTensor(t, values); err != nil {
		return nil, err
	}
	return t, nil
}

// LabelsToTensor converts the labels to a tensor shaped `[len(labels)]`.
func LabelsToTensor(labels []float64, dtype dtypes.DType) (*tensors.Tensor, error) {
	t := tensors.FromShape(shapes.Make(dtype, len(labels)))
	if err := fillTensor(t, labels); err != nil {
		return nil, err
	}
	return t, nil
}

// standardizeValues of one image in place.
func standardizeValues(values []float64) {
	n := float64(len(values))
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= n
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	stddev := max(math.Sqrt(variance/n), 1.0/math.Sqrt(n))
	for ii, v := range values {
		values[ii] = (v - mean) / stddev
	}
}

// fillTensor copies values to t, converting to t's dtype.
func fillTensor(t *tensors.Tensor, values []float64) error {
	switch dtype := t.Shape().DType; dtype {
	case dtypes.Float32:
		fillFlat(t, values, func(v float64) float32 { return float32(v) })
	case dtypes.Float64:
		fillFlat(t, values, func(v float64) float64 { return v })
	case dtypes.Float16:
		fillFlat(t, values, func(v float64) float16.Float16 { return float16.Fromfloat32(float32(v)) })
	case dtypes.Uint8:
		fillFlat(t, values, func(v float64) uint8 { return uint8(math.Round(min(max(v, 0), 255))) })
	default:
		return errors.Errorf("dtype %s not supported, use one of %v", dtype, SupportedDTypes)
	}
	return nil
}

func fillFlat[T dtypes.Supported](t *tensors.Tensor, values []float64, convert func(float64) T) {
	tensors.MutableFlatData[T](t, func(flat []T) {
		for ii, v := range values {
			flat[ii] = convert(v)
		}
	})
}
