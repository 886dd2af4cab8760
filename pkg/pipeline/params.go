// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"math"
	"math/rand"
	"time"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/trainpipe/trainpipe/pkg/augment"
	"github.com/trainpipe/trainpipe/pkg/imagefolders"
)

// Hyperparameters read from the context, see CreateDefaultContext for their default values.
const (
	ParamBatchSize            = "batch_size"
	ParamEvalBatchSize        = "eval_batch_size"
	ParamTrainFraction        = "train_fraction"
	ParamMaxPerFolder         = "max_per_folder"
	ParamPreShuffle           = "pre_shuffle"
	ParamShuffle              = "shuffle"
	ParamMakeEqual            = "make_equal"
	ParamStrict               = "strict"
	ParamPattern              = "pattern"
	ParamCropFraction         = "crop_fraction"
	ParamStandardize          = "standardize"
	ParamDType                = "dtype"
	ParamMaxValue             = "max_value"
	ParamSeed                 = "seed"
	ParamParallelism          = "parallelism"
	ParamParallelBuffer       = "parallel_buffer"
	ParamAugmentFlipLR        = "augment_flip_lr"
	ParamAugmentFlipUD        = "augment_flip_ud"
	ParamAugmentContrastLower = "augment_contrast_lower"
	ParamAugmentContrastUpper = "augment_contrast_upper"
	ParamAugmentBrightness    = "augment_brightness"
	ParamAugmentRotation      = "augment_rotation"
	ParamTakeBatches          = "take_batches"
)

// CreateDefaultContext sets the context with the default hyperparameters of the pipeline.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	augmentConfig := augment.DefaultConfig()
	ctx.SetParams(map[string]any{
		// Images discovery.
		ParamTrainFraction: imagefolders.DefaultTrainFraction,
		ParamMaxPerFolder:  0,
		ParamPreShuffle:    false,
		ParamShuffle:       true,
		ParamMakeEqual:     false,
		ParamStrict:        false,
		ParamPattern:       imagefolders.DefaultPattern,
		ParamSeed:          0,

		// Batching and conversion.
		ParamBatchSize:     DefaultBatchSize,
		ParamEvalBatchSize: DefaultBatchSize,
		ParamCropFraction:  DefaultCropFraction,
		ParamStandardize:   false,
		ParamDType:         "float32",
		ParamMaxValue:      DefaultMaxValue,

		// Parallelism: 0 uses all cores, 1 disables the parallel wrapper.
		ParamParallelism:    0,
		ParamParallelBuffer: 10,

		// Training augmentation, angles in degrees.
		ParamAugmentFlipLR:        augmentConfig.FlipLeftRight,
		ParamAugmentFlipUD:        augmentConfig.FlipUpDown,
		ParamAugmentContrastLower: augmentConfig.ContrastLower,
		ParamAugmentContrastUpper: augmentConfig.ContrastUpper,
		ParamAugmentBrightness:    augmentConfig.BrightnessMaxDelta,
		ParamAugmentRotation:      augmentConfig.MaxRotation * 180 / math.Pi,

		// If > 0, the training dataset is limited to this number of batches.
		ParamTakeBatches: 0,
	})
	return ctx
}

// Settings holds the full configuration of the pipeline, read from the context hyperparameters.
type Settings struct {
	Folders       imagefolders.Config
	TrainFraction float64
	Train, Eval   Config

	// Parallelism of the datasets.CustomParallel wrapper: 0 for the number of cores, 1 to disable it.
	Parallelism, ParallelBuffer int

	// TakeBatches, if > 0, limits the number of training batches.
	TakeBatches int
}

// LoadSettings reads the Settings from the context hyperparameters and validates them.
//
// A seed of 0 is replaced by a clock based seed, so the Settings returned are reproducible.
func LoadSettings(ctx *context.Context) (*Settings, error) {
	seed := int64(context.GetParamOr(ctx, ParamSeed, 0))
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	dtype, err := ParseDType(context.GetParamOr(ctx, ParamDType, "float32"))
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing %q", ParamDType)
	}

	s := &Settings{
		Folders: imagefolders.Config{
			MaxPerFolder: context.GetParamOr(ctx, ParamMaxPerFolder, 0),
			PreShuffle:   context.GetParamOr(ctx, ParamPreShuffle, false),
			Shuffle:      context.GetParamOr(ctx, ParamShuffle, true),
			MakeEqual:    context.GetParamOr(ctx, ParamMakeEqual, false),
			Strict:       context.GetParamOr(ctx, ParamStrict, false),
			Pattern:      context.GetParamOr(ctx, ParamPattern, imagefolders.DefaultPattern),
			Rand:         rand.New(rand.NewSource(seed)),
		},
		TrainFraction:  context.GetParamOr(ctx, ParamTrainFraction, imagefolders.DefaultTrainFraction),
		Parallelism:    context.GetParamOr(ctx, ParamParallelism, 0),
		ParallelBuffer: context.GetParamOr(ctx, ParamParallelBuffer, 10),
		TakeBatches:    context.GetParamOr(ctx, ParamTakeBatches, 0),
	}

	s.Train = DefaultConfig(true)
	s.Train.BatchSize = context.GetParamOr(ctx, ParamBatchSize, DefaultBatchSize)
	s.Train.CropFraction = context.GetParamOr(ctx, ParamCropFraction, DefaultCropFraction)
	s.Train.Standardize = context.GetParamOr(ctx, ParamStandardize, false)
	s.Train.DType = dtype
	s.Train.MaxValue = context.GetParamOr(ctx, ParamMaxValue, DefaultMaxValue)
	s.Train.Seed = seed + 1
	s.Train.Augment = augment.Config{
		FlipLeftRight:      context.GetParamOr(ctx, ParamAugmentFlipLR, true),
		FlipUpDown:         context.GetParamOr(ctx, ParamAugmentFlipUD, true),
		ContrastLower:      context.GetParamOr(ctx, ParamAugmentContrastLower, 0.2),
		ContrastUpper:      context.GetParamOr(ctx, ParamAugmentContrastUpper, 1.8),
		BrightnessMaxDelta: context.GetParamOr(ctx, ParamAugmentBrightness, 0.5),
		MaxRotation:        context.GetParamOr(ctx, ParamAugmentRotation, 180.0) * math.Pi / 180,
	}

	s.Eval = s.Train
	s.Eval.Training = false
	s.Eval.BatchSize = context.GetParamOr(ctx, ParamEvalBatchSize, s.Train.BatchSize)
	s.Eval.Seed = seed + 3

	if s.TrainFraction < 0 || s.TrainFraction > 1 {
		return nil, errors.Errorf("%q must be in [0, 1], got %g", ParamTrainFraction, s.TrainFraction)
	}
	if s.Parallelism < 0 || s.ParallelBuffer < 0 {
		return nil, errors.Errorf("%q and %q can't be negative, got %d and %d",
			ParamParallelism, ParamParallelBuffer, s.Parallelism, s.ParallelBuffer)
	}
	if err := s.Train.Validate(); err != nil {
		return nil, errors.WithMessage(err, "training configuration")
	}
	if err := s.Eval.Validate(); err != nil {
		return nil, errors.WithMessage(err, "evaluation configuration")
	}
	return s, nil
}
