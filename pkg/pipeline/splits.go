// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"strings"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/trainpipe/trainpipe/pkg/imagefolders"
	"k8s.io/klog/v2"
)

// Splits holds the training and evaluation datasets created by CreateDatasets.
type Splits struct {
	Settings *Settings

	// All the entries discovered, and their split into training and evaluation.
	All, TrainEntries, EvalEntries *imagefolders.Entries

	// TrainDataset and EvalDataset are the underlying datasets.
	TrainDataset, EvalDataset *Dataset

	// Train and Eval are the datasets to feed to a trainer. Train may be wrapped with a
	// ParallelDataset and datasets.Take. Eval is always sequential.
	Train, Eval train.Dataset

	parallel *ParallelDataset
}

// CreateDatasets discovers the images in the given folders, splits them and creates the training
// and evaluation datasets, configured by the context hyperparameters (see CreateDefaultContext).
//
// The folders may start with "~", which is replaced by the user's home directory.
// Call Splits.Done when finished, to stop the parallel goroutines.
func CreateDatasets(ctx *context.Context, folders []string) (*Splits, error) {
	if len(folders) == 0 {
		return nil, errors.New("no image folders given")
	}
	settings, err := LoadSettings(ctx)
	if err != nil {
		return nil, err
	}
	expanded := make([]string, 0, len(folders))
	for _, folder := range folders {
		folder, err = fsutil.ReplaceTildeInDir(folder)
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, folder)
	}

	s := &Splits{Settings: settings}
	s.All, err = imagefolders.Load(expanded, settings.Folders)
	if err != nil {
		return nil, err
	}
	s.TrainEntries, s.EvalEntries, err = s.All.Split(settings.TrainFraction)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("pipeline: %s split into train (%s) and eval (%s)", s.All, s.TrainEntries, s.EvalEntries)

	s.TrainDataset, err = NewDataset("Train", s.TrainEntries, settings.Train)
	if err != nil {
		return nil, err
	}
	s.EvalDataset, err = NewDataset("Eval", s.EvalEntries, settings.Eval)
	if err != nil {
		return nil, err
	}
	s.Train, s.Eval = s.TrainDataset, s.EvalDataset
	if settings.Parallelism != 1 {
		s.parallel = NewParallelDataset(s.TrainDataset, settings.Parallelism, settings.ParallelBuffer)
		s.Train = s.parallel
	}
	if settings.TakeBatches > 0 {
		s.Train = datasets.Take(s.Train, settings.TakeBatches)
	}
	return s, nil
}

// Done stops the goroutines of the parallel training dataset, if any.
func (s *Splits) Done() {
	if s.parallel != nil {
		s.parallel.Done()
	}
}

// String returns a summary of the splits.
func (s *Splits) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "all:   %s\n", s.All)
	fmt.Fprintf(&sb, "train: %s\n", s.TrainDataset)
	fmt.Fprintf(&sb, "eval:  %s", s.EvalDataset)
	return sb.String()
}
