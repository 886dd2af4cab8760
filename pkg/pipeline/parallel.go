// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"io"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// errorRecorder wraps a Dataset and keeps the first error (other than io.EOF) returned by Yield.
type errorRecorder struct {
	*Dataset

	mu  sync.Mutex
	err error
}

// Yield implements train.Dataset.
func (r *errorRecorder) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	spec, inputs, labels, err = r.Dataset.Yield()
	if err != nil && err != io.EOF {
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
	}
	return
}

// Err returns the first error recorded, or nil.
func (r *errorRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// ParallelDataset runs Yield of a Dataset in parallel goroutines, with datasets.CustomParallel.
//
// Errors of the underlying Dataset are returned by Yield, and Done can always be called.
type ParallelDataset struct {
	*datasets.ParallelDataset
	source *errorRecorder
	done   bool
}

var _ train.Dataset = (*ParallelDataset)(nil)

// NewParallelDataset starts the goroutines yielding from ds. Parallelism 0 uses the number of cores.
//
// Call Done when finished.
func NewParallelDataset(ds *Dataset, parallelism, buffer int) *ParallelDataset {
	source := &errorRecorder{Dataset: ds}
	pds := datasets.CustomParallel(source).
		Parallelism(parallelism).
		Buffer(buffer).
		Start()
	return &ParallelDataset{ParallelDataset: pds, source: source}
}

// Yield implements train.Dataset.
func (pd *ParallelDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	if pd.done {
		err = errors.Errorf("parallel dataset %q used after Done", pd.Name())
		return
	}
	spec, inputs, labels, err = pd.ParallelDataset.Yield()
	if err == nil && len(inputs) == 0 {
		// The goroutines stopped on an error.
		err = pd.source.Err()
		if err == nil {
			err = errors.Errorf("parallel dataset %q stopped without data", pd.Name())
		}
	}
	return
}

// Done stops the goroutines. It is a no-op if they already stopped on an error, or if Done
// was already called.
func (pd *ParallelDataset) Done() {
	if pd.done {
		return
	}
	pd.done = true
	if pd.source.Err() != nil {
		return
	}
	pd.ParallelDataset.Done()
}
