// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// trainpipe discovers the good/bad images in the given folders, builds the training and evaluation
// datasets and prints a summary. Optionally it validates the images, saves a preview of an augmented
// training batch, and benchmarks the batch generation.
//
// Example:
//
//	trainpipe --folders=~/data/run1,~/data/run2 --set="batch_size=32;make_equal=true" --preview=/tmp/preview
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/pkg/support/xslices"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/trainpipe/trainpipe/pkg/imagefolders"
	"github.com/trainpipe/trainpipe/pkg/pipeline"
	"k8s.io/klog/v2"
)

var (
	flagFolders = xslices.Flag("folders", nil,
		"Comma-separated list of folders, each with a \"good\" and a \"bad\" subdirectory of images.",
		func(s string) (string, error) { return s, nil })
	flagValidate = flag.Bool("validate", false, "Decode every image found and list the ones that fail.")
	flagPreview  = flag.String("preview", "", "If set, save one augmented training batch as PNG files to this directory.")
	flagBench    = flag.Int("bench", 0, "If > 0, yield this many training batches and report the throughput.")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func main() {
	ctx := pipeline.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	if err := run(ctx, os.Stdout, *flagFolders, paramsSet); err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

func run(ctx *context.Context, w io.Writer, folders []string, paramsSet []string) error {
	if len(folders) == 0 {
		return errors.New("no folders given, please set --folders")
	}
	splits, err := pipeline.CreateDatasets(ctx, folders)
	if err != nil {
		return err
	}
	defer splits.Done()

	fmt.Fprintln(w, titleStyle.Render("Datasets"))
	fmt.Fprintln(w, summaryTable(splits))
	if len(paramsSet) > 0 {
		fmt.Fprintf(w, "Modified settings: %s\n", commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	if *flagValidate {
		invalid := imagefolders.Validate(splits.All, true)
		fmt.Fprintln(w)
		if len(invalid) == 0 {
			fmt.Fprintf(w, "All %s images are valid.\n", humanize.Comma(int64(splits.All.Len())))
		} else {
			fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%d invalid images:", len(invalid))))
			for _, path := range invalid {
				fmt.Fprintf(w, "\t%s\n", path)
			}
		}
	}

	if *flagPreview != "" {
		dir, err := fsutil.ReplaceTildeInDir(*flagPreview)
		if err != nil {
			return err
		}
		n, err := writePreview(splits.TrainDataset, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Saved %d preview images to %s\n", n, dir)
	}

	if *flagBench > 0 {
		if err := bench(w, splits.Train, *flagBench); err != nil {
			return err
		}
	}
	return nil
}

// summaryTable with the number of images of each split.
func summaryTable(splits *pipeline.Splits) string {
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("Split", "Images", "Good", "Bad", "Batch size", "Input")
	addRow := func(name string, entries *imagefolders.Entries, config *pipeline.Config) {
		batchSize, input := "-", "-"
		if config != nil {
			batchSize = fmt.Sprintf("%d", config.BatchSize)
			input = fmt.Sprintf("%s %q", config.DType, pipeline.InputName)
		}
		table.Row(name,
			humanize.Comma(int64(entries.Len())),
			humanize.Comma(int64(entries.NumGood())),
			humanize.Comma(int64(entries.NumBad())),
			batchSize, input)
	}
	addRow("all", splits.All, nil)
	addRow(splits.TrainDataset.Name(), splits.TrainEntries, &splits.Settings.Train)
	addRow(splits.EvalDataset.Name(), splits.EvalEntries, &splits.Settings.Eval)
	return table.Render()
}

// writePreview saves one batch of ds to dir, and returns the number of images saved.
func writePreview(ds *pipeline.Dataset, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, errors.Wrapf(err, "failed to create preview directory %q", dir)
	}
	images, labels, paths, err := ds.YieldImages()
	if err != nil {
		return 0, err
	}
	for ii, img := range images {
		base := strings.TrimSuffix(filepath.Base(paths[ii]), filepath.Ext(paths[ii]))
		name := fmt.Sprintf("%03d_%s_%s.png", ii, strings.ToLower(imagefolders.QualityOf(labels[ii]).String()), base)
		if err := imaging.Save(img, filepath.Join(dir, name)); err != nil {
			return ii, errors.Wrapf(err, "failed to save preview image %q", name)
		}
	}
	return len(images), nil
}

// bench yields up to numBatches from ds and reports the throughput.
func bench(w io.Writer, ds train.Dataset, numBatches int) error {
	var numImages, numBytes uint64
	start := time.Now()
	count := 0
	for ; count < numBatches; count++ {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		numImages += uint64(inputs[0].Shape().Dimensions[0])
		numBytes += uint64(inputs[0].Memory() + labels[0].Memory())
	}
	elapsed := time.Since(start)
	rate := float64(numImages) / max(elapsed.Seconds(), 1e-9)
	fmt.Fprintf(w, "Benchmark: %d batches, %s images, %s in %s: %s images/s, %s/s\n",
		count, humanize.Comma(int64(numImages)), humanize.Bytes(numBytes), elapsed.Round(time.Millisecond),
		humanize.Commaf(float64(int64(rate))), humanize.Bytes(uint64(float64(numBytes)/max(elapsed.Seconds(), 1e-9))))
	return nil
}
