// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.
package main

/*
bio-correct is a long-read consensus correction tool: it takes a target
read, its overlapping query reads, and their alignments, and produces a
corrected read sequence per target using a windowed, batched neural
inference backend.
*/

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/correct/correct"
	"github.com/grailbio/correct/feature"
	"github.com/grailbio/correct/infer"
	"github.com/grailbio/correct/modelconfig"
	"github.com/pkg/errors"
)

var (
	modelDir     = flag.String("model-dir", "", "Directory containing the model's weights and config.toml")
	outPath      = flag.String("out", "", "Output path for corrected reads (recordio)")
	batchSize    = flag.Int("batch-size", 0, "Inference batch slot budget; 0 = fixed default of 64 slots")
	device       = flag.String("device", "cpu", "\"cpu\" or a comma-separated device-enumeration string")
	inferThreads = flag.Int("infer-threads", 1, "Inference workers per device; forced to 1 for cpu")
	threads      = flag.Int("threads", 1, "Number of input workers")
	statsPeriod  = flag.Duration("stats-period", 30*time.Second, "How often to log pipeline stats; 0 disables")
)

func bioCorrectUsage() {
	fmt.Printf("Usage: %s [OPTIONS] inputpath\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = bioCorrectUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		log.Fatalf("Missing positional argument (inputpath required); please check flag syntax")
	}
	if *modelDir == "" {
		log.Fatalf("-model-dir is required")
	}
	if *outPath == "" {
		log.Fatalf("-out is required")
	}

	ctx := vcontext.Background()
	cfg, err := modelconfig.Load(ctx, *modelDir)
	if err != nil {
		log.Fatalf("%v", errors.Wrapf(err, "loading model config from %s", *modelDir))
	}

	opts := correct.Opts{
		FASTQPath:    flag.Arg(0),
		OutputPath:   *outPath,
		ModelDir:     *modelDir,
		BatchSize:    *batchSize,
		Device:       *device,
		InferThreads: *inferThreads,
		Threads:      *threads,
	}
	p := correct.NewPipeline(opts, cfg, newBackend)

	if *statsPeriod > 0 {
		done := make(chan struct{})
		defer close(done)
		go logStats(p, *statsPeriod, done)
	}

	if err := p.Run(ctx); err != nil {
		log.Panicf("%v", errors.Wrap(err, "bio-correct: pipeline run failed"))
	}
	log.Debug.Printf("exiting")
}

// newBackend is the process's only BackendFactory implementation; swapping
// in a real accelerator-backed model loader is the one thing this command
// needs to change to run a trained model instead of the identity-decoding
// stand-in below.
func newBackend(device string) (infer.Backend, error) {
	return identityBackend{}, nil
}

// identityBackend always predicts the base already present at the target
// row of each supported column, i.e. it makes no correction. It exists so
// bio-correct is runnable end to end without a trained model on disk.
//
// Infer isn't told which columns a window's caller considered supported,
// only how many (sizes[i]); it rediscovers them by re-running the same
// coverage/disagreement test feature.computeSupported applies, with the
// package's minimum settings (coverage >= 1, some disagreement required).
// It assumes target bases are canonical (A/C/G/T), which holds for the
// windows this stand-in is ever asked to predict.
type identityBackend struct{}

func (identityBackend) Infer(bases *infer.ByteTensor3, quals *infer.FloatTensor3, lengths []int32, indices [][]int, sizes []int) ([]infer.Logits, error) {
	out := make([]infer.Logits, len(sizes))
	for i, n := range sizes {
		length := int(lengths[i])
		data := make([]float64, 0, n*5)
		found := 0
		for col := 0; col < length && found < n; col++ {
			if !columnSupported(bases, i, col) {
				continue
			}
			row := make([]float64, 5)
			switch bases.At(i, col, 0) {
			case feature.BaseA:
				row[0] = 1
			case feature.BaseC:
				row[1] = 1
			case feature.BaseG:
				row[2] = 1
			case feature.BaseT:
				row[3] = 1
			default:
				row[4] = 1
			}
			data = append(data, row...)
			found++
		}
		out[i] = infer.Logits{NumCols: found, NumClasses: 5, Data: data}
	}
	return out, nil
}

// columnSupported mirrors feature.computeSupported's coverage/disagreement
// test over one collated window's column, treating both NoCoverage and
// batch padding as "this row doesn't reach this column".
func columnSupported(bases *infer.ByteTensor3, window, col int) bool {
	target := bases.At(window, col, 0)
	coverage := 0
	disagree := false
	for row := 1; row < bases.R; row++ {
		v := bases.At(window, col, row)
		if v == feature.NoCoverage || v == feature.Pad {
			continue
		}
		coverage++
		if v != target {
			disagree = true
		}
	}
	return coverage >= 1 && disagree
}

func (identityBackend) ClearCache() {}

func logStats(p *correct.Pipeline, period time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s := p.Stats()
			log.Printf("correct: stats: corrected=%d/%d features_depth=%d inferred_depth=%d input_workers=%d infer_workers=%d decode_workers=%d",
				s.NumReadsCorrected, s.TotalReadsInInput, s.FeaturesQueueDepth, s.InferredQueueDepth,
				s.ActiveInputWorkers, s.ActiveInferWorkers, s.ActiveDecodeWorkers)
		case <-done:
			return
		}
	}
}
