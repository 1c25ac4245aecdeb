// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package infer

import (
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/correct/feature"
	"github.com/grailbio/correct/queue"
)

// DefaultSlotDivisor is the empirical per-window slot cost used when a
// Batcher's SlotDivisor is unset: a window of W columns claims
// floor(W/SlotDivisor)+1 batch slots. The cap is tied to model memory, not
// to any property of the data, so config.toml (modelconfig.Config.
// BatchSlotDivisor) can override it per deployment.
const DefaultSlotDivisor = 5120

func requiredSlots(w, divisor int) int {
	if divisor <= 0 {
		divisor = DefaultSlotDivisor
	}
	return w/divisor + 1
}

// Batcher packs windows arriving on In into slot-budgeted batches, invokes
// backend under the mutex indexed by device, and forwards decoded windows
// to Out. One Batcher runs per (device x configured infer-thread), sharing
// device's mutex with its siblings on the same device.
type Batcher struct {
	In          *queue.Queue // yields *feature.WindowFeatures
	Out         *queue.Queue // receives *feature.WindowFeatures, post-decode
	Backend     Backend
	DeviceMu    *sync.Mutex
	BatchSize   int
	SlotDivisor int // 0 means DefaultSlotDivisor
	Timeout     time.Duration

	acc accumulator
}

type accumulator struct {
	wfs   []*feature.WindowFeatures
	slots int
}

func (a *accumulator) reset(batchSize int) {
	a.wfs = nil
	a.slots = batchSize
}

func (a *accumulator) empty() bool { return len(a.wfs) == 0 }

// Run pulls windows from In until it returns queue.Terminate, flushing full
// or timed-out batches to Backend and forwarding every decoded window to
// Out. Run does not terminate Out itself: the caller joins every Batcher
// sharing In and terminates Out only once all of them have returned,
// matching the orchestrator's input -> infer -> decode shutdown order.
func (b *Batcher) Run() error {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b.acc.reset(b.BatchSize)

	for {
		item, state := b.In.PopUntil(time.Now().Add(timeout))
		switch state {
		case queue.Item:
			wf := item.(*feature.WindowFeatures)
			need := requiredSlots(wf.Length, b.SlotDivisor)
			if need > b.acc.slots && !b.acc.empty() {
				if err := b.flush(); err != nil {
					return err
				}
			}
			b.acc.wfs = append(b.acc.wfs, wf)
			b.acc.slots -= need
		case queue.Timeout:
			if !b.acc.empty() {
				if err := b.flush(); err != nil {
					return err
				}
			}
		case queue.Terminate:
			if !b.acc.empty() {
				if err := b.flush(); err != nil {
					return err
				}
			}
			return nil
		}
	}
}

// flush runs one inference call over the accumulated batch, splits the
// results back out per window, decodes each window, and pushes it to Out.
// It always clears the accumulator on return, success or failure, matching
// spec.md §4.6 step 9.
func (b *Batcher) flush() error {
	defer b.acc.reset(b.BatchSize)

	batch := collate(b.acc.wfs)

	b.DeviceMu.Lock()
	logitsPerWindow, err := b.Backend.Infer(batch.bases, batch.quals, batch.lengths, batch.indices, batch.sizes)
	if err != nil {
		log.Error.Printf("infer: transient backend error, clearing cache and retrying once: %v", err)
		b.Backend.ClearCache()
		logitsPerWindow, err = b.Backend.Infer(batch.bases, batch.quals, batch.lengths, batch.indices, batch.sizes)
	}
	b.DeviceMu.Unlock()
	if err != nil {
		return errors.E(err, "infer: backend failed twice, fatal")
	}

	if len(logitsPerWindow) != len(b.acc.wfs) {
		return errors.E("infer: backend returned wrong number of results", "got", len(logitsPerWindow), "want", len(b.acc.wfs))
	}

	for i, wf := range b.acc.wfs {
		logits := logitsPerWindow[i]
		if logits.NumCols != batch.sizes[i] {
			return errors.E("infer: backend returned wrong prediction count", "window", wf.WindowIdx, "got", logits.NumCols, "want", batch.sizes[i])
		}
		wf.InferredBases = logits.ArgMax()
		if err := b.Out.Push(wf); err != nil {
			return errors.E(err, "infer: push to output queue")
		}
	}
	return nil
}
