// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package reassembly

import (
	"fmt"
	"sync"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
)

// numShards bounds lock contention across unrelated read names; each shard
// owns an independent pair of maps and mutex, chosen by a farm hash of the
// read name, so unrelated reads block each other only when their names hash
// to the same shard.
const numShards = 64

// Result is one corrected output sequence. Name is the read name for a
// read whose windows concatenated into a single sequence, or "name:k" for
// the k-th sub-sequence when a window's empty consensus split the read.
type Result struct {
	Name string
	Seq  string
}

type shard struct {
	mu           sync.Mutex
	featuresByID map[string][]string
	pendingByID  map[string]int
}

func newShard() *shard {
	return &shard{
		featuresByID: make(map[string][]string),
		pendingByID:  make(map[string]int),
	}
}

// Tracker implements C8: it accumulates per-window decoded strings keyed by
// read name and, once every window for a name has arrived, concatenates
// them into Results.
type Tracker struct {
	shards [numShards]*shard
}

// New returns an empty Tracker.
func New() *Tracker {
	t := &Tracker{}
	for i := range t.shards {
		t.shards[i] = newShard()
	}
	return t
}

func (t *Tracker) shardFor(name string) *shard {
	h := farm.Hash64([]byte(name))
	return t.shards[h%numShards]
}

// Begin registers a read's windows. slots holds one entry per window index;
// trivial windows already carry their decoded string, non-trivial windows
// carry "" as a placeholder to be filled in later by Complete. pending is
// the count of non-trivial placeholders in slots.
//
// If pending is 0, every window was already trivial: Begin concatenates
// immediately without touching the tracker's maps (spec.md §4.8, "If all
// windows were trivial: concatenate immediately and emit without touching
// the maps") and returns the results with done=true.
//
// If name is already registered, the call is a duplicate target name: it is
// logged and dropped, returning (nil, false), matching the source's
// inconsistent-but-preserved behavior of drop-and-log rather than fatal.
func (t *Tracker) Begin(name string, slots []string, pending int) (results []Result, done bool) {
	if pending == 0 {
		return concatenate(name, slots), true
	}

	s := t.shardFor(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.featuresByID[name]; exists {
		log.Error.Printf("reassembly: duplicate read name %q observed, dropping", name)
		return nil, false
	}
	cp := make([]string, len(slots))
	copy(cp, slots)
	s.featuresByID[name] = cp
	s.pendingByID[name] = pending
	return nil, false
}

// Complete records a decoded window's string for name at windowIdx. Once
// every window for name has been written exactly once, Complete removes the
// read's state and returns its concatenated Results with done=true.
func (t *Tracker) Complete(name string, windowIdx int, s string) (results []Result, done bool) {
	sh := t.shardFor(name)
	sh.mu.Lock()

	slots, ok := sh.featuresByID[name]
	if !ok {
		sh.mu.Unlock()
		log.Error.Printf("reassembly: decoded window for unknown read %q (windowIdx=%d), dropping", name, windowIdx)
		return nil, false
	}
	if windowIdx < 0 || windowIdx >= len(slots) {
		sh.mu.Unlock()
		log.Error.Printf("reassembly: window index %d out of range for read %q (%d windows)", windowIdx, name, len(slots))
		return nil, false
	}
	slots[windowIdx] = s
	sh.pendingByID[name]--
	remaining := sh.pendingByID[name]
	if remaining > 0 {
		sh.mu.Unlock()
		return nil, false
	}

	delete(sh.featuresByID, name)
	delete(sh.pendingByID, name)
	sh.mu.Unlock()

	return concatenate(name, slots), true
}

// concatenate implements the gap-splitting rule of spec.md §4.8: non-empty
// window strings accumulate into a running buffer; an empty string flushes
// the buffer (if non-empty) as a distinct output sequence and resets it;
// any trailing buffer flushes at the end. A read that splits into more
// than one sequence numbers them "name:0", "name:1", ... in order; a read
// that never splits keeps its bare name.
func concatenate(name string, slots []string) []Result {
	var results []Result
	var buf string
	flush := func() {
		if buf == "" {
			return
		}
		results = append(results, Result{Name: name, Seq: buf})
		buf = ""
	}
	for _, w := range slots {
		if w == "" {
			flush()
			continue
		}
		buf += w
	}
	flush()

	if len(results) > 1 {
		for i := range results {
			results[i].Name = fmt.Sprintf("%s:%d", name, i)
		}
	}
	return results
}
