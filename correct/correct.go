package correct

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/correct/correctpb"
	"github.com/grailbio/correct/decode"
	"github.com/grailbio/correct/feature"
	"github.com/grailbio/correct/infer"
	"github.com/grailbio/correct/modelconfig"
	"github.com/grailbio/correct/overlap"
	"github.com/grailbio/correct/queue"
	"github.com/grailbio/correct/reassembly"
	"github.com/grailbio/correct/window"
)

// decodeWorkers is fixed by spec.md §4.9 ("Decode workers: fixed at 4").
const decodeWorkers = 4

// defaultBatchSize is used when Opts.BatchSize is 0 ("auto-size from device
// memory"); auto-sizing from live device memory is out of scope here (no
// device-query API is available to this package), so 0 falls back to a
// fixed, conservative default instead of silently guessing a number tied to
// a specific accelerator.
const defaultBatchSize = 64

// BackendFactory creates one infer.Backend instance per inference worker,
// targeting the named device. Workers sharing a device share that device's
// mutex but each get their own Backend instance (spec.md §4.9: "one per
// (device x configured infer-threads); each runs C6 against one backend
// instance").
type BackendFactory func(device string) (infer.Backend, error)

// Opts carries every CLI-facing knob named in spec.md §6, plus internal
// queue capacities left overridable for tests.
type Opts struct {
	// FASTQPath is the input path (spec.md §6's "fastq / input path
	// (collaborator-owned)"): a recordio shard of correctpb.CorrectionAlignments
	// produced upstream of this package.
	FASTQPath string
	// OutputPath receives a recordio shard of correctpb.CorrectedRead.
	OutputPath string
	// ModelDir is passed to modelconfig.Load.
	ModelDir string
	// BatchSize is the inference batcher's slot budget; 0 or less selects
	// defaultBatchSize (no sizing from device memory is done).
	BatchSize int
	// Device is "cpu" or a comma-separated device-enumeration string
	// understood by BackendFactory.
	Device string
	// InferThreads is the number of inference workers per device; forced to
	// 1 when Device is "cpu".
	InferThreads int
	// Threads is the number of input workers.
	Threads int

	FeaturesQueueCapacity int
	InferredQueueCapacity int
}

func (o Opts) devices() []string {
	if o.Device == "" || o.Device == "cpu" {
		return []string{"cpu"}
	}
	return strings.Split(o.Device, ",")
}

func (o Opts) inferThreadsPerDevice() int {
	if o.Device == "" || o.Device == "cpu" {
		return 1
	}
	if o.InferThreads <= 0 {
		return 1
	}
	return o.InferThreads
}

func (o Opts) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return defaultBatchSize
}

// Stats is the output of Pipeline.Stats(), matching spec.md §6's
// sample_stats(): num_reads_corrected (monotonic), total_reads_in_input,
// and generic queue-depth metrics.
type Stats struct {
	NumReadsCorrected   int64
	TotalReadsInInput   int64
	FeaturesQueueDepth  int
	InferredQueueDepth  int
	ActiveInputWorkers  int32
	ActiveInferWorkers  int32
	ActiveDecodeWorkers int32
}

// Pipeline is the C9 orchestrator: it owns the two inter-stage queues, the
// reassembly tracker, and the worker pools reading and writing them.
type Pipeline struct {
	opts           Opts
	cfg            *modelconfig.Config
	backendFactory BackendFactory

	featuresQueue *queue.Queue
	inferredQueue *queue.Queue
	tracker       *reassembly.Tracker

	numReadsCorrected   int64
	totalReadsInInput   int64
	activeInputWorkers  int32
	activeInferWorkers  int32
	activeDecodeWorkers int32

	outMu  sync.Mutex
	output []*correctpb.CorrectedRead
}

// NewPipeline constructs a Pipeline. cfg must come from modelconfig.Load
// against opts.ModelDir.
func NewPipeline(opts Opts, cfg *modelconfig.Config, backendFactory BackendFactory) *Pipeline {
	if opts.FeaturesQueueCapacity <= 0 {
		opts.FeaturesQueueCapacity = 1000
	}
	if opts.InferredQueueCapacity <= 0 {
		opts.InferredQueueCapacity = 500
	}
	if opts.Threads <= 0 {
		opts.Threads = 1
	}
	return &Pipeline{
		opts:           opts,
		cfg:            cfg,
		backendFactory: backendFactory,
		featuresQueue:  queue.New(opts.FeaturesQueueCapacity),
		inferredQueue:  queue.New(opts.InferredQueueCapacity),
		tracker:        reassembly.New(),
	}
}

// Stats returns a snapshot of the pipeline's progress and queue depths.
func (p *Pipeline) Stats() Stats {
	return Stats{
		NumReadsCorrected:   atomic.LoadInt64(&p.numReadsCorrected),
		TotalReadsInInput:   atomic.LoadInt64(&p.totalReadsInInput),
		FeaturesQueueDepth:  p.featuresQueue.Len(),
		InferredQueueDepth:  p.inferredQueue.Len(),
		ActiveInputWorkers:  atomic.LoadInt32(&p.activeInputWorkers),
		ActiveInferWorkers:  atomic.LoadInt32(&p.activeInferWorkers),
		ActiveDecodeWorkers: atomic.LoadInt32(&p.activeDecodeWorkers),
	}
}

// Run loads the input shard, processes every message, and writes corrected
// reads to opts.OutputPath. It joins the three worker pools in order
// input -> infer -> decode, matching spec.md §4.9's shutdown sequencing.
func (p *Pipeline) Run(ctx context.Context) error {
	msgs, err := p.loadInput(ctx)
	if err != nil {
		return errors.E(err, "correct: loading input")
	}
	atomic.StoreInt64(&p.totalReadsInInput, int64(len(msgs)))

	errOnce := &errors.Once{}

	var wgDecode sync.WaitGroup
	for i := 0; i < decodeWorkers; i++ {
		wgDecode.Add(1)
		go func(worker int) {
			defer wgDecode.Done()
			p.runDecodeWorker(worker)
		}(i)
	}

	deviceMutexes := make(map[string]*sync.Mutex)
	for _, d := range p.opts.devices() {
		deviceMutexes[d] = &sync.Mutex{}
	}
	var wgInfer sync.WaitGroup
	for _, device := range p.opts.devices() {
		for i := 0; i < p.opts.inferThreadsPerDevice(); i++ {
			backend, err := p.backendFactory(device)
			if err != nil {
				errOnce.Set(errors.E(err, "correct: creating backend", "device", device))
				continue
			}
			wgInfer.Add(1)
			go func(device string, worker int, backend infer.Backend) {
				defer wgInfer.Done()
				p.runInferWorker(device, worker, backend, deviceMutexes[device], errOnce)
			}(device, i, backend)
		}
	}

	var wgInput sync.WaitGroup
	work := make(chan *correctpb.CorrectionAlignments, len(msgs))
	for _, m := range msgs {
		work <- m
	}
	close(work)
	for i := 0; i < p.opts.Threads; i++ {
		wgInput.Add(1)
		go func(worker int) {
			defer wgInput.Done()
			p.runInputWorker(worker, work)
		}(i)
	}

	wgInput.Wait()
	log.Debug.Printf("correct: all input workers done, terminating features queue")
	p.featuresQueue.Terminate()

	wgInfer.Wait()
	log.Debug.Printf("correct: all inference workers done, terminating inferred queue")
	p.inferredQueue.Terminate()

	wgDecode.Wait()
	log.Debug.Printf("correct: all decode workers done")

	if err := errOnce.Err(); err != nil {
		return err
	}
	return p.writeOutput(ctx)
}

func (p *Pipeline) loadInput(ctx context.Context) ([]*correctpb.CorrectionAlignments, error) {
	f, err := file.Open(ctx, p.opts.FASTQPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(ctx); cerr != nil {
			log.Error.Printf("correct: closing input %s: %v", p.opts.FASTQPath, cerr)
		}
	}()
	return correctpb.ReadCorrectionAlignments(p.opts.FASTQPath, f.Reader(ctx))
}

func (p *Pipeline) writeOutput(ctx context.Context) error {
	out, err := file.Create(ctx, p.opts.OutputPath)
	if err != nil {
		return errors.E(err, "correct: creating output", "path", p.opts.OutputPath)
	}
	defer func() {
		if cerr := out.Close(ctx); cerr != nil {
			log.Error.Printf("correct: closing output %s: %v", p.opts.OutputPath, cerr)
		}
	}()
	p.outMu.Lock()
	records := p.output
	p.outMu.Unlock()
	return correctpb.WriteCorrectedReads(records, out.Writer(ctx))
}

// runInputWorker implements the input half of C9: partition + featurize
// each assigned message, route trivial windows straight to the reassembly
// tracker, and push non-trivial windows to the features queue.
func (p *Pipeline) runInputWorker(worker int, work <-chan *correctpb.CorrectionAlignments) {
	atomic.AddInt32(&p.activeInputWorkers, 1)
	defer atomic.AddInt32(&p.activeInputWorkers, -1)

	partitioner := window.NewPartitioner(p.cfg.WindowSize)
	supportCfg := feature.SupportConfig{
		MinCoverage:         p.cfg.SupportedMinCoverage,
		RequireDisagreement: p.cfg.SupportedRequireDisagreement,
	}

	for msg := range work {
		if err := p.processMessage(msg, partitioner, supportCfg); err != nil {
			log.Error.Printf("correct: dropping message for read %q: %v", msg.Target.Name, err)
		}
	}
}

func (p *Pipeline) processMessage(msg *correctpb.CorrectionAlignments, partitioner *window.Partitioner, supportCfg feature.SupportConfig) error {
	if len(msg.Overlaps) != len(msg.Queries) {
		return errors.E("correct: overlaps/queries length mismatch", "overlaps", len(msg.Overlaps), "queries", len(msg.Queries))
	}
	for i, o := range msg.Overlaps {
		if err := overlap.Validate(msg.Target, msg.Queries[i], o); err != nil {
			return errors.E(err, "correct: invalid overlap", "idx", i)
		}
	}

	windows, err := partitioner.Partition(len(msg.Target.Seq), msg.Overlaps)
	if err != nil {
		return errors.E(err, "correct: partitioning")
	}

	slots := make([]string, len(windows))
	var nonTrivial []*feature.WindowFeatures
	for _, w := range windows {
		wf, err := feature.Build(msg.Target, msg.Queries, msg.Overlaps, w, supportCfg)
		if err != nil {
			return errors.E(err, "correct: building features", "window", w.Idx)
		}
		if wf.IsTrivial() {
			slots[w.Idx] = decode.Trivial(msg.Target.Seq, w.TargetStart, w.TargetEnd)
		} else {
			nonTrivial = append(nonTrivial, wf)
		}
	}

	results, done := p.tracker.Begin(msg.Target.Name, slots, len(nonTrivial))
	if done {
		p.emit(results)
		return nil
	}
	for _, wf := range nonTrivial {
		if err := p.featuresQueue.Push(wf); err != nil {
			return errors.E(err, "correct: pushing to features queue")
		}
	}
	return nil
}

func (p *Pipeline) runInferWorker(device string, worker int, backend infer.Backend, deviceMu *sync.Mutex, errOnce *errors.Once) {
	atomic.AddInt32(&p.activeInferWorkers, 1)
	defer atomic.AddInt32(&p.activeInferWorkers, -1)

	b := &infer.Batcher{
		In:          p.featuresQueue,
		Out:         p.inferredQueue,
		Backend:     backend,
		DeviceMu:    deviceMu,
		BatchSize:   p.opts.batchSize(),
		SlotDivisor: p.cfg.BatchSlotDivisor,
		Timeout:     time.Duration(p.cfg.BatchTimeoutSeconds) * time.Second,
	}
	if err := b.Run(); err != nil {
		errOnce.Set(errors.E(err, "correct: inference worker fatal", "device", device, "worker", worker))
	}
}

func (p *Pipeline) runDecodeWorker(worker int) {
	atomic.AddInt32(&p.activeDecodeWorkers, 1)
	defer atomic.AddInt32(&p.activeDecodeWorkers, -1)

	for {
		item, state := p.inferredQueue.Pop()
		if state == queue.Terminate {
			return
		}
		wf := item.(*feature.WindowFeatures)
		s := decode.Window(wf)
		results, done := p.tracker.Complete(wf.ReadName, wf.WindowIdx, s)
		if done {
			p.emit(results)
		}
	}
}

func (p *Pipeline) emit(results []reassembly.Result) {
	if len(results) == 0 {
		return
	}
	p.outMu.Lock()
	for _, r := range results {
		p.output = append(p.output, &correctpb.CorrectedRead{Name: r.Name, Seq: r.Seq})
	}
	p.outMu.Unlock()
	atomic.AddInt64(&p.numReadsCorrected, 1)
}
