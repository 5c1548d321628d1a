package policy

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brensch/agarenv/env"
	ort "github.com/yalue/onnxruntime_go"
)

// Model tensor names and output widths.
const (
	InputName   = "features"
	TargetName  = "target"
	CommandName = "command"

	TargetSize  = 2
	CommandSize = 3
)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 1 * time.Millisecond
)

type OnnxConfig struct {
	// InputSize is the feature vector length the model expects.
	InputSize    int
	BatchSize    int
	BatchTimeout time.Duration
	UseCUDA      bool
}

type request struct {
	input []float32
	resp  chan response
}

type response struct {
	target  []float32
	command []float32
	err     error
}

// RuntimeStats summarises batching behaviour.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int
	AvgBatchSize  float64
	AvgRunMs      float64
}

// Onnx runs an ONNX model over feature vectors, batching concurrent Act
// calls into one session run.
type Onnx struct {
	session  *ort.DynamicAdvancedSession
	requests chan request
	cfg      OnnxConfig
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	batches  atomic.Int64
	items    atomic.Int64
	runNanos atomic.Int64
	last     atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

func NewOnnx(modelPath string, cfg OnnxConfig) (*Onnx, error) {
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("onnx: input size must be positive, got %d", cfg.InputSize)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("onnx model: %w", err)
	}

	if runtime.GOOS == "linux" {
		setSharedLibraryPath()
	}
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("failed to init ort: %w", ortInitErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// many rollout workers share the process, keep each session narrow
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	if cfg.UseCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				log.Printf("onnx: failed to append CUDA provider: %v", err)
			} else {
				log.Printf("onnx: CUDA provider enabled")
			}
		} else {
			log.Printf("onnx: failed to create CUDA options: %v", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{InputName}, []string{TargetName, CommandName}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c := &Onnx{
		session:  session,
		cfg:      cfg,
		requests: make(chan request, cfg.BatchSize*2),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go c.batchLoop()
	return c, nil
}

// setSharedLibraryPath points ORT at a local libonnxruntime when
// ORT_SHARED_LIBRARY_PATH is unset.
func setSharedLibraryPath() {
	if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
		return
	}
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	for _, name := range []string{"libonnxruntime.so", "libonnxruntime.so.1"} {
		abs := filepath.Join(cwd, name)
		if _, err := os.Stat(abs); err == nil {
			ort.SetSharedLibraryPath(abs)
			addLibraryPath(cwd)
			return
		}
	}
}

func addLibraryPath(dir string) {
	existing := os.Getenv("LD_LIBRARY_PATH")
	for _, p := range strings.Split(existing, ":") {
		if p == dir {
			return
		}
	}
	if existing != "" {
		dir = dir + ":" + existing
	}
	_ = os.Setenv("LD_LIBRARY_PATH", dir)
}

// Close stops the batch loop and destroys the session. Pending Act calls
// fail.
func (c *Onnx) Close() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.done)
		<-c.stopped
		err = c.session.Destroy()
	})
	return err
}

func (c *Onnx) Stats() RuntimeStats {
	st := RuntimeStats{
		TotalBatches:  c.batches.Load(),
		TotalItems:    c.items.Load(),
		TotalRunNanos: c.runNanos.Load(),
		LastBatchSize: c.last.Load(),
		QueueLen:      len(c.requests),
	}
	if st.TotalBatches > 0 {
		st.AvgBatchSize = float64(st.TotalItems) / float64(st.TotalBatches)
		st.AvgRunMs = float64(st.TotalRunNanos) / 1e6 / float64(st.TotalBatches)
	}
	return st
}

func (c *Onnx) Act(ctx context.Context, features []float32) (env.Action, error) {
	if len(features) != c.cfg.InputSize {
		return env.Action{}, fmt.Errorf("onnx: got %d features, model takes %d", len(features), c.cfg.InputSize)
	}
	input := make([]float32, len(features))
	copy(input, features)

	resp := make(chan response, 1)
	select {
	case c.requests <- request{input: input, resp: resp}:
	case <-ctx.Done():
		return env.Action{}, ctx.Err()
	case <-c.done:
		return env.Action{}, fmt.Errorf("onnx: client closed")
	}

	select {
	case r := <-resp:
		if r.err != nil {
			return env.Action{}, r.err
		}
		return DecodeAction(r.target, r.command), nil
	case <-ctx.Done():
		return env.Action{}, ctx.Err()
	case <-c.done:
		return env.Action{}, fmt.Errorf("onnx: client closed")
	}
}

func (c *Onnx) batchLoop() {
	defer close(c.stopped)
	batch := make([]float32, 0, c.cfg.BatchSize*c.cfg.InputSize)
	pending := make([]request, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		c.runBatch(pending, batch)
		pending = pending[:0]
		batch = batch[:0]
	}

	for {
		select {
		case req := <-c.requests:
			pending = append(pending, req)
			batch = append(batch, req.input...)
			if len(pending) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			if len(pending) > 0 {
				flush()
			}
		case <-c.done:
			c.failBatch(pending, fmt.Errorf("onnx: client closed"))
			return
		}
	}
}

func (c *Onnx) runBatch(pending []request, batch []float32) {
	n := int64(len(pending))
	start := time.Now()

	input, err := ort.NewTensor(ort.NewShape(n, int64(c.cfg.InputSize)), batch)
	if err != nil {
		c.failBatch(pending, err)
		return
	}
	defer input.Destroy()

	target, err := ort.NewEmptyTensor[float32](ort.NewShape(n, TargetSize))
	if err != nil {
		c.failBatch(pending, err)
		return
	}
	defer target.Destroy()

	command, err := ort.NewEmptyTensor[float32](ort.NewShape(n, CommandSize))
	if err != nil {
		c.failBatch(pending, err)
		return
	}
	defer command.Destroy()

	if err := c.session.Run([]ort.Value{input}, []ort.Value{target, command}); err != nil {
		c.failBatch(pending, err)
		return
	}

	c.batches.Add(1)
	c.items.Add(n)
	c.runNanos.Add(time.Since(start).Nanoseconds())
	c.last.Store(n)

	targets := target.GetData()
	commands := command.GetData()
	for i, req := range pending {
		t := make([]float32, TargetSize)
		copy(t, targets[i*TargetSize:(i+1)*TargetSize])
		cmd := make([]float32, CommandSize)
		copy(cmd, commands[i*CommandSize:(i+1)*CommandSize])
		req.resp <- response{target: t, command: cmd}
	}
}

func (c *Onnx) failBatch(pending []request, err error) {
	for _, req := range pending {
		req.resp <- response{err: err}
	}
}
