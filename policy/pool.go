package policy

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/brensch/agarenv/env"
)

// OnnxPool fans Act calls out across several sessions, each with its own
// batching loop.
type OnnxPool struct {
	clients []*Onnx
	rr      atomic.Uint64
}

func NewOnnxPool(modelPath string, sessions int, cfg OnnxConfig) (*OnnxPool, error) {
	if sessions <= 0 {
		sessions = 1
	}

	clients := make([]*Onnx, 0, sessions)
	for i := 0; i < sessions; i++ {
		c, err := NewOnnx(modelPath, cfg)
		if err != nil {
			for _, created := range clients {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create onnx session %d/%d: %w", i+1, sessions, err)
		}
		clients = append(clients, c)
	}
	return &OnnxPool{clients: clients}, nil
}

func (p *OnnxPool) Act(ctx context.Context, features []float32) (env.Action, error) {
	if len(p.clients) == 0 {
		return env.Action{}, fmt.Errorf("onnx pool has no sessions")
	}
	idx := int(p.rr.Add(1)-1) % len(p.clients)
	return p.clients[idx].Act(ctx, features)
}

func (p *OnnxPool) Stats() RuntimeStats {
	var st RuntimeStats
	for _, c := range p.clients {
		s := c.Stats()
		st.TotalBatches += s.TotalBatches
		st.TotalItems += s.TotalItems
		st.TotalRunNanos += s.TotalRunNanos
		st.QueueLen += s.QueueLen
		if s.LastBatchSize > st.LastBatchSize {
			st.LastBatchSize = s.LastBatchSize
		}
	}
	if st.TotalBatches > 0 {
		st.AvgBatchSize = float64(st.TotalItems) / float64(st.TotalBatches)
		st.AvgRunMs = float64(st.TotalRunNanos) / 1e6 / float64(st.TotalBatches)
	}
	return st
}

func (p *OnnxPool) Close() error {
	var firstErr error
	for _, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
