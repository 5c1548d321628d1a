// Package policy picks actions from feature vectors produced by the
// features package.
package policy

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/brensch/agarenv/env"
	"github.com/brensch/agarenv/features"
)

// Policy maps one agent's feature vector to an action. Implementations must
// be safe for concurrent use; rollout workers share one Policy.
type Policy interface {
	Act(ctx context.Context, features []float32) (env.Action, error)
}

// Random samples targets uniformly from [-1, 1]² and commands uniformly.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Act(ctx context.Context, _ []float32) (env.Action, error) {
	if err := ctx.Err(); err != nil {
		return env.Action{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return env.Action{
		Target:  [2]float64{r.rng.Float64()*2 - 1, r.rng.Float64()*2 - 1},
		Command: env.Command(r.rng.Intn(3)),
	}, nil
}

// Seeker steers toward the nearest pellet in the vector and never splits or
// feeds. It reads positions using the extractor's segment layout.
type Seeker struct {
	pellets features.Segment
	agent   features.Segment
}

// NewSeeker builds a Seeker for vectors laid out by x.
func NewSeeker(x *features.Extractor) *Seeker {
	s := &Seeker{}
	for _, seg := range x.Segments() {
		switch seg.Name {
		case "pellets":
			s.pellets = seg
		case "agent":
			s.agent = seg
		}
	}
	return s
}

func (s *Seeker) Act(ctx context.Context, vec []float32) (env.Action, error) {
	if err := ctx.Err(); err != nil {
		return env.Action{}, err
	}
	if s.pellets.Rows == 0 || s.agent.Rows == 0 {
		return env.NoopAction, nil
	}

	var cx, cy, m float64
	for i := 0; i < s.agent.Rows; i++ {
		row := vec[s.agent.Offset+i*s.agent.Cols:]
		mass := float64(row[4])
		cx += mass * float64(row[0])
		cy += mass * float64(row[1])
		m += mass
	}
	if m <= 0 {
		return env.NoopAction, nil
	}
	cx, cy = cx/m, cy/m

	px := float64(vec[s.pellets.Offset])
	py := float64(vec[s.pellets.Offset+1])
	if px == 0 && py == 0 {
		// an all-zero row is padding
		return env.NoopAction, nil
	}

	dx, dy := px-cx, py-cy
	l := math.Hypot(dx, dy)
	if l == 0 {
		return env.NoopAction, nil
	}
	return env.Action{Target: [2]float64{dx / l, dy / l}}, nil
}

// DecodeAction turns raw model outputs into an action: the target is clamped
// to [-1, 1] and the command is the argmax of the logits (first wins ties).
func DecodeAction(target, logits []float32) env.Action {
	var a env.Action
	for i := 0; i < 2 && i < len(target); i++ {
		v := float64(target[i])
		if math.IsNaN(v) {
			v = 0
		}
		a.Target[i] = math.Max(-1, math.Min(1, v))
	}
	best := 0
	for i := 1; i < len(logits) && i < 3; i++ {
		if logits[i] > logits[best] {
			best = i
		}
	}
	a.Command = env.Command(best)
	return a
}
