package scheduler

import (
	"math"
	"sync"

	"tradingagent/internal/domain"
)

const (
	minAllocation = 0.1
	maxAllocation = 0.9
	// minResults is the history needed before a strategy participates in
	// optimization.
	minResults = 3
	// scoreWindow is how many trailing results feed the score.
	scoreWindow = 10
	// blendOld/blendNew smooth allocation transitions.
	blendOld = 0.7
	blendNew = 0.3
)

// Allocator tracks per-strategy result history and capital allocations.
// Allocations always sum to 1.0 with each value clamped to [0.1, 0.9]; they
// are updated only by exponential smoothing, never overwritten directly.
type Allocator struct {
	mu          sync.Mutex
	history     map[string][]domain.StrategyResult
	allocations map[string]float64
}

// NewAllocator returns an empty Allocator.
func NewAllocator() *Allocator {
	return &Allocator{
		history:     make(map[string][]domain.StrategyResult),
		allocations: make(map[string]float64),
	}
}

// Add registers a strategy with its initial allocation.
func (a *Allocator) Add(name string, allocation float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocations[name] = clamp(allocation)
	a.history[name] = nil
	a.normalizeLocked()
}

// Record appends a cycle result to the strategy's trailing history.
func (a *Allocator) Record(result domain.StrategyResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := append(a.history[result.Name], result)
	if len(h) > historyCap {
		h = h[len(h)-historyCap:]
	}
	a.history[result.Name] = h
}

// History returns a copy of the strategy's recorded results.
func (a *Allocator) History(name string) []domain.StrategyResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.history[name]
	out := make([]domain.StrategyResult, len(h))
	copy(out, h)
	return out
}

// Snapshot returns a copy of the current allocations.
func (a *Allocator) Snapshot() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]float64, len(a.allocations))
	for k, v := range a.allocations {
		out[k] = v
	}
	return out
}

// Optimize shifts capital toward strategies with better recent results. For
// each strategy with enough history the score is a weighted blend of average
// pnl and win rate over the trailing window; scores are shifted non-negative,
// normalized into weights, blended into the prior allocation, clamped, and
// the whole map renormalized to sum exactly 1.0. Returns false when no
// strategy has enough history yet.
func (a *Allocator) Optimize() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	scores := make(map[string]float64)
	for name, h := range a.history {
		if len(h) < minResults {
			continue
		}
		recent := h
		if len(recent) > scoreWindow {
			recent = recent[len(recent)-scoreWindow:]
		}
		var pnl, winRate float64
		for _, r := range recent {
			pnl += r.ProfitLoss
			winRate += r.WinRate
		}
		n := float64(len(recent))
		scores[name] = (pnl/n)*0.7 + (winRate/n)*100*0.3
	}
	if len(scores) == 0 {
		return false
	}

	minScore := math.Inf(1)
	for _, sc := range scores {
		minScore = math.Min(minScore, sc)
	}
	shift := math.Abs(minScore)

	var total float64
	for _, sc := range scores {
		total += sc + shift
	}

	for name, sc := range scores {
		var weight float64
		if total > 0 {
			weight = (sc + shift) / total
		} else {
			weight = 1.0 / float64(len(scores))
		}
		old := a.allocations[name]
		a.allocations[name] = clamp(old*blendOld + weight*blendNew)
	}

	a.normalizeLocked()
	return true
}

// normalizeLocked rescales allocations to sum to 1.0. Callers hold a.mu.
func (a *Allocator) normalizeLocked() {
	var sum float64
	for _, v := range a.allocations {
		sum += v
	}
	if sum == 0 {
		return
	}
	for name := range a.allocations {
		a.allocations[name] /= sum
	}
}

func clamp(v float64) float64 {
	return math.Max(minAllocation, math.Min(maxAllocation, v))
}
