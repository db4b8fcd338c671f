// Package sweep searches trainer hyperparameters for the lowest final loss.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"linfit/sgd"
)

// SearchConfig describes a hyperparameter search.
type SearchConfig struct {
	Method        string    `yaml:"method" json:"method"` // grid_search or random_search
	LearningRates []float64 `yaml:"learning_rates" json:"learning_rates"`
	LRMin         float64   `yaml:"lr_min" json:"lr_min"`
	LRMax         float64   `yaml:"lr_max" json:"lr_max"`
	LRStep        float64   `yaml:"lr_step" json:"lr_step"`
	EpochCounts   []int     `yaml:"epoch_counts" json:"epoch_counts"`
	MaxIterations int       `yaml:"max_iterations" json:"max_iterations"`
	RandomSeed    int64     `yaml:"random_seed" json:"random_seed"`
}

// Candidate is one hyperparameter combination.
type Candidate struct {
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
}

// Iteration records the outcome of training one candidate.
type Iteration struct {
	ID        int            `json:"id"`
	Candidate Candidate      `json:"candidate"`
	FinalLoss float64        `json:"final_loss"`
	Final     sgd.Parameters `json:"final"`
	Duration  time.Duration  `json:"duration"`
	Status    string         `json:"status"` // completed, diverged, failed
	Error     string         `json:"error,omitempty"`
}

// Result is the best candidate found so far.
type Result struct {
	Candidate  Candidate      `json:"candidate"`
	FinalLoss  float64        `json:"final_loss"`
	Final      sgd.Parameters `json:"final"`
	Iterations int            `json:"iterations"`
	Duration   time.Duration  `json:"duration"`
}

// ParameterSearch runs a grid or random search of trainer hyperparameters
// over a fixed dataset. Safe for concurrent status queries while running.
type ParameterSearch struct {
	mu         sync.RWMutex
	config     SearchConfig
	data       []sgd.Observation
	init       sgd.Parameters
	iterations []Iteration
	best       *Result
	started    bool
	completed  bool
	progress   float64
}

// NewParameterSearch creates a search over the given dataset.
func NewParameterSearch(config SearchConfig, data []sgd.Observation, init sgd.Parameters) *ParameterSearch {
	return &ParameterSearch{config: config, data: data, init: init}
}

// Optimize runs the search and returns the best result. It can be called
// once per ParameterSearch.
func (p *ParameterSearch) Optimize(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil, errors.New("parameter search is already running")
	}
	p.started = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.completed = true
		p.mu.Unlock()
	}()

	candidates, err := p.buildCandidates()
	if err != nil {
		return nil, err
	}
	zap.S().Infof("starting parameter search: method=%s, candidates=%d", p.config.Method, len(candidates))

	start := time.Now()
	for i, candidate := range candidates {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("parameter search cancelled: %w", ctx.Err())
		default:
		}

		iter := p.runCandidate(i+1, candidate)

		p.mu.Lock()
		p.iterations = append(p.iterations, iter)
		if iter.Status == "completed" && (p.best == nil || iter.FinalLoss < p.best.FinalLoss) {
			p.best = &Result{
				Candidate:  iter.Candidate,
				FinalLoss:  iter.FinalLoss,
				Final:      iter.Final,
				Iterations: i + 1,
				Duration:   time.Since(start),
			}
		}
		p.progress = float64(i+1) / float64(len(candidates)) * 100
		p.mu.Unlock()
	}

	best := p.GetBestResult()
	if best == nil {
		return nil, errors.New("no candidate completed without diverging")
	}
	zap.S().Infof("parameter search completed: lr=%v epochs=%d loss=%.6f",
		best.Candidate.LearningRate, best.Candidate.Epochs, best.FinalLoss)
	return best, nil
}

func (p *ParameterSearch) runCandidate(id int, c Candidate) Iteration {
	iterStart := time.Now()
	history, err := sgd.Train(p.data, p.init, c.LearningRate, c.Epochs)
	if err != nil {
		return Iteration{
			ID: id, Candidate: c,
			Duration: time.Since(iterStart),
			Status:   "failed", Error: err.Error(),
		}
	}

	final := history[len(history)-1]
	if math.IsNaN(final.Loss) || math.IsInf(final.Loss, 0) {
		return Iteration{
			ID: id, Candidate: c,
			FinalLoss: final.Loss, Final: final.End,
			Duration: time.Since(iterStart),
			Status:   "diverged",
		}
	}
	return Iteration{
		ID: id, Candidate: c,
		FinalLoss: final.Loss, Final: final.End,
		Duration: time.Since(iterStart),
		Status:   "completed",
	}
}

func (p *ParameterSearch) buildCandidates() ([]Candidate, error) {
	rates := p.config.LearningRates
	if len(rates) == 0 {
		if p.config.LRStep <= 0 || p.config.LRMax < p.config.LRMin {
			return nil, errors.New("learning rate range is empty")
		}
		for lr := p.config.LRMin; lr <= p.config.LRMax; lr += p.config.LRStep {
			rates = append(rates, lr)
		}
	}
	epochCounts := p.config.EpochCounts
	if len(epochCounts) == 0 {
		epochCounts = []int{1000}
	}

	var grid []Candidate
	for _, lr := range rates {
		for _, epochs := range epochCounts {
			grid = append(grid, Candidate{LearningRate: lr, Epochs: epochs})
		}
	}

	max := p.config.MaxIterations
	if max <= 0 || max > len(grid) {
		max = len(grid)
	}

	switch p.config.Method {
	case "", "grid_search":
		return grid[:max], nil
	case "random_search":
		r := rand.New(rand.NewSource(p.config.RandomSeed))
		picked := make([]Candidate, max)
		for i := range picked {
			picked[i] = grid[r.Intn(len(grid))]
		}
		return picked, nil
	default:
		return nil, fmt.Errorf("unsupported search method: %s", p.config.Method)
	}
}

// GetBestResult returns a copy of the best result so far, or nil.
func (p *ParameterSearch) GetBestResult() *Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.best == nil {
		return nil
	}
	best := *p.best
	return &best
}

// GetTopResults returns up to n completed iterations ordered best first.
func (p *ParameterSearch) GetTopResults(n int) []Iteration {
	p.mu.RLock()
	completed := make([]Iteration, 0, len(p.iterations))
	for _, iter := range p.iterations {
		if iter.Status == "completed" {
			completed = append(completed, iter)
		}
	}
	p.mu.RUnlock()

	sort.Slice(completed, func(i, j int) bool {
		return completed[i].FinalLoss < completed[j].FinalLoss
	})
	if len(completed) > n {
		completed = completed[:n]
	}
	return completed
}

// GetProgress reports completion in percent.
func (p *ParameterSearch) GetProgress() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.progress
}

// IsRunning reports whether Optimize is still in flight.
func (p *ParameterSearch) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started && !p.completed
}
