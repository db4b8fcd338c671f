// Package sgd fits a two-parameter linear model with per-observation
// (batch size 1) stochastic gradient descent.
package sgd

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidArgument marks validation failures reported before any epoch runs.
var ErrInvalidArgument = errors.New("invalid argument")

// Observation is one (x, y) sample of the target function.
type Observation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Parameters are the intercept and slope of the model y = Bias + Weight*x.
type Parameters struct {
	Bias   float64 `json:"bias"`
	Weight float64 `json:"weight"`
}

// Predict evaluates the linear model at x.
func (p Parameters) Predict(x float64) float64 {
	return p.Bias + p.Weight*x
}

// EpochRecord captures one completed pass over the dataset: the parameters
// held at epoch start, the parameters after the final update, and the epoch
// loss (square root of the sum of squared errors, each error taken under the
// parameters current at prediction time).
type EpochRecord struct {
	Epoch int        `json:"epoch"`
	Start Parameters `json:"start"`
	End   Parameters `json:"end"`
	Loss  float64    `json:"loss"`
}

// History is the chronological sequence of epoch records from one run.
type History []EpochRecord

// Final returns the parameters after the last epoch.
func (h History) Final() Parameters {
	if len(h) == 0 {
		return Parameters{}
	}
	return h[len(h)-1].End
}

// Trainer runs stochastic gradient descent over a fixed dataset. OnEpoch, if
// set, is invoked with each record as soon as its epoch completes; it must not
// block for long since training waits on it.
type Trainer struct {
	LearningRate float64
	Epochs       int
	OnEpoch      func(EpochRecord)
}

// Run trains starting from init and returns one record per epoch. The dataset
// is read in its given order and never mutated; updates are applied after
// every observation, so later observations in an epoch see the new
// parameters. Divergent runs are not detected here: an oversized learning
// rate shows up as Inf or NaN in the returned history.
func (t *Trainer) Run(data []Observation, init Parameters) (History, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: dataset is empty", ErrInvalidArgument)
	}
	if t.Epochs < 1 {
		return nil, fmt.Errorf("%w: epochs must be >= 1, got %d", ErrInvalidArgument, t.Epochs)
	}
	if math.IsNaN(t.LearningRate) || math.IsInf(t.LearningRate, 0) {
		return nil, fmt.Errorf("%w: learning rate must be finite, got %v", ErrInvalidArgument, t.LearningRate)
	}

	params := init
	history := make(History, 0, t.Epochs)

	for epoch := 1; epoch <= t.Epochs; epoch++ {
		start := params
		sumSquared := 0.0

		for _, obs := range data {
			pred := params.Predict(obs.X)
			diff := pred - obs.Y
			sumSquared += diff * diff

			gradBias := 2 * diff
			gradWeight := gradBias * obs.X
			params.Bias -= t.LearningRate * gradBias
			params.Weight -= t.LearningRate * gradWeight
		}

		record := EpochRecord{
			Epoch: epoch,
			Start: start,
			End:   params,
			Loss:  math.Sqrt(sumSquared),
		}
		history = append(history, record)
		if t.OnEpoch != nil {
			t.OnEpoch(record)
		}
	}

	return history, nil
}

// Train is the plain-function form of Trainer.Run.
func Train(data []Observation, init Parameters, learningRate float64, epochs int) (History, error) {
	t := &Trainer{LearningRate: learningRate, Epochs: epochs}
	return t.Run(data, init)
}
