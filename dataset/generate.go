// Package dataset generates, loads and validates observation sequences for
// the trainer.
package dataset

import (
	"fmt"
	"math/rand"

	"linfit/sgd"
)

// GenerateConfig describes a synthetic linear dataset.
type GenerateConfig struct {
	N      int     `yaml:"n" json:"n"`
	Bias   float64 `yaml:"bias" json:"bias"`
	Weight float64 `yaml:"weight" json:"weight"`
	Noise  float64 `yaml:"noise" json:"noise"`
	XMax   float64 `yaml:"x_max" json:"x_max"`
	Seed   int64   `yaml:"seed" json:"seed"`
}

// Linear samples n observations of y = bias + weight*x + e, with x uniform
// over [0, xMax] and e gaussian with standard deviation noise. The same seed
// always yields the same dataset.
func Linear(cfg GenerateConfig) ([]sgd.Observation, error) {
	if cfg.N <= 0 {
		return nil, fmt.Errorf("dataset size must be positive, got %d", cfg.N)
	}
	xMax := cfg.XMax
	if xMax <= 0 {
		xMax = 100
	}

	r := rand.New(rand.NewSource(cfg.Seed))
	data := make([]sgd.Observation, cfg.N)
	for i := range data {
		x := r.Float64() * xMax
		y := cfg.Bias + cfg.Weight*x
		if cfg.Noise > 0 {
			y += r.NormFloat64() * cfg.Noise
		}
		data[i] = sgd.Observation{X: x, Y: y}
	}
	return data, nil
}
