package sgd

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

// LinearModel is a fitted model plus the metadata worth keeping with it.
type LinearModel struct {
	Params    Parameters `json:"params"`
	FinalLoss float64    `json:"final_loss"`
	TrainedAt time.Time  `json:"trained_at"`
}

// NewLinearModel builds a model from a finished training history.
func NewLinearModel(h History) (*LinearModel, error) {
	if len(h) == 0 {
		return nil, errors.New("empty training history")
	}
	last := h[len(h)-1]
	return &LinearModel{
		Params:    last.End,
		FinalLoss: last.Loss,
		TrainedAt: time.Now().UTC(),
	}, nil
}

// Predict evaluates the fitted model at x.
func (m *LinearModel) Predict(x float64) float64 {
	return m.Params.Predict(x)
}

// Save writes the model as JSON.
func (m *LinearModel) Save(path string) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// Load reads a model previously written by Save.
func (m *LinearModel) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, m)
}
