package sgd

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func linearData(n int, bias, weight float64, seed int64) []Observation {
	r := rand.New(rand.NewSource(seed))
	data := make([]Observation, n)
	for i := range data {
		x := r.Float64() * 100
		data[i] = Observation{X: x, Y: bias + weight*x}
	}
	return data
}

func TestTrainSingleStep(t *testing.T) {
	data := []Observation{{X: 10, Y: 50}}
	history, err := Train(data, Parameters{Bias: 1, Weight: 1}, 0.0001, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 record, got %d", len(history))
	}

	rec := history[0]
	// pred = 11, error = 1521, grad_bias = -78, grad_weight = -780
	if math.Abs(rec.End.Bias-1.0078) > 1e-12 {
		t.Errorf("end bias: got %v, want 1.0078", rec.End.Bias)
	}
	if math.Abs(rec.End.Weight-1.078) > 1e-12 {
		t.Errorf("end weight: got %v, want 1.078", rec.End.Weight)
	}
	if math.Abs(rec.Loss-math.Sqrt(1521)) > 1e-12 {
		t.Errorf("loss: got %v, want %v", rec.Loss, math.Sqrt(1521))
	}
	if rec.Start != (Parameters{Bias: 1, Weight: 1}) {
		t.Errorf("start params changed: %+v", rec.Start)
	}
}

func TestTrainHistoryShape(t *testing.T) {
	data := linearData(10, 5, 3, 1)
	history, err := Train(data, Parameters{}, 0.0001, 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 25 {
		t.Fatalf("expected 25 records, got %d", len(history))
	}
	for i, rec := range history {
		if rec.Epoch != i+1 {
			t.Errorf("record %d: epoch %d, want %d", i, rec.Epoch, i+1)
		}
	}
	// Parameters must chain across epoch boundaries.
	for i := 0; i < len(history)-1; i++ {
		if history[i].End != history[i+1].Start {
			t.Errorf("epoch %d end %+v != epoch %d start %+v",
				history[i].Epoch, history[i].End, history[i+1].Epoch, history[i+1].Start)
		}
	}
}

func TestTrainDeterminism(t *testing.T) {
	data := linearData(20, 30, 2, 2)
	init := Parameters{Bias: 0.25, Weight: 0.75}

	first, err := Train(data, init, 0.0001, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Train(data, init, 0.0001, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("epoch %d differs between identical runs: %+v vs %+v", i+1, first[i], second[i])
		}
	}
}

func TestTrainConvergence(t *testing.T) {
	data := linearData(30, 30, 2, 3)
	r := rand.New(rand.NewSource(4))
	init := Parameters{Bias: r.Float64(), Weight: r.Float64()}

	history, err := Train(data, init, 0.0001, 4000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := history.Final()
	if math.Abs(final.Bias-30) > 0.5 {
		t.Errorf("final bias: got %v, want within 0.5 of 30", final.Bias)
	}
	if math.Abs(final.Weight-2) > 0.5 {
		t.Errorf("final weight: got %v, want within 0.5 of 2", final.Weight)
	}
	if history[len(history)-1].Loss >= history[0].Loss*0.01 {
		t.Errorf("final loss %v not below 1%% of first-epoch loss %v",
			history[len(history)-1].Loss, history[0].Loss)
	}
}

func TestTrainInvalidInput(t *testing.T) {
	data := linearData(5, 1, 1, 5)

	tests := []struct {
		name   string
		data   []Observation
		lr     float64
		epochs int
	}{
		{"empty dataset", nil, 0.0001, 10},
		{"zero epochs", data, 0.0001, 0},
		{"negative epochs", data, 0.0001, -3},
		{"nan learning rate", data, math.NaN(), 10},
		{"infinite learning rate", data, math.Inf(1), 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history, err := Train(tt.data, Parameters{}, tt.lr, tt.epochs)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
			if history != nil {
				t.Fatalf("expected no partial history, got %d records", len(history))
			}
		})
	}
}

func TestTrainOrderSensitivity(t *testing.T) {
	data := linearData(12, 30, 2, 6)
	reversed := make([]Observation, len(data))
	for i, obs := range data {
		reversed[len(data)-1-i] = obs
	}

	forward, err := Train(data, Parameters{}, 0.0001, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	backward, err := Train(reversed, Parameters{}, 0.0001, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Updates apply per observation, so the visit order matters. Equal
	// results here would mean the updates are not actually sequential.
	if forward.Final() == backward.Final() {
		t.Errorf("expected order-dependent result, both runs ended at %+v", forward.Final())
	}
}

func TestTrainDoesNotMutateData(t *testing.T) {
	data := linearData(8, 2, 4, 7)
	snapshot := make([]Observation, len(data))
	copy(snapshot, data)

	if _, err := Train(data, Parameters{Bias: 0.5, Weight: 0.5}, 0.0001, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range data {
		if data[i] != snapshot[i] {
			t.Fatalf("observation %d mutated: %+v vs %+v", i, data[i], snapshot[i])
		}
	}
}

func TestTrainerOnEpoch(t *testing.T) {
	data := linearData(6, 3, 1, 8)

	var seen []EpochRecord
	trainer := &Trainer{
		LearningRate: 0.0001,
		Epochs:       5,
		OnEpoch:      func(rec EpochRecord) { seen = append(seen, rec) },
	}
	history, err := trainer.Run(data, Parameters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != len(history) {
		t.Fatalf("hook saw %d records, history has %d", len(seen), len(history))
	}
	for i := range seen {
		if seen[i] != history[i] {
			t.Errorf("hook record %d differs from history: %+v vs %+v", i, seen[i], history[i])
		}
	}
}

// Closed-form gradients checked against a finite-difference estimate with
// perturbation 0.01. The estimate of d(err)/d(bias) is off by exactly eps and
// the weight estimate by eps*x^2, which sets the tolerance.
func TestGradientMatchesFiniteDifference(t *testing.T) {
	const eps = 0.01

	cases := []struct {
		params Parameters
		obs    Observation
	}{
		{Parameters{Bias: 1, Weight: 1}, Observation{X: 10, Y: 50}},
		{Parameters{Bias: 30, Weight: 2}, Observation{X: 55, Y: 145}},
		{Parameters{Bias: -4, Weight: 0.5}, Observation{X: 3, Y: 7}},
	}
	for _, c := range cases {
		sqErr := func(p Parameters) float64 {
			d := p.Predict(c.obs.X) - c.obs.Y
			return d * d
		}

		diff := c.params.Predict(c.obs.X) - c.obs.Y
		gradBias := 2 * diff
		gradWeight := gradBias * c.obs.X

		perturbed := c.params
		perturbed.Bias += eps
		fdBias := (sqErr(perturbed) - sqErr(c.params)) / eps

		perturbed = c.params
		perturbed.Weight += eps
		fdWeight := (sqErr(perturbed) - sqErr(c.params)) / eps

		if math.Abs(fdBias-gradBias) > 1.5*eps {
			t.Errorf("bias gradient at %+v: closed form %v, finite difference %v", c.params, gradBias, fdBias)
		}
		if tol := 1.5 * eps * c.obs.X * c.obs.X; math.Abs(fdWeight-gradWeight) > tol {
			t.Errorf("weight gradient at %+v: closed form %v, finite difference %v", c.params, gradWeight, fdWeight)
		}
	}
}
