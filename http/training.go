package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"

	"linfit/dataset"
	"linfit/db"
	"linfit/monitor"
	"linfit/sgd"
	"linfit/sweep"
)

var (
	trainingMonitor *monitor.TrainingMonitor
	liveSession     atomic.Int64
)

// RegisterTrainingHandlers registers the training and sweep routes.
func RegisterTrainingHandlers(mux *http.ServeMux, tm *monitor.TrainingMonitor) {
	trainingMonitor = tm
	mux.HandleFunc("POST /api/train", handleTrain)
	mux.HandleFunc("POST /api/sweep", handleSweep)
}

// TrainRequest describes one training run. Either Observations or Dataset
// must be set; Observations wins when both are present.
type TrainRequest struct {
	Name           string                  `json:"name"`
	Dataset        *dataset.GenerateConfig `json:"dataset,omitempty"`
	Observations   []sgd.Observation       `json:"observations,omitempty"`
	InitialBias    float64                 `json:"initial_bias"`
	InitialWeight  float64                 `json:"initial_weight"`
	LearningRate   float64                 `json:"learning_rate"`
	Epochs         int                     `json:"epochs"`
	IncludeHistory bool                    `json:"include_history"`
}

// TrainResponse summarizes a finished run.
type TrainResponse struct {
	RunID       int64          `json:"run_id"`
	Final       sgd.Parameters `json:"final"`
	FinalLoss   float64        `json:"final_loss"`
	Epochs      int            `json:"epochs"`
	DataPoints  int            `json:"data_points"`
	DroppedRows int            `json:"dropped_rows,omitempty"`
	History     sgd.History    `json:"history,omitempty"`
}

func handleTrain(w http.ResponseWriter, r *http.Request) {
	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	data, dropped, err := resolveData(req.Observations, req.Dataset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sessionID := liveSession.Add(1)
	trainingMonitor.SendRunStarted(monitor.RunStartedMessage{
		SessionID:    sessionID,
		Name:         req.Name,
		DataPoints:   len(data),
		LearningRate: req.LearningRate,
		Epochs:       req.Epochs,
	})

	trainer := &sgd.Trainer{
		LearningRate: req.LearningRate,
		Epochs:       req.Epochs,
		OnEpoch: func(rec sgd.EpochRecord) {
			trainingMonitor.SendEpoch(sessionID, rec)
		},
	}
	init := sgd.Parameters{Bias: req.InitialBias, Weight: req.InitialWeight}

	history, err := trainer.Run(data, init)
	if errors.Is(err, sgd.ErrInvalidArgument) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	runID, err := db.SaveRun(db.Run{
		Name:          req.Name,
		DataPoints:    len(data),
		InitialBias:   init.Bias,
		InitialWeight: init.Weight,
		LearningRate:  req.LearningRate,
	}, history)
	if err != nil {
		zap.S().Errorf("failed to persist run: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	final := history[len(history)-1]
	trainingMonitor.SendRunCompleted(monitor.RunCompletedMessage{
		SessionID: sessionID,
		RunID:     runID,
		Final:     final.End,
		FinalLoss: final.Loss,
		Epochs:    len(history),
	})

	response := TrainResponse{
		RunID:       runID,
		Final:       final.End,
		FinalLoss:   final.Loss,
		Epochs:      len(history),
		DataPoints:  len(data),
		DroppedRows: dropped,
	}
	if req.IncludeHistory {
		response.History = history
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// SweepRequest describes a hyperparameter search over one dataset.
type SweepRequest struct {
	Dataset       *dataset.GenerateConfig `json:"dataset,omitempty"`
	Observations  []sgd.Observation       `json:"observations,omitempty"`
	InitialBias   float64                 `json:"initial_bias"`
	InitialWeight float64                 `json:"initial_weight"`
	Search        sweep.SearchConfig      `json:"search"`
	TopN          int                     `json:"top_n"`
}

// SweepResponse reports the best candidate and the leaderboard.
type SweepResponse struct {
	Best *sweep.Result     `json:"best"`
	Top  []sweep.Iteration `json:"top"`
}

func handleSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	data, _, err := resolveData(req.Observations, req.Dataset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	init := sgd.Parameters{Bias: req.InitialBias, Weight: req.InitialWeight}
	search := sweep.NewParameterSearch(req.Search, data, init)
	best, err := search.Optimize(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	topN := req.TopN
	if topN <= 0 {
		topN = 5
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SweepResponse{Best: best, Top: search.GetTopResults(topN)})
}

func resolveData(observations []sgd.Observation, gen *dataset.GenerateConfig) ([]sgd.Observation, int, error) {
	var data []sgd.Observation
	switch {
	case len(observations) > 0:
		data = observations
	case gen != nil:
		generated, err := dataset.Linear(*gen)
		if err != nil {
			return nil, 0, err
		}
		data = generated
	default:
		return nil, 0, errors.New("either observations or dataset must be provided")
	}

	cleaned, stats := dataset.Clean(data)
	if len(cleaned) == 0 {
		return nil, 0, errors.New("no usable observations after cleaning")
	}
	return cleaned, stats.Rejected, nil
}
