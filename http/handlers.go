package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"linfit/db"
	"linfit/sgd"
)

// RegisterHandlers registers the read-only API routes.
func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/runs", handleRuns)
	mux.HandleFunc("GET /api/runs/{id}", handleRun)
	mux.HandleFunc("GET /api/runs/{id}/history", handleRunHistory)
	mux.HandleFunc("GET /api/predict/{id}", handlePredict)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	runs, err := db.QueryRuns(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

func handleRun(w http.ResponseWriter, r *http.Request) {
	run, ok := lookupRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

func handleRunHistory(w http.ResponseWriter, r *http.Request) {
	run, ok := lookupRun(w, r)
	if !ok {
		return
	}

	history, err := db.QueryHistory(run.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

func handlePredict(w http.ResponseWriter, r *http.Request) {
	run, ok := lookupRun(w, r)
	if !ok {
		return
	}

	xStr := r.URL.Query().Get("x")
	if xStr == "" {
		http.Error(w, "x is required", http.StatusBadRequest)
		return
	}
	x, err := strconv.ParseFloat(xStr, 64)
	if err != nil {
		http.Error(w, "x must be numeric", http.StatusBadRequest)
		return
	}

	params := sgd.Parameters{Bias: run.FinalBias, Weight: run.FinalWeight}
	response := map[string]float64{
		"x":      x,
		"y":      params.Predict(x),
		"bias":   params.Bias,
		"weight": params.Weight,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func lookupRun(w http.ResponseWriter, r *http.Request) (*db.Run, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return nil, false
	}

	run, err := db.GetRun(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}
