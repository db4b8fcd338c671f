package db

import (
	"database/sql"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"linfit/sgd"
)

var database *sql.DB

// historyCache keeps recently read run histories so dashboard polling does
// not re-scan the epochs table. Runs are immutable once saved, so entries
// never go stale.
var historyCache *lru.Cache[int64, sgd.History]

// Run is one persisted training run.
type Run struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	DataPoints    int       `json:"data_points"`
	InitialBias   float64   `json:"initial_bias"`
	InitialWeight float64   `json:"initial_weight"`
	LearningRate  float64   `json:"learning_rate"`
	Epochs        int       `json:"epochs"`
	FinalBias     float64   `json:"final_bias"`
	FinalWeight   float64   `json:"final_weight"`
	FinalLoss     float64   `json:"final_loss"`
	CreatedAt     time.Time `json:"created_at"`
}

// InitDB opens the SQLite database and creates the schema.
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	historyCache, err = lru.New[int64, sgd.History](64)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT,
        data_points INTEGER NOT NULL,
        initial_bias REAL NOT NULL,
        initial_weight REAL NOT NULL,
        learning_rate REAL NOT NULL,
        epochs INTEGER NOT NULL,
        final_bias REAL NOT NULL,
        final_weight REAL NOT NULL,
        final_loss REAL NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE TABLE IF NOT EXISTS epochs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id INTEGER NOT NULL,
        epoch INTEGER NOT NULL,
        start_bias REAL NOT NULL,
        start_weight REAL NOT NULL,
        end_bias REAL NOT NULL,
        end_weight REAL NOT NULL,
        loss REAL NOT NULL,
        UNIQUE(run_id, epoch)
    );
    `

	_, err = database.Exec(query)
	return err
}

// Close closes the database.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// SaveRun persists a run and its full history in one transaction and returns
// the run ID. The stored final parameters and loss come from the history, not
// from the caller-filled fields.
func SaveRun(run Run, history sgd.History) (int64, error) {
	if database == nil {
		return 0, errors.New("database not initialized")
	}
	if len(history) == 0 {
		return 0, errors.New("empty training history")
	}

	tx, err := database.Begin()
	if err != nil {
		return 0, err
	}

	final := history[len(history)-1]
	result, err := tx.Exec(`
        INSERT INTO runs (
            name, data_points, initial_bias, initial_weight,
            learning_rate, epochs, final_bias, final_weight, final_loss, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Name, run.DataPoints, run.InitialBias, run.InitialWeight,
		run.LearningRate, len(history), final.End.Bias, final.End.Weight, final.Loss,
		time.Now().UTC())
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	runID, err := result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	stmt, err := tx.Prepare(`
        INSERT INTO epochs (run_id, epoch, start_bias, start_weight, end_bias, end_weight, loss)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	for _, rec := range history {
		if _, err := stmt.Exec(runID, rec.Epoch,
			rec.Start.Bias, rec.Start.Weight, rec.End.Bias, rec.End.Weight, rec.Loss); err != nil {
			tx.Rollback()
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	historyCache.Add(runID, history)
	return runID, nil
}

// QueryRuns returns the most recent runs, newest first.
func QueryRuns(limit int) ([]Run, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT id, name, data_points, initial_bias, initial_weight,
               learning_rate, epochs, final_bias, final_weight, final_loss, created_at
        FROM runs
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Name, &run.DataPoints,
			&run.InitialBias, &run.InitialWeight, &run.LearningRate, &run.Epochs,
			&run.FinalBias, &run.FinalWeight, &run.FinalLoss, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun looks up a single run by ID.
func GetRun(id int64) (*Run, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	var run Run
	err := database.QueryRow(`
        SELECT id, name, data_points, initial_bias, initial_weight,
               learning_rate, epochs, final_bias, final_weight, final_loss, created_at
        FROM runs
        WHERE id = ?`, id).Scan(&run.ID, &run.Name, &run.DataPoints,
		&run.InitialBias, &run.InitialWeight, &run.LearningRate, &run.Epochs,
		&run.FinalBias, &run.FinalWeight, &run.FinalLoss, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// QueryHistory returns the per-epoch records of a run in epoch order.
func QueryHistory(runID int64) (sgd.History, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if history, ok := historyCache.Get(runID); ok {
		return history, nil
	}

	rows, err := database.Query(`
        SELECT epoch, start_bias, start_weight, end_bias, end_weight, loss
        FROM epochs
        WHERE run_id = ?
        ORDER BY epoch ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make(sgd.History, 0)
	for rows.Next() {
		var rec sgd.EpochRecord
		if err := rows.Scan(&rec.Epoch,
			&rec.Start.Bias, &rec.Start.Weight, &rec.End.Bias, &rec.End.Weight, &rec.Loss); err != nil {
			return nil, err
		}
		history = append(history, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(history) > 0 {
		historyCache.Add(runID, history)
	}
	return history, nil
}
