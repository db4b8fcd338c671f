package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"linfit/sgd"
)

// ReadCSV loads observations from a two-column x,y file. A first row that
// does not parse as numbers is treated as a header and skipped.
func ReadCSV(path string) ([]sgd.Observation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s contains no rows", path)
	}

	data := make([]sgd.Observation, 0, len(rows))
	for i, row := range rows {
		x, errX := strconv.ParseFloat(row[0], 64)
		y, errY := strconv.ParseFloat(row[1], 64)
		if errX != nil || errY != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("%s row %d: not numeric: %q,%q", path, i+1, row[0], row[1])
		}
		data = append(data, sgd.Observation{X: x, Y: y})
	}
	return data, nil
}

// WriteCSV writes observations as x,y rows with a header.
func WriteCSV(path string, data []sgd.Observation) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"x", "y"}); err != nil {
		return err
	}
	for _, obs := range data {
		row := []string{
			strconv.FormatFloat(obs.X, 'g', -1, 64),
			strconv.FormatFloat(obs.Y, 'g', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
