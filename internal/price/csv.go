package price

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"boostd/internal/model"
)

// ReadCSV parses an exported price series with "timestamp,price" columns.
// Timestamps can be unix seconds or RFC3339. A header row is skipped when
// present.
func ReadCSV(r io.Reader) ([]model.PricePoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var points []model.PricePoint
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read price csv: %w", err)
		}
		line++

		if len(record) < 2 {
			return nil, fmt.Errorf("price csv line %d: want at least 2 columns, got %d", line, len(record))
		}

		ts, err := parseTimestamp(record[0])
		if err != nil {
			if line == 1 {
				// Header row.
				continue
			}
			return nil, fmt.Errorf("price csv line %d: %w", line, err)
		}

		value, err := ParseDecimal(record[1])
		if err != nil {
			return nil, fmt.Errorf("price csv line %d: %w", line, err)
		}

		points = append(points, model.PricePoint{Timestamp: ts, Value: value})
	}
	return points, nil
}

func parseTimestamp(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		if unix < 0 {
			return 0, fmt.Errorf("negative timestamp %q", s)
		}
		return uint64(unix), nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return uint64(ts.Unix()), nil
	}
	if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return uint64(ts.UTC().Unix()), nil
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", s)
}
