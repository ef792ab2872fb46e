package price

import (
	"math/big"
	"strings"
	"testing"

	"boostd/internal/model"
)

func scaled(usd int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(usd), Scale)
}

func TestSeriesAtPicksNearestAtOrAfter(t *testing.T) {
	series := NewSeries([]model.PricePoint{
		{Timestamp: 300, Value: scaled(3)},
		{Timestamp: 100, Value: scaled(1)},
		{Timestamp: 200, Value: scaled(2)},
	}, nil)

	got, err := series.At(150)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(scaled(2)) != 0 {
		t.Fatalf("got %s, want %s", got, scaled(2))
	}

	got, err = series.At(200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(scaled(2)) != 0 {
		t.Fatalf("exact hit: got %s, want %s", got, scaled(2))
	}
}

func TestSeriesAtFallsBackToLastKnown(t *testing.T) {
	series := NewSeries([]model.PricePoint{
		{Timestamp: 100, Value: scaled(1)},
		{Timestamp: 200, Value: scaled(2)},
	}, nil)

	got, err := series.At(5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(scaled(2)) != 0 {
		t.Fatalf("got %s, want last known %s", got, scaled(2))
	}
}

func TestSeriesAtEmpty(t *testing.T) {
	series := NewSeries(nil, nil)
	if _, err := series.At(100); err == nil {
		t.Fatalf("expected error for empty series")
	}
}

func TestParseDecimal(t *testing.T) {
	got, err := ParseDecimal("2000.00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(scaled(2000)) != 0 {
		t.Fatalf("got %s, want %s", got, scaled(2000))
	}

	got, err = ParseDecimal("0.0000000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("smallest representable: got %s, want 1", got)
	}

	if _, err := ParseDecimal("not-a-number"); err == nil {
		t.Fatalf("expected error for invalid input")
	}
	if _, err := ParseDecimal("-1.5"); err == nil {
		t.Fatalf("expected error for negative price")
	}
}

func TestReadCSV(t *testing.T) {
	input := strings.Join([]string{
		"timestamp,price",
		"1700000000,1850.25",
		"2023-11-15T00:00:00Z,1900.5",
	}, "\n")

	points, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].Timestamp != 1700000000 {
		t.Fatalf("got ts %d, want 1700000000", points[0].Timestamp)
	}

	want, _ := ParseDecimal("1850.25")
	if points[0].Value.Cmp(want) != 0 {
		t.Fatalf("got value %s, want %s", points[0].Value, want)
	}
}
