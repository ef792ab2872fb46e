// Package price provides the quote-currency price series and its sources.
package price

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"go.uber.org/zap"

	"boostd/internal/model"
)

// Scale is the fixed-point scale for price values: USD × 10^10.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil)

// Series is an in-memory, time-ordered price series.
type Series struct {
	points []model.PricePoint
	logger *zap.Logger
}

// NewSeries builds a series from points in any order.
func NewSeries(points []model.PricePoint, logger *zap.Logger) *Series {
	if logger == nil {
		logger = zap.NewNop()
	}
	sorted := make([]model.PricePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	return &Series{points: sorted, logger: logger}
}

// At returns the nearest price at or after ts. When the series ends before
// ts, the last known price is used and a warning logged.
func (s *Series) At(ts uint64) (*big.Int, error) {
	if len(s.points) == 0 {
		return nil, fmt.Errorf("price series is empty")
	}

	idx := sort.Search(len(s.points), func(i int) bool {
		return s.points[i].Timestamp >= ts
	})
	if idx == len(s.points) {
		last := s.points[len(s.points)-1]
		s.logger.Warn("no price at or after timestamp, using last known value",
			zap.Uint64("ts", ts),
			zap.Uint64("last_ts", last.Timestamp),
		)
		return last.Value, nil
	}
	return s.points[idx].Value, nil
}

// ParseDecimal converts a decimal price string (e.g. "2000.00") into the
// 10^10 fixed-point representation, truncating excess precision.
func ParseDecimal(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	rat, ok := new(big.Rat).SetString(value)
	if !ok {
		return nil, fmt.Errorf("invalid price %q", value)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("negative price %q", value)
	}

	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(Scale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()), nil
}
