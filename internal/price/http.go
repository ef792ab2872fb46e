package price

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"boostd/internal/chain"
	"boostd/internal/model"
)

// fetchPageSpan is the widest window the historical price API serves per
// request.
const fetchPageSpan = 7 * 24 * time.Hour

// Fetcher pulls a historical price series from an HTTP time-series API.
type Fetcher struct {
	endpoint string
	symbol   string
	interval string
	client   *http.Client
	policy   chain.RetryPolicy
	logger   *zap.Logger
}

func NewFetcher(endpoint, symbol string, policy chain.RetryPolicy, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		endpoint: endpoint,
		symbol:   symbol,
		interval: "5m",
		client:   &http.Client{Timeout: 30 * time.Second},
		policy:   policy,
		logger:   logger,
	}
}

type fetchRequest struct {
	Symbol    string `json:"symbol"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
	Interval  string `json:"interval"`
}

type fetchResponse struct {
	Data []struct {
		Timestamp string      `json:"timestamp"`
		Value     json.Number `json:"value"`
	} `json:"data"`
}

// FetchRange retrieves prices covering [start, end], paging in 7-day
// spans. Each page is retried with backoff.
func (f *Fetcher) FetchRange(ctx context.Context, start, end time.Time) ([]model.PricePoint, error) {
	var points []model.PricePoint

	from := start
	for from.Before(end) {
		to := from.Add(fetchPageSpan)
		if to.After(end) {
			to = end
		}

		f.logger.Info("fetch price page",
			zap.String("symbol", f.symbol),
			zap.Time("from", from),
			zap.Time("to", to),
		)

		var page fetchResponse
		err := chain.WithBackoff(ctx, f.policy, func(ctx context.Context) error {
			return f.fetchPage(ctx, from, to, &page)
		})
		if err != nil {
			return nil, fmt.Errorf("fetch prices %s..%s: %w", from.Format(time.RFC3339), to.Format(time.RFC3339), err)
		}

		for _, sample := range page.Data {
			ts, err := time.Parse(time.RFC3339, sample.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("parse price timestamp %q: %w", sample.Timestamp, err)
			}
			value, err := ParseDecimal(sample.Value.String())
			if err != nil {
				return nil, err
			}
			points = append(points, model.PricePoint{
				Timestamp: uint64(ts.Unix()),
				Value:     value,
			})
		}

		from = to
	}
	return points, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, from, to time.Time, out *fetchResponse) error {
	body, err := json.Marshal(fetchRequest{
		Symbol:    f.symbol,
		StartTime: from.Unix(),
		EndTime:   to.Unix(),
		Interval:  f.interval,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("price api returned %s", resp.Status)
	}

	*out = fetchResponse{}
	return json.NewDecoder(resp.Body).Decode(out)
}
