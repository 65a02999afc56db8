package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	massive "github.com/massive-com/client-go/v2/rest"
	"github.com/massive-com/client-go/v2/rest/models"

	"github.com/contactkeval/option-analytics/internal/logger"
)

// maxAggsLimit is the largest page the aggregates endpoint serves.
const maxAggsLimit = 50000

// aggsFetcher lists daily aggregates for a ticker, oldest first.
type aggsFetcher func(ctx context.Context, ticker string, fromDate, toDate time.Time) ([]models.Agg, error)

// massiveDataProvider implements Provider on the Massive REST aggregates API.
type massiveDataProvider struct {
	fetch     aggsFetcher
	secondary Provider
}

// NewMassiveDataProvider constructs a Massive-backed data provider.
//
// Parameters:
//   - apiKey: Massive API key for authentication
//   - secondary: optional fallback used when Massive returns no bars
//
// Returns:
//   - Provider: initialized provider instance
func NewMassiveDataProvider(apiKey string, secondary Provider) Provider {
	logger.Infof("initializing Massive data provider")
	return &massiveDataProvider{fetch: listDailyAggs(massive.New(apiKey)), secondary: secondary}
}

func listDailyAggs(client *massive.Client) aggsFetcher {
	return func(ctx context.Context, ticker string, fromDate, toDate time.Time) ([]models.Agg, error) {
		params := models.ListAggsParams{
			Ticker:     ticker,
			Multiplier: 1,
			Timespan:   models.Day,
			From:       models.Millis(fromDate),
			To:         models.Millis(toDate),
		}.WithAdjusted(true).WithOrder(models.Asc).WithLimit(maxAggsLimit)

		iter := client.ListAggs(ctx, params)
		var out []models.Agg
		for iter.Next() {
			out = append(out, iter.Item())
		}
		return out, iter.Err()
	}
}

// Secondary returns the configured secondary Provider, if any.
func (massiveDataProv *massiveDataProvider) Secondary() Provider {
	return massiveDataProv.secondary
}

// GetBars retrieves adjusted daily aggregates for an underlying.
//
// Parameters:
//   - ctx: request context; cancelling it aborts pagination
//   - underlying: ticker symbol (case-insensitive)
//   - fromDate, toDate: inclusive calendar range
//
// Returns:
//   - []Bar: time-ordered bars
//   - error: if the request fails, or ErrNoData when neither Massive nor the
//     secondary has bars
func (massiveDataProv *massiveDataProvider) GetBars(ctx context.Context, underlying string, fromDate, toDate time.Time) ([]Bar, error) {
	ticker := strings.ToUpper(underlying)
	logger.Debugf("fetching bars: %s from=%s to=%s", ticker, fromDate.Format(dateLayout), toDate.Format(dateLayout))

	aggs, err := massiveDataProv.fetch(ctx, ticker, fromDate, toDate)
	if err != nil {
		logger.Errorf("bars request failed for %s: %v", ticker, err)
		return nil, fmt.Errorf("massive aggregates %s: %w", ticker, err)
	}
	logger.Tracef("bars received: %d records", len(aggs))

	out := make([]Bar, 0, len(aggs))
	for _, a := range aggs {
		d := time.Time(a.Timestamp).UTC()
		if !inRange(d, fromDate, toDate) {
			continue
		}
		out = append(out, Bar{
			Date:  truncateDay(d),
			Open:  a.Open,
			High:  a.High,
			Low:   a.Low,
			Close: a.Close,
			Vol:   a.Volume,
		})
	}
	if len(out) == 0 {
		return fromSecondary(ctx, massiveDataProv, "massive", underlying, fromDate, toDate)
	}
	SortBars(out)
	return out, nil
}
