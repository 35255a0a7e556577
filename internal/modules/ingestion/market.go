package ingestion

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/clients/marketdata"
	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/events"
)

// topCompanies bounds each market refresh pass to the largest names.
const topCompanies = 100

// MarketCapStore is the slice of the companies repository the market refresh
// writes through.
type MarketCapStore interface {
	TopByMarketCap(limit int) ([]domain.Company, error)
	UpdateMarketCap(companyID string, marketCap int64) error
}

// QuoteSource is the slice of the market data client the refresh uses.
// *marketdata.Client satisfies it.
type QuoteSource interface {
	GetTickerDetails(ctx context.Context, ticker string) (*marketdata.TickerDetails, error)
	GetPreviousClose(ctx context.Context, ticker string) (*marketdata.Quote, error)
}

// MarketService keeps market caps and quote snapshots current.
type MarketService struct {
	store  MarketCapStore
	quotes QuoteSource
	bus    *events.Bus
	log    zerolog.Logger
}

// NewMarketService creates the market data refresh service.
func NewMarketService(store MarketCapStore, quotes QuoteSource, bus *events.Bus, log zerolog.Logger) *MarketService {
	return &MarketService{
		store:  store,
		quotes: quotes,
		bus:    bus,
		log:    log.With().Str("module", "ingestion").Logger(),
	}
}

// MarketStats summarizes one refresh pass.
type MarketStats struct {
	Companies int `json:"companies"`
	Updated   int `json:"updated"`
	Quoted    int `json:"quoted"`
	Failed    int `json:"failed"`
}

// RefreshTop updates market caps for the largest active companies and pulls
// their previous-close quotes (the client stores each snapshot in the vendor
// cache). Per-ticker failures are counted and isolated; the pass errors only
// when every company failed.
func (s *MarketService) RefreshTop(ctx context.Context) (*MarketStats, error) {
	companies, err := s.store.TopByMarketCap(topCompanies)
	if err != nil {
		return nil, fmt.Errorf("failed to list top companies: %w", err)
	}

	stats := &MarketStats{Companies: len(companies)}
	if len(companies) == 0 {
		s.log.Info().Msg("No companies with market caps yet, market refresh has nothing to walk")
		return stats, nil
	}

	for i := range companies {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		c := &companies[i]
		details, err := s.quotes.GetTickerDetails(ctx, c.Ticker)
		switch {
		case err != nil:
			stats.Failed++
			s.log.Error().Err(err).Str("ticker", c.Ticker).Msg("Ticker details fetch failed")
		case details != nil && details.MarketCap > 0:
			if err := s.store.UpdateMarketCap(c.ID, int64(details.MarketCap)); err != nil {
				stats.Failed++
				s.log.Error().Err(err).Str("ticker", c.Ticker).Msg("Market cap update failed")
			} else {
				stats.Updated++
			}
		}

		quote, err := s.quotes.GetPreviousClose(ctx, c.Ticker)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", c.Ticker).Msg("Quote snapshot fetch failed")
		} else if quote != nil {
			stats.Quoted++
		}
	}

	if stats.Updated == 0 && stats.Failed > 0 {
		return stats, fmt.Errorf("no market data could be refreshed")
	}

	s.log.Info().
		Int("companies", stats.Companies).
		Int("updated", stats.Updated).
		Int("quoted", stats.Quoted).
		Int("failed", stats.Failed).
		Msg("Market data refreshed")

	if stats.Updated > 0 {
		s.bus.Publish(events.MarketUpdated, "ingestion", &events.MarketUpdatedData{
			CompaniesUpdated: stats.Updated,
		})
	}

	return stats, nil
}
