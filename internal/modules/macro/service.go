package macro

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/clients/fred"
	"github.com/aristath/hedge/internal/clients/metalsdev"
	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/events"
)

// FREDSource is the slice of the FRED client the ingestion uses.
// *fred.Client satisfies it.
type FREDSource interface {
	GetLatestObservation(ctx context.Context, seriesID string) (*fred.Observation, error)
	YoYChange(ctx context.Context, seriesID string) (*float64, error)
}

// MetalsSource is the slice of the metals.dev client the ingestion uses.
// *metalsdev.Client satisfies it.
type MetalsSource interface {
	GetSpot(ctx context.Context, metal string) (*metalsdev.SpotPrice, error)
}

// Service refreshes the macro indicators from FRED and metals.dev.
type Service struct {
	repo   *Repository
	fred   FREDSource
	metals MetalsSource
	bus    *events.Bus
	log    zerolog.Logger
}

// NewService creates the macro ingestion service.
func NewService(repo *Repository, fredClient FREDSource, metals MetalsSource, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		fred:   fredClient,
		metals: metals,
		bus:    bus,
		log:    log.With().Str("module", "macro").Logger(),
	}
}

// Refresh pulls the latest indicator values and merges them into today's
// row. Each source failure leaves its field null and is logged; the refresh
// errors only when nothing at all could be fetched. Oil and currency columns
// have no ingestion source yet and stay null.
func (s *Service) Refresh(ctx context.Context) (*domain.MacroSnapshot, error) {
	snap := &domain.MacroSnapshot{DataDate: time.Now().UTC().Truncate(24 * time.Hour)}
	updated := 0

	snap.DXYIndex = s.latestSeries(ctx, fred.SeriesDollarIndex)
	snap.M2MoneySupply = s.latestSeries(ctx, fred.SeriesM2)
	snap.FedFundsRate = s.latestSeries(ctx, fred.SeriesFedFunds)
	snap.TenYearYield = s.latestSeries(ctx, fred.SeriesTenYear)
	snap.CPIYoY = s.yoySeries(ctx, fred.SeriesCPI)
	snap.PCEYoY = s.yoySeries(ctx, fred.SeriesPCE)

	if snap.FedFundsRate != nil && snap.CPIYoY != nil {
		rr := snap.FedFundsRate.Sub(*snap.CPIYoY)
		snap.RealRates = &rr
	}

	snap.GoldPrice = s.spot(ctx, metalsdev.MetalGold)
	snap.SilverPrice = s.spot(ctx, metalsdev.MetalSilver)

	for _, v := range []*decimal.Decimal{
		snap.DXYIndex, snap.M2MoneySupply, snap.FedFundsRate, snap.TenYearYield,
		snap.CPIYoY, snap.PCEYoY, snap.RealRates, snap.GoldPrice, snap.SilverPrice,
	} {
		if v != nil {
			updated++
		}
	}
	if updated == 0 {
		return nil, fmt.Errorf("no macro indicators could be refreshed")
	}

	if err := s.repo.Upsert(snap); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("data_date", snap.DataDate.Format(dateFormat)).
		Int("fields_updated", updated).
		Msg("Macro data refreshed")

	s.bus.Publish(events.MacroUpdated, "macro", &events.MacroUpdatedData{
		DataDate:      snap.DataDate.Format(dateFormat),
		FieldsUpdated: updated,
	})

	return snap, nil
}

// latestSeries fetches the newest observation of a FRED series, or nil when
// the fetch fails or the period has no value.
func (s *Service) latestSeries(ctx context.Context, seriesID string) *decimal.Decimal {
	obs, err := s.fred.GetLatestObservation(ctx, seriesID)
	if err != nil {
		s.log.Error().Err(err).Str("series", seriesID).Msg("FRED series fetch failed")
		return nil
	}
	if obs == nil || obs.Value == nil {
		return nil
	}
	d := decimal.NewFromFloat(*obs.Value)
	return &d
}

// yoySeries fetches the year-over-year percentage change of a FRED series.
func (s *Service) yoySeries(ctx context.Context, seriesID string) *decimal.Decimal {
	change, err := s.fred.YoYChange(ctx, seriesID)
	if err != nil {
		s.log.Error().Err(err).Str("series", seriesID).Msg("FRED YoY fetch failed")
		return nil
	}
	if change == nil {
		return nil
	}
	d := decimal.NewFromFloat(*change).Round(2)
	return &d
}

func (s *Service) spot(ctx context.Context, metal string) *decimal.Decimal {
	price, err := s.metals.GetSpot(ctx, metal)
	if err != nil {
		s.log.Error().Err(err).Str("metal", metal).Msg("Spot price fetch failed")
		return nil
	}
	if price == nil {
		return nil
	}
	d := decimal.NewFromFloat(price.Price)
	return &d
}
