// Package ingestion keeps the universe current between score runs: the
// fundamentals service fills fiscal-period rows from SEC EDGAR company facts,
// the market service refreshes market caps and quote snapshots.
package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/clients/secedgar"
	"github.com/aristath/hedge/internal/domain"
)

var (
	errNoCIK   = errors.New("no CIK known for ticker")
	errNoFacts = errors.New("no annual us-gaap facts reported")
)

// FundamentalStore is the slice of the companies repository the fundamentals
// refresh writes through.
type FundamentalStore interface {
	ListActive() ([]domain.Company, error)
	UpsertCompany(c *domain.Company) error
	UpsertFundamental(f *domain.Fundamental) error
}

// FactsSource is the slice of the EDGAR client the refresh uses.
// *secedgar.Client satisfies it.
type FactsSource interface {
	GetCompanyFacts(ctx context.Context, cik string) (*secedgar.CompanyFacts, error)
	FindCIKByTicker(ctx context.Context, ticker string) (string, error)
}

// FundamentalsService fills fundamentals from EDGAR XBRL facts.
type FundamentalsService struct {
	store FundamentalStore
	edgar FactsSource
	log   zerolog.Logger
}

// NewFundamentalsService creates the fundamentals refresh service.
func NewFundamentalsService(store FundamentalStore, edgar FactsSource, log zerolog.Logger) *FundamentalsService {
	return &FundamentalsService{
		store: store,
		edgar: edgar,
		log:   log.With().Str("module", "ingestion").Logger(),
	}
}

// FundamentalsStats summarizes one refresh pass.
type FundamentalsStats struct {
	Companies int `json:"companies"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// RefreshAll walks the active universe and writes the recent annual periods
// of every company EDGAR knows. Companies without a resolvable CIK or with
// no usable facts are skipped; fetch failures are counted and isolated. The
// pass errors only when at least one company failed and none succeeded.
func (s *FundamentalsService) RefreshAll(ctx context.Context) (*FundamentalsStats, error) {
	companies, err := s.store.ListActive()
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}

	stats := &FundamentalsStats{Companies: len(companies)}
	for i := range companies {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		c := &companies[i]
		switch err := s.refreshCompany(ctx, c); {
		case err == nil:
			stats.Updated++
		case errors.Is(err, errNoCIK), errors.Is(err, errNoFacts):
			stats.Skipped++
			s.log.Debug().Str("ticker", c.Ticker).Str("reason", err.Error()).Msg("Fundamentals refresh skipped")
		default:
			stats.Failed++
			s.log.Error().Err(err).Str("ticker", c.Ticker).Msg("Fundamentals refresh failed")
		}
	}

	if stats.Updated == 0 && stats.Failed > 0 {
		return stats, fmt.Errorf("no fundamentals could be refreshed")
	}

	s.log.Info().
		Int("companies", stats.Companies).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Msg("Fundamentals refresh complete")

	return stats, nil
}

func (s *FundamentalsService) refreshCompany(ctx context.Context, c *domain.Company) error {
	cik := c.CIK
	if cik == "" {
		found, err := s.edgar.FindCIKByTicker(ctx, c.Ticker)
		if err != nil {
			return fmt.Errorf("CIK lookup failed: %w", err)
		}
		if found == "" {
			return errNoCIK
		}
		cik = found
		c.CIK = cik
		if err := s.store.UpsertCompany(c); err != nil {
			return fmt.Errorf("failed to store resolved CIK: %w", err)
		}
	}

	facts, err := s.edgar.GetCompanyFacts(ctx, cik)
	if err != nil {
		return fmt.Errorf("company facts fetch failed: %w", err)
	}

	periods := annualPeriods(facts)
	if len(periods) == 0 {
		return errNoFacts
	}

	// The stability input rides on the newest row, where the scorer reads it.
	if std := marginStability(periods); std != nil {
		periods[0].GrossMargin5yrStd = std
	}

	for i := range periods {
		periods[i].CompanyID = c.ID
		if err := s.store.UpsertFundamental(&periods[i]); err != nil {
			return fmt.Errorf("failed to store fundamental: %w", err)
		}
	}

	return nil
}
