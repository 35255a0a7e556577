// Package domain holds the core entities shared across modules.
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Company is a publicly-traded company in the scoring universe.
type Company struct {
	ID          string    `json:"id"`
	Ticker      string    `json:"ticker"` // uppercase, unique
	Name        string    `json:"name"`
	Sector      string    `json:"sector,omitempty"`
	Industry    string    `json:"industry,omitempty"`
	MarketCap   *int64    `json:"market_cap,omitempty"`
	Country     string    `json:"country"`
	Exchange    string    `json:"exchange,omitempty"`
	Description string    `json:"description,omitempty"`
	Website     string    `json:"website,omitempty"`
	LogoURL     string    `json:"logo_url,omitempty"`
	CIK         string    `json:"cik,omitempty"` // zero-padded 10 digits for EDGAR
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Fundamental is a per-company financial snapshot for one fiscal period.
// A nil FiscalQuarter marks an annual (10-K) row. All analytical inputs are
// nullable; the scoring engine treats missing values per its own defaults.
type Fundamental struct {
	ID            string `json:"id"`
	CompanyID     string `json:"company_id"`
	FiscalYear    int    `json:"fiscal_year"`
	FiscalQuarter *int   `json:"fiscal_quarter,omitempty"`
	ReportType    string `json:"report_type,omitempty"` // 10-K, 10-Q

	// Balance sheet
	TotalAssets      *int64 `json:"total_assets,omitempty"`
	TangibleAssets   *int64 `json:"tangible_assets,omitempty"`
	IntangibleAssets *int64 `json:"intangible_assets,omitempty"`

	// Revenue breakdown
	TotalRevenue             *int64           `json:"total_revenue,omitempty"`
	ForeignRevenue           *int64           `json:"foreign_revenue,omitempty"`
	ForeignRevenuePct        *decimal.Decimal `json:"foreign_revenue_pct,omitempty"`
	CommodityRevenue         *int64           `json:"commodity_revenue,omitempty"`
	CommodityRevenuePct      *decimal.Decimal `json:"commodity_revenue_pct,omitempty"`
	PreciousMetalsRevenue    *int64           `json:"precious_metals_revenue,omitempty"`
	PreciousMetalsRevenuePct *decimal.Decimal `json:"precious_metals_revenue_pct,omitempty"`

	// Debt structure
	TotalDebt            *int64           `json:"total_debt,omitempty"`
	FixedRateDebtPct     *decimal.Decimal `json:"fixed_rate_debt_pct,omitempty"`
	AvgDebtMaturityYears *decimal.Decimal `json:"avg_debt_maturity_years,omitempty"`

	// Profitability
	GrossMargin       *decimal.Decimal `json:"gross_margin,omitempty"`
	GrossMargin5yrStd *decimal.Decimal `json:"gross_margin_5yr_std,omitempty"`

	// Mining specific
	ProvenReservesOz *int64 `json:"proven_reserves_oz,omitempty"`

	// Provenance
	RevenueByRegion json.RawMessage `json:"revenue_by_region,omitempty"`
	FilingDate      *time.Time      `json:"filing_date,omitempty"`
	FilingURL       string          `json:"filing_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
