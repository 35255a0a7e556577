// Package companies manages the scoring universe: company records and their
// fundamental snapshots in universe.db.
package companies

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
)

const dateFormat = "2006-01-02"

// companyColumns is the companies column list in scan order.
const companyColumns = `id, ticker, name, sector, industry, market_cap, country,
exchange, description, website, logo_url, cik, is_active, created_at, updated_at`

// fundamentalColumns is the fundamentals column list in scan order.
const fundamentalColumns = `id, company_id, fiscal_year, fiscal_quarter, report_type,
total_assets, tangible_assets, intangible_assets, total_revenue, foreign_revenue,
foreign_revenue_pct, commodity_revenue, commodity_revenue_pct,
precious_metals_revenue, precious_metals_revenue_pct, total_debt,
fixed_rate_debt_pct, avg_debt_maturity_years, gross_margin, gross_margin_5yr_std,
proven_reserves_oz, revenue_by_region, filing_date, filing_url, created_at, updated_at`

// Repository handles company and fundamentals persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a companies repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "companies").Logger(),
	}
}

// UpsertCompany inserts a company or updates the existing row with the same
// ticker. Tickers are normalized to uppercase.
func (r *Repository) UpsertCompany(c *domain.Company) error {
	c.Ticker = strings.ToUpper(strings.TrimSpace(c.Ticker))
	if c.Ticker == "" {
		return fmt.Errorf("ticker is required for company upsert")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Country == "" {
		c.Country = "USA"
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO companies
		(id, ticker, name, sector, industry, market_cap, country, exchange,
		 description, website, logo_url, cik, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			industry = excluded.industry,
			market_cap = excluded.market_cap,
			country = excluded.country,
			exchange = excluded.exchange,
			description = excluded.description,
			website = excluded.website,
			logo_url = excluded.logo_url,
			cik = excluded.cik,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		c.ID,
		c.Ticker,
		c.Name,
		nullString(c.Sector),
		nullString(c.Industry),
		intArg(c.MarketCap),
		c.Country,
		nullString(c.Exchange),
		nullString(c.Description),
		nullString(c.Website),
		nullString(c.LogoURL),
		nullString(c.CIK),
		boolToInt(c.IsActive),
		c.CreatedAt.Format(time.RFC3339),
		c.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert company: %w", err)
	}

	return nil
}

// GetByTicker returns a company by ticker, or nil when unknown.
func (r *Repository) GetByTicker(ticker string) (*domain.Company, error) {
	query := "SELECT " + companyColumns + " FROM companies WHERE ticker = ?"

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(ticker)))
	if err != nil {
		return nil, fmt.Errorf("failed to query company by ticker: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	company, err := scanCompany(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}

	return &company, nil
}

// GetByID returns a company by id, or nil when unknown.
func (r *Repository) GetByID(id string) (*domain.Company, error) {
	query := "SELECT " + companyColumns + " FROM companies WHERE id = ?"

	rows, err := r.db.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query company by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	company, err := scanCompany(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}

	return &company, nil
}

// ListActive returns every active company ordered by ticker. The batch
// scorer enumerates this set.
func (r *Repository) ListActive() ([]domain.Company, error) {
	query := "SELECT " + companyColumns + " FROM companies WHERE is_active = 1 ORDER BY ticker"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active companies: %w", err)
	}
	defer rows.Close()

	return collectCompanies(rows)
}

// ListBySector returns active companies in one sector.
func (r *Repository) ListBySector(sector string) ([]domain.Company, error) {
	query := "SELECT " + companyColumns + " FROM companies WHERE is_active = 1 AND sector = ? ORDER BY ticker"

	rows, err := r.db.Query(query, sector)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies by sector: %w", err)
	}
	defer rows.Close()

	return collectCompanies(rows)
}

// Search finds active companies by ticker or name fragment. An exact ticker
// match sorts first, then ticker prefixes, then name matches.
func (r *Repository) Search(q string, limit int) ([]domain.Company, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	upper := strings.ToUpper(q)

	query := "SELECT " + companyColumns + ` FROM companies
		WHERE is_active = 1 AND (ticker LIKE ? OR name LIKE ?)
		ORDER BY
			CASE WHEN ticker = ? THEN 0 WHEN ticker LIKE ? THEN 1 ELSE 2 END,
			ticker
		LIMIT ?`

	rows, err := r.db.Query(query,
		upper+"%",
		"%"+q+"%",
		upper,
		upper+"%",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search companies: %w", err)
	}
	defer rows.Close()

	return collectCompanies(rows)
}

// TopByMarketCap returns the largest active companies. The market data
// refresh job walks this set.
func (r *Repository) TopByMarketCap(limit int) ([]domain.Company, error) {
	query := "SELECT " + companyColumns + ` FROM companies
		WHERE is_active = 1 AND market_cap IS NOT NULL
		ORDER BY market_cap DESC
		LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top companies: %w", err)
	}
	defer rows.Close()

	return collectCompanies(rows)
}

// UpdateMarketCap sets a company's market cap.
func (r *Repository) UpdateMarketCap(companyID string, marketCap int64) error {
	query := "UPDATE companies SET market_cap = ?, updated_at = ? WHERE id = ?"

	_, err := r.db.Exec(query, marketCap, time.Now().UTC().Format(time.RFC3339), companyID)
	if err != nil {
		return fmt.Errorf("failed to update market cap: %w", err)
	}

	return nil
}

// CountActive returns the number of active companies.
func (r *Repository) CountActive() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM companies WHERE is_active = 1").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count companies: %w", err)
	}
	return count, nil
}

// UpsertFundamental inserts or updates one fiscal period snapshot. The
// period key is (company_id, fiscal_year, fiscal_quarter); NULL quarters
// mark annual reports, so the lookup uses IS rather than = to match them.
func (r *Repository) UpsertFundamental(f *domain.Fundamental) error {
	if f.CompanyID == "" {
		return fmt.Errorf("company id is required for fundamental upsert")
	}

	var existingID string
	err := r.db.QueryRow(
		"SELECT id FROM fundamentals WHERE company_id = ? AND fiscal_year = ? AND fiscal_quarter IS ?",
		f.CompanyID, f.FiscalYear, intPtrArg(f.FiscalQuarter),
	).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to look up fundamental period: %w", err)
	}

	now := time.Now().UTC()
	if existingID != "" {
		f.ID = existingID
		f.UpdatedAt = now
		return r.updateFundamental(f)
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = now
	f.UpdatedAt = now

	query := `
		INSERT INTO fundamentals
		(id, company_id, fiscal_year, fiscal_quarter, report_type,
		 total_assets, tangible_assets, intangible_assets, total_revenue, foreign_revenue,
		 foreign_revenue_pct, commodity_revenue, commodity_revenue_pct,
		 precious_metals_revenue, precious_metals_revenue_pct, total_debt,
		 fixed_rate_debt_pct, avg_debt_maturity_years, gross_margin, gross_margin_5yr_std,
		 proven_reserves_oz, revenue_by_region, filing_date, filing_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		f.ID,
		f.CompanyID,
		f.FiscalYear,
		intPtrArg(f.FiscalQuarter),
		nullString(f.ReportType),
		intArg(f.TotalAssets),
		intArg(f.TangibleAssets),
		intArg(f.IntangibleAssets),
		intArg(f.TotalRevenue),
		intArg(f.ForeignRevenue),
		decArg(f.ForeignRevenuePct),
		intArg(f.CommodityRevenue),
		decArg(f.CommodityRevenuePct),
		intArg(f.PreciousMetalsRevenue),
		decArg(f.PreciousMetalsRevenuePct),
		intArg(f.TotalDebt),
		decArg(f.FixedRateDebtPct),
		decArg(f.AvgDebtMaturityYears),
		decArg(f.GrossMargin),
		decArg(f.GrossMargin5yrStd),
		intArg(f.ProvenReservesOz),
		jsonArg(f.RevenueByRegion),
		dateArg(f.FilingDate),
		nullString(f.FilingURL),
		f.CreatedAt.Format(time.RFC3339),
		f.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert fundamental: %w", err)
	}

	return nil
}

func (r *Repository) updateFundamental(f *domain.Fundamental) error {
	query := `
		UPDATE fundamentals SET
			report_type = ?,
			total_assets = ?,
			tangible_assets = ?,
			intangible_assets = ?,
			total_revenue = ?,
			foreign_revenue = ?,
			foreign_revenue_pct = ?,
			commodity_revenue = ?,
			commodity_revenue_pct = ?,
			precious_metals_revenue = ?,
			precious_metals_revenue_pct = ?,
			total_debt = ?,
			fixed_rate_debt_pct = ?,
			avg_debt_maturity_years = ?,
			gross_margin = ?,
			gross_margin_5yr_std = ?,
			proven_reserves_oz = ?,
			revenue_by_region = ?,
			filing_date = ?,
			filing_url = ?,
			updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.Exec(query,
		nullString(f.ReportType),
		intArg(f.TotalAssets),
		intArg(f.TangibleAssets),
		intArg(f.IntangibleAssets),
		intArg(f.TotalRevenue),
		intArg(f.ForeignRevenue),
		decArg(f.ForeignRevenuePct),
		intArg(f.CommodityRevenue),
		decArg(f.CommodityRevenuePct),
		intArg(f.PreciousMetalsRevenue),
		decArg(f.PreciousMetalsRevenuePct),
		intArg(f.TotalDebt),
		decArg(f.FixedRateDebtPct),
		decArg(f.AvgDebtMaturityYears),
		decArg(f.GrossMargin),
		decArg(f.GrossMargin5yrStd),
		intArg(f.ProvenReservesOz),
		jsonArg(f.RevenueByRegion),
		dateArg(f.FilingDate),
		nullString(f.FilingURL),
		f.UpdatedAt.Format(time.RFC3339),
		f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update fundamental: %w", err)
	}

	return nil
}

// LatestFundamental returns the most recent snapshot for a company, or nil
// when none exists. Quarterly rows beat the annual row of the same year;
// annual rows (NULL quarter) sort last within a year.
func (r *Repository) LatestFundamental(companyID string) (*domain.Fundamental, error) {
	query := "SELECT " + fundamentalColumns + ` FROM fundamentals
		WHERE company_id = ?
		ORDER BY fiscal_year DESC, fiscal_quarter DESC NULLS LAST
		LIMIT 1`

	rows, err := r.db.Query(query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest fundamental: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	fundamental, err := scanFundamental(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan fundamental: %w", err)
	}

	return &fundamental, nil
}

// LatestFundamentals returns the most recent snapshot per company, keyed by
// company id. The screener joins against this map.
func (r *Repository) LatestFundamentals() (map[string]*domain.Fundamental, error) {
	query := "SELECT " + fundamentalColumns + ` FROM fundamentals f
		WHERE f.id = (
			SELECT id FROM fundamentals
			WHERE company_id = f.company_id
			ORDER BY fiscal_year DESC, fiscal_quarter DESC NULLS LAST
			LIMIT 1
		)`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest fundamentals: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]*domain.Fundamental)
	for rows.Next() {
		fundamental, err := scanFundamental(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fundamental: %w", err)
		}
		f := fundamental
		latest[f.CompanyID] = &f
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fundamentals: %w", err)
	}

	return latest, nil
}

// FundamentalsHistory returns snapshots from the newest `years` distinct
// fiscal years, newest first.
func (r *Repository) FundamentalsHistory(companyID string, years int) ([]domain.Fundamental, error) {
	query := "SELECT " + fundamentalColumns + ` FROM fundamentals
		WHERE company_id = ? AND fiscal_year > (
			SELECT COALESCE(MAX(fiscal_year), 0) - ? FROM fundamentals WHERE company_id = ?
		)
		ORDER BY fiscal_year DESC, fiscal_quarter DESC NULLS LAST`

	rows, err := r.db.Query(query, companyID, years, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fundamentals history: %w", err)
	}
	defer rows.Close()

	var fundamentals []domain.Fundamental
	for rows.Next() {
		fundamental, err := scanFundamental(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fundamental: %w", err)
		}
		fundamentals = append(fundamentals, fundamental)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fundamentals: %w", err)
	}

	return fundamentals, nil
}

func collectCompanies(rows *sql.Rows) ([]domain.Company, error) {
	var companies []domain.Company
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, company)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating companies: %w", err)
	}

	return companies, nil
}

func scanCompany(rows *sql.Rows) (domain.Company, error) {
	var c domain.Company
	var sector, industry, exchange, description, website, logoURL, cik sql.NullString
	var marketCap sql.NullInt64
	var isActive int
	var createdAt, updatedAt string

	err := rows.Scan(
		&c.ID,
		&c.Ticker,
		&c.Name,
		&sector,
		&industry,
		&marketCap,
		&c.Country,
		&exchange,
		&description,
		&website,
		&logoURL,
		&cik,
		&isActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return c, err
	}

	c.Sector = sector.String
	c.Industry = industry.String
	c.Exchange = exchange.String
	c.Description = description.String
	c.Website = website.String
	c.LogoURL = logoURL.String
	c.CIK = cik.String
	c.IsActive = isActive != 0
	if marketCap.Valid {
		v := marketCap.Int64
		c.MarketCap = &v
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		c.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		c.UpdatedAt = ts
	}

	return c, nil
}

func scanFundamental(rows *sql.Rows) (domain.Fundamental, error) {
	var f domain.Fundamental
	var fiscalQuarter sql.NullInt64
	var reportType, filingURL, revenueByRegion, filingDate sql.NullString
	var totalAssets, tangibleAssets, intangibleAssets sql.NullInt64
	var totalRevenue, foreignRevenue, commodityRevenue, pmRevenue sql.NullInt64
	var totalDebt, provenReserves sql.NullInt64
	var foreignPct, commodityPct, pmPct sql.NullFloat64
	var fixedRatePct, maturityYears, grossMargin, marginStd sql.NullFloat64
	var createdAt, updatedAt string

	err := rows.Scan(
		&f.ID,
		&f.CompanyID,
		&f.FiscalYear,
		&fiscalQuarter,
		&reportType,
		&totalAssets,
		&tangibleAssets,
		&intangibleAssets,
		&totalRevenue,
		&foreignRevenue,
		&foreignPct,
		&commodityRevenue,
		&commodityPct,
		&pmRevenue,
		&pmPct,
		&totalDebt,
		&fixedRatePct,
		&maturityYears,
		&grossMargin,
		&marginStd,
		&provenReserves,
		&revenueByRegion,
		&filingDate,
		&filingURL,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return f, err
	}

	if fiscalQuarter.Valid {
		q := int(fiscalQuarter.Int64)
		f.FiscalQuarter = &q
	}
	f.ReportType = reportType.String
	f.TotalAssets = intPtr(totalAssets)
	f.TangibleAssets = intPtr(tangibleAssets)
	f.IntangibleAssets = intPtr(intangibleAssets)
	f.TotalRevenue = intPtr(totalRevenue)
	f.ForeignRevenue = intPtr(foreignRevenue)
	f.ForeignRevenuePct = decPtr(foreignPct)
	f.CommodityRevenue = intPtr(commodityRevenue)
	f.CommodityRevenuePct = decPtr(commodityPct)
	f.PreciousMetalsRevenue = intPtr(pmRevenue)
	f.PreciousMetalsRevenuePct = decPtr(pmPct)
	f.TotalDebt = intPtr(totalDebt)
	f.FixedRateDebtPct = decPtr(fixedRatePct)
	f.AvgDebtMaturityYears = decPtr(maturityYears)
	f.GrossMargin = decPtr(grossMargin)
	f.GrossMargin5yrStd = decPtr(marginStd)
	f.ProvenReservesOz = intPtr(provenReserves)
	if revenueByRegion.Valid {
		f.RevenueByRegion = json.RawMessage(revenueByRegion.String)
	}
	if filingDate.Valid {
		if ts, err := time.Parse(dateFormat, filingDate.String); err == nil {
			f.FilingDate = &ts
		}
	}
	f.FilingURL = filingURL.String
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		f.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		f.UpdatedAt = ts
	}

	return f, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func intArg(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtrArg(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func decArg(d *decimal.Decimal) sql.NullFloat64 {
	if d == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: d.InexactFloat64(), Valid: true}
}

func jsonArg(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func dateArg(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateFormat), Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func decPtr(v sql.NullFloat64) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := decimal.NewFromFloat(v.Float64)
	return &d
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
