package macro

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
)

const dateFormat = "2006-01-02"

// macroColumns is the macro_data column list in scan order.
const macroColumns = `id, data_date, dxy_index, gold_price, silver_price, oil_price,
	m2_money_supply, fed_funds_rate, cpi_yoy, pce_yoy, ten_year_yield, real_rates,
	usd_eur, usd_jpy, usd_cny, created_at, updated_at`

// Repository handles macro snapshot persistence in macro.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a macro repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "macro").Logger(),
	}
}

// Upsert writes a snapshot for its data_date. When the date already has a
// row, only the non-null incoming fields replace the stored ones, so partial
// refreshes never erase earlier values.
func (r *Repository) Upsert(s *domain.MacroSnapshot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	query := `
		INSERT INTO macro_data (id, data_date, dxy_index, gold_price, silver_price, oil_price,
			m2_money_supply, fed_funds_rate, cpi_yoy, pce_yoy, ten_year_yield, real_rates,
			usd_eur, usd_jpy, usd_cny, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(data_date) DO UPDATE SET
			dxy_index = COALESCE(excluded.dxy_index, dxy_index),
			gold_price = COALESCE(excluded.gold_price, gold_price),
			silver_price = COALESCE(excluded.silver_price, silver_price),
			oil_price = COALESCE(excluded.oil_price, oil_price),
			m2_money_supply = COALESCE(excluded.m2_money_supply, m2_money_supply),
			fed_funds_rate = COALESCE(excluded.fed_funds_rate, fed_funds_rate),
			cpi_yoy = COALESCE(excluded.cpi_yoy, cpi_yoy),
			pce_yoy = COALESCE(excluded.pce_yoy, pce_yoy),
			ten_year_yield = COALESCE(excluded.ten_year_yield, ten_year_yield),
			real_rates = COALESCE(excluded.real_rates, real_rates),
			usd_eur = COALESCE(excluded.usd_eur, usd_eur),
			usd_jpy = COALESCE(excluded.usd_jpy, usd_jpy),
			usd_cny = COALESCE(excluded.usd_cny, usd_cny),
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		s.ID,
		s.DataDate.Format(dateFormat),
		decArg(s.DXYIndex),
		decArg(s.GoldPrice),
		decArg(s.SilverPrice),
		decArg(s.OilPrice),
		decArg(s.M2MoneySupply),
		decArg(s.FedFundsRate),
		decArg(s.CPIYoY),
		decArg(s.PCEYoY),
		decArg(s.TenYearYield),
		decArg(s.RealRates),
		decArg(s.USDEUR),
		decArg(s.USDJPY),
		decArg(s.USDCNY),
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert macro snapshot: %w", err)
	}

	return nil
}

// Latest returns the newest snapshot, or nil when none exist.
func (r *Repository) Latest() (*domain.MacroSnapshot, error) {
	query := "SELECT " + macroColumns + " FROM macro_data ORDER BY data_date DESC LIMIT 1"
	return r.querySnapshot(query)
}

// LatestBefore returns the newest snapshot strictly before the given date, or
// nil when none exist.
func (r *Repository) LatestBefore(cutoff time.Time) (*domain.MacroSnapshot, error) {
	query := "SELECT " + macroColumns + ` FROM macro_data
		WHERE data_date < ?
		ORDER BY data_date DESC
		LIMIT 1`
	return r.querySnapshot(query, cutoff.Format(dateFormat))
}

// LatestThrough returns the newest snapshot on or before the given date, or
// nil when none exist.
func (r *Repository) LatestThrough(cutoff time.Time) (*domain.MacroSnapshot, error) {
	query := "SELECT " + macroColumns + ` FROM macro_data
		WHERE data_date <= ?
		ORDER BY data_date DESC
		LIMIT 1`
	return r.querySnapshot(query, cutoff.Format(dateFormat))
}

// FirstSince returns the oldest snapshot on or after the given date, or nil
// when none exist.
func (r *Repository) FirstSince(start time.Time) (*domain.MacroSnapshot, error) {
	query := "SELECT " + macroColumns + ` FROM macro_data
		WHERE data_date >= ?
		ORDER BY data_date ASC
		LIMIT 1`
	return r.querySnapshot(query, start.Format(dateFormat))
}

// Range returns snapshots between start and end inclusive, ascending by
// date, capped at limit rows.
func (r *Repository) Range(start, end time.Time, limit int) ([]domain.MacroSnapshot, error) {
	query := "SELECT " + macroColumns + ` FROM macro_data
		WHERE data_date >= ? AND data_date <= ?
		ORDER BY data_date ASC
		LIMIT ?`

	rows, err := r.db.Query(query, start.Format(dateFormat), end.Format(dateFormat), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query macro range: %w", err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// Recent returns the last n snapshots in ascending date order.
func (r *Repository) Recent(n int) ([]domain.MacroSnapshot, error) {
	query := "SELECT " + macroColumns + ` FROM macro_data
		ORDER BY data_date DESC
		LIMIT ?`

	rows, err := r.db.Query(query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent macro rows: %w", err)
	}
	defer rows.Close()

	snapshots, err := collectSnapshots(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(snapshots)-1; i < j; i, j = i+1, j-1 {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	}
	return snapshots, nil
}

func (r *Repository) querySnapshot(query string, args ...interface{}) (*domain.MacroSnapshot, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query macro snapshot: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	s, err := scanSnapshot(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan macro snapshot: %w", err)
	}

	return &s, nil
}

func collectSnapshots(rows *sql.Rows) ([]domain.MacroSnapshot, error) {
	var snapshots []domain.MacroSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan macro snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating macro snapshots: %w", err)
	}

	return snapshots, nil
}

func scanSnapshot(rows *sql.Rows) (domain.MacroSnapshot, error) {
	var s domain.MacroSnapshot
	var dataDate, createdAt, updatedAt string
	var dxy, gold, silver, oil, m2, fedFunds, cpi, pce, tenYear, realRates, eur, jpy, cny sql.NullFloat64

	err := rows.Scan(
		&s.ID,
		&dataDate,
		&dxy,
		&gold,
		&silver,
		&oil,
		&m2,
		&fedFunds,
		&cpi,
		&pce,
		&tenYear,
		&realRates,
		&eur,
		&jpy,
		&cny,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return s, err
	}

	date, err := time.Parse(dateFormat, dataDate)
	if err != nil {
		return s, fmt.Errorf("invalid data_date %q: %w", dataDate, err)
	}
	s.DataDate = date

	s.DXYIndex = decPtr(dxy)
	s.GoldPrice = decPtr(gold)
	s.SilverPrice = decPtr(silver)
	s.OilPrice = decPtr(oil)
	s.M2MoneySupply = decPtr(m2)
	s.FedFundsRate = decPtr(fedFunds)
	s.CPIYoY = decPtr(cpi)
	s.PCEYoY = decPtr(pce)
	s.TenYearYield = decPtr(tenYear)
	s.RealRates = decPtr(realRates)
	s.USDEUR = decPtr(eur)
	s.USDJPY = decPtr(jpy)
	s.USDCNY = decPtr(cny)

	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		s.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		s.UpdatedAt = ts
	}

	return s, nil
}

func decArg(d *decimal.Decimal) sql.NullFloat64 {
	if d == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: d.InexactFloat64(), Valid: true}
}

func decPtr(v sql.NullFloat64) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := decimal.NewFromFloat(v.Float64)
	return &d
}
