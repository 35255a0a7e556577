// Package portfolio manages user portfolios and their holdings in
// portfolio.db, and computes survival analytics over them.
package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/database"
	"github.com/aristath/hedge/internal/domain"
)

// portfolioColumns is the portfolios column list in scan order.
const portfolioColumns = `id, user_id, name, description, is_primary, created_at, updated_at`

// holdingColumns is the portfolio_holdings column list in scan order.
const holdingColumns = `id, portfolio_id, company_id, shares, cost_basis, current_value, created_at, updated_at`

// HoldingAggregate summarizes one portfolio's holdings for list views.
type HoldingAggregate struct {
	Count      int
	TotalValue decimal.Decimal
}

// Repository handles portfolio and holding persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a portfolio repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Create inserts a portfolio. Callers decide is_primary; the first portfolio
// a user creates is the primary one.
func (r *Repository) Create(p *domain.Portfolio) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.UserID == "" {
		p.UserID = domain.DefaultUserID
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `
		INSERT INTO portfolios (id, user_id, name, description, is_primary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		p.ID,
		p.UserID,
		p.Name,
		nullString(p.Description),
		boolToInt(p.IsPrimary),
		p.CreatedAt.Format(time.RFC3339),
		p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}

	return nil
}

// CountForUser returns how many portfolios a user has.
func (r *Repository) CountForUser(userID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM portfolios WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count portfolios: %w", err)
	}
	return count, nil
}

// List returns a user's portfolios, primary first then by name.
func (r *Repository) List(userID string) ([]domain.Portfolio, error) {
	query := "SELECT " + portfolioColumns + ` FROM portfolios
		WHERE user_id = ?
		ORDER BY is_primary DESC, name`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, nil
}

// Get returns a user's portfolio by id, or nil when absent. The user scope
// doubles as the ownership check.
func (r *Repository) Get(userID, id string) (*domain.Portfolio, error) {
	query := "SELECT " + portfolioColumns + " FROM portfolios WHERE id = ? AND user_id = ?"

	rows, err := r.db.Query(query, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	p, err := scanPortfolio(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan portfolio: %w", err)
	}

	return &p, nil
}

// Update persists name and description changes.
func (r *Repository) Update(p *domain.Portfolio) error {
	p.UpdatedAt = time.Now().UTC()

	_, err := r.db.Exec(
		"UPDATE portfolios SET name = ?, description = ?, updated_at = ? WHERE id = ?",
		p.Name,
		nullString(p.Description),
		p.UpdatedAt.Format(time.RFC3339),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}

	return nil
}

// Delete removes a portfolio and its holdings, reporting whether it existed.
// The two deletes commit together so a failure cannot orphan holdings.
func (r *Repository) Delete(userID, id string) (bool, error) {
	var existed bool
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM portfolios WHERE id = ? AND user_id = ?", id, userID)
		if err != nil {
			return fmt.Errorf("failed to delete portfolio: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return nil
		}
		existed = true

		if _, err := tx.Exec("DELETE FROM portfolio_holdings WHERE portfolio_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete holdings: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// HoldingAggregates returns per-portfolio holding counts and value sums for a
// user, keyed by portfolio id. Portfolios without holdings are absent.
func (r *Repository) HoldingAggregates(userID string) (map[string]HoldingAggregate, error) {
	query := `
		SELECT h.portfolio_id, COUNT(*), COALESCE(SUM(h.current_value), 0)
		FROM portfolio_holdings h
		JOIN portfolios p ON p.id = h.portfolio_id
		WHERE p.user_id = ?
		GROUP BY h.portfolio_id
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holding aggregates: %w", err)
	}
	defer rows.Close()

	aggregates := make(map[string]HoldingAggregate)
	for rows.Next() {
		var portfolioID string
		var count int
		var total float64
		if err := rows.Scan(&portfolioID, &count, &total); err != nil {
			return nil, fmt.Errorf("failed to scan holding aggregate: %w", err)
		}
		aggregates[portfolioID] = HoldingAggregate{
			Count:      count,
			TotalValue: decimal.NewFromFloat(total),
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holding aggregates: %w", err)
	}

	return aggregates, nil
}

// Holdings returns a portfolio's holdings in insertion order.
func (r *Repository) Holdings(portfolioID string) ([]domain.Holding, error) {
	query := "SELECT " + holdingColumns + ` FROM portfolio_holdings
		WHERE portfolio_id = ?
		ORDER BY created_at, id`

	rows, err := r.db.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// GetHolding returns one holding scoped to its portfolio, or nil when absent.
func (r *Repository) GetHolding(portfolioID, holdingID string) (*domain.Holding, error) {
	query := "SELECT " + holdingColumns + " FROM portfolio_holdings WHERE id = ? AND portfolio_id = ?"
	return r.queryHolding(query, holdingID, portfolioID)
}

// GetHoldingByCompany returns the portfolio's holding for a company, or nil
// when the company is not held.
func (r *Repository) GetHoldingByCompany(portfolioID, companyID string) (*domain.Holding, error) {
	query := "SELECT " + holdingColumns + " FROM portfolio_holdings WHERE portfolio_id = ? AND company_id = ?"
	return r.queryHolding(query, portfolioID, companyID)
}

func (r *Repository) queryHolding(query string, args ...interface{}) (*domain.Holding, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holding: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	h, err := scanHolding(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan holding: %w", err)
	}

	return &h, nil
}

// AddHolding inserts a holding row.
func (r *Repository) AddHolding(h *domain.Holding) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	query := `
		INSERT INTO portfolio_holdings
		(id, portfolio_id, company_id, shares, cost_basis, current_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		h.ID,
		h.PortfolioID,
		h.CompanyID,
		decArg(h.Shares),
		decArg(h.CostBasis),
		decArg(h.CurrentValue),
		h.CreatedAt.Format(time.RFC3339),
		h.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to add holding: %w", err)
	}

	return nil
}

// UpdateHolding persists shares, cost basis, and current value changes.
func (r *Repository) UpdateHolding(h *domain.Holding) error {
	h.UpdatedAt = time.Now().UTC()

	_, err := r.db.Exec(
		"UPDATE portfolio_holdings SET shares = ?, cost_basis = ?, current_value = ?, updated_at = ? WHERE id = ?",
		decArg(h.Shares),
		decArg(h.CostBasis),
		decArg(h.CurrentValue),
		h.UpdatedAt.Format(time.RFC3339),
		h.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}

	return nil
}

// RemoveHolding deletes one holding scoped to its portfolio, reporting
// whether a row existed.
func (r *Repository) RemoveHolding(portfolioID, holdingID string) (bool, error) {
	res, err := r.db.Exec(
		"DELETE FROM portfolio_holdings WHERE id = ? AND portfolio_id = ?",
		holdingID, portfolioID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove holding: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

func scanPortfolio(rows *sql.Rows) (domain.Portfolio, error) {
	var p domain.Portfolio
	var description sql.NullString
	var isPrimary int
	var createdAt, updatedAt string

	err := rows.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&description,
		&isPrimary,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return p, err
	}

	p.Description = description.String
	p.IsPrimary = isPrimary != 0

	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		p.UpdatedAt = ts
	}

	return p, nil
}

func scanHolding(rows *sql.Rows) (domain.Holding, error) {
	var h domain.Holding
	var shares, costBasis, currentValue sql.NullFloat64
	var createdAt, updatedAt string

	err := rows.Scan(
		&h.ID,
		&h.PortfolioID,
		&h.CompanyID,
		&shares,
		&costBasis,
		&currentValue,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return h, err
	}

	h.Shares = decPtr(shares)
	h.CostBasis = decPtr(costBasis)
	h.CurrentValue = decPtr(currentValue)

	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		h.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		h.UpdatedAt = ts
	}

	return h, nil
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

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
