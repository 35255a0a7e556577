// Package watchlist persists the companies a user is tracking in portfolio.db.
package watchlist

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
)

// watchlistColumns is the watchlist_items column list in scan order.
const watchlistColumns = `id, user_id, company_id, notes, target_score, created_at`

// Repository handles watchlist persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a watchlist repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "watchlist").Logger(),
	}
}

// Add inserts a watchlist item. Duplicate (user, company) pairs violate the
// unique index; callers check with Get first so the API can return a conflict.
func (r *Repository) Add(item *domain.WatchlistItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.UserID == "" {
		item.UserID = domain.DefaultUserID
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO watchlist_items (id, user_id, company_id, notes, target_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		item.ID,
		item.UserID,
		item.CompanyID,
		nullString(item.Notes),
		decArg(item.TargetScore),
		item.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to add watchlist item: %w", err)
	}

	return nil
}

// List returns a user's watchlist, newest first.
func (r *Repository) List(userID string) ([]domain.WatchlistItem, error) {
	query := "SELECT " + watchlistColumns + ` FROM watchlist_items
		WHERE user_id = ?
		ORDER BY created_at DESC, id`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var items []domain.WatchlistItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating watchlist items: %w", err)
	}

	return items, nil
}

// Get returns the user's watchlist entry for a company, or nil when absent.
func (r *Repository) Get(userID, companyID string) (*domain.WatchlistItem, error) {
	query := "SELECT " + watchlistColumns + " FROM watchlist_items WHERE user_id = ? AND company_id = ?"

	rows, err := r.db.Query(query, userID, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist item: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	item, err := scanItem(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
	}

	return &item, nil
}

// Remove deletes the user's entry for a company and reports whether a row
// existed.
func (r *Repository) Remove(userID, companyID string) (bool, error) {
	res, err := r.db.Exec("DELETE FROM watchlist_items WHERE user_id = ? AND company_id = ?", userID, companyID)
	if err != nil {
		return false, fmt.Errorf("failed to remove watchlist item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

func scanItem(rows *sql.Rows) (domain.WatchlistItem, error) {
	var item domain.WatchlistItem
	var notes sql.NullString
	var targetScore sql.NullFloat64
	var createdAt string

	err := rows.Scan(
		&item.ID,
		&item.UserID,
		&item.CompanyID,
		&notes,
		&targetScore,
		&createdAt,
	)
	if err != nil {
		return item, err
	}

	item.Notes = notes.String
	item.TargetScore = decPtr(targetScore)

	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		item.CreatedAt = ts
	}

	return item, nil
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
