// Package alerts stores user alert rules in portfolio.db and evaluates them
// against the score series on a fixed cadence.
package alerts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
)

// alertColumns is the alerts column list in scan order.
const alertColumns = `id, user_id, company_id, portfolio_id, alert_type, threshold_value,
	threshold_direction, change_percent, notify_email, notify_push, is_active,
	last_triggered_at, trigger_count, created_at, updated_at`

// Repository handles alert persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates an alert repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "alerts").Logger(),
	}
}

// Create inserts an alert.
func (r *Repository) Create(a *domain.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.UserID == "" {
		a.UserID = domain.DefaultUserID
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	query := `
		INSERT INTO alerts (id, user_id, company_id, portfolio_id, alert_type, threshold_value,
			threshold_direction, change_percent, notify_email, notify_push, is_active,
			last_triggered_at, trigger_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		a.ID,
		a.UserID,
		strArg(a.CompanyID),
		strArg(a.PortfolioID),
		a.AlertType,
		decArg(a.ThresholdValue),
		nullString(a.ThresholdDirection),
		decArg(a.ChangePercent),
		boolToInt(a.NotifyEmail),
		boolToInt(a.NotifyPush),
		boolToInt(a.IsActive),
		timeArg(a.LastTriggeredAt),
		a.TriggerCount,
		a.CreatedAt.Format(time.RFC3339),
		a.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// List returns a user's alerts, newest first. A non-nil isActive narrows the
// result to that activation state.
func (r *Repository) List(userID string, isActive *bool) ([]domain.Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts WHERE user_id = ?"
	args := []interface{}{userID}
	if isActive != nil {
		query += " AND is_active = ?"
		args = append(args, boolToInt(*isActive))
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ListActive returns every active alert across users for evaluation.
func (r *Repository) ListActive() ([]domain.Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts WHERE is_active = 1 ORDER BY created_at, id"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// Get returns a user's alert by id, or nil when absent. The user scope
// doubles as the ownership check.
func (r *Repository) Get(userID, id string) (*domain.Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts WHERE id = ? AND user_id = ?"

	rows, err := r.db.Query(query, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	a, err := scanAlert(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	return &a, nil
}

// Update persists threshold, change, notification, and activation changes.
func (r *Repository) Update(a *domain.Alert) error {
	a.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE alerts
		SET threshold_value = ?, threshold_direction = ?, change_percent = ?,
			notify_email = ?, notify_push = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.Exec(query,
		decArg(a.ThresholdValue),
		nullString(a.ThresholdDirection),
		decArg(a.ChangePercent),
		boolToInt(a.NotifyEmail),
		boolToInt(a.NotifyPush),
		boolToInt(a.IsActive),
		a.UpdatedAt.Format(time.RFC3339),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}

	return nil
}

// Delete removes a user's alert, reporting whether it existed.
func (r *Repository) Delete(userID, id string) (bool, error) {
	result, err := r.db.Exec("DELETE FROM alerts WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete alert: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}

	return affected > 0, nil
}

// MarkTriggered records a firing: last_triggered_at moves to the given time
// and the trigger count increments.
func (r *Repository) MarkTriggered(id string, at time.Time) error {
	query := `
		UPDATE alerts
		SET last_triggered_at = ?, trigger_count = trigger_count + 1, updated_at = ?
		WHERE id = ?
	`

	ts := at.UTC().Format(time.RFC3339)
	_, err := r.db.Exec(query, ts, ts, id)
	if err != nil {
		return fmt.Errorf("failed to mark alert triggered: %w", err)
	}

	return nil
}

func collectAlerts(rows *sql.Rows) ([]domain.Alert, error) {
	var alerts []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}

	return alerts, nil
}

func scanAlert(rows *sql.Rows) (domain.Alert, error) {
	var a domain.Alert
	var companyID, portfolioID, direction, lastTriggered sql.NullString
	var threshold, changePct sql.NullFloat64
	var notifyEmail, notifyPush, isActive int
	var createdAt, updatedAt string

	err := rows.Scan(
		&a.ID,
		&a.UserID,
		&companyID,
		&portfolioID,
		&a.AlertType,
		&threshold,
		&direction,
		&changePct,
		&notifyEmail,
		&notifyPush,
		&isActive,
		&lastTriggered,
		&a.TriggerCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return a, err
	}

	a.CompanyID = strPtr(companyID)
	a.PortfolioID = strPtr(portfolioID)
	a.ThresholdValue = decPtr(threshold)
	a.ThresholdDirection = direction.String
	a.ChangePercent = decPtr(changePct)
	a.NotifyEmail = notifyEmail != 0
	a.NotifyPush = notifyPush != 0
	a.IsActive = isActive != 0

	if lastTriggered.Valid {
		if ts, err := time.Parse(time.RFC3339, lastTriggered.String); err == nil {
			a.LastTriggeredAt = &ts
		}
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		a.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		a.UpdatedAt = ts
	}

	return a, nil
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

func strArg(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func timeArg(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
