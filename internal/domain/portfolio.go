package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultUserID scopes user-owned rows while the API runs without an
// authentication layer.
const DefaultUserID = "local"

// Portfolio groups holdings for one user. The first portfolio a user creates
// becomes primary; at most one primary exists per user.
type Portfolio struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsPrimary   bool      `json:"is_primary"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Holding is one position inside a portfolio, unique per (portfolio, company).
type Holding struct {
	ID           string           `json:"id"`
	PortfolioID  string           `json:"portfolio_id"`
	CompanyID    string           `json:"company_id"`
	Shares       *decimal.Decimal `json:"shares,omitempty"`
	CostBasis    *decimal.Decimal `json:"cost_basis,omitempty"`
	CurrentValue *decimal.Decimal `json:"current_value,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// WatchlistItem marks a company a user is tracking, unique per (user, company).
type WatchlistItem struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	CompanyID   string           `json:"company_id"`
	Notes       string           `json:"notes,omitempty"`
	TargetScore *decimal.Decimal `json:"target_score,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Alert types.
const (
	AlertTypeThreshold = "threshold"
	AlertTypeScoreDrop = "score_drop"
	AlertTypeScoreRise = "score_rise"
)

// Threshold directions.
const (
	DirectionBelow = "below"
	DirectionAbove = "above"
)

// Alert is a user-defined rule evaluated against the score series.
type Alert struct {
	ID                 string           `json:"id"`
	UserID             string           `json:"user_id"`
	CompanyID          *string          `json:"company_id,omitempty"`
	PortfolioID        *string          `json:"portfolio_id,omitempty"`
	AlertType          string           `json:"alert_type"`
	ThresholdValue     *decimal.Decimal `json:"threshold_value,omitempty"`
	ThresholdDirection string           `json:"threshold_direction,omitempty"`
	ChangePercent      *decimal.Decimal `json:"change_percent,omitempty"`
	NotifyEmail        bool             `json:"notify_email"`
	NotifyPush         bool             `json:"notify_push"`
	IsActive           bool             `json:"is_active"`
	LastTriggeredAt    *time.Time       `json:"last_triggered_at,omitempty"`
	TriggerCount       int              `json:"trigger_count"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// ValidAlertType reports whether t names a known alert type.
func ValidAlertType(t string) bool {
	switch t {
	case AlertTypeThreshold, AlertTypeScoreDrop, AlertTypeScoreRise:
		return true
	}
	return false
}
