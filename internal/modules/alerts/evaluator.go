package alerts

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/domain"
)

// ScoreSource provides the score series alerts are judged against.
// *scoring.Repository satisfies it.
type ScoreSource interface {
	GetLatestN(companyID string, n int) ([]domain.SurvivalScore, error)
}

// CompanySource resolves company ids for alert messages.
// *companies.Repository satisfies it.
type CompanySource interface {
	GetByID(id string) (*domain.Company, error)
}

// Notifier delivers a triggered alert to its destinations.
type Notifier interface {
	Notify(a *domain.Alert, ticker, message string)
}

// triggerCooldown suppresses re-fires: an alert that triggered within this
// window is skipped on subsequent scans.
const triggerCooldown = time.Hour

var hundred = decimal.NewFromInt(100)

// Evaluator scans active alerts against the latest scores.
type Evaluator struct {
	alerts    *Repository
	scores    ScoreSource
	companies CompanySource
	notifier  Notifier
	log       zerolog.Logger
}

// NewEvaluator creates an alert evaluator.
func NewEvaluator(alerts *Repository, scores ScoreSource, companies CompanySource, notifier Notifier, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		alerts:    alerts,
		scores:    scores,
		companies: companies,
		notifier:  notifier,
		log:       log.With().Str("module", "alerts").Logger(),
	}
}

// EvaluateAll runs one scan over every active alert and returns how many
// fired. A failing alert is logged and skipped; it never aborts the scan.
func (e *Evaluator) EvaluateAll() (int, error) {
	active, err := e.alerts.ListActive()
	if err != nil {
		return 0, fmt.Errorf("failed to load active alerts: %w", err)
	}

	now := time.Now().UTC()
	triggered := 0
	for i := range active {
		a := &active[i]
		if a.LastTriggeredAt != nil && now.Sub(*a.LastTriggeredAt) < triggerCooldown {
			continue
		}

		ticker := e.tickerFor(a)
		message, fired, err := e.evaluate(a, ticker)
		if err != nil {
			e.log.Error().Err(err).
				Str("alert_id", a.ID).
				Str("alert_type", a.AlertType).
				Msg("Alert evaluation failed")
			continue
		}
		if !fired {
			continue
		}

		if err := e.alerts.MarkTriggered(a.ID, now); err != nil {
			e.log.Error().Err(err).Str("alert_id", a.ID).Msg("Failed to record alert trigger")
			continue
		}
		a.LastTriggeredAt = &now
		a.TriggerCount++

		e.notifier.Notify(a, ticker, message)
		triggered++
	}

	e.log.Info().
		Int("evaluated", len(active)).
		Int("triggered", triggered).
		Msg("Alert scan complete")

	return triggered, nil
}

func (e *Evaluator) evaluate(a *domain.Alert, ticker string) (string, bool, error) {
	switch a.AlertType {
	case domain.AlertTypeThreshold:
		return e.evaluateThreshold(a, ticker)
	case domain.AlertTypeScoreDrop:
		return e.evaluateChange(a, ticker, false)
	case domain.AlertTypeScoreRise:
		return e.evaluateChange(a, ticker, true)
	default:
		return "", false, fmt.Errorf("unknown alert type %q", a.AlertType)
	}
}

// evaluateThreshold fires when the latest total score crosses the configured
// bound. Companies without a score row never fire.
func (e *Evaluator) evaluateThreshold(a *domain.Alert, ticker string) (string, bool, error) {
	if a.CompanyID == nil || a.ThresholdValue == nil {
		return "", false, fmt.Errorf("threshold alert missing company or threshold value")
	}

	scores, err := e.scores.GetLatestN(*a.CompanyID, 1)
	if err != nil {
		return "", false, err
	}
	if len(scores) == 0 {
		return "", false, nil
	}
	current := scores[0].TotalScore

	fired := false
	switch a.ThresholdDirection {
	case domain.DirectionBelow:
		fired = current.LessThan(*a.ThresholdValue)
	case domain.DirectionAbove:
		fired = current.GreaterThan(*a.ThresholdValue)
	}
	if !fired {
		return "", false, nil
	}

	message := fmt.Sprintf("%s survival score %s is %s threshold %s",
		ticker, current.StringFixed(1), a.ThresholdDirection, a.ThresholdValue.String())
	return message, true, nil
}

// evaluateChange fires when the move between the two latest scores meets the
// configured percentage. Fewer than two score rows never fire; a zero
// previous score has no defined percentage move.
func (e *Evaluator) evaluateChange(a *domain.Alert, ticker string, rise bool) (string, bool, error) {
	if a.CompanyID == nil || a.ChangePercent == nil {
		return "", false, fmt.Errorf("change alert missing company or change percent")
	}

	scores, err := e.scores.GetLatestN(*a.CompanyID, 2)
	if err != nil {
		return "", false, err
	}
	if len(scores) < 2 {
		return "", false, nil
	}
	current, previous := scores[0].TotalScore, scores[1].TotalScore
	if previous.IsZero() {
		return "", false, nil
	}
	pct := current.Sub(previous).Div(previous).Mul(hundred)

	var fired bool
	verb := "dropped"
	if rise {
		fired = pct.GreaterThanOrEqual(*a.ChangePercent)
		verb = "rose"
	} else {
		fired = pct.LessThanOrEqual(a.ChangePercent.Neg())
	}
	if !fired {
		return "", false, nil
	}

	message := fmt.Sprintf("%s survival score %s %s%% (from %s to %s)",
		ticker, verb, pct.Abs().StringFixed(1), previous.StringFixed(1), current.StringFixed(1))
	return message, true, nil
}

// tickerFor resolves the alert's company ticker, falling back to the raw id
// when the universe row is gone.
func (e *Evaluator) tickerFor(a *domain.Alert) string {
	if a.CompanyID == nil {
		return ""
	}
	company, err := e.companies.GetByID(*a.CompanyID)
	if err != nil || company == nil {
		return *a.CompanyID
	}
	return company.Ticker
}
