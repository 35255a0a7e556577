package alerts

import (
	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/events"
)

// LogNotifier is the delivery stub: it logs what would be sent and publishes
// an alert.triggered event. Real email and push providers slot in behind the
// Notifier interface.
type LogNotifier struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewLogNotifier creates the logging notifier.
func NewLogNotifier(bus *events.Bus, log zerolog.Logger) *LogNotifier {
	return &LogNotifier{
		bus: bus,
		log: log.With().Str("module", "alert_notifier").Logger(),
	}
}

// Notify logs the trigger, notes the channels the alert asked for, and
// publishes the event.
func (n *LogNotifier) Notify(a *domain.Alert, ticker, message string) {
	n.log.Warn().
		Str("alert_id", a.ID).
		Str("alert_type", a.AlertType).
		Str("ticker", ticker).
		Str("message", message).
		Msg("Alert triggered")

	if a.NotifyEmail {
		n.log.Info().Str("alert_id", a.ID).Msg("Would send email notification")
	}
	if a.NotifyPush {
		n.log.Info().Str("alert_id", a.ID).Msg("Would send push notification")
	}

	n.bus.Publish(events.AlertTriggered, "alerts", &events.AlertTriggeredData{
		AlertID:   a.ID,
		AlertType: a.AlertType,
		Ticker:    ticker,
		Message:   message,
		Email:     a.NotifyEmail,
		Push:      a.NotifyPush,
	})
}
