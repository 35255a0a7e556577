package events

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// ScoreUpdatedData contains data for ScoreUpdated events
type ScoreUpdatedData struct {
	Ticker     string  `json:"ticker"`
	TotalScore float64 `json:"total_score"`
	Tier       string  `json:"tier"`
	ScoreDate  string  `json:"score_date"`
}

// EventType returns the event type for ScoreUpdatedData
func (d *ScoreUpdatedData) EventType() EventType {
	return ScoreUpdated
}

// ScoringCompletedData contains data for ScoringCompleted events
type ScoringCompletedData struct {
	RunID           string  `json:"run_id"`
	CompaniesScored int     `json:"companies_scored"`
	CompaniesFailed int     `json:"companies_failed"`
	AvgScore        float64 `json:"avg_score"`
	DurationSeconds float64 `json:"duration_seconds"`
	Status          string  `json:"status"`
}

// EventType returns the event type for ScoringCompletedData
func (d *ScoringCompletedData) EventType() EventType {
	return ScoringCompleted
}

// AlertTriggeredData contains data for AlertTriggered events
type AlertTriggeredData struct {
	AlertID   string `json:"alert_id"`
	AlertType string `json:"alert_type"`
	Ticker    string `json:"ticker,omitempty"`
	Message   string `json:"message"`
	Email     bool   `json:"email"`
	Push      bool   `json:"push"`
}

// EventType returns the event type for AlertTriggeredData
func (d *AlertTriggeredData) EventType() EventType {
	return AlertTriggered
}

// MacroUpdatedData contains data for MacroUpdated events
type MacroUpdatedData struct {
	DataDate      string `json:"data_date"`
	FieldsUpdated int    `json:"fields_updated"`
}

// EventType returns the event type for MacroUpdatedData
func (d *MacroUpdatedData) EventType() EventType {
	return MacroUpdated
}

// MarketUpdatedData contains data for MarketUpdated events
type MarketUpdatedData struct {
	CompaniesUpdated int `json:"companies_updated"`
}

// EventType returns the event type for MarketUpdatedData
func (d *MarketUpdatedData) EventType() EventType {
	return MarketUpdated
}

// JobCompletedData contains data for JobCompleted events
type JobCompletedData struct {
	Job             string  `json:"job"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           string  `json:"error,omitempty"`
}

// EventType returns the event type for JobCompletedData
func (d *JobCompletedData) EventType() EventType {
	return JobCompleted
}
