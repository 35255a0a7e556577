package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Filing-driven data (SEC publishes daily, facts change with new filings)
	TTLSECSubmissions  = 24 * time.Hour // 1 day - Filing index refreshes daily
	TTLSECCompanyFacts = 24 * time.Hour // 1 day - XBRL facts change with new filings

	// Reference data (rarely changes)
	TTLMarketReference = 7 * 24 * time.Hour // 7 days - Ticker details, shares outstanding

	// Macro series (observations are daily/monthly, ingestion runs hourly)
	TTLFREDSeries = time.Hour // 1 hour - FRED observations for the hourly macro job

	// Short-lived data (changes intraday)
	TTLMetalsSpot   = 15 * time.Minute // 15 minutes - Gold/silver spot prices
	TTLMarketQuotes = 15 * time.Minute // 15 minutes - Previous-close quote snapshots
)
