package macro

import (
	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// Trend directions.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendFlat    = "flat"
)

// smaPeriod is the moving-average window the dashboard trend uses.
const smaPeriod = 30

// flatBand is the relative day-over-day move of the average below which the
// direction reads flat.
const flatBand = 0.0005

// Trend is the smoothed state of one indicator series.
type Trend struct {
	SMA30     decimal.Decimal `json:"sma_30"`
	Direction string          `json:"direction"`
}

// TrendOf computes the 30-day simple moving average over values (ascending
// by date) and its direction: the latest average against the previous one,
// with moves inside the flat band reported flat. Returns nil when fewer than
// 31 points exist.
func TrendOf(values []float64) *Trend {
	if len(values) < smaPeriod+1 {
		return nil
	}

	sma := talib.Sma(values, smaPeriod)
	last := sma[len(sma)-1]
	prev := sma[len(sma)-2]
	if prev == 0 {
		return nil
	}

	direction := TrendFlat
	switch rel := (last - prev) / prev; {
	case rel > flatBand:
		direction = TrendRising
	case rel < -flatBand:
		direction = TrendFalling
	}

	return &Trend{
		SMA30:     decimal.NewFromFloat(last).Round(2),
		Direction: direction,
	}
}
