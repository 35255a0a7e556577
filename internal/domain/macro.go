package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MacroSnapshot is one day's macro indicator row; data_date is unique.
// Same-day re-ingestion merges non-null incoming fields into the row.
type MacroSnapshot struct {
	ID       string    `json:"id"`
	DataDate time.Time `json:"data_date"`

	DXYIndex      *decimal.Decimal `json:"dxy_index,omitempty"`
	GoldPrice     *decimal.Decimal `json:"gold_price,omitempty"`
	SilverPrice   *decimal.Decimal `json:"silver_price,omitempty"`
	OilPrice      *decimal.Decimal `json:"oil_price,omitempty"`
	M2MoneySupply *decimal.Decimal `json:"m2_money_supply,omitempty"`
	FedFundsRate  *decimal.Decimal `json:"fed_funds_rate,omitempty"`
	CPIYoY        *decimal.Decimal `json:"cpi_yoy,omitempty"`
	PCEYoY        *decimal.Decimal `json:"pce_yoy,omitempty"`
	TenYearYield  *decimal.Decimal `json:"ten_year_yield,omitempty"`
	RealRates     *decimal.Decimal `json:"real_rates,omitempty"`
	USDEUR        *decimal.Decimal `json:"usd_eur,omitempty"`
	USDJPY        *decimal.Decimal `json:"usd_jpy,omitempty"`
	USDCNY        *decimal.Decimal `json:"usd_cny,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
