package ingestion

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/hedge/internal/clients/secedgar"
	"github.com/aristath/hedge/internal/domain"
)

const (
	usGAAP     = "us-gaap"
	dateFormat = "2006-01-02"

	// maxFiscalYears annual rows are written per company, matching the
	// margin stability window the scorer consumes.
	maxFiscalYears = 5

	// Duration entries shorter than this are quarterly periods restated
	// inside annual filings.
	minAnnualSpan = 300 * 24 * time.Hour
)

// Concept fallbacks; the first concept with annual observations wins.
var (
	assetConcepts       = []string{"Assets"}
	revenueConcepts     = []string{"Revenues", "RevenueFromContractWithCustomerExcludingAssessedTax"}
	grossProfitConcepts = []string{"GrossProfit"}
	longDebtConcepts    = []string{"LongTermDebt"}
	shortDebtConcepts   = []string{"ShortTermBorrowings"}
	intangibleConcepts  = []string{"IntangibleAssetsNetExcludingGoodwill", "Goodwill"}
)

// annualPeriods extracts one Fundamental per fiscal year from a company's
// XBRL facts, newest first, capped at maxFiscalYears. A year is emitted when
// it reported assets or revenue.
func annualPeriods(facts *secedgar.CompanyFacts) []domain.Fundamental {
	if facts == nil {
		return nil
	}
	gaap := facts.Facts[usGAAP]
	if gaap == nil {
		return nil
	}

	assets := annualValues(gaap, assetConcepts)
	revenue := annualValues(gaap, revenueConcepts)
	grossProfit := annualValues(gaap, grossProfitConcepts)
	longDebt := annualValues(gaap, longDebtConcepts)
	shortDebt := annualValues(gaap, shortDebtConcepts)
	intangibles := annualValues(gaap, intangibleConcepts)

	yearSet := make(map[int]bool)
	for year := range assets {
		yearSet[year] = true
	}
	for year := range revenue {
		yearSet[year] = true
	}
	if len(yearSet) == 0 {
		return nil
	}

	years := make([]int, 0, len(yearSet))
	for year := range yearSet {
		years = append(years, year)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	if len(years) > maxFiscalYears {
		years = years[:maxFiscalYears]
	}

	periods := make([]domain.Fundamental, 0, len(years))
	for _, year := range years {
		f := domain.Fundamental{
			FiscalYear: year,
			ReportType: "10-K",
		}

		if v, ok := assets[year]; ok {
			f.TotalAssets = int64Ptr(v.Val)
			f.FilingDate = filedDate(v)
		}
		if v, ok := revenue[year]; ok {
			f.TotalRevenue = int64Ptr(v.Val)
			if f.FilingDate == nil {
				f.FilingDate = filedDate(v)
			}
		}
		if v, ok := intangibles[year]; ok {
			f.IntangibleAssets = int64Ptr(v.Val)
		}
		if f.TotalAssets != nil && f.IntangibleAssets != nil {
			tangible := *f.TotalAssets - *f.IntangibleAssets
			f.TangibleAssets = &tangible
		}

		long, hasLong := longDebt[year]
		short, hasShort := shortDebt[year]
		if hasLong || hasShort {
			total := int64(long.Val) + int64(short.Val)
			f.TotalDebt = &total
		}

		if v, ok := grossProfit[year]; ok && f.TotalRevenue != nil && *f.TotalRevenue != 0 {
			margin := decimal.NewFromFloat(v.Val).
				Div(decimal.NewFromInt(*f.TotalRevenue)).
				Mul(decimal.NewFromInt(100)).
				Round(2)
			f.GrossMargin = &margin
		}

		periods = append(periods, f)
	}

	return periods
}

// annualValues collects one observation per fiscal year for the first
// concept that has any: 10-K filings marked FY, USD unit, full-year spans
// only, restatements resolved to the latest filing.
func annualValues(gaap map[string]secedgar.Fact, concepts []string) map[int]secedgar.FactValue {
	for _, name := range concepts {
		fact, ok := gaap[name]
		if !ok {
			continue
		}

		out := make(map[int]secedgar.FactValue)
		for _, v := range fact.Units["USD"] {
			if v.Form != "10-K" || v.FP != "FY" {
				continue
			}
			end, err := time.Parse(dateFormat, v.End)
			if err != nil {
				continue
			}
			if v.Start != "" {
				start, err := time.Parse(dateFormat, v.Start)
				if err != nil || end.Sub(start) < minAnnualSpan {
					continue
				}
			}

			year := end.Year()
			if cur, seen := out[year]; !seen || v.Filed > cur.Filed {
				out[year] = v
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	return nil
}

// marginStability is the standard deviation of the annual gross margins,
// nil under two data points.
func marginStability(periods []domain.Fundamental) *decimal.Decimal {
	margins := make([]float64, 0, len(periods))
	for i := range periods {
		if periods[i].GrossMargin != nil {
			margins = append(margins, periods[i].GrossMargin.InexactFloat64())
		}
	}
	if len(margins) < 2 {
		return nil
	}

	std := decimal.NewFromFloat(stat.StdDev(margins, nil)).Round(2)
	return &std
}

func int64Ptr(v float64) *int64 {
	n := int64(v)
	return &n
}

func filedDate(v secedgar.FactValue) *time.Time {
	filed, err := time.Parse(dateFormat, v.Filed)
	if err != nil {
		return nil
	}
	return &filed
}
