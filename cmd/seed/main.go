// Package main implements the seed command, which populates an empty
// installation with a starter universe. It inserts a cross-sector set of
// well-known companies with one annual fundamental row apiece, scores each
// company, and backfills thirty days of macro indicator history so trends
// and dashboards work before the first scheduled refresh. A populated
// universe is left untouched, which makes the command safe to re-run.
package main

import (
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/hedge/internal/config"
	"github.com/aristath/hedge/internal/di"
	"github.com/aristath/hedge/internal/domain"
	"github.com/aristath/hedge/internal/events"
	"github.com/aristath/hedge/internal/modules/macro"
	"github.com/aristath/hedge/internal/modules/scoring"
	"github.com/aristath/hedge/pkg/logger"
)

const macroHistoryDays = 30

// seedCompany is one starter universe entry. Fundamentals are generated
// from the industry, so the set spreads across every score tier.
type seedCompany struct {
	ticker    string
	name      string
	sector    string
	industry  string
	marketCap int64
	exchange  string
}

var seedUniverse = []seedCompany{
	// Precious metals
	{"NEM", "Newmont Corporation", "Materials", "Gold Mining", 45_000_000_000, "NYSE"},
	{"GOLD", "Barrick Gold Corporation", "Materials", "Gold Mining", 35_000_000_000, "NYSE"},
	{"AEM", "Agnico Eagle Mines", "Materials", "Gold Mining", 30_000_000_000, "NYSE"},
	{"FNV", "Franco-Nevada Corporation", "Materials", "Precious Metals Royalties", 25_000_000_000, "NYSE"},
	{"WPM", "Wheaton Precious Metals", "Materials", "Precious Metals Royalties", 20_000_000_000, "NYSE"},

	// Energy and commodities
	{"XOM", "Exxon Mobil Corporation", "Energy", "Oil & Gas Integrated", 450_000_000_000, "NYSE"},
	{"CVX", "Chevron Corporation", "Energy", "Oil & Gas Integrated", 280_000_000_000, "NYSE"},
	{"FCX", "Freeport-McMoRan Inc", "Materials", "Copper Mining", 55_000_000_000, "NYSE"},
	{"RIO", "Rio Tinto Group", "Materials", "Diversified Mining", 120_000_000_000, "NYSE"},
	{"BHP", "BHP Group Limited", "Materials", "Diversified Mining", 150_000_000_000, "NYSE"},
	{"CAT", "Caterpillar Inc", "Industrials", "Construction Machinery", 180_000_000_000, "NYSE"},
	{"DE", "Deere & Company", "Industrials", "Agricultural Machinery", 120_000_000_000, "NYSE"},

	// Consumer staples and healthcare
	{"PG", "Procter & Gamble", "Consumer Staples", "Household Products", 380_000_000_000, "NYSE"},
	{"KO", "The Coca-Cola Company", "Consumer Staples", "Beverages", 260_000_000_000, "NYSE"},
	{"PEP", "PepsiCo Inc", "Consumer Staples", "Beverages", 230_000_000_000, "NASDAQ"},
	{"JNJ", "Johnson & Johnson", "Healthcare", "Pharmaceuticals", 400_000_000_000, "NYSE"},
	{"MRK", "Merck & Co Inc", "Healthcare", "Pharmaceuticals", 280_000_000_000, "NYSE"},
	{"UNH", "UnitedHealth Group", "Healthcare", "Healthcare Facilities", 500_000_000_000, "NYSE"},

	// Utilities
	{"NEE", "NextEra Energy", "Utilities", "Electric Utilities", 150_000_000_000, "NYSE"},
	{"DUK", "Duke Energy", "Utilities", "Electric Utilities", 80_000_000_000, "NYSE"},
	{"SO", "Southern Company", "Utilities", "Electric Utilities", 85_000_000_000, "NYSE"},

	// Financials
	{"JPM", "JPMorgan Chase & Co", "Financials", "Banks", 550_000_000_000, "NYSE"},
	{"BAC", "Bank of America", "Financials", "Banks", 300_000_000_000, "NYSE"},
	{"WFC", "Wells Fargo & Company", "Financials", "Banks", 200_000_000_000, "NYSE"},
	{"C", "Citigroup Inc", "Financials", "Banks", 120_000_000_000, "NYSE"},
	{"GS", "Goldman Sachs", "Financials", "Asset Management", 150_000_000_000, "NYSE"},
	{"MS", "Morgan Stanley", "Financials", "Asset Management", 160_000_000_000, "NYSE"},
	{"BLK", "BlackRock Inc", "Financials", "Asset Management", 120_000_000_000, "NYSE"},

	// Technology
	{"MSFT", "Microsoft Corporation", "Technology", "Software", 3_000_000_000_000, "NASDAQ"},
	{"AAPL", "Apple Inc", "Technology", "Consumer Electronics", 3_000_000_000_000, "NASDAQ"},
	{"GOOGL", "Alphabet Inc", "Technology", "Software", 2_000_000_000_000, "NASDAQ"},
	{"META", "Meta Platforms Inc", "Technology", "Software", 1_200_000_000_000, "NASDAQ"},
	{"AMZN", "Amazon.com Inc", "Consumer Discretionary", "E-Commerce", 1_800_000_000_000, "NASDAQ"},
	{"NFLX", "Netflix Inc", "Communication Services", "Entertainment", 250_000_000_000, "NASDAQ"},
	{"CRM", "Salesforce Inc", "Technology", "Software", 300_000_000_000, "NYSE"},
	{"ADBE", "Adobe Inc", "Technology", "Software", 250_000_000_000, "NASDAQ"},

	// Diversifiers
	{"MO", "Altria Group", "Consumer Staples", "Tobacco", 80_000_000_000, "NYSE"},
	{"PM", "Philip Morris", "Consumer Staples", "Tobacco", 150_000_000_000, "NYSE"},
	{"WMT", "Walmart Inc", "Consumer Staples", "Food Retail", 450_000_000_000, "NYSE"},
	{"COST", "Costco Wholesale", "Consumer Staples", "Food Retail", 350_000_000_000, "NASDAQ"},
	{"LMT", "Lockheed Martin", "Industrials", "Defense", 120_000_000_000, "NYSE"},
	{"RTX", "RTX Corporation", "Industrials", "Defense", 150_000_000_000, "NYSE"},
	{"VZ", "Verizon Communications", "Communication Services", "Telecom", 170_000_000_000, "NYSE"},
	{"T", "AT&T Inc", "Communication Services", "Telecom", 130_000_000_000, "NYSE"},
	{"WM", "Waste Management", "Industrials", "Waste Management", 85_000_000_000, "NYSE"},
	{"AWK", "American Water Works", "Utilities", "Water Utilities", 28_000_000_000, "NYSE"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// The seeder runs interactively, so always use the console writer.
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	container, err := di.InitializeDatabases(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize databases")
	}
	defer container.Close()

	if err := di.InitializeRepositories(container, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize repositories")
	}

	existing, err := container.CompanyRepo.CountActive()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to inspect universe")
	}
	if existing > 0 {
		log.Info().Int("companies", existing).Msg("Universe already populated, nothing to seed")
		return
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	runner := scoring.NewRunner(
		container.ScoreRepo,
		container.CompanyRepo,
		scoring.NewEngine(),
		events.NewBus(log),
		0,
		log,
	)

	for _, sc := range seedUniverse {
		marketCap := sc.marketCap
		company := &domain.Company{
			Ticker:    sc.ticker,
			Name:      sc.name,
			Sector:    sc.sector,
			Industry:  sc.industry,
			MarketCap: &marketCap,
			Exchange:  sc.exchange,
			IsActive:  true,
		}
		if err := container.CompanyRepo.UpsertCompany(company); err != nil {
			log.Fatal().Err(err).Str("ticker", sc.ticker).Msg("Failed to seed company")
		}

		if err := container.CompanyRepo.UpsertFundamental(seedFundamental(company.ID, sc, rng)); err != nil {
			log.Fatal().Err(err).Str("ticker", sc.ticker).Msg("Failed to seed fundamentals")
		}

		score, err := runner.ScoreNow(*company)
		if err != nil {
			log.Fatal().Err(err).Str("ticker", sc.ticker).Msg("Failed to score seeded company")
		}
		log.Info().
			Str("ticker", sc.ticker).
			Str("total", score.TotalScore.StringFixed(2)).
			Str("tier", score.Tier).
			Msg("Seeded company")
	}

	if err := seedMacroHistory(container.MacroRepo, rng, macroHistoryDays); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed macro history")
	}

	log.Info().
		Int("companies", len(seedUniverse)).
		Int("macro_days", macroHistoryDays).
		Msg("Seed completed")
}

// fundamentalShape holds the ranges fundamentals are drawn from for one
// industry group. Percentages are 0-100, ratios 0-1.
type fundamentalShape struct {
	tangibleRatio [2]float64
	foreignPct    [2]float64
	preciousPct   [2]float64
	commodityPct  [2]float64
	grossMargin   [2]float64
}

func shapeFor(industry string) fundamentalShape {
	switch industry {
	case "Gold Mining", "Silver Mining":
		return fundamentalShape{
			tangibleRatio: [2]float64{0.75, 0.90},
			foreignPct:    [2]float64{40, 70},
			preciousPct:   [2]float64{80, 100},
			commodityPct:  [2]float64{85, 100},
			grossMargin:   [2]float64{30, 50},
		}
	case "Precious Metals Royalties":
		// Royalty houses hold streams, not mines, so tangibles run low
		// while margins run high.
		return fundamentalShape{
			tangibleRatio: [2]float64{0.20, 0.40},
			foreignPct:    [2]float64{50, 80},
			preciousPct:   [2]float64{90, 100},
			commodityPct:  [2]float64{90, 100},
			grossMargin:   [2]float64{70, 90},
		}
	case "Oil & Gas Integrated":
		return fundamentalShape{
			tangibleRatio: [2]float64{0.70, 0.85},
			foreignPct:    [2]float64{30, 60},
			commodityPct:  [2]float64{75, 95},
			grossMargin:   [2]float64{40, 60},
		}
	case "Copper Mining", "Diversified Mining":
		return fundamentalShape{
			tangibleRatio: [2]float64{0.70, 0.85},
			foreignPct:    [2]float64{50, 80},
			preciousPct:   [2]float64{0, 20},
			commodityPct:  [2]float64{85, 100},
			grossMargin:   [2]float64{35, 55},
		}
	case "Banks", "Asset Management":
		return fundamentalShape{
			tangibleRatio: [2]float64{0.05, 0.15},
			foreignPct:    [2]float64{15, 35},
			grossMargin:   [2]float64{50, 70},
		}
	case "Software":
		return fundamentalShape{
			tangibleRatio: [2]float64{0.10, 0.25},
			foreignPct:    [2]float64{40, 60},
			grossMargin:   [2]float64{65, 85},
		}
	case "Electric Utilities", "Water Utilities", "Gas Utilities":
		return fundamentalShape{
			tangibleRatio: [2]float64{0.75, 0.90},
			foreignPct:    [2]float64{0, 10},
			commodityPct:  [2]float64{0, 20},
			grossMargin:   [2]float64{35, 50},
		}
	default:
		return fundamentalShape{
			tangibleRatio: [2]float64{0.40, 0.60},
			foreignPct:    [2]float64{20, 50},
			commodityPct:  [2]float64{0, 30},
			grossMargin:   [2]float64{30, 50},
		}
	}
}

// seedFundamental builds one annual row for the previous fiscal year with
// values drawn from the company's industry shape.
func seedFundamental(companyID string, sc seedCompany, rng *rand.Rand) *domain.Fundamental {
	shape := shapeFor(sc.industry)

	totalAssets := int64(float64(sc.marketCap) * between(rng, 0.8, 1.5))
	tangibleAssets := int64(float64(totalAssets) * between(rng, shape.tangibleRatio[0], shape.tangibleRatio[1]))
	intangibleAssets := totalAssets - tangibleAssets
	totalRevenue := int64(float64(sc.marketCap) * between(rng, 0.3, 0.8))
	totalDebt := int64(float64(totalAssets) * between(rng, 0.20, 0.50))
	maturity := decimal.NewFromFloat(between(rng, 3, 12)).Round(1)

	f := &domain.Fundamental{
		CompanyID:                companyID,
		FiscalYear:               time.Now().UTC().Year() - 1,
		ReportType:               "10-K",
		TotalAssets:              &totalAssets,
		TangibleAssets:           &tangibleAssets,
		IntangibleAssets:         &intangibleAssets,
		TotalRevenue:             &totalRevenue,
		ForeignRevenuePct:        uniform(rng, shape.foreignPct),
		CommodityRevenuePct:      uniform(rng, shape.commodityPct),
		PreciousMetalsRevenuePct: uniform(rng, shape.preciousPct),
		GrossMargin:              uniform(rng, shape.grossMargin),
		GrossMargin5yrStd:        uniform(rng, [2]float64{2, 10}),
		TotalDebt:                &totalDebt,
		FixedRateDebtPct:         uniform(rng, [2]float64{50, 90}),
		AvgDebtMaturityYears:     &maturity,
	}

	if strings.Contains(sc.industry, "Mining") {
		reserves := int64(between(rng, 10_000_000, 150_000_000))
		f.ProvenReservesOz = &reserves
	}

	return f
}

// seedMacroHistory writes the given number of days of synthetic indicator
// history ending today. Real rates derive from fed funds and CPI the same
// way the macro refresh derives them.
func seedMacroHistory(repo *macro.Repository, rng *rand.Rand, days int) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	fedFunds := decimal.RequireFromString("5.25")

	for i := 0; i < days; i++ {
		snap := &domain.MacroSnapshot{
			DataDate:      today.AddDate(0, 0, -i),
			DXYIndex:      uniform(rng, [2]float64{95, 105}),
			GoldPrice:     uniform(rng, [2]float64{1900, 2200}),
			SilverPrice:   uniform(rng, [2]float64{23, 30}),
			OilPrice:      uniform(rng, [2]float64{65, 90}),
			M2MoneySupply: uniform(rng, [2]float64{20500, 21500}),
			FedFundsRate:  &fedFunds,
			TenYearYield:  uniform(rng, [2]float64{3.5, 4.5}),
			CPIYoY:        uniform(rng, [2]float64{2.5, 4}),
		}
		realRates := snap.FedFundsRate.Sub(*snap.CPIYoY)
		snap.RealRates = &realRates

		if err := repo.Upsert(snap); err != nil {
			return err
		}
	}

	return nil
}

// between draws a uniform value from [lo, hi).
func between(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// uniform draws from the range and rounds to two decimal places.
func uniform(rng *rand.Rand, r [2]float64) *decimal.Decimal {
	d := decimal.NewFromFloat(between(rng, r[0], r[1])).Round(2)
	return &d
}
