package types

import "time"

// DayValue is one day of usage (and, when the cost facet covered the day,
// cost) inside a month series.
type DayValue struct {
	// Date as reported by the vendor, e.g. "2023-05-12"
	Date string  `json:"date"`
	KWH  float64 `json:"kwh"`
	// Cost is nil for days the cost endpoint has not settled yet.
	Cost *float64 `json:"cost,omitempty"`
}

// MonthValue is one month inside a year series.
type MonthValue struct {
	// YearMonth as reported by the vendor, e.g. "202305"
	YearMonth string  `json:"yearMonth"`
	KWH       float64 `json:"kwh"`
	Cost      float64 `json:"cost"`
}

// Ladder is the tiered-pricing state of the account. The vendor's daily-cost
// endpoint always reports the current month's ladder regardless of the
// queried month (a known upstream quirk, reproduced as-is). All fields can be
// null when the billing period has not settled.
type Ladder struct {
	Stage        *int       `json:"stage"`
	StartDate    *time.Time `json:"startDate"`
	RemainingKWH *float64   `json:"remainingKWH"`
	Tariff       *float64   `json:"tariff"`
}

// AccountSnapshot is the per-account result of one refresh tick. Every field
// is independently tri-state: a facet failure makes only its fields
// unavailable and the caching policy marks skipped windows unchanged.
type AccountSnapshot struct {
	Balance      Field[float64] `json:"balance"`
	Arrears      Field[float64] `json:"arrears"`
	YesterdayKWH Field[float64] `json:"yesterdayKWH"`

	ThisYearKWH     Field[float64]      `json:"thisYearKWH"`
	ThisYearCost    Field[float64]      `json:"thisYearCost"`
	ThisYearByMonth Field[[]MonthValue] `json:"thisYearByMonth"`

	LastYearKWH     Field[float64]      `json:"lastYearKWH"`
	LastYearCost    Field[float64]      `json:"lastYearCost"`
	LastYearByMonth Field[[]MonthValue] `json:"lastYearByMonth"`

	ThisMonthKWH   Field[float64]    `json:"thisMonthKWH"`
	ThisMonthCost  Field[float64]    `json:"thisMonthCost"`
	ThisMonthByDay Field[[]DayValue] `json:"thisMonthByDay"`
	Ladder         Field[Ladder]     `json:"ladder"`

	LastMonthKWH   Field[float64]    `json:"lastMonthKWH"`
	LastMonthCost  Field[float64]    `json:"lastMonthCost"`
	LastMonthByDay Field[[]DayValue] `json:"lastMonthByDay"`

	// derived: the most recent day with data, falling back to last month when
	// the current month's series has not populated yet
	LatestDayKWH  Field[float64] `json:"latestDayKWH"`
	LatestDayCost Field[float64] `json:"latestDayCost"`
	LatestDayDate Field[string]  `json:"latestDayDate"`
}

// RefreshSnapshot is the consolidated result of one coordinator tick, keyed
// by account number. It is rebuilt from scratch every tick.
type RefreshSnapshot struct {
	TakenAt  time.Time                  `json:"takenAt"`
	Accounts map[string]AccountSnapshot `json:"accounts"`
}
