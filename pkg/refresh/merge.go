package refresh

import (
	"github.com/csgstat/csgstat/pkg/csg"
	"github.com/csgstat/csgstat/pkg/types"
)

// usageFacet is the result of the daily-usage endpoint for one month.
type usageFacet struct {
	ok    bool
	total float64
	byDay []types.DayValue
}

// costFacet is the result of the daily-cost endpoint for one month.
type costFacet struct {
	ok     bool
	detail csg.MonthCostDetail
}

// mergedMonth reconciles the two per-month facets.
type mergedMonth struct {
	kwh   types.Field[float64]
	cost  types.Field[float64]
	byDay types.Field[[]types.DayValue]
}

// mergeMonth reconciles the usage and cost facets for the same month. The two
// endpoints disagree routinely: the cost series lags the usage series by a
// few days and the cost endpoint's declared total can lag the usage one.
// Whichever by-day series is longer wins, with the cost column spliced in by
// day index when the usage series is the longer one. For totals an available
// value beats an unavailable one and the larger value beats the smaller.
func mergeMonth(usage usageFacet, cost costFacet) mergedMonth {
	var m mergedMonth

	switch {
	case !usage.ok && !cost.ok:
		m.byDay = types.Unavailable[[]types.DayValue]()
	case !usage.ok:
		m.byDay = types.Value(cost.detail.ByDay)
	case !cost.ok || len(cost.detail.ByDay) <= len(usage.byDay):
		days := make([]types.DayValue, len(usage.byDay))
		copy(days, usage.byDay)
		if cost.ok {
			for i := range cost.detail.ByDay {
				if i >= len(days) {
					break
				}
				days[i].Cost = cost.detail.ByDay[i].Cost
			}
		}
		m.byDay = types.Value(days)
	default:
		// cost series is the longer one and already carries both columns
		m.byDay = types.Value(cost.detail.ByDay)
	}

	m.kwh = mergeKWHTotals(usage, cost)

	if cost.ok && cost.detail.TotalCost != nil {
		m.cost = types.Value(*cost.detail.TotalCost)
	} else {
		m.cost = types.Unavailable[float64]()
	}

	return m
}

func mergeKWHTotals(usage usageFacet, cost costFacet) types.Field[float64] {
	var costTotal *float64
	if cost.ok {
		costTotal = cost.detail.TotalKWH
	}
	switch {
	case usage.ok && costTotal != nil:
		if *costTotal > usage.total {
			return types.Value(*costTotal)
		}
		return types.Value(usage.total)
	case usage.ok:
		return types.Value(usage.total)
	case costTotal != nil:
		return types.Value(*costTotal)
	}
	return types.Unavailable[float64]()
}

// deriveLatestDay fills the latest-day fields from the merged this-month
// series, falling back to last month early in a month when the current
// month's series has not populated yet.
func deriveLatestDay(snap *types.AccountSnapshot) {
	snap.LatestDayKWH = types.Unavailable[float64]()
	snap.LatestDayCost = types.Unavailable[float64]()
	snap.LatestDayDate = types.Unavailable[string]()

	for _, field := range []types.Field[[]types.DayValue]{snap.ThisMonthByDay, snap.LastMonthByDay} {
		days, ok := field.Get()
		if !ok || len(days) == 0 {
			continue
		}
		last := days[len(days)-1]
		snap.LatestDayKWH = types.Value(last.KWH)
		snap.LatestDayDate = types.Value(last.Date)
		if last.Cost != nil {
			snap.LatestDayCost = types.Value(*last.Cost)
		}
		return
	}
}
