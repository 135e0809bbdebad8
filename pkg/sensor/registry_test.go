package sensor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csgstat/csgstat/pkg/types"
)

const acctNumber = "1234567890123456"

func snapWith(acct types.AccountSnapshot) types.RefreshSnapshot {
	return types.RefreshSnapshot{
		TakenAt:  time.Now(),
		Accounts: map[string]types.AccountSnapshot{acctNumber: acct},
	}
}

func TestRegistryPublishesValues(t *testing.T) {
	r := NewRegistry()
	r.Apply(snapWith(types.AccountSnapshot{
		Balance:        types.Value(120.50),
		YesterdayKWH:   types.Value(3.2),
		LatestDayKWH:   types.Value(6.0),
		LatestDayDate:  types.Value("2023-05-14"),
		ThisMonthByDay: types.Value([]types.DayValue{{Date: "2023-05-14", KWH: 6.0}}),
		ThisMonthKWH:   types.Value(40.0),
	}))

	bal, ok := r.Get("csgstat." + acctNumber + ".balance")
	require.True(t, ok)
	assert.True(t, bal.Available)
	assert.Equal(t, 120.50, *bal.Value)
	assert.Equal(t, ClassMonetary, bal.Class)
	assert.Equal(t, UnitCNY, bal.Unit)

	latest, ok := r.Get("csgstat." + acctNumber + ".latest_day_kwh")
	require.True(t, ok)
	assert.Equal(t, UnitKWH, latest.Unit)
	assert.Equal(t, "2023-05-14", latest.Attributes["latest_day_date"])

	// unfetched facets read unavailable
	arr, ok := r.Get("csgstat." + acctNumber + ".arrears")
	require.True(t, ok)
	assert.False(t, arr.Available)
	assert.Nil(t, arr.Value)
}

func TestRegistryUnchangedRetention(t *testing.T) {
	r := NewRegistry()
	r.Apply(snapWith(types.AccountSnapshot{
		LastMonthKWH:   types.Value(200.0),
		LastMonthByDay: types.Value([]types.DayValue{{Date: "2023-04-30", KWH: 7.0}}),
	}))

	// next cycle skips last month per the caching policy
	r.Apply(snapWith(types.AccountSnapshot{
		LastMonthKWH:   types.Unchanged[float64](),
		LastMonthByDay: types.Unchanged[[]types.DayValue](),
		Balance:        types.Value(99.0),
	}))

	s, ok := r.Get("csgstat." + acctNumber + ".last_month_kwh")
	require.True(t, ok)
	assert.True(t, s.Available)
	assert.Equal(t, 200.0, *s.Value)
	days := s.Attributes["last_month_by_day"].([]types.DayValue)
	assert.Len(t, days, 1)

	bal, _ := r.Get("csgstat." + acctNumber + ".balance")
	assert.Equal(t, 99.0, *bal.Value)
}

func TestRegistryUnavailableOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Apply(snapWith(types.AccountSnapshot{YesterdayKWH: types.Value(5.0)}))
	r.Apply(snapWith(types.AccountSnapshot{YesterdayKWH: types.Unavailable[float64]()}))

	s, ok := r.Get("csgstat." + acctNumber + ".yesterday_kwh")
	require.True(t, ok)
	assert.False(t, s.Available)
	assert.Nil(t, s.Value)
}

func TestRegistryUnchangedBeforeFirstValue(t *testing.T) {
	r := NewRegistry()
	r.Apply(snapWith(types.AccountSnapshot{
		LastYearKWH: types.Unchanged[float64](),
	}))
	s, ok := r.Get("csgstat." + acctNumber + ".last_year_kwh")
	require.True(t, ok)
	assert.False(t, s.Available)
}

func TestRegistrySensorsSorted(t *testing.T) {
	r := NewRegistry()
	r.Apply(snapWith(types.AccountSnapshot{}))
	sensors := r.Sensors()
	require.Len(t, sensors, len(definitions))
	for i := 1; i < len(sensors); i++ {
		assert.Less(t, sensors[i-1].UniqueID, sensors[i].UniqueID)
	}
}
