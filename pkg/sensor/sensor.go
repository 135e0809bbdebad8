// Package sensor flattens refresh snapshots into per-account sensor
// entities, the shape consumers like a home automation bridge expect: one
// numeric state per entity plus free-form attributes for series data.
package sensor

import (
	"fmt"

	"github.com/csgstat/csgstat/pkg/types"
)

// Class mirrors the common sensor device classes.
type Class string

const (
	ClassEnergy   Class = "energy"
	ClassMonetary Class = "monetary"
)

const (
	UnitKWH = "kWh"
	UnitCNY = "CNY"
)

// Sensor is one published entity.
type Sensor struct {
	// UniqueID is "csgstat.<account_number>.<suffix>"
	UniqueID string `json:"unique_id"`
	Name     string `json:"name"`
	Class    Class  `json:"device_class"`
	Unit     string `json:"unit"`
	// Available is false when the backing facet could not be fetched; Value
	// is nil in that case.
	Available  bool           `json:"available"`
	Value      *float64       `json:"value,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// definition maps one AccountSnapshot field onto a sensor.
type definition struct {
	suffix string
	class  Class
	value  func(s types.AccountSnapshot) types.Field[float64]
	// attrs optionally contributes an attribute rider with its own
	// tri-state (series data, the latest-day date, the ladder)
	attrs func(s types.AccountSnapshot) (key string, payload any, state types.FieldState)
}

func fieldAttr[T any](key string, f types.Field[T]) (string, any, types.FieldState) {
	if v, ok := f.Get(); ok {
		return key, v, types.FieldStateValue
	}
	return key, nil, f.State()
}

var definitions = []definition{
	{
		suffix: "balance", class: ClassMonetary,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.Balance },
	},
	{
		suffix: "arrears", class: ClassMonetary,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.Arrears },
	},
	{
		suffix: "yesterday_kwh", class: ClassEnergy,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.YesterdayKWH },
	},
	{
		suffix: "latest_day_kwh", class: ClassEnergy,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.LatestDayKWH },
		attrs: func(s types.AccountSnapshot) (string, any, types.FieldState) {
			return fieldAttr("latest_day_date", s.LatestDayDate)
		},
	},
	{
		suffix: "latest_day_cost", class: ClassMonetary,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.LatestDayCost },
	},
	{
		suffix: "this_year_kwh", class: ClassEnergy,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.ThisYearKWH },
		attrs: func(s types.AccountSnapshot) (string, any, types.FieldState) {
			return fieldAttr("this_year_by_month", s.ThisYearByMonth)
		},
	},
	{
		suffix: "this_year_cost", class: ClassMonetary,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.ThisYearCost },
	},
	{
		suffix: "this_month_kwh", class: ClassEnergy,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.ThisMonthKWH },
		attrs: func(s types.AccountSnapshot) (string, any, types.FieldState) {
			return fieldAttr("this_month_by_day", s.ThisMonthByDay)
		},
	},
	{
		suffix: "this_month_cost", class: ClassMonetary,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.ThisMonthCost },
		attrs: func(s types.AccountSnapshot) (string, any, types.FieldState) {
			return fieldAttr("ladder", s.Ladder)
		},
	},
	{
		suffix: "last_year_kwh", class: ClassEnergy,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.LastYearKWH },
		attrs: func(s types.AccountSnapshot) (string, any, types.FieldState) {
			return fieldAttr("last_year_by_month", s.LastYearByMonth)
		},
	},
	{
		suffix: "last_year_cost", class: ClassMonetary,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.LastYearCost },
	},
	{
		suffix: "last_month_kwh", class: ClassEnergy,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.LastMonthKWH },
		attrs: func(s types.AccountSnapshot) (string, any, types.FieldState) {
			return fieldAttr("last_month_by_day", s.LastMonthByDay)
		},
	},
	{
		suffix: "last_month_cost", class: ClassMonetary,
		value: func(s types.AccountSnapshot) types.Field[float64] { return s.LastMonthCost },
	},
}

func uniqueID(accountNumber, suffix string) string {
	return fmt.Sprintf("csgstat.%s.%s", accountNumber, suffix)
}

func unitFor(class Class) string {
	if class == ClassMonetary {
		return UnitCNY
	}
	return UnitKWH
}
