package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldStates(t *testing.T) {
	v := Value(12.5)
	assert.Equal(t, FieldStateValue, v.State())
	got, ok := v.Get()
	assert.True(t, ok)
	assert.Equal(t, 12.5, got)

	u := Unavailable[float64]()
	assert.Equal(t, FieldStateUnavailable, u.State())
	_, ok = u.Get()
	assert.False(t, ok)

	c := Unchanged[float64]()
	assert.Equal(t, FieldStateUnchanged, c.State())
	_, ok = c.Get()
	assert.False(t, ok)

	// the zero value reads as unavailable
	var z Field[float64]
	assert.Equal(t, FieldStateUnavailable, z.State())
}

func TestFieldMustGet(t *testing.T) {
	assert.Equal(t, "a", Value("a").MustGet())
	assert.Equal(t, "", Unavailable[string]().MustGet())
}

func TestFieldJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(Value([]DayValue{{Date: "2023-05-01", KWH: 3.2}}))
	require.NoError(t, err)
	var f Field[[]DayValue]
	require.NoError(t, json.Unmarshal(b, &f))
	assert.True(t, f.IsValue())
	days := f.MustGet()
	require.Len(t, days, 1)
	assert.Equal(t, "2023-05-01", days[0].Date)

	b, err = json.Marshal(Unchanged[float64]())
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"unchanged"}`, string(b))
	var g Field[float64]
	require.NoError(t, json.Unmarshal(b, &g))
	assert.True(t, g.IsUnchanged())

	b, err = json.Marshal(Unavailable[float64]())
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"unavailable"}`, string(b))
}
