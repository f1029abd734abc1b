package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadMarshalNaNAsNull(t *testing.T) {
	p := SeriesPayload([]float64{1.5, math.NaN(), 3})

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"Series","series":[1.5,null,3]}`, string(data))

	data, err = json.Marshal(ScalarPayload(math.NaN()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"Scalar"}`, string(data))
}

func TestPayloadUnmarshalNullAsNaN(t *testing.T) {
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"Series","series":[1.5,null,3]}`), &p))
	assert.Equal(t, SeriesKind, p.Kind)
	require.Len(t, p.Series, 3)
	assert.Equal(t, 1.5, p.Series[0])
	assert.True(t, math.IsNaN(p.Series[1]))

	require.NoError(t, json.Unmarshal([]byte(`{"kind":"Scalar"}`), &p))
	assert.Equal(t, ScalarKind, p.Kind)
	assert.True(t, math.IsNaN(p.Scalar))
}

func TestKindForRound(t *testing.T) {
	assert.Equal(t, SeriesKind, KindForRound(DayAhead))
	assert.Equal(t, ScalarKind, KindForRound(FifteenMinute))
	assert.Equal(t, ScalarKind, KindForRound(Compensation))
}

func TestParseRound(t *testing.T) {
	round, err := ParseRound("Compensation")
	require.NoError(t, err)
	assert.Equal(t, Compensation, round)

	_, err = ParseRound("Monthly")
	assert.Error(t, err)
}
