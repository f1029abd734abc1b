package aggregation

import (
	"math"
	"testing"
	"time"

	"github.com/senyabanana/energy-bidding-service/internal/timewindow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const slotCount = 24

func TestParseAmount(t *testing.T) {
	assert.Equal(t, 50.5, ParseAmount("50.5", 0))
	assert.Equal(t, 40.0, ParseAmount(" 40 ", 0))
	assert.Equal(t, 0.0, ParseAmount("abc", 0))
	assert.True(t, math.IsNaN(ParseAmount("", math.NaN())))
}

func TestSlotIndex(t *testing.T) {
	assert.Equal(t, 0, SlotIndex(24, time.Date(2025, 3, 10, 0, 30, 0, 0, time.UTC)))
	assert.Equal(t, 5, SlotIndex(24, time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC)))
	assert.Equal(t, 23, SlotIndex(24, time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)))

	// Ряд из 12 слотов: два часа на слот.
	assert.Equal(t, 2, SlotIndex(12, time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC)))
}

func TestReplicateHour(t *testing.T) {
	target := time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC)

	series := Replicate(nil, timewindow.Hour, target, "50.5", math.NaN(), slotCount)
	require.Len(t, series, slotCount)
	assert.Equal(t, 50.5, series[5])
	for i, v := range series {
		if i == 5 {
			continue
		}
		assert.True(t, math.IsNaN(v), "slot %d", i)
	}
}

func TestReplicateSixHour(t *testing.T) {
	target := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)

	existing := NewSeries(slotCount, math.NaN())
	existing[10] = 77

	series := Replicate(existing, timewindow.SixHour, target, "40", math.NaN(), slotCount)
	for i := 0; i < 6; i++ {
		assert.Equal(t, 40.0, series[i], "slot %d", i)
	}
	// Слоты вне блока сохраняются, включая NaN.
	assert.Equal(t, 77.0, series[10])
	assert.True(t, math.IsNaN(series[6]))
	assert.True(t, math.IsNaN(series[23]))
}

func TestReplicateDay(t *testing.T) {
	target := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	existing := NewSeries(slotCount, 5)
	series := Replicate(existing, timewindow.Day, target, "12.5", math.NaN(), slotCount)
	for i := range series {
		assert.Equal(t, 12.5, series[i], "slot %d", i)
	}
}

func TestReplicateParseFailure(t *testing.T) {
	target := time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC)

	// На уровне Day нечитаемый ввод сбрасывает весь ряд в значение по умолчанию.
	existing := NewSeries(slotCount, 9)
	series := Replicate(existing, timewindow.Day, target, "oops", math.NaN(), slotCount)
	for i := range series {
		assert.True(t, math.IsNaN(series[i]), "slot %d", i)
	}

	// На уровнях Hour и SixHour подставляется ноль, остальные слоты целы.
	series = Replicate(existing, timewindow.Hour, target, "oops", math.NaN(), slotCount)
	assert.Equal(t, 0.0, series[5])
	assert.Equal(t, 9.0, series[4])

	series = Replicate(existing, timewindow.SixHour, target, "oops", math.NaN(), slotCount)
	assert.Equal(t, 0.0, series[0])
	assert.Equal(t, 0.0, series[5])
	assert.Equal(t, 9.0, series[6])
}

func TestReplicateLengthMismatch(t *testing.T) {
	target := time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC)

	// Ряд чужой длины не переносится, берется свежий.
	existing := []float64{1, 2, 3}
	series := Replicate(existing, timewindow.Hour, target, "8", math.NaN(), slotCount)
	require.Len(t, series, slotCount)
	assert.Equal(t, 8.0, series[5])
	assert.True(t, math.IsNaN(series[0]))
}

func TestReplicateTwelveSlots(t *testing.T) {
	target := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)

	series := Replicate(nil, timewindow.SixHour, target, "30", math.NaN(), 12)
	require.Len(t, series, 12)
	// Блок 06:00-12:00 покрывает слоты 3..5.
	for i := 3; i < 6; i++ {
		assert.Equal(t, 30.0, series[i], "slot %d", i)
	}
	assert.True(t, math.IsNaN(series[2]))
	assert.True(t, math.IsNaN(series[6]))
}
