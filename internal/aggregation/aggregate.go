package aggregation

import (
	"strconv"
	"strings"
	"time"

	"github.com/senyabanana/energy-bidding-service/internal/timewindow"
)

const hoursPerDay = 24

// ParseAmount разбирает число из пользовательского ввода;
// при ошибке разбора возвращает значение по умолчанию.
func ParseAmount(raw string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def
	}
	return v
}

// SlotIndex возвращает индекс слота суточного ряда для момента времени.
// Индекс 0 соответствует 00:00 UTC.
func SlotIndex(slotCount int, t time.Time) int {
	return t.UTC().Hour() * slotCount / hoursPerDay
}

// NewSeries создает суточный ряд, заполненный значением по умолчанию.
func NewSeries(slotCount int, def float64) []float64 {
	series := make([]float64, slotCount)
	for i := range series {
		series[i] = def
	}
	return series
}

// Replicate переносит одно скалярное значение в нужный диапазон суточного ряда.
// Существующий ряд копируется, если его длина совпадает с числом слотов,
// иначе берется свежий ряд со значением по умолчанию. Слоты вне диапазона
// редактирования сохраняются как есть.
//
// Ошибка разбора на уровне Day сбрасывает весь ряд в значение по умолчанию;
// на более мелких уровнях подставляется ноль, чтобы не затереть остальные сутки.
func Replicate(existing []float64, level timewindow.Level, target time.Time, raw string, def float64, slotCount int) []float64 {
	series := NewSeries(slotCount, def)
	if len(existing) == slotCount {
		copy(series, existing)
	}

	switch level {
	case timewindow.Day:
		v := ParseAmount(raw, def)
		for i := range series {
			series[i] = v
		}
	case timewindow.SixHour:
		v := ParseAmount(raw, 0)
		perBlock := slotCount / 4
		block := target.UTC().Hour() / 6
		for i := block * perBlock; i < (block+1)*perBlock; i++ {
			series[i] = v
		}
	case timewindow.Hour:
		series[SlotIndex(slotCount, target)] = ParseAmount(raw, 0)
	}
	return series
}
