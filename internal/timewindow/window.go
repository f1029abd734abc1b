package timewindow

import (
	"fmt"
	"time"
)

type Level string // Гранулярность редактирования заявки

const (
	Day        Level = "Day"        // Редактирование на весь день
	SixHour    Level = "SixHour"    // Редактирование 6-часового блока
	Hour       Level = "Hour"       // Редактирование одного часа
	FifteenMin Level = "FifteenMin" // Редактирование 15-минутного периода
)

// WindowConfig - параметры окна подачи заявок.
type WindowConfig struct {
	OpenHour       int  // Час открытия окна (UTC) для заявок "на сутки вперед"
	CloseHour      int  // Час закрытия окна (UTC) для заявок "на сутки вперед"
	AlwaysEditable bool // Принудительно разрешает редактирование (для тестовых стендов)
}

// ParseLevel разбирает гранулярность из строки запроса.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case Day, SixHour, Hour, FifteenMin:
		return Level(s), nil
	}
	return "", fmt.Errorf("unknown level %q", s)
}

// BucketDuration возвращает длительность периода для гранулярности.
func BucketDuration(level Level) time.Duration {
	switch level {
	case Day:
		return 24 * time.Hour
	case SixHour:
		return 6 * time.Hour
	case Hour:
		return time.Hour
	default:
		return 15 * time.Minute
	}
}

// PeriodStart округляет момент вниз до начала периода в UTC.
func PeriodStart(level Level, t time.Time) time.Time {
	t = t.UTC()
	switch level {
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case SixHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour()-t.Hour()%6, 0, 0, 0, time.UTC)
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()-t.Minute()%15, 0, 0, time.UTC)
	}
}

// PeriodEnd возвращает последний момент внутри периода (начало + длительность - 1мс).
func PeriodEnd(level Level, t time.Time) time.Time {
	return PeriodStart(level, t).Add(BucketDuration(level) - time.Millisecond)
}

// Window возвращает границы окна подачи [open, close) для периода поставки.
// Для Day/SixHour/Hour окно лежит в календарных сутках накануне дня поставки,
// для FifteenMin - за [25мин, 15мин) до начала периода.
func Window(level Level, periodStart time.Time, cfg WindowConfig) (time.Time, time.Time) {
	if level == FifteenMin {
		return periodStart.Add(-25 * time.Minute), periodStart.Add(-15 * time.Minute)
	}
	dayStart := PeriodStart(Day, periodStart)
	prior := dayStart.AddDate(0, 0, -1)
	open := prior.Add(time.Duration(cfg.OpenHour) * time.Hour)
	close := prior.Add(time.Duration(cfg.CloseHour) * time.Hour)
	return open, close
}

// IsEditable проверяет, открыто ли окно подачи в момент now.
// Нижняя граница включается, верхняя - нет.
func IsEditable(level Level, periodStart, now time.Time, cfg WindowConfig) bool {
	if cfg.AlwaysEditable {
		return true
	}
	open, close := Window(level, periodStart, cfg)
	return !now.Before(open) && now.Before(close)
}
