package lifecycle

import (
	"time"

	"github.com/senyabanana/energy-bidding-service/internal/models"
)

// Append добавляет запись в конец истории заявки и возвращает обновленную заявку.
// Прежние записи не изменяются и не переупорядочиваются; таблица допустимых
// переходов между этапами намеренно не проверяется.
func Append(bid models.Bid, snap models.StatusSnapshot) models.Bid {
	history := make([]models.StatusSnapshot, len(bid.History), len(bid.History)+1)
	copy(history, bid.History)
	bid.History = append(history, snap)
	return bid
}

// LatestCleared возвращает последнюю запись истории с этапом Accepted или
// PartiallyCleared. Используется 15-минутным рынком для показа результата
// клиринга "на сутки вперед" по соответствующему часу.
func LatestCleared(bid models.Bid) (models.StatusSnapshot, bool) {
	for i := len(bid.History) - 1; i >= 0; i-- {
		snap := bid.History[i]
		if snap.Stage == models.AcceptedStage || snap.Stage == models.PartialStage {
			return snap, true
		}
	}
	return models.StatusSnapshot{}, false
}

// ZeroShaped формирует запись истории с нулевыми распределением и ценой клиринга
// в форме заявки. Реальные результаты клиринга записывает внешний процесс.
func ZeroShaped(bid models.Bid, stage models.Stage, decision models.BidDecision, ts time.Time) models.StatusSnapshot {
	snap := models.StatusSnapshot{
		Stage:     stage,
		Decision:  decision,
		Timestamp: ts,
	}
	if bid.Price.Kind == models.SeriesKind {
		snap.Allocated = models.SeriesPayload(make([]float64, len(bid.Price.Series)))
		snap.ClearingPrice = models.SeriesPayload(make([]float64, len(bid.Price.Series)))
	} else {
		snap.Allocated = models.ScalarPayload(0)
		snap.ClearingPrice = models.ScalarPayload(0)
	}
	return snap
}

// SubmittedSnapshot формирует запись о подаче заявки участником.
func SubmittedSnapshot(bid models.Bid) models.StatusSnapshot {
	return ZeroShaped(bid, models.SubmittedStage, models.PendingBid, bid.LastUpdated)
}
