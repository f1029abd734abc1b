package services

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/senyabanana/energy-bidding-service/internal/aggregation"
	"github.com/senyabanana/energy-bidding-service/internal/lifecycle"
	"github.com/senyabanana/energy-bidding-service/internal/models"
	"github.com/senyabanana/energy-bidding-service/internal/repository"
	"github.com/senyabanana/energy-bidding-service/internal/router/config"
	"github.com/senyabanana/energy-bidding-service/internal/timewindow"
	"github.com/senyabanana/energy-bidding-service/internal/utils"
)

// SubmissionService - сервис подачи заявок. Часы инъецируются полем Now,
// чтобы проверка окна была детерминированной в тестах.
type SubmissionService struct {
	Repo      repository.BidRepository
	Now       func() time.Time
	SlotCount int
	Window    timewindow.WindowConfig
}

// NewSubmissionService создает новый экземпляр SubmissionService.
func NewSubmissionService(repo repository.BidRepository, cfg config.Config) *SubmissionService {
	return &SubmissionService{
		Repo:      repo,
		Now:       time.Now,
		SlotCount: cfg.DaySlotCount,
		Window: timewindow.WindowConfig{
			OpenHour:       cfg.WindowOpenHour,
			CloseHour:      cfg.WindowCloseHour,
			AlwaysEditable: cfg.EditOverride,
		},
	}
}

// levelAllowed проверяет сочетание рынка и гранулярности.
func levelAllowed(round models.Round, level timewindow.Level) bool {
	if round == models.DayAhead {
		return level == timewindow.Day || level == timewindow.SixHour || level == timewindow.Hour
	}
	return level == timewindow.FifteenMin
}

// recordKey возвращает начало периода, которым адресуется запись заявки.
// Для рынка "на сутки вперед" это всегда начало суток независимо от
// гранулярности редактирования.
func recordKey(round models.Round, target time.Time) time.Time {
	if round == models.DayAhead {
		return timewindow.PeriodStart(timewindow.Day, target)
	}
	return timewindow.PeriodStart(timewindow.FifteenMin, target)
}

// Submit обрабатывает подачу заявки: проверяет окно, сливает правку в
// действующую запись периода или создает новую.
func (s *SubmissionService) Submit(ctx context.Context, req models.SubmissionRequest) (*models.SubmissionResult, error) {
	if req.InfrastructureID == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "missing required field: infrastructureId")
	}
	if _, err := models.ParseRound(string(req.Round)); err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "invalid round, must be 'DayAhead', 'FifteenMinute' or 'Compensation'")
	}
	if _, err := timewindow.ParseLevel(string(req.Level)); err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "invalid level, must be 'Day', 'SixHour', 'Hour' or 'FifteenMin'")
	}
	if !levelAllowed(req.Round, req.Level) {
		return nil, models.NewErrorResponse(http.StatusBadRequest, fmt.Sprintf("level %s is not allowed for round %s", req.Level, req.Round))
	}
	if req.Target.IsZero() {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "missing required field: target")
	}

	infraExists, err := s.Repo.InfrastructureExists(ctx, req.InfrastructureID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to check infrastructure existence")
	}
	if !infraExists {
		return nil, models.NewErrorResponse(http.StatusNotFound, "infrastructure not found")
	}

	periodStart := recordKey(req.Round, req.Target)
	now := s.Now().UTC()
	if !timewindow.IsEditable(req.Level, periodStart, now, s.Window) {
		open, _ := timewindow.Window(req.Level, periodStart, s.Window)
		if now.Before(open) {
			return nil, models.NewErrorResponse(http.StatusForbidden, "bid window is not open yet")
		}
		return nil, models.NewErrorResponse(http.StatusForbidden, "bid window is closed")
	}

	if req.Round == models.DayAhead {
		return s.submitSeries(ctx, req, periodStart, now)
	}
	return s.submitScalar(ctx, req, periodStart, now)
}

// submitSeries сливает правку в суточный ряд заявки рынка "на сутки вперед".
func (s *SubmissionService) submitSeries(ctx context.Context, req models.SubmissionRequest, periodStart, now time.Time) (*models.SubmissionResult, error) {
	current, err := s.Repo.FindCurrentSeries(ctx, req.InfrastructureID, req.Round, periodStart, s.SlotCount)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to locate current bid")
	}

	var existingPrice, existingValue []float64
	if current != nil {
		existingPrice = current.Price.Series
		existingValue = current.Value.Series
	}
	price := aggregation.Replicate(existingPrice, req.Level, req.Target, req.RawPrice, math.NaN(), s.SlotCount)
	value := aggregation.Replicate(existingValue, req.Level, req.Target, req.RawValue, 0, s.SlotCount)

	if current != nil {
		current.Price = models.SeriesPayload(price)
		current.Value = models.SeriesPayload(value)
		current.LastUpdated = now
		return s.persistUpdate(ctx, current)
	}

	newBid := models.Bid{
		ID:               repository.NewBidID(),
		InfrastructureID: req.InfrastructureID,
		Round:            req.Round,
		PeriodStart:      periodStart,
		Price:            models.SeriesPayload(price),
		Value:            models.SeriesPayload(value),
		SubmittedAt:      now,
		LastUpdated:      now,
	}
	return s.persistNew(ctx, newBid)
}

// submitScalar заменяет скалярное значение заявки 15-минутного или
// компенсационного рынка.
func (s *SubmissionService) submitScalar(ctx context.Context, req models.SubmissionRequest, periodStart, now time.Time) (*models.SubmissionResult, error) {
	current, err := s.Repo.FindCurrentScalar(ctx, req.InfrastructureID, req.Round, periodStart)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to locate current bid")
	}

	price := aggregation.ParseAmount(req.RawPrice, math.NaN())
	value := aggregation.ParseAmount(req.RawValue, 0)

	if current != nil {
		current.Price = models.ScalarPayload(price)
		current.Value = models.ScalarPayload(value)
		current.LastUpdated = now
		return s.persistUpdate(ctx, current)
	}

	newBid := models.Bid{
		ID:               repository.NewBidID(),
		InfrastructureID: req.InfrastructureID,
		Round:            req.Round,
		PeriodStart:      periodStart,
		Price:            models.ScalarPayload(price),
		Value:            models.ScalarPayload(value),
		SubmittedAt:      now,
		LastUpdated:      now,
	}
	return s.persistNew(ctx, newBid)
}

// persistUpdate сохраняет правку существующей записи и дописывает историю.
func (s *SubmissionService) persistUpdate(ctx context.Context, bid *models.Bid) (*models.SubmissionResult, error) {
	snap := lifecycle.SubmittedSnapshot(*bid)
	*bid = lifecycle.Append(*bid, snap)
	if err := s.Repo.UpdateBidPayload(ctx, bid); err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to save bid")
	}
	if err := s.Repo.AppendSnapshot(ctx, bid.ID, snap); err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to save bid history")
	}
	return &models.SubmissionResult{
		BidID:            bid.ID,
		InfrastructureID: bid.InfrastructureID,
		Round:            bid.Round,
		PeriodStart:      bid.PeriodStart,
		Created:          false,
	}, nil
}

// persistNew сохраняет новую запись заявки с начальной историей.
func (s *SubmissionService) persistNew(ctx context.Context, bid models.Bid) (*models.SubmissionResult, error) {
	bid = lifecycle.Append(bid, lifecycle.SubmittedSnapshot(bid))
	if err := s.Repo.InsertBid(ctx, &bid); err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to save bid")
	}
	return &models.SubmissionResult{
		BidID:            bid.ID,
		InfrastructureID: bid.InfrastructureID,
		Round:            bid.Round,
		PeriodStart:      bid.PeriodStart,
		Created:          true,
	}, nil
}

// FetchForDisplay возвращает действующие цену и объем для формы подачи
// вместе с признаком редактируемости. Для закрытого 15-минутного периода
// дополнительно возвращается результат клиринга "на сутки вперед" по
// соответствующему часу.
func (s *SubmissionService) FetchForDisplay(ctx context.Context, infraID, roundStr, levelStr, targetStr string) (*models.DisplayData, error) {
	if infraID == "" || roundStr == "" || levelStr == "" || targetStr == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "missing required query parameters: infrastructureId, round, level or target")
	}
	round, err := models.ParseRound(roundStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "invalid round, must be 'DayAhead', 'FifteenMinute' or 'Compensation'")
	}
	level, err := timewindow.ParseLevel(levelStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "invalid level, must be 'Day', 'SixHour', 'Hour' or 'FifteenMin'")
	}
	if !levelAllowed(round, level) {
		return nil, models.NewErrorResponse(http.StatusBadRequest, fmt.Sprintf("level %s is not allowed for round %s", level, round))
	}
	target, err := utils.ParseInstant(targetStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	periodStart := recordKey(round, target)
	now := s.Now().UTC()
	open, close := timewindow.Window(level, periodStart, s.Window)
	display := &models.DisplayData{
		Editable:    timewindow.IsEditable(level, periodStart, now, s.Window),
		WindowOpen:  open,
		WindowClose: close,
	}

	if round == models.DayAhead {
		current, err := s.Repo.FindCurrentSeries(ctx, infraID, round, periodStart, s.SlotCount)
		if err != nil {
			return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to locate current bid")
		}
		if current != nil {
			idx := aggregation.SlotIndex(s.SlotCount, target)
			display.Price = models.Float64Ptr(current.Price.Series[idx])
			display.Value = models.Float64Ptr(current.Value.Series[idx])
		}
		return display, nil
	}

	current, err := s.Repo.FindCurrentScalar(ctx, infraID, round, periodStart)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to locate current bid")
	}
	if current != nil {
		display.Price = models.Float64Ptr(current.Price.Scalar)
		display.Value = models.Float64Ptr(current.Value.Scalar)
	}

	if !display.Editable {
		s.attachCleared(ctx, display, infraID, target)
	}
	return display, nil
}

// attachCleared подставляет в ответ результат клиринга "на сутки вперед"
// для часа, содержащего целевой период. Отсутствие результата не ошибка.
func (s *SubmissionService) attachCleared(ctx context.Context, display *models.DisplayData, infraID string, target time.Time) {
	dayStart := timewindow.PeriodStart(timewindow.Day, target)
	dayAhead, err := s.Repo.FindCurrentSeries(ctx, infraID, models.DayAhead, dayStart, s.SlotCount)
	if err != nil || dayAhead == nil {
		return
	}
	snap, ok := lifecycle.LatestCleared(*dayAhead)
	if !ok {
		return
	}
	idx := aggregation.SlotIndex(s.SlotCount, target)
	if idx < len(snap.Allocated.Series) {
		display.ClearedAllocation = models.Float64Ptr(snap.Allocated.Series[idx])
	}
	if idx < len(snap.ClearingPrice.Series) {
		display.ClearedPrice = models.Float64Ptr(snap.ClearingPrice.Series[idx])
	}
}

// GetBidStatus возвращает последнюю запись истории заявки.
func (s *SubmissionService) GetBidStatus(ctx context.Context, bidID string) (*models.StatusSnapshot, error) {
	bid, err := s.getBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if len(bid.History) == 0 {
		return nil, models.NewErrorResponse(http.StatusNotFound, "bid has no history")
	}
	latest := bid.History[len(bid.History)-1]
	return &latest, nil
}

// GetBidHistory возвращает историю заявки, от старых записей к новым.
func (s *SubmissionService) GetBidHistory(ctx context.Context, bidID string) ([]models.StatusSnapshot, error) {
	bid, err := s.getBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	return bid.History, nil
}

// RetractBid фиксирует отзыв заявки производителем. Запись не удаляется:
// отзыв - это новая запись истории.
func (s *SubmissionService) RetractBid(ctx context.Context, bidID string) (*models.Bid, error) {
	bid, err := s.getBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	snap := lifecycle.ZeroShaped(*bid, models.RetractionStage, models.PendingBid, s.Now().UTC())
	updated := lifecycle.Append(*bid, snap)
	if err := s.Repo.AppendSnapshot(ctx, bid.ID, snap); err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to save bid history")
	}
	return &updated, nil
}

// RecordClearing записывает результат клиринга от внешнего процесса.
// Доступно только администраторам рынка; форма распределения обязана
// совпадать с формой заявки.
func (s *SubmissionService) RecordClearing(ctx context.Context, bidID, username string, req models.ClearingRequest) (*models.Bid, error) {
	if username == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "username is required")
	}

	isAdmin, err := s.Repo.ParticipantIsAdmin(ctx, username)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to check participant category")
	}
	if !isAdmin {
		return nil, models.NewErrorResponse(http.StatusForbidden, "only market administrators may record clearing results")
	}

	allowedStages := []models.Stage{models.AcceptedStage, models.PartialStage, models.RejectedStage, models.CompensationStage}
	if !utils.ContainsStage(allowedStages, req.Stage) {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "invalid stage, must be 'Accepted', 'PartiallyCleared', 'Rejected' or 'Compensation'")
	}
	switch req.Decision {
	case models.PendingBid, models.ApprovedBid, models.RejectedBid:
	default:
		return nil, models.NewErrorResponse(http.StatusBadRequest, "invalid decision, must be 'Pending', 'Approved' or 'Rejected'")
	}

	bid, err := s.getBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	wantKind := models.KindForRound(bid.Round)
	if req.Allocated.Kind != wantKind || req.ClearingPrice.Kind != wantKind {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "allocation shape does not match bid payload")
	}
	if wantKind == models.SeriesKind &&
		(len(req.Allocated.Series) != len(bid.Price.Series) || len(req.ClearingPrice.Series) != len(bid.Price.Series)) {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "allocation series length does not match bid payload")
	}

	snap := models.StatusSnapshot{
		Stage:         req.Stage,
		Decision:      req.Decision,
		Timestamp:     s.Now().UTC(),
		Allocated:     req.Allocated,
		ClearingPrice: req.ClearingPrice,
	}
	updated := lifecycle.Append(*bid, snap)
	if err := s.Repo.AppendSnapshot(ctx, bid.ID, snap); err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to save bid history")
	}
	return &updated, nil
}

// ListInfrastructureBids возвращает список заявок по объекту инфраструктуры.
func (s *SubmissionService) ListInfrastructureBids(ctx context.Context, infraID, limitStr, offsetStr string) ([]models.Bid, error) {
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, err.Error())
	}
	if infraID == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "missing required path parameter: infrastructureId")
	}

	infraExists, err := s.Repo.InfrastructureExists(ctx, infraID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to check infrastructure existence")
	}
	if !infraExists {
		return nil, models.NewErrorResponse(http.StatusNotFound, "infrastructure not found")
	}

	bids, err := s.Repo.ListInfrastructureBids(ctx, infraID, limit, offset)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to retrieve bids")
	}
	return bids, nil
}

// getBid загружает заявку или возвращает ошибку 404.
func (s *SubmissionService) getBid(ctx context.Context, bidID string) (*models.Bid, error) {
	if bidID == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "missing required path parameter: bidId")
	}
	bid, err := s.Repo.GetBidByID(ctx, bidID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to retrieve bid")
	}
	if bid == nil {
		return nil, models.NewErrorResponse(http.StatusNotFound, "bid not found")
	}
	return bid, nil
}
