package services

import (
	"context"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/senyabanana/energy-bidding-service/internal/models"
	"github.com/senyabanana/energy-bidding-service/internal/timewindow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBidRepository - репозиторий в памяти для тестов сервиса.
type fakeBidRepository struct {
	bids      map[string]*models.Bid
	infra     map[string]bool
	admins    map[string]bool
	snapshots map[string][]models.StatusSnapshot
}

func newFakeRepo() *fakeBidRepository {
	return &fakeBidRepository{
		bids:      make(map[string]*models.Bid),
		infra:     map[string]bool{"plant-1": true},
		admins:    map[string]bool{"operator": true, "viewer": false},
		snapshots: make(map[string][]models.StatusSnapshot),
	}
}

func (f *fakeBidRepository) findCurrent(infraID string, round models.Round, periodStart time.Time) *models.Bid {
	var latest *models.Bid
	for _, b := range f.bids {
		if b.InfrastructureID != infraID || b.Round != round || !b.PeriodStart.Equal(periodStart) {
			continue
		}
		if latest == nil || b.LastUpdated.After(latest.LastUpdated) {
			latest = b
		}
	}
	if latest == nil {
		return nil
	}
	c := *latest
	c.History = append([]models.StatusSnapshot(nil), f.snapshots[latest.ID]...)
	return &c
}

func (f *fakeBidRepository) FindCurrentSeries(_ context.Context, infraID string, round models.Round, dayStart time.Time, slotCount int) (*models.Bid, error) {
	b := f.findCurrent(infraID, round, dayStart)
	if b == nil || len(b.Price.Series) != slotCount {
		return nil, nil
	}
	return b, nil
}

func (f *fakeBidRepository) FindCurrentScalar(_ context.Context, infraID string, round models.Round, periodStart time.Time) (*models.Bid, error) {
	return f.findCurrent(infraID, round, periodStart), nil
}

func (f *fakeBidRepository) GetBidByID(_ context.Context, bidID string) (*models.Bid, error) {
	b, ok := f.bids[bidID]
	if !ok {
		return nil, nil
	}
	c := *b
	c.History = append([]models.StatusSnapshot(nil), f.snapshots[bidID]...)
	return &c, nil
}

func (f *fakeBidRepository) GetHistory(_ context.Context, bidID string) ([]models.StatusSnapshot, error) {
	return f.snapshots[bidID], nil
}

func (f *fakeBidRepository) ListInfrastructureBids(_ context.Context, infraID string, limit, offset int) ([]models.Bid, error) {
	var out []models.Bid
	for _, b := range f.bids {
		if b.InfrastructureID == infraID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBidRepository) InsertBid(_ context.Context, bid *models.Bid) error {
	c := *bid
	f.bids[bid.ID] = &c
	f.snapshots[bid.ID] = append(f.snapshots[bid.ID], bid.History...)
	return nil
}

func (f *fakeBidRepository) UpdateBidPayload(_ context.Context, bid *models.Bid) error {
	c := *bid
	f.bids[bid.ID] = &c
	return nil
}

func (f *fakeBidRepository) AppendSnapshot(_ context.Context, bidID string, snap models.StatusSnapshot) error {
	f.snapshots[bidID] = append(f.snapshots[bidID], snap)
	return nil
}

func (f *fakeBidRepository) InfrastructureExists(_ context.Context, infraID string) (bool, error) {
	return f.infra[infraID], nil
}

func (f *fakeBidRepository) ParticipantIsAdmin(_ context.Context, username string) (bool, error) {
	return f.admins[username], nil
}

func newTestService(repo *fakeBidRepository, now time.Time) *SubmissionService {
	return &SubmissionService{
		Repo:      repo,
		Now:       func() time.Time { return now },
		SlotCount: 24,
		Window:    timewindow.WindowConfig{OpenHour: 14, CloseHour: 17},
	}
}

func statusCode(t *testing.T, err error) int {
	t.Helper()
	resp, ok := err.(*models.ErrorResponse)
	require.True(t, ok, "expected *models.ErrorResponse, got %T", err)
	return resp.StatusCode
}

func dayAheadRequest(level timewindow.Level, target time.Time, price, value string) models.SubmissionRequest {
	return models.SubmissionRequest{
		InfrastructureID: "plant-1",
		Round:            models.DayAhead,
		Level:            level,
		Target:           target,
		RawPrice:         price,
		RawValue:         value,
	}
}

func TestSubmitValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC))
	target := time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC)

	_, err := svc.Submit(context.Background(), models.SubmissionRequest{Round: models.DayAhead, Level: timewindow.Hour, Target: target})
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	req := dayAheadRequest(timewindow.Hour, target, "10", "5")
	req.Round = "Weekly"
	_, err = svc.Submit(context.Background(), req)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	req = dayAheadRequest(timewindow.Hour, target, "10", "5")
	req.Level = "Minute"
	_, err = svc.Submit(context.Background(), req)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	// 15-минутная гранулярность не сочетается с рынком "на сутки вперед".
	_, err = svc.Submit(context.Background(), dayAheadRequest(timewindow.FifteenMin, target, "10", "5"))
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	req = dayAheadRequest(timewindow.Hour, time.Time{}, "10", "5")
	_, err = svc.Submit(context.Background(), req)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	req = dayAheadRequest(timewindow.Hour, target, "10", "5")
	req.InfrastructureID = "unknown"
	_, err = svc.Submit(context.Background(), req)
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))
}

func TestSubmitOutsideWindow(t *testing.T) {
	repo := newFakeRepo()
	target := time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC)

	// До открытия окна.
	svc := newTestService(repo, time.Date(2025, 3, 9, 13, 59, 0, 0, time.UTC))
	_, err := svc.Submit(context.Background(), dayAheadRequest(timewindow.Hour, target, "10", "5"))
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, statusCode(t, err))
	assert.Contains(t, err.Error(), "not open yet")

	// После закрытия.
	svc = newTestService(repo, time.Date(2025, 3, 9, 17, 0, 0, 0, time.UTC))
	_, err = svc.Submit(context.Background(), dayAheadRequest(timewindow.Hour, target, "10", "5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	// Отказ не оставляет следов в хранилище.
	assert.Empty(t, repo.bids)
	assert.Empty(t, repo.snapshots)
}

func TestSubmitCreatesThenMerges(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC))
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	res, err := svc.Submit(context.Background(), dayAheadRequest(timewindow.Hour, day.Add(5*time.Hour), "50.5", "100"))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, day, res.PeriodStart)

	res2, err := svc.Submit(context.Background(), dayAheadRequest(timewindow.SixHour, day.Add(20*time.Hour), "40", "30"))
	require.NoError(t, err)
	assert.False(t, res2.Created)
	assert.Equal(t, res.BidID, res2.BidID)

	// Одна запись на период поставки, обе подачи в истории.
	require.Len(t, repo.bids, 1)
	require.Len(t, repo.snapshots[res.BidID], 2)
	assert.Equal(t, models.SubmittedStage, repo.snapshots[res.BidID][1].Stage)

	bid := repo.bids[res.BidID]
	require.Len(t, bid.Price.Series, 24)
	assert.Equal(t, 50.5, bid.Price.Series[5])
	for i := 18; i < 24; i++ {
		assert.Equal(t, 40.0, bid.Price.Series[i], "slot %d", i)
	}
	assert.True(t, math.IsNaN(bid.Price.Series[0]))
	assert.Equal(t, 100.0, bid.Value.Series[5])
	assert.Equal(t, 0.0, bid.Value.Series[0])
}

func TestSubmitScalarRound(t *testing.T) {
	repo := newFakeRepo()
	target := time.Date(2025, 3, 10, 12, 15, 0, 0, time.UTC)
	svc := newTestService(repo, target.Add(-20*time.Minute))

	req := models.SubmissionRequest{
		InfrastructureID: "plant-1",
		Round:            models.FifteenMinute,
		Level:            timewindow.FifteenMin,
		Target:           target,
		RawPrice:         "25.5",
		RawValue:         "10",
	}
	res, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, target, res.PeriodStart)

	bid := repo.bids[res.BidID]
	assert.Equal(t, models.ScalarKind, bid.Price.Kind)
	assert.Equal(t, 25.5, bid.Price.Scalar)

	// Повторная подача заменяет значение в той же записи.
	req.RawPrice = "26"
	res2, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res2.Created)
	assert.Equal(t, 26.0, repo.bids[res.BidID].Price.Scalar)
}

func TestFetchForDisplay(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC))
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.Submit(context.Background(), dayAheadRequest(timewindow.Hour, day.Add(5*time.Hour), "50.5", "100"))
	require.NoError(t, err)

	display, err := svc.FetchForDisplay(context.Background(), "plant-1", "DayAhead", "Hour", "2025-03-10T05:00:00Z")
	require.NoError(t, err)
	assert.True(t, display.Editable)
	require.NotNil(t, display.Price)
	assert.Equal(t, 50.5, *display.Price)

	// Незатронутый час отдает null-цену.
	display, err = svc.FetchForDisplay(context.Background(), "plant-1", "DayAhead", "Hour", "2025-03-10T07:00:00Z")
	require.NoError(t, err)
	assert.Nil(t, display.Price)

	_, err = svc.FetchForDisplay(context.Background(), "plant-1", "DayAhead", "", "2025-03-10T05:00:00Z")
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))
}

func TestFetchForDisplayAttachesCleared(t *testing.T) {
	repo := newFakeRepo()
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	svc := newTestService(repo, time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC))
	res, err := svc.Submit(context.Background(), dayAheadRequest(timewindow.Day, day, "20", "50"))
	require.NoError(t, err)

	alloc := make([]float64, 24)
	price := make([]float64, 24)
	alloc[12], price[12] = 45, 21.5
	require.NoError(t, repo.AppendSnapshot(context.Background(), res.BidID, models.StatusSnapshot{
		Stage:         models.AcceptedStage,
		Decision:      models.ApprovedBid,
		Timestamp:     time.Date(2025, 3, 9, 18, 0, 0, 0, time.UTC),
		Allocated:     models.SeriesPayload(alloc),
		ClearingPrice: models.SeriesPayload(price),
	}))

	// Окно 15-минутного периода 12:15 уже закрыто в 12:05.
	svc = newTestService(repo, day.Add(12*time.Hour+5*time.Minute))
	display, err := svc.FetchForDisplay(context.Background(), "plant-1", "FifteenMinute", "FifteenMin", "2025-03-10T12:15:00Z")
	require.NoError(t, err)
	assert.False(t, display.Editable)
	require.NotNil(t, display.ClearedAllocation)
	assert.Equal(t, 45.0, *display.ClearedAllocation)
	require.NotNil(t, display.ClearedPrice)
	assert.Equal(t, 21.5, *display.ClearedPrice)
}

func TestRetractBid(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC))
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	res, err := svc.Submit(context.Background(), dayAheadRequest(timewindow.Day, day, "20", "50"))
	require.NoError(t, err)

	bid, err := svc.RetractBid(context.Background(), res.BidID)
	require.NoError(t, err)
	last := bid.History[len(bid.History)-1]
	assert.Equal(t, models.RetractionStage, last.Stage)
	assert.Equal(t, models.SeriesKind, last.Allocated.Kind)

	_, err = svc.RetractBid(context.Background(), "missing")
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))
}

func TestRecordClearing(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC))
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	res, err := svc.Submit(context.Background(), dayAheadRequest(timewindow.Day, day, "20", "50"))
	require.NoError(t, err)

	req := models.ClearingRequest{
		Stage:         models.AcceptedStage,
		Decision:      models.ApprovedBid,
		Allocated:     models.SeriesPayload(make([]float64, 24)),
		ClearingPrice: models.SeriesPayload(make([]float64, 24)),
	}

	// Только администратор рынка может записать результат.
	_, err = svc.RecordClearing(context.Background(), res.BidID, "viewer", req)
	assert.Equal(t, http.StatusForbidden, statusCode(t, err))

	_, err = svc.RecordClearing(context.Background(), res.BidID, "", req)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	badStage := req
	badStage.Stage = models.SubmittedStage
	_, err = svc.RecordClearing(context.Background(), res.BidID, "operator", badStage)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	badShape := req
	badShape.Allocated = models.ScalarPayload(5)
	_, err = svc.RecordClearing(context.Background(), res.BidID, "operator", badShape)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	badLen := req
	badLen.Allocated = models.SeriesPayload(make([]float64, 12))
	_, err = svc.RecordClearing(context.Background(), res.BidID, "operator", badLen)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	bid, err := svc.RecordClearing(context.Background(), res.BidID, "operator", req)
	require.NoError(t, err)
	last := bid.History[len(bid.History)-1]
	assert.Equal(t, models.AcceptedStage, last.Stage)
	assert.Equal(t, models.ApprovedBid, last.Decision)

	status, err := svc.GetBidStatus(context.Background(), res.BidID)
	require.NoError(t, err)
	assert.Equal(t, models.AcceptedStage, status.Stage)
}
