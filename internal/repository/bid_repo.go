package repository

import (
	"context"
	"errors"
	"time"

	"github.com/senyabanana/energy-bidding-service/internal/models"
	"github.com/senyabanana/energy-bidding-service/internal/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BidRepository - интерфейс для работы с заявками.
type BidRepository interface {
	FindCurrentSeries(ctx context.Context, infraID string, round models.Round, dayStart time.Time, slotCount int) (*models.Bid, error)
	FindCurrentScalar(ctx context.Context, infraID string, round models.Round, periodStart time.Time) (*models.Bid, error)
	GetBidByID(ctx context.Context, bidID string) (*models.Bid, error)
	GetHistory(ctx context.Context, bidID string) ([]models.StatusSnapshot, error)
	ListInfrastructureBids(ctx context.Context, infraID string, limit, offset int) ([]models.Bid, error)
	InsertBid(ctx context.Context, bid *models.Bid) error
	UpdateBidPayload(ctx context.Context, bid *models.Bid) error
	AppendSnapshot(ctx context.Context, bidID string, snap models.StatusSnapshot) error
	InfrastructureExists(ctx context.Context, infraID string) (bool, error)
	ParticipantIsAdmin(ctx context.Context, username string) (bool, error)
}

// PostgresBidRepository - реализация BidRepository для базы данных.
type PostgresBidRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresBidRepository создает новый экземпляр PostgresBidRepository.
func NewPostgresBidRepository(db *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{DB: db}
}

// NewBidID генерирует непрозрачный идентификатор новой заявки.
func NewBidID() string {
	return uuid.New().String()
}

const bidColumns = `id, infrastructure_id, round, period_start, price_scalar, value_scalar, price_series, value_series, submitted_at, last_updated`

// scanBid читает одну строку таблицы bid и собирает форму значения по рынку.
func scanBid(row pgx.Row) (*models.Bid, error) {
	var (
		bid                      models.Bid
		priceScalar, valueScalar *float64
		priceSeries, valueSeries []float64
	)
	err := row.Scan(
		&bid.ID,
		&bid.InfrastructureID,
		&bid.Round,
		&bid.PeriodStart,
		&priceScalar,
		&valueScalar,
		&priceSeries,
		&valueSeries,
		&bid.SubmittedAt,
		&bid.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	if models.KindForRound(bid.Round) == models.SeriesKind {
		bid.Price = models.SeriesPayload(priceSeries)
		bid.Value = models.SeriesPayload(valueSeries)
	} else {
		var p, v float64
		if priceScalar != nil {
			p = *priceScalar
		}
		if valueScalar != nil {
			v = *valueScalar
		}
		bid.Price = models.ScalarPayload(p)
		bid.Value = models.ScalarPayload(v)
	}
	bid.PeriodStart = bid.PeriodStart.UTC()
	return &bid, nil
}

// payloadColumns раскладывает форму значения по скалярным и массивным колонкам.
func payloadColumns(p models.Payload) (*float64, []float64) {
	if p.Kind == models.SeriesKind {
		return nil, p.Series
	}
	v := p.Scalar
	return &v, nil
}

// FindCurrentSeries находит актуальную заявку-ряд по полям записи.
// Фильтр по длине массива отделяет записи других конфигураций слотов,
// последняя по last_updated запись считается действующей.
func (r *PostgresBidRepository) FindCurrentSeries(ctx context.Context, infraID string, round models.Round, dayStart time.Time, slotCount int) (*models.Bid, error) {
	query := `SELECT ` + bidColumns + `
	          FROM bid
	          WHERE infrastructure_id = $1 AND round = $2 AND period_start = $3 AND cardinality(price_series) = $4
	          ORDER BY last_updated DESC
	          LIMIT 1`
	bid, err := scanBid(r.DB.QueryRow(ctx, query, infraID, round, dayStart, slotCount))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.attachHistory(ctx, bid)
}

// FindCurrentScalar находит актуальную скалярную заявку по полям записи.
func (r *PostgresBidRepository) FindCurrentScalar(ctx context.Context, infraID string, round models.Round, periodStart time.Time) (*models.Bid, error) {
	query := `SELECT ` + bidColumns + `
	          FROM bid
	          WHERE infrastructure_id = $1 AND round = $2 AND period_start = $3 AND price_scalar IS NOT NULL
	          ORDER BY last_updated DESC
	          LIMIT 1`
	bid, err := scanBid(r.DB.QueryRow(ctx, query, infraID, round, periodStart))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.attachHistory(ctx, bid)
}

// GetBidByID возвращает заявку c историей по ее ID.
func (r *PostgresBidRepository) GetBidByID(ctx context.Context, bidID string) (*models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bid WHERE id = $1`
	bid, err := scanBid(r.DB.QueryRow(ctx, query, bidID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.attachHistory(ctx, bid)
}

// attachHistory дочитывает историю жизненного цикла к заявке.
func (r *PostgresBidRepository) attachHistory(ctx context.Context, bid *models.Bid) (*models.Bid, error) {
	history, err := r.GetHistory(ctx, bid.ID)
	if err != nil {
		return nil, err
	}
	bid.History = history
	return bid, nil
}

// GetHistory возвращает историю заявки, от старых записей к новым.
func (r *PostgresBidRepository) GetHistory(ctx context.Context, bidID string) ([]models.StatusSnapshot, error) {
	query := `SELECT stage, approval, recorded_at, allocated_scalar, clearing_scalar, allocated_series, clearing_series
	          FROM bid_history
	          WHERE bid_id = $1
	          ORDER BY id`
	rows, err := r.DB.Query(ctx, query, bidID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.StatusSnapshot
	for rows.Next() {
		var (
			snap                     models.StatusSnapshot
			allocScalar, clearScalar *float64
			allocSeries, clearSeries []float64
		)
		if err := rows.Scan(
			&snap.Stage,
			&snap.Decision,
			&snap.Timestamp,
			&allocScalar,
			&clearScalar,
			&allocSeries,
			&clearSeries); err != nil {
			return nil, err
		}
		if allocSeries != nil {
			snap.Allocated = models.SeriesPayload(allocSeries)
			snap.ClearingPrice = models.SeriesPayload(clearSeries)
		} else {
			var a, c float64
			if allocScalar != nil {
				a = *allocScalar
			}
			if clearScalar != nil {
				c = *clearScalar
			}
			snap.Allocated = models.ScalarPayload(a)
			snap.ClearingPrice = models.ScalarPayload(c)
		}
		history = append(history, snap)
	}
	return history, rows.Err()
}

// ListInfrastructureBids возвращает список заявок по объекту инфраструктуры.
func (r *PostgresBidRepository) ListInfrastructureBids(ctx context.Context, infraID string, limit, offset int) ([]models.Bid, error) {
	query := `SELECT ` + bidColumns + `
	          FROM bid
	          WHERE infrastructure_id = $1
	          ORDER BY period_start DESC
	          LIMIT $2 OFFSET $3`
	rows, err := r.DB.Query(ctx, query, infraID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *bid)
	}
	return bids, rows.Err()
}

// InsertBid создает новую заявку вместе с начальной историей.
func (r *PostgresBidRepository) InsertBid(ctx context.Context, bid *models.Bid) error {
	priceScalar, priceSeries := payloadColumns(bid.Price)
	valueScalar, valueSeries := payloadColumns(bid.Value)
	insertQuery := `INSERT INTO bid (id, infrastructure_id, round, period_start, price_scalar, value_scalar, price_series, value_series, submitted_at, last_updated)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.DB.Exec(
		ctx,
		insertQuery,
		bid.ID,
		bid.InfrastructureID,
		bid.Round,
		bid.PeriodStart,
		priceScalar,
		valueScalar,
		priceSeries,
		valueSeries,
		bid.SubmittedAt,
		bid.LastUpdated)
	if err != nil {
		return err
	}
	for _, snap := range bid.History {
		if err := r.AppendSnapshot(ctx, bid.ID, snap); err != nil {
			return err
		}
	}
	return nil
}

// UpdateBidPayload обновляет значение существующей заявки; новая запись не создается.
func (r *PostgresBidRepository) UpdateBidPayload(ctx context.Context, bid *models.Bid) error {
	priceScalar, priceSeries := payloadColumns(bid.Price)
	valueScalar, valueSeries := payloadColumns(bid.Value)
	updateQuery := `UPDATE bid
	                SET price_scalar = $2, value_scalar = $3, price_series = $4, value_series = $5, last_updated = $6
	                WHERE id = $1`
	_, err := r.DB.Exec(
		ctx,
		updateQuery,
		bid.ID,
		priceScalar,
		valueScalar,
		priceSeries,
		valueSeries,
		bid.LastUpdated)
	return err
}

// AppendSnapshot дописывает запись истории; прежние записи не трогаются.
func (r *PostgresBidRepository) AppendSnapshot(ctx context.Context, bidID string, snap models.StatusSnapshot) error {
	allocScalar, allocSeries := payloadColumns(snap.Allocated)
	clearScalar, clearSeries := payloadColumns(snap.ClearingPrice)
	insertQuery := `INSERT INTO bid_history (bid_id, stage, approval, recorded_at, allocated_scalar, clearing_scalar, allocated_series, clearing_series)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.DB.Exec(
		ctx,
		insertQuery,
		bidID,
		snap.Stage,
		snap.Decision,
		snap.Timestamp,
		allocScalar,
		clearScalar,
		allocSeries,
		clearSeries)
	return err
}

// InfrastructureExists проверяет, зарегистрирован ли объект инфраструктуры.
func (r *PostgresBidRepository) InfrastructureExists(ctx context.Context, infraID string) (bool, error) {
	return utils.CheckInfrastructureExists(ctx, r.DB, infraID)
}

// ParticipantIsAdmin проверяет, является ли участник администратором.
func (r *PostgresBidRepository) ParticipantIsAdmin(ctx context.Context, username string) (bool, error) {
	return utils.CheckParticipantIsAdmin(ctx, r.DB, username)
}
