package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/senyabanana/energy-bidding-service/internal/timewindow"
)

type (
	Round       string // Рынок, на который подается заявка
	Stage       string // Этап жизненного цикла заявки
	BidDecision string // Решение по заявке
	PayloadKind string // Форма значения заявки (скаляр или суточный ряд)
)

const (
	DayAhead      Round = "DayAhead"      // Рынок "на сутки вперед"
	FifteenMinute Round = "FifteenMinute" // Внутрисуточный 15-минутный рынок
	Compensation  Round = "Compensation"  // Балансирующий (компенсационный) рынок

	SubmittedStage    Stage = "Submitted"             // Заявка подана участником
	AcceptedStage     Stage = "Accepted"              // Заявка принята клирингом
	PartialStage      Stage = "PartiallyCleared"      // Заявка принята частично
	RejectedStage     Stage = "Rejected"              // Заявка отклонена клирингом
	CanceledStage     Stage = "Canceled"              // Заявка отменена
	RetractionStage   Stage = "ProducerBidRetraction" // Производитель отозвал заявку
	CompensationStage Stage = "Compensation"          // Компенсационная корректировка

	PendingBid  BidDecision = "Pending"  // Решение еще не принято
	ApprovedBid BidDecision = "Approved" // Заявка одобрена
	RejectedBid BidDecision = "Rejected" // Заявка отклонена

	ScalarKind PayloadKind = "Scalar" // Одно число на период
	SeriesKind PayloadKind = "Series" // Массив по слотам суток
)

// Payload представляет значение заявки: скаляр или суточный ряд, но не оба сразу.
// Форма определяется рынком и фиксируется при создании.
type Payload struct {
	Kind   PayloadKind `json:"kind"`
	Scalar float64     `json:"-"`
	Series []float64   `json:"-"`
}

// ScalarPayload создает скалярное значение.
func ScalarPayload(v float64) Payload {
	return Payload{Kind: ScalarKind, Scalar: v}
}

// SeriesPayload создает значение-ряд по слотам суток.
func SeriesPayload(vs []float64) Payload {
	return Payload{Kind: SeriesKind, Series: vs}
}

// KindForRound возвращает единственно допустимую форму значения для рынка.
func KindForRound(round Round) PayloadKind {
	if round == DayAhead {
		return SeriesKind
	}
	return ScalarKind
}

// ParseRound разбирает рынок из строки запроса.
func ParseRound(s string) (Round, error) {
	switch Round(s) {
	case DayAhead, FifteenMinute, Compensation:
		return Round(s), nil
	}
	return "", fmt.Errorf("unknown round %q", s)
}

// payloadJSON - проводной вид значения; NaN (цена "не задана") передается как null.
type payloadJSON struct {
	Kind   PayloadKind `json:"kind"`
	Scalar *float64    `json:"scalar,omitempty"`
	Series []*float64  `json:"series,omitempty"`
}

// Float64Ptr возвращает указатель на значение или nil для NaN ("не задано").
func Float64Ptr(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// MarshalJSON сериализует Payload, заменяя NaN на null.
func (p Payload) MarshalJSON() ([]byte, error) {
	out := payloadJSON{Kind: p.Kind}
	if p.Kind == SeriesKind {
		out.Series = make([]*float64, len(p.Series))
		for i, v := range p.Series {
			out.Series[i] = Float64Ptr(v)
		}
	} else {
		out.Scalar = Float64Ptr(p.Scalar)
	}
	return json.Marshal(out)
}

// UnmarshalJSON восстанавливает Payload, заменяя null обратно на NaN.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var in payloadJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.Kind = in.Kind
	if in.Kind == SeriesKind {
		p.Series = make([]float64, len(in.Series))
		for i, v := range in.Series {
			if v == nil {
				p.Series[i] = math.NaN()
			} else {
				p.Series[i] = *v
			}
		}
		return nil
	}
	if in.Scalar == nil {
		p.Scalar = math.NaN()
	} else {
		p.Scalar = *in.Scalar
	}
	return nil
}

// StatusSnapshot представляет одну запись в истории жизненного цикла заявки.
// Записи только добавляются, никогда не изменяются и не переупорядочиваются.
type StatusSnapshot struct {
	Stage         Stage       `json:"stage"`
	Decision      BidDecision `json:"approvalStatus"`
	Timestamp     time.Time   `json:"timestamp"`
	Allocated     Payload     `json:"allocated"`
	ClearingPrice Payload     `json:"clearingPrice"`
}

// Bid представляет модель заявки: одна логическая запись на период поставки.
type Bid struct {
	ID               string           `json:"id"`
	InfrastructureID string           `json:"infrastructureId"`
	Round            Round            `json:"round"`
	PeriodStart      time.Time        `json:"periodStart"`
	Price            Payload          `json:"price"`
	Value            Payload          `json:"value"`
	SubmittedAt      time.Time        `json:"submittedAt"`
	LastUpdated      time.Time        `json:"lastUpdated"`
	History          []StatusSnapshot `json:"history,omitempty"`
}

// SubmissionRequest представляет структуру запроса на подачу или изменение заявки.
type SubmissionRequest struct {
	InfrastructureID string           `json:"infrastructureId"`
	Round            Round            `json:"round"`
	Level            timewindow.Level `json:"level"`
	Target           time.Time        `json:"target"`
	RawPrice         string           `json:"price"`
	RawValue         string           `json:"value"`
}

// SubmissionResult представляет ответ на успешную подачу заявки.
type SubmissionResult struct {
	BidID            string    `json:"bidId"`
	InfrastructureID string    `json:"infrastructureId"`
	Round            Round     `json:"round"`
	PeriodStart      time.Time `json:"periodStart"`
	Created          bool      `json:"created"`
}

// ClearingRequest представляет запись результата клиринга от внешнего процесса.
type ClearingRequest struct {
	Stage         Stage       `json:"stage"`
	Decision      BidDecision `json:"approvalStatus"`
	Allocated     Payload     `json:"allocated"`
	ClearingPrice Payload     `json:"clearingPrice"`
}

// DisplayData представляет данные для отображения формы подачи заявки.
type DisplayData struct {
	Price             *float64  `json:"price"`
	Value             *float64  `json:"value"`
	Editable          bool      `json:"editable"`
	WindowOpen        time.Time `json:"windowOpen"`
	WindowClose       time.Time `json:"windowClose"`
	ClearedAllocation *float64  `json:"clearedAllocation,omitempty"`
	ClearedPrice      *float64  `json:"clearedPrice,omitempty"`
}
