package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/senyabanana/energy-bidding-service/internal/models"
	"github.com/senyabanana/energy-bidding-service/internal/services"
	"github.com/senyabanana/energy-bidding-service/internal/utils"

	"github.com/sirupsen/logrus"
)

// BidHandler - структура для обработки HTTP-запросов.
type BidHandler struct {
	Service *services.SubmissionService
	Logger  *logrus.Logger
	Timeout time.Duration
}

// NewBidHandler создает новый экземпляр BidHandler.
func NewBidHandler(service *services.SubmissionService, logger *logrus.Logger, timeout time.Duration) *BidHandler {
	return &BidHandler{
		Service: service,
		Logger:  logger,
		Timeout: timeout,
	}
}

// writeJSON отправляет успешный ответ в формате JSON.
func (h *BidHandler) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Println(err)
	}
}

// handleServiceError разбирает ошибку сервиса и отправляет ответ с нужным кодом.
func (h *BidHandler) handleServiceError(w http.ResponseWriter, err error, fallback string) {
	if errorResponse, ok := err.(*models.ErrorResponse); ok {
		h.Logger.Println(err)
		utils.SendErrorResponse(w, errorResponse.StatusCode, errorResponse.Message)
		return
	}
	h.Logger.Println(err)
	utils.SendErrorResponse(w, http.StatusInternalServerError, fallback)
}

// SubmitBid обрабатывает запросы на подачу или изменение заявки.
func (h *BidHandler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only POST is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req models.SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Service.Submit(ctx, req)
	if err != nil {
		h.handleServiceError(w, err, "failed to submit bid")
		return
	}
	h.writeJSON(w, result)
}

// FetchForDisplay обрабатывает запросы формы подачи: действующие цена и объем
// плюс признак редактируемости.
func (h *BidHandler) FetchForDisplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only GET is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	infraID := r.URL.Query().Get("infrastructureId")
	round := r.URL.Query().Get("round")
	level := r.URL.Query().Get("level")
	target := r.URL.Query().Get("target")

	display, err := h.Service.FetchForDisplay(ctx, infraID, round, level, target)
	if err != nil {
		h.handleServiceError(w, err, "failed to fetch bid data")
		return
	}
	h.writeJSON(w, display)
}

// ListInfrastructureBids обрабатывает запросы списка заявок по объекту инфраструктуры.
func (h *BidHandler) ListInfrastructureBids(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only GET is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	infraID := r.PathValue("infrastructureId")
	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("offset")

	bids, err := h.Service.ListInfrastructureBids(ctx, infraID, limitStr, offsetStr)
	if err != nil {
		h.handleServiceError(w, err, "failed to retrieve bids")
		return
	}

	if len(bids) == 0 {
		utils.SendErrorResponse(w, http.StatusNotFound, "no bids found for this infrastructure")
		return
	}
	h.writeJSON(w, bids)
}

// GetBidStatus обрабатывает запросы последнего этапа заявки.
func (h *BidHandler) GetBidStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only GET is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	status, err := h.Service.GetBidStatus(ctx, r.PathValue("bidId"))
	if err != nil {
		h.handleServiceError(w, err, "failed to retrieve bid status")
		return
	}
	h.writeJSON(w, status)
}

// GetBidHistory обрабатывает запросы истории жизненного цикла заявки.
func (h *BidHandler) GetBidHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only GET is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	history, err := h.Service.GetBidHistory(ctx, r.PathValue("bidId"))
	if err != nil {
		h.handleServiceError(w, err, "failed to retrieve bid history")
		return
	}
	h.writeJSON(w, history)
}

// RetractBid обрабатывает запросы на отзыв заявки производителем.
func (h *BidHandler) RetractBid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only PUT is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bid, err := h.Service.RetractBid(ctx, r.PathValue("bidId"))
	if err != nil {
		h.handleServiceError(w, err, "failed to retract bid")
		return
	}
	h.writeJSON(w, bid)
}

// RecordClearing обрабатывает запись результата клиринга внешним процессом.
func (h *BidHandler) RecordClearing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid method, only PUT is allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bidID := r.PathValue("bidId")
	username := r.URL.Query().Get("username")

	var req models.ClearingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bid, err := h.Service.RecordClearing(ctx, bidID, username, req)
	if err != nil {
		h.handleServiceError(w, err, "failed to record clearing result")
		return
	}
	h.writeJSON(w, bid)
}
