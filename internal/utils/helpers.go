package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/senyabanana/energy-bidding-service/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SendErrorResponse отправляет ошибку в формате JSON
func SendErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := models.ErrorResponse{
		StatusCode: statusCode,
		Message:    message,
	}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		log.Println(err)
	}
}

// ParseLimitOffset обрабатывает limit и offset
func ParseLimitOffset(limitStr, offsetStr string) (int, int, error) {
	var limit, offset int
	var err error

	if limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 || limit > 50 {
			return 0, 0, fmt.Errorf("invalid limit parameter, must be a positive integer [0:50]")
		}
	} else {
		limit = 5
	}

	if offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset parameter, must be a non-negative integer")
		}
	} else {
		offset = 0
	}

	return limit, offset, nil
}

// ParseInstant разбирает момент времени из параметра запроса (RFC 3339, UTC).
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid instant %q, must be RFC 3339", s)
	}
	return t.UTC(), nil
}

// CheckInfrastructureExists проверяет, зарегистрирован ли объект инфраструктуры
func CheckInfrastructureExists(ctx context.Context, dbPool *pgxpool.Pool, infraID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM infrastructure WHERE id = $1)`
	err := dbPool.QueryRow(ctx, query, infraID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CheckParticipantIsAdmin проверяет, что участник существует и имеет категорию Admin
func CheckParticipantIsAdmin(ctx context.Context, dbPool *pgxpool.Pool, username string) (bool, error) {
	var isAdmin bool
	query := `SELECT EXISTS(SELECT 1 FROM participant WHERE name = $1 AND user_category = 'Admin')`
	err := dbPool.QueryRow(ctx, query, username).Scan(&isAdmin)
	if err != nil {
		return false, err
	}
	return isAdmin, nil
}

// ContainsStage - функция для проверки допустимости этапа
func ContainsStage(allowed []models.Stage, stage models.Stage) bool {
	for _, s := range allowed {
		if s == stage {
			return true
		}
	}
	return false
}
