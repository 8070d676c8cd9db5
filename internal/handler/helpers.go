package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/service"
)

// ============================================================
// Shared helper functions
// ============================================================

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a size-limited JSON body and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// parseListFilter reads ?from=&to=&category_id=&limit= from the query.
func parseListFilter(r *http.Request) (domain.ListFilter, error) {
	q := r.URL.Query()
	var f domain.ListFilter

	if v := q.Get("from"); v != "" {
		d, err := service.ParseDate(v)
		if err != nil {
			return f, &domain.ErrValidation{Field: "from", Message: "must be formatted as YYYY-MM-DD"}
		}
		f.From = d
	}
	if v := q.Get("to"); v != "" {
		d, err := service.ParseDate(v)
		if err != nil {
			return f, &domain.ErrValidation{Field: "to", Message: "must be formatted as YYYY-MM-DD"}
		}
		f.To = d
	}
	f.CategoryID = strings.TrimSpace(q.Get("category_id"))

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			return f, &domain.ErrValidation{Field: "limit", Message: "must be between 1 and 1000"}
		}
		f.Limit = n
	}
	return f, nil
}

// parseMonth reads ?month=YYYY-MM, defaulting to now.
func parseMonth(r *http.Request, now time.Time) (time.Time, error) {
	v := r.URL.Query().Get("month")
	if v == "" {
		return now, nil
	}
	m, err := time.Parse("2006-01", v)
	if err != nil {
		return time.Time{}, &domain.ErrValidation{Field: "month", Message: "must be formatted as YYYY-MM"}
	}
	return m, nil
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &external):
		logger.Error("record store failure", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
