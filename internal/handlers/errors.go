package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/sbilibin2017/user-service/internal/logger"
	"github.com/sbilibin2017/user-service/internal/pool"
	"github.com/sbilibin2017/user-service/internal/services"
	"github.com/sbilibin2017/user-service/internal/session"
)

// ErrorResponse represents an error response
// swagger:model ErrorResponse
type ErrorResponse struct {
	// Error message
	// default: User not found
	Detail string `json:"detail"`
}

// FieldError describes one rejected request field
// swagger:model FieldError
type FieldError struct {
	// Field name
	// default: email
	Field string `json:"field"`

	// Failed rule
	// default: email
	Rule string `json:"rule"`
}

// ValidationErrorResponse represents a request validation failure
// swagger:model ValidationErrorResponse
type ValidationErrorResponse struct {
	// Rejected fields
	Detail []FieldError `json:"detail"`
}

const (
	msgDuplicate   = "User with this email or username already exists"
	msgNotFound    = "User not found"
	msgBadJSON     = "Malformed JSON body"
	msgUnavailable = "Service temporarily unavailable"
	msgInternal    = "Internal server error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

// writeServiceError maps a service error to its HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		writeInvalid(w, err)
	case errors.Is(err, services.ErrDuplicateEntity):
		writeDetail(w, http.StatusBadRequest, msgDuplicate)
	case errors.Is(err, services.ErrNotFound):
		writeDetail(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, pool.ErrPoolExhausted),
		errors.Is(err, pool.ErrPoolClosed),
		errors.Is(err, pool.ErrNotInitialized),
		errors.Is(err, session.ErrConnectivityLost):
		logger.Log.Warnw("store unavailable", "error", err)
		writeDetail(w, http.StatusServiceUnavailable, msgUnavailable)
	default:
		logger.Log.Errorw("internal server error", "error", err)
		writeDetail(w, http.StatusInternalServerError, msgInternal)
	}
}

func writeInvalid(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := ValidationErrorResponse{Detail: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		resp.Detail = append(resp.Detail, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

func writeParamError(w http.ResponseWriter, field, rule string) {
	writeJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
		Detail: []FieldError{{Field: field, Rule: rule}},
	})
}
