package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hellodd/orderflow/pkg/breaker"
	apperrors "github.com/hellodd/orderflow/pkg/errors"
	"github.com/hellodd/orderflow/pkg/logger"
	"github.com/hellodd/orderflow/pkg/validator"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// Response is the standard JSON response envelope used across all services.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Details   any               `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData wraps v in the data envelope.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, Response{Data: v})
}

// ErrorDetails maps err to its HTTP status, error code and client-facing
// message.
func ErrorDetails(err error) (status int, code, message string) {
	kind := apperrors.KindOf(err)
	switch kind {
	case apperrors.KindCircuitOpen:
		return http.StatusServiceUnavailable, "CIRCUIT_OPEN", "a downstream service is unavailable, retry later"
	case apperrors.KindCompensation:
		return http.StatusInternalServerError, "COMPENSATION_FAILED", "rollback did not complete"
	}

	// Rejections relayed from another service keep their own status.
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Code, appErr.Message
	}
	if kind == apperrors.KindDownstream {
		return http.StatusBadGateway, "DOWNSTREAM_FAILURE", "a downstream service failed"
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, apperrors.ErrAlreadyExists):
		return http.StatusConflict, "ALREADY_EXISTS", "resource already exists"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT", err.Error()
	}

	status = apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return status, "INTERNAL_ERROR", "an internal error occurred"
	}
	return status, http.StatusText(status), err.Error()
}

// SetRetryAfter sets the Retry-After header (whole seconds, at least 1)
// when err is a breaker rejection.
func SetRetryAfter(w http.ResponseWriter, err error) {
	var openErr *breaker.OpenError
	if apperrors.KindOf(err) != apperrors.KindCircuitOpen || !errors.As(err, &openErr) {
		return
	}
	secs := int(math.Ceil(openErr.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}

// WriteError writes a standardized error response for err. Internal errors
// are logged with the request-scoped logger when one is mounted.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	WriteErrorWithDetails(w, r, err, nil, fallback)
}

// WriteErrorWithDetails is WriteError with an extra details payload, e.g. a
// saga report.
func WriteErrorWithDetails(w http.ResponseWriter, r *http.Request, err error, details any, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	status, code, message := ErrorDetails(err)
	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("code", code),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}
	SetRetryAfter(w, err)

	WriteJSON(w, status, Response{
		Error: &ErrorResponse{
			Code:      code,
			Message:   message,
			RequestID: logger.CorrelationIDFromContext(r.Context()),
			Details:   details,
		},
	})
}

// WriteValidationError writes a 400 with field-level errors when err comes
// from the validator package.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}

// DecodeAndValidate decodes a size-limited JSON body into dst and validates
// it. On failure it writes the 400 response and returns false.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{Code: "INVALID_INPUT", Message: fmt.Sprintf("invalid request body: %v", err)},
		})
		return false
	}
	if err := validator.Validate(dst); err != nil {
		WriteValidationError(w, err)
		return false
	}
	return true
}

// ParseUUID validates that param is a UUID. If not, it writes a 400 with
// code INVALID_PARAMETER and returns false.
func ParseUUID(w http.ResponseWriter, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "INVALID_PARAMETER",
				Message: "invalid UUID: " + param,
			},
		})
		return uuid.Nil, false
	}
	return id, true
}
