package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/hellodd/orderflow/pkg/errors"
)

// DownstreamError is a failed call to another service: a transport error,
// a timeout, or a 5xx response. It matches apperrors.ErrDownstream.
type DownstreamError struct {
	Service    string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *DownstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s returned status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s unreachable: %v", e.Service, e.Err)
}

func (e *DownstreamError) Unwrap() []error {
	return []error{apperrors.ErrDownstream, e.Err}
}

// errorEnvelope mirrors httputil.Response for the error case.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an error. 5xx responses become a *DownstreamError; 4xx responses in
// the standard envelope keep their code and message as an AppError.
//
// The body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &DownstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("read body: %w", err),
		}
	}

	var env errorEnvelope
	if json.Unmarshal(bodyBytes, &env) == nil && env.Error != nil {
		return mapDownstreamError(resp.StatusCode, env.Error.Code, env.Error.Message, serviceName)
	}

	msg := string(bodyBytes)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return mapDownstreamError(resp.StatusCode, "", msg, serviceName)
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status >= 500:
		return &DownstreamError{
			Service:    serviceName,
			StatusCode: status,
			Err:        fmt.Errorf("%s %s", codeOr(code, "SERVER_ERROR"), message),
		}
	case status == http.StatusNotFound:
		return &apperrors.AppError{
			Code:    codeOr(code, "NOT_FOUND"),
			Message: qualifiedMsg,
			Status:  http.StatusNotFound,
			Err:     apperrors.ErrNotFound,
		}
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict && code == "INSUFFICIENT_STOCK":
		return &apperrors.AppError{
			Code:    code,
			Message: message,
			Status:  http.StatusConflict,
			Err:     apperrors.ErrInsufficient,
		}
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualifiedMsg)
	case status == http.StatusGone:
		return apperrors.Gone(qualifiedMsg)
	default:
		return &apperrors.AppError{
			Code:    codeOr(code, "DOWNSTREAM_REJECTED"),
			Message: qualifiedMsg,
			Status:  status,
		}
	}
}

func codeOr(code, fallback string) string {
	if code == "" {
		return fallback
	}
	return code
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
