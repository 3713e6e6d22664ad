package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"access-service/internal/access"
	"access-service/internal/models"
	"access-service/internal/util"
)

// Response represents a standard API response. Failures carry Code and the
// optional retry, permission and violation details.
type Response struct {
	Success    bool                `json:"success"`
	Data       any                 `json:"data,omitempty"`
	Code       access.Code         `json:"code,omitempty"`
	Message    string              `json:"message,omitempty"`
	RetryAfter int                 `json:"retryAfter,omitempty"`
	Required   []models.Permission `json:"required,omitempty"`
	Held       []models.Permission `json:"held,omitempty"`
	Violations []string            `json:"violations,omitempty"`
	Meta       *Meta               `json:"meta,omitempty"`
}

// Meta represents pagination metadata
type Meta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func successResponse(data any, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

func failureResponse(e *access.Error) Response {
	return Response{
		Success:    false,
		Code:       e.Code,
		Message:    e.Message,
		RetryAfter: e.RetryAfter,
		Required:   e.Required,
		Held:       e.Held,
		Violations: e.Violations,
	}
}

// responder holds the JSON helpers shared by every handler.
type responder struct {
	logger *zap.Logger
}

func (h responder) respondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError renders e. Internal and unexpected failures are logged;
// the cause never reaches the body.
func (h responder) respondWithError(w http.ResponseWriter, r *http.Request, e *access.Error) {
	status := e.Status()
	if status >= http.StatusInternalServerError {
		h.logger.Error("HTTP error response",
			util.String("path", r.URL.Path),
			util.Int("status_code", status),
			util.ErrorField(e))
	}
	if e.Code == access.CodeRateLimitExceeded && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	h.respondWithJSON(w, status, failureResponse(e))
}

func badRequest(message string, violations ...string) *access.Error {
	e := access.NewError(access.CodeValidationError, message)
	e.Violations = violations
	return e
}
