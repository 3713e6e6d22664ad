package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"access-service/internal/access"
	"access-service/internal/fingerprint"
	"access-service/internal/service"
)

// GuestHandler lets the editor ask whether a guest action may proceed.
type GuestHandler struct {
	responder
	limiter *service.RateLimiter
}

func NewGuestHandler(limiter *service.RateLimiter, logger *zap.Logger) *GuestHandler {
	return &GuestHandler{responder: responder{logger: logger}, limiter: limiter}
}

func (h *GuestHandler) RegisterRoutes(router chi.Router) {
	router.Post("/guest/{action}", h.CheckAction)
}

type guestDecision struct {
	Action    string    `json:"action"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// CheckAction counts one guest action for the caller's fingerprint.
func (h *GuestHandler) CheckAction(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	rule, ok := h.limiter.Rule(action)
	if !ok {
		h.respondWithError(w, r, access.NewError(access.CodeNotFound, "Unknown action"))
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Max))

	fp := fingerprint.Compute(clientIP(r), r.UserAgent())
	res, err := h.limiter.Check(r.Context(), action, fp)
	if err != nil {
		h.respondWithError(w, r, access.Internal(err))
		return
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

	if !res.Allowed {
		h.respondWithError(w, r, &access.Error{
			Code:       access.CodeRateLimitExceeded,
			Message:    "Too many requests, please try again later",
			RetryAfter: res.RetryAfter,
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(guestDecision{
		Action:    action,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt,
	}, ""))
}
