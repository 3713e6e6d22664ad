package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"access-service/internal/access"
	"access-service/internal/models"
	"access-service/internal/service"
	"access-service/internal/util"
)

// SessionHandler exposes the base session to callers. Primary login lives
// outside this service; the dev route stands in for it.
type SessionHandler struct {
	responder
	sessions   *service.SessionService
	cookieName string
	secure     bool
	devRoutes  bool
}

func NewSessionHandler(sessions *service.SessionService, cookieName string, secure, devRoutes bool, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		responder:  responder{logger: logger},
		sessions:   sessions,
		cookieName: cookieName,
		secure:     secure,
		devRoutes:  devRoutes,
	}
}

func (h *SessionHandler) RegisterRoutes(router chi.Router) {
	router.Route("/sessions", func(r chi.Router) {
		r.Get("/me", h.GetCurrent)
		r.Delete("/me", h.SignOut)
	})
	if h.devRoutes {
		router.Post("/dev/sessions", h.CreateDevSession)
	}
}

type sessionView struct {
	User    *models.User    `json:"user"`
	Session *models.Session `json:"session"`
}

// CreateDevSession opens a base session for a directory user by email or id.
func (h *SessionHandler) CreateDevSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := decodeBody(r)
	if err != nil {
		h.respondWithError(w, r, badRequest("Invalid request body"))
		return
	}
	email, _ := payload["email"].(string)
	userID, _ := payload["userId"].(string)

	var (
		session *models.Session
		user    *models.User
	)
	switch {
	case strings.TrimSpace(email) != "":
		session, user, err = h.sessions.CreateForEmail(ctx, email, clientIP(r), r.UserAgent())
	case strings.TrimSpace(userID) != "":
		session, err = h.sessions.Create(ctx, userID, clientIP(r), r.UserAgent())
		if err == nil {
			user, _, err = h.sessions.UserForSession(ctx, session.SessionID)
		}
	default:
		h.respondWithError(w, r, badRequest("Request validation failed", "email or userId is required"))
		return
	}
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			h.respondWithError(w, r, access.NewError(access.CodeNotFound, "User not found"))
			return
		}
		h.respondWithError(w, r, access.Internal(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    session.SessionID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.respondWithJSON(w, http.StatusCreated, successResponse(sessionView{User: user, Session: session}, "Session created"))
}

// GetCurrent returns the caller's user and base session.
func (h *SessionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	user, session, err := h.sessions.UserForSession(r.Context(), baseSessionID(r, h.cookieName))
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) || errors.Is(err, models.ErrUserNotFound) {
			h.respondWithError(w, r, access.NewError(access.CodeAuthenticationRequired, "A valid session is required"))
			return
		}
		h.respondWithError(w, r, access.Internal(err))
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(sessionView{User: user, Session: session}, ""))
}

// SignOut deletes the caller's base session. Unknown sessions succeed.
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	sessionID := baseSessionID(r, h.cookieName)
	if err := h.sessions.SignOut(r.Context(), sessionID); err != nil {
		h.respondWithError(w, r, access.Internal(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Debug("Session signed out", util.Bool("had_session", sessionID != ""))
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Signed out"))
}
