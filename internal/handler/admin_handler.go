package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"access-service/internal/access"
	"access-service/internal/audit"
	"access-service/internal/models"
	"access-service/internal/service"
	"access-service/internal/util"
	"access-service/internal/validation"
)

// StatusReporter reports store sizes for the system endpoint.
type StatusReporter interface {
	StoreCounts(ctx context.Context) (service.StoreCounts, error)
}

type AdminHandlerConfig struct {
	CookieName  string
	TokenHeader string
}

// AdminHandler serves the admin credential lifecycle and the guarded admin
// panel endpoints.
type AdminHandler struct {
	responder
	admin     *service.AdminService
	guard     *access.Guard
	log       *audit.Log
	detector  *audit.Detector
	directory models.UserDirectory
	status    StatusReporter
	cfg       AdminHandlerConfig
}

func NewAdminHandler(
	admin *service.AdminService,
	guard *access.Guard,
	log *audit.Log,
	detector *audit.Detector,
	directory models.UserDirectory,
	status StatusReporter,
	cfg AdminHandlerConfig,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		responder: responder{logger: logger},
		admin:     admin,
		guard:     guard,
		log:       log,
		detector:  detector,
		directory: directory,
		status:    status,
		cfg:       cfg,
	}
}

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

var (
	verifyPolicy = access.Policy{
		Endpoint:    "/admin/auth/verify",
		Action:      audit.ActionVerifyAdmin,
		Permissions: []models.Permission{models.PermPanelAccess},
	}
	auditLogsPolicy = access.Policy{
		Endpoint:    "/admin/audit-logs",
		Action:      audit.ActionViewAuditLogs,
		Permissions: []models.Permission{models.PermPanelAccess, models.PermSystemMonitoring},
		Rules: validation.Rules{
			"userId":   {Type: validation.TypeString, MaxLength: 128},
			"action":   {Type: validation.TypeString, MaxLength: 64, NoMarkup: true},
			"severity": {Type: validation.TypeString, Pattern: regexp.MustCompile(`^(low|medium|high|critical)$`)},
			"limit":    {Type: validation.TypeString, Pattern: regexp.MustCompile(`^\d{1,6}$`)},
			"offset":   {Type: validation.TypeString, Pattern: regexp.MustCompile(`^\d{1,9}$`)},
		},
	}
	suspiciousPolicy = access.Policy{
		Endpoint:    "/admin/audit-logs/suspicious",
		Action:      audit.ActionViewSuspicious,
		Permissions: []models.Permission{models.PermPanelAccess, models.PermSystemMonitoring},
		Rules: validation.Rules{
			"identifier": {Required: true, Type: validation.TypeString, MaxLength: 256, NoMarkup: true},
		},
	}
	analyticsPolicy = access.Policy{
		Endpoint:    "/admin/analytics",
		Action:      audit.ActionViewAnalytics,
		Permissions: []models.Permission{models.PermPanelAccess, models.PermViewAnalytics},
	}
	systemPolicy = access.Policy{
		Endpoint:    "/admin/system",
		Action:      audit.ActionViewSystemStatus,
		Permissions: []models.Permission{models.PermPanelAccess, models.PermSystemMonitoring},
	}
	reportPolicy = access.Policy{
		Endpoint:    "/admin/reports/audit",
		Action:      audit.ActionDownloadReport,
		Permissions: []models.Permission{models.PermPanelAccess, models.PermDownloadReports},
		Sensitive:   true,
		Rules:       auditLogsPolicy.Rules,
	}
	viewUserPolicy = access.Policy{
		Endpoint:    "/admin/users/{userID}",
		Action:      audit.ActionViewUser,
		Permissions: []models.Permission{models.PermPanelAccess, models.PermManageUsers},
		Sensitive:   true,
	}
	revokePolicy = access.Policy{
		Endpoint:    "/admin/users/{userID}/revoke",
		Action:      audit.ActionUpdateUser,
		Permissions: []models.Permission{models.PermPanelAccess, models.PermManageUsers},
		Sensitive:   true,
		Rules: validation.Rules{
			"reason": {Required: true, Type: validation.TypeString, MaxLength: 500, NoMarkup: true},
		},
	}
)

func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin", func(r chi.Router) {
		r.Post("/auth/session", h.IssueSession)
		r.Post("/auth/signout", h.SignOut)
		r.Get("/auth/verify", h.guarded(verifyPolicy, h.verify))

		r.Get("/audit-logs", h.guarded(auditLogsPolicy, h.queryAuditLogs))
		r.Get("/audit-logs/suspicious", h.guarded(suspiciousPolicy, h.suspicious))
		r.Get("/analytics", h.guarded(analyticsPolicy, h.analytics))
		r.Get("/system", h.guarded(systemPolicy, h.system))
		r.Get("/reports/audit", h.guarded(reportPolicy, h.auditReport))

		r.Get("/users/{userID}", h.guarded(viewUserPolicy, h.viewUser))
		r.Post("/users/{userID}/revoke", h.guarded(revokePolicy, h.revokeUser))
	})
}

// attachment is a guarded result written as a file download instead of JSON.
type attachment struct {
	filename    string
	contentType string
	body        []byte
}

// paged is a guarded result rendered with pagination metadata.
type paged struct {
	data any
	meta Meta
}

type guardedFunc func(r *http.Request, caller *access.Caller) (any, error)

func (h *AdminHandler) call(r *http.Request) access.Call {
	return access.Call{
		Token:     adminToken(r, h.cfg.TokenHeader),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		Path:      r.URL.Path,
	}
}

func (h *AdminHandler) guarded(policy access.Policy, fn guardedFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call := h.call(r)
		if r.Method == http.MethodGet {
			call.Payload = queryPayload(r)
		} else {
			call.Payload, call.PayloadErr = decodeBody(r)
		}

		result, err := h.guard.Execute(r.Context(), policy, call, func(ctx context.Context, caller *access.Caller) (any, error) {
			return fn(r.WithContext(ctx), caller)
		})
		if err != nil {
			h.respondWithError(w, r, access.AsError(err))
			return
		}

		switch v := result.(type) {
		case *attachment:
			w.Header().Set("Content-Type", v.contentType)
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", v.filename))
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(v.body); err != nil {
				h.logger.Warn("Failed to write attachment", util.ErrorField(err))
			}
		case *paged:
			resp := successResponse(v.data, "")
			resp.Meta = &v.meta
			h.respondWithJSON(w, http.StatusOK, resp)
		default:
			h.respondWithJSON(w, http.StatusOK, successResponse(v, ""))
		}
	}
}

func (h *AdminHandler) event(r *http.Request, action string, details any) audit.Event {
	return audit.Event{
		Action:    action,
		Details:   details,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Method:    r.Method,
	}
}

type issuedView struct {
	Token       string               `json:"token"`
	Session     *models.AdminSession `json:"session"`
	TokenHeader string               `json:"tokenHeader"`
}

// sessionCreatedDetails is the audit payload of an issuance. The base session
// id is a bearer credential on its own, so it is only recorded masked.
type sessionCreatedDetails struct {
	ExpiresAt   time.Time    `json:"expiresAt"`
	Permissions []string     `json:"permissions"`
	BaseSession audit.Secret `json:"baseSession"`
}

// IssueSession elevates the caller's base session to an admin credential.
func (h *AdminHandler) IssueSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	baseID := baseSessionID(r, h.cfg.CookieName)
	cred, user, err := h.admin.Issue(ctx, baseID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotAdministrator):
			ev := h.event(r, audit.ActionAdminAccessDenied, map[string]any{"email": user.Email})
			ev.UserID = user.UserID
			h.log.Record(ctx, ev)
			h.detector.Check(ctx, user.UserID, ev)
		case errors.Is(err, service.ErrBaseSessionRequired):
			ev := h.event(r, audit.ActionAdminAuthFailed, map[string]any{"reason": "base_session_required"})
			entry := h.log.Record(ctx, ev)
			h.detector.Check(ctx, entry.Fingerprint, ev)
		}
		h.respondWithError(w, r, access.FromAuth(err))
		return
	}

	ev := h.event(r, audit.ActionAdminSessionCreated, sessionCreatedDetails{
		ExpiresAt:   cred.Session.ExpiresAt,
		Permissions: cred.Session.Permissions.Strings(),
		BaseSession: audit.Secret(baseID),
	})
	ev.SessionID = cred.Session.SessionID
	ev.UserID = user.UserID
	h.log.Record(ctx, ev)

	h.respondWithJSON(w, http.StatusCreated, successResponse(issuedView{
		Token:       cred.Token,
		Session:     cred.Session,
		TokenHeader: h.cfg.TokenHeader,
	}, "Admin session created"))
}

// SignOut revokes the presented admin credential. Unknown tokens succeed.
func (h *AdminHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := adminToken(r, h.cfg.TokenHeader)
	userID := h.admin.Peek(ctx, token)

	if err := h.admin.SignOut(ctx, token); err != nil {
		h.respondWithError(w, r, access.Internal(err))
		return
	}

	if userID != "" {
		ev := h.event(r, audit.ActionAdminSignOut, nil)
		ev.UserID = userID
		h.log.Record(ctx, ev)
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Signed out"))
}

func (h *AdminHandler) verify(_ *http.Request, caller *access.Caller) (any, error) {
	return caller.Session, nil
}

// parseAuditQuery builds a log query from already validated parameters.
func parseAuditQuery(r *http.Request, defaultLimit int) (audit.Query, error) {
	values := r.URL.Query()
	q := audit.Query{
		Limit:    defaultLimit,
		UserID:   values.Get("userId"),
		Action:   values.Get("action"),
		Severity: models.Severity(values.Get("severity")),
	}
	if v := values.Get("limit"); v != "" {
		q.Limit, _ = strconv.Atoi(v)
	}
	if v := values.Get("offset"); v != "" {
		q.Offset, _ = strconv.Atoi(v)
	}

	var violations []string
	for _, field := range []struct {
		name string
		dst  *time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		v := values.Get(field.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			violations = append(violations, field.name+" must be an RFC 3339 timestamp")
			continue
		}
		*field.dst = t
	}
	if len(violations) > 0 {
		return q, badRequest("Request validation failed", violations...)
	}
	return q, nil
}

func (h *AdminHandler) queryAuditLogs(r *http.Request, _ *access.Caller) (any, error) {
	q, err := parseAuditQuery(r, audit.DefaultQueryLimit)
	if err != nil {
		return nil, err
	}
	res := h.log.Query(q)

	limit := q.Limit
	if limit <= 0 {
		limit = audit.DefaultQueryLimit
	}
	return &paged{
		data: res,
		meta: Meta{Total: res.Total, Limit: min(limit, audit.MaxQueryLimit), Offset: q.Offset},
	}, nil
}

func (h *AdminHandler) suspicious(r *http.Request, _ *access.Caller) (any, error) {
	return h.detector.Evaluate(r.URL.Query().Get("identifier")), nil
}

func (h *AdminHandler) analytics(_ *http.Request, _ *access.Caller) (any, error) {
	return h.log.Stats(), nil
}

type systemView struct {
	Stores   service.StoreCounts `json:"stores"`
	AuditLog struct {
		Size     int `json:"size"`
		Capacity int `json:"capacity"`
	} `json:"auditLog"`
}

func (h *AdminHandler) system(r *http.Request, _ *access.Caller) (any, error) {
	counts, err := h.status.StoreCounts(r.Context())
	if err != nil {
		return nil, fmt.Errorf("store counts: %w", err)
	}
	view := systemView{Stores: counts}
	view.AuditLog.Size = h.log.Len()
	view.AuditLog.Capacity = h.log.Capacity()
	return view, nil
}

var reportHeader = []string{"id", "timestamp", "severity", "action", "user_id", "session_id", "ip", "fingerprint", "method", "endpoint", "details"}

func (h *AdminHandler) auditReport(r *http.Request, caller *access.Caller) (any, error) {
	q, err := parseAuditQuery(r, audit.MaxQueryLimit)
	if err != nil {
		return nil, err
	}
	res := h.log.Query(q)

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(reportHeader); err != nil {
		return nil, err
	}
	for _, e := range res.Entries {
		details := ""
		if len(e.Details) > 0 {
			b, err := json.Marshal(e.Details)
			if err != nil {
				return nil, fmt.Errorf("encode details of %s: %w", e.ID, err)
			}
			details = string(b)
		}
		if err := cw.Write([]string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(e.Severity),
			e.Action,
			e.UserID,
			e.SessionID,
			e.IPAddress,
			e.Fingerprint,
			e.Method,
			e.Endpoint,
			details,
		}); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}

	h.logger.Info("Audit report exported",
		util.String("user_id", caller.Session.UserID),
		util.Int("rows", len(res.Entries)))

	return &attachment{
		filename:    "audit-" + time.Now().UTC().Format("20060102T150405Z") + ".csv",
		contentType: "text/csv; charset=utf-8",
		body:        buf.Bytes(),
	}, nil
}

func targetUser(r *http.Request) (string, error) {
	userID := chi.URLParam(r, "userID")
	if !userIDPattern.MatchString(userID) {
		return "", badRequest("Request validation failed", "userID has an invalid format")
	}
	return userID, nil
}

func (h *AdminHandler) viewUser(r *http.Request, _ *access.Caller) (any, error) {
	userID, err := targetUser(r)
	if err != nil {
		return nil, err
	}
	user, err := h.directory.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, access.NewError(access.CodeNotFound, "User not found")
		}
		return nil, err
	}
	return user, nil
}

type revokeView struct {
	UserID  string `json:"userId"`
	Revoked int    `json:"revoked"`
}

func (h *AdminHandler) revokeUser(r *http.Request, caller *access.Caller) (any, error) {
	ctx := r.Context()
	userID, err := targetUser(r)
	if err != nil {
		return nil, err
	}

	revoked, err := h.admin.RevokeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	reason, _ := caller.Call.Payload["reason"].(string)
	ev := h.event(r, audit.ActionAdminSessionsRevoked, map[string]any{
		"targetUserId": userID,
		"revoked":      revoked,
		"reason":       reason,
	})
	ev.SessionID = caller.Session.SessionID
	ev.UserID = caller.Session.UserID
	h.log.Record(ctx, ev)

	return revokeView{UserID: userID, Revoked: revoked}, nil
}
