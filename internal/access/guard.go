package access

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"access-service/internal/audit"
	"access-service/internal/fingerprint"
	"access-service/internal/models"
	"access-service/internal/service"
	"access-service/internal/validation"
)

// Credentials resolves admin bearer tokens.
type Credentials interface {
	Peek(ctx context.Context, token string) string
	Verify(ctx context.Context, token string) (*models.AdminSession, error)
}

// Limiter throttles admin endpoint callers.
type Limiter interface {
	CheckAdmin(ctx context.Context, identity string) (service.Result, error)
}

// Policy describes what an admin endpoint requires of its caller.
type Policy struct {
	Endpoint    string
	Action      string
	Permissions []models.Permission
	Sensitive   bool
	Rules       validation.Rules
}

// Call is the transport independent view of one inbound request.
// PayloadErr is set when the body could not be decoded; it is reported as a
// validation failure once the caller is authenticated.
type Call struct {
	Token      string
	IP         string
	UserAgent  string
	Method     string
	Path       string
	Payload    map[string]any
	PayloadErr error
}

// Caller is handed to the endpoint handler once every check has passed.
type Caller struct {
	Session     *models.AdminSession
	Call        Call
	Fingerprint string
}

// Handler runs the endpoint body. Returning an *Error passes it through to
// the caller as is; any other error is reported as an internal error.
type Handler func(ctx context.Context, caller *Caller) (any, error)

// Guard wraps admin endpoints with authentication, rate limiting,
// authorization, validation and auditing.
type Guard struct {
	credentials Credentials
	limiter     Limiter
	log         *audit.Log
	detector    *audit.Detector
	logger      *zap.Logger
}

func NewGuard(credentials Credentials, limiter Limiter, log *audit.Log, detector *audit.Detector, logger *zap.Logger) *Guard {
	return &Guard{
		credentials: credentials,
		limiter:     limiter,
		log:         log,
		detector:    detector,
		logger:      logger,
	}
}

// Execute runs h under policy, stopping at the first failing check.
func (g *Guard) Execute(ctx context.Context, policy Policy, call Call, h Handler) (any, error) {
	fp := fingerprint.Compute(call.IP, call.UserAgent)

	if call.Token == "" {
		return nil, g.authFailure(ctx, policy, call, fp, service.ErrTokenMissing)
	}

	identity := g.credentials.Peek(ctx, call.Token)
	if identity == "" {
		identity = fp
	}
	rl, err := g.limiter.CheckAdmin(ctx, identity)
	if err != nil {
		return nil, g.internalFailure(ctx, policy, call, nil, fp, fmt.Errorf("admin rate limit: %w", err))
	}
	if !rl.Allowed {
		return nil, &Error{
			Code:       CodeRateLimitExceeded,
			Message:    "Too many requests, please try again later",
			RetryAfter: rl.RetryAfter,
		}
	}

	session, err := g.credentials.Verify(ctx, call.Token)
	if err != nil {
		if !service.IsAuthFailure(err) {
			return nil, g.internalFailure(ctx, policy, call, nil, fp, err)
		}
		return nil, g.authFailure(ctx, policy, call, fp, err)
	}

	required := models.NewPermissionSet(policy.Permissions...)
	if !session.Permissions.ContainsAll(required) {
		return nil, g.permissionFailure(ctx, policy, call, session, required)
	}

	if call.PayloadErr != nil {
		return nil, &Error{
			Code:       CodeValidationError,
			Message:    "Invalid request body",
			Violations: []string{"body must be a JSON object"},
		}
	}
	if len(policy.Rules) > 0 {
		if violations := validation.Validate(call.Payload, policy.Rules); len(violations) > 0 {
			return nil, &Error{
				Code:       CodeValidationError,
				Message:    "Request validation failed",
				Violations: violations,
			}
		}
	}

	if policy.Sensitive {
		details := map[string]any{"stage": "pre_invocation"}
		if call.Payload != nil {
			details["payload"] = call.Payload
		}
		g.log.Record(ctx, g.event(policy, call, session, policy.Action, details))
	}

	return g.invoke(ctx, policy, call, session, fp, h)
}

func (g *Guard) invoke(ctx context.Context, policy Policy, call Call, session *models.AdminSession, fp string, h Handler) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = g.internalFailure(ctx, policy, call, session, fp, fmt.Errorf("handler panic: %v", r))
		}
	}()

	result, err = h(ctx, &Caller{Session: session, Call: call, Fingerprint: fp})
	if err == nil {
		return result, nil
	}

	var accessErr *Error
	if errors.As(err, &accessErr) && accessErr.Code != CodeInternalError {
		return nil, accessErr
	}
	return nil, g.internalFailure(ctx, policy, call, session, fp, err)
}

func (g *Guard) event(policy Policy, call Call, session *models.AdminSession, action string, details any) audit.Event {
	ev := audit.Event{
		Action:    action,
		Details:   details,
		IP:        call.IP,
		UserAgent: call.UserAgent,
		Endpoint:  call.Path,
		Method:    call.Method,
	}
	if ev.Endpoint == "" {
		ev.Endpoint = policy.Endpoint
	}
	if session != nil {
		ev.SessionID = session.SessionID
		ev.UserID = session.UserID
	}
	return ev
}

func (g *Guard) authFailure(ctx context.Context, policy Policy, call Call, fp string, cause error) *Error {
	accessErr := FromAuth(cause)
	ev := g.event(policy, call, nil, audit.ActionAdminAuthFailed, map[string]any{
		"reason": string(accessErr.Code),
	})
	g.log.Record(ctx, ev)
	g.detector.Check(ctx, fp, ev)
	return accessErr
}

func (g *Guard) permissionFailure(ctx context.Context, policy Policy, call Call, session *models.AdminSession, required models.PermissionSet) *Error {
	accessErr := &Error{
		Code:     CodePermissionDenied,
		Message:  "Insufficient permissions",
		Required: required.Slice(),
		Held:     session.Permissions.Slice(),
	}
	ev := g.event(policy, call, session, audit.ActionPermissionDenied, map[string]any{
		"required": accessErr.Required,
		"held":     accessErr.Held,
		"missing":  session.Permissions.Missing(required),
	})
	g.log.Record(ctx, ev)
	g.detector.Check(ctx, session.UserID, ev)
	return accessErr
}

func (g *Guard) internalFailure(ctx context.Context, policy Policy, call Call, session *models.AdminSession, fp string, cause error) *Error {
	g.logger.Error("Admin endpoint failed",
		zap.String("endpoint", policy.Endpoint),
		zap.String("method", call.Method),
		zap.Error(cause))

	ev := g.event(policy, call, session, audit.ActionInternalError, map[string]any{
		"error":  cause.Error(),
		"action": policy.Action,
	})
	g.log.Record(ctx, ev)

	identifier := fp
	if session != nil {
		identifier = session.UserID
	}
	g.detector.Check(ctx, identifier, ev)
	return Internal(cause)
}
