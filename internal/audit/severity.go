package audit

import "access-service/internal/models"

// Audit actions recorded by the access core.
const (
	ActionAdminSessionCreated  = "admin_session_created"
	ActionAdminAccessDenied    = "admin_access_denied"
	ActionAdminSignOut         = "admin_signout"
	ActionAdminAuthFailed      = "admin_auth_failed"
	ActionAdminSessionsRevoked = "admin_sessions_revoked"
	ActionPermissionDenied     = "permission_denied"
	ActionInternalError        = "internal_error"
	ActionSuspiciousActivity   = "suspicious_activity_detected"

	ActionViewAuditLogs    = "view_audit_logs"
	ActionViewSuspicious   = "view_suspicious_activity"
	ActionViewAnalytics    = "view_analytics"
	ActionViewSystemStatus = "view_system_status"
	ActionViewUser         = "view_user"
	ActionDownloadReport   = "download_report"
	ActionExportData       = "export_data"
	ActionVerifyAdmin      = "verify_admin_session"

	ActionUpdateUser    = "update_user"
	ActionDeleteUser    = "delete_user"
	ActionPurgeAuditLog = "purge_audit_log"
)

// severityTable classifies actions. Destructive or irreversible actions are
// critical, mutating actions and flagged attempts high, reads and exports
// medium. Anything absent is low.
var severityTable = map[string]models.Severity{
	ActionInternalError:        models.SeverityCritical,
	ActionAdminSessionsRevoked: models.SeverityCritical,
	ActionDeleteUser:           models.SeverityCritical,
	ActionPurgeAuditLog:        models.SeverityCritical,

	ActionAdminSessionCreated: models.SeverityHigh,
	ActionAdminAccessDenied:   models.SeverityHigh,
	ActionAdminAuthFailed:     models.SeverityHigh,
	ActionSuspiciousActivity:  models.SeverityHigh,
	ActionUpdateUser:          models.SeverityHigh,

	ActionPermissionDenied: models.SeverityMedium,
	ActionViewAuditLogs:    models.SeverityMedium,
	ActionViewSuspicious:   models.SeverityMedium,
	ActionViewAnalytics:    models.SeverityMedium,
	ActionViewUser:         models.SeverityMedium,
	ActionDownloadReport:   models.SeverityMedium,
	ActionExportData:       models.SeverityMedium,
}

// Classify returns the fixed severity for action.
func Classify(action string) models.Severity {
	if s, ok := severityTable[action]; ok {
		return s
	}
	return models.SeverityLow
}
