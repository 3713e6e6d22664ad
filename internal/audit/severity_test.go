package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"access-service/internal/models"
)

func TestClassify(t *testing.T) {
	tests := map[string]models.Severity{
		ActionInternalError:        models.SeverityCritical,
		ActionAdminSessionsRevoked: models.SeverityCritical,
		ActionDeleteUser:           models.SeverityCritical,
		ActionAdminSessionCreated:  models.SeverityHigh,
		ActionAdminAuthFailed:      models.SeverityHigh,
		ActionSuspiciousActivity:   models.SeverityHigh,
		ActionPermissionDenied:     models.SeverityMedium,
		ActionViewAuditLogs:        models.SeverityMedium,
		ActionDownloadReport:       models.SeverityMedium,
		ActionAdminSignOut:         models.SeverityLow,
		"something_new":            models.SeverityLow,
		"":                         models.SeverityLow,
	}
	for action, want := range tests {
		assert.Equal(t, want, Classify(action), action)
	}
}
