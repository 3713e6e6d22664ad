package models

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AuditLogEntry is one record of a privileged action or failure. Details
// are stored already redacted.
type AuditLogEntry struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	SessionID   string         `json:"sessionId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Action      string         `json:"action"`
	Details     map[string]any `json:"details,omitempty"`
	IPAddress   string         `json:"ip"`
	UserAgent   string         `json:"userAgent"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Endpoint    string         `json:"endpoint"`
	Method      string         `json:"method"`
	Severity    Severity       `json:"severity"`
}
