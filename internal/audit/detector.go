package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"access-service/internal/clock"
	"access-service/internal/models"
)

const (
	ReasonExcessiveFailures   = "excessive_failures"
	ReasonExcessiveRequests   = "excessive_requests"
	ReasonExcessivePrivileged = "excessive_privileged_actions"
)

type DetectorConfig struct {
	Window              time.Duration
	FailedThreshold     int
	TotalThreshold      int
	PrivilegedThreshold int
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Window:              5 * time.Minute,
		FailedThreshold:     5,
		TotalThreshold:      50,
		PrivilegedThreshold: 10,
	}
}

type ActivityCounts struct {
	Failed     int `json:"failed"`
	Total      int `json:"total"`
	Privileged int `json:"privileged"`
}

type Detection struct {
	Identifier string         `json:"identifier"`
	Suspicious bool           `json:"suspicious"`
	Reason     string         `json:"reason,omitempty"`
	Counts     ActivityCounts `json:"counts"`
	WindowFrom time.Time      `json:"windowFrom"`
	WindowTo   time.Time      `json:"windowTo"`
}

// Detector flags callers whose recent audit trail looks abusive. A caller is
// identified by admin user id or, failing that, network fingerprint; raw IPs
// match too.
type Detector struct {
	log      *Log
	cfg      DetectorConfig
	clock    clock.Clock
	notifier Notifier
	logger   *zap.Logger

	mu      sync.Mutex
	flagged map[string]time.Time
}

func NewDetector(log *Log, cfg DetectorConfig, clk clock.Clock, notifier Notifier, logger *zap.Logger) *Detector {
	defaults := DefaultDetectorConfig()
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.FailedThreshold <= 0 {
		cfg.FailedThreshold = defaults.FailedThreshold
	}
	if cfg.TotalThreshold <= 0 {
		cfg.TotalThreshold = defaults.TotalThreshold
	}
	if cfg.PrivilegedThreshold <= 0 {
		cfg.PrivilegedThreshold = defaults.PrivilegedThreshold
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		log:      log,
		cfg:      cfg,
		clock:    clk,
		notifier: notifier,
		logger:   logger,
		flagged:  make(map[string]time.Time),
	}
}

func isFailure(action string) bool {
	return strings.Contains(action, "failed") || strings.Contains(action, "denied")
}

func isPrivileged(action string) bool {
	return strings.Contains(action, "permission") || strings.Contains(action, "admin")
}

// Evaluate scans the trailing window for identifier without side effects.
// The checks are independent; the first one that trips sets Reason.
func (d *Detector) Evaluate(identifier string) Detection {
	now := d.clock.Now()
	from := now.Add(-d.cfg.Window)
	det := Detection{Identifier: identifier, WindowFrom: from, WindowTo: now}
	if identifier == "" {
		return det
	}

	d.log.mu.RLock()
	d.log.eachNewest(func(e *models.AuditLogEntry) bool {
		if e.Timestamp.Before(from) {
			return false
		}
		if e.UserID != identifier && e.Fingerprint != identifier && e.IPAddress != identifier {
			return true
		}
		det.Counts.Total++
		if isFailure(e.Action) {
			det.Counts.Failed++
		}
		if isPrivileged(e.Action) {
			det.Counts.Privileged++
		}
		return true
	})
	d.log.mu.RUnlock()

	switch {
	case det.Counts.Failed > d.cfg.FailedThreshold:
		det.Reason = ReasonExcessiveFailures
	case det.Counts.Total > d.cfg.TotalThreshold:
		det.Reason = ReasonExcessiveRequests
	case det.Counts.Privileged > d.cfg.PrivilegedThreshold:
		det.Reason = ReasonExcessivePrivileged
	}
	det.Suspicious = det.Reason != ""
	return det
}

// Check evaluates identifier and, the first time it trips within a window,
// records a suspicious_activity_detected entry built from origin and raises
// an alert.
func (d *Detector) Check(ctx context.Context, identifier string, origin Event) Detection {
	det := d.Evaluate(identifier)
	if !det.Suspicious || !d.claim(identifier, det.WindowTo) {
		return det
	}

	origin.Action = ActionSuspiciousActivity
	origin.Details = map[string]any{
		"identifier": identifier,
		"reason":     det.Reason,
		"counts":     det.Counts,
		"window":     d.cfg.Window.String(),
	}
	entry := d.log.Record(ctx, origin)

	d.logger.Warn("Suspicious activity detected",
		zap.String("identifier", identifier),
		zap.String("reason", det.Reason),
		zap.Int("failed", det.Counts.Failed),
		zap.Int("total", det.Counts.Total),
		zap.Int("privileged", det.Counts.Privileged))

	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := d.notifier.Notify(alertCtx, Alert{
		Type:       AlertSuspiciousActivity,
		Identifier: identifier,
		Reason:     det.Reason,
		Entry:      &entry,
		RaisedAt:   det.WindowTo,
	}); err != nil {
		d.logger.Warn("Failed to publish suspicious activity alert",
			zap.String("identifier", identifier), zap.Error(err))
	}
	return det
}

// claim reports whether identifier may be flagged at now, marking it if so.
func (d *Detector) claim(identifier string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, at := range d.flagged {
		if now.Sub(at) >= d.cfg.Window {
			delete(d.flagged, id)
		}
	}
	if _, ok := d.flagged[identifier]; ok {
		return false
	}
	d.flagged[identifier] = now
	return true
}
