package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"access-service/internal/models"
)

const (
	AlertCriticalEntry      = "critical_audit_entry"
	AlertSuspiciousActivity = "suspicious_activity"
)

// Alert is published to the security alert stream.
type Alert struct {
	Type       string                `json:"type"`
	Identifier string                `json:"identifier,omitempty"`
	Reason     string                `json:"reason,omitempty"`
	Entry      *models.AuditLogEntry `json:"entry,omitempty"`
	RaisedAt   time.Time             `json:"raisedAt"`
}

func (a Alert) key() string {
	if a.Identifier != "" {
		return a.Identifier
	}
	if a.Entry != nil {
		return a.Entry.ID
	}
	return a.Type
}

// Notifier delivers alerts outside the process. Delivery is best-effort;
// callers log and drop errors.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Alert) error { return nil }

// Publisher is the subset of a message producer KafkaNotifier needs.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers map[string]string) error
}

// KafkaNotifier publishes alerts as JSON keyed by identifier, so all alerts
// about one caller land on the same partition.
type KafkaNotifier struct {
	publisher Publisher
}

func NewKafkaNotifier(publisher Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher}
}

func (n *KafkaNotifier) Notify(ctx context.Context, alert Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	headers := map[string]string{"alert-type": alert.Type}
	if alert.Entry != nil {
		headers["severity"] = string(alert.Entry.Severity)
	}
	return n.publisher.Publish(ctx, []byte(alert.key()), value, headers)
}
