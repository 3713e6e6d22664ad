package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"access-service/internal/clock"
	"access-service/internal/fingerprint"
	"access-service/internal/models"
)

const (
	DefaultMaxEntries = 10000
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000

	notifyTimeout = 2 * time.Second
)

// Event is the input to Record. Details may be any JSON-serializable value;
// it is redacted before it is stored.
type Event struct {
	SessionID string
	UserID    string
	Action    string
	Details   any
	IP        string
	UserAgent string
	Endpoint  string
	Method    string
}

type Options struct {
	MaxEntries int
	Clock      clock.Clock
	Notifier   Notifier
	Logger     *zap.Logger
}

// Log is a bounded, append-only audit trail. Once MaxEntries is reached the
// oldest entry is evicted for every new one.
type Log struct {
	mu    sync.RWMutex
	buf   []models.AuditLogEntry
	start int
	size  int

	clock    clock.Clock
	notifier Notifier
	logger   *zap.Logger
}

func NewLog(opts Options) *Log {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Log{
		buf:      make([]models.AuditLogEntry, opts.MaxEntries),
		clock:    opts.Clock,
		notifier: opts.Notifier,
		logger:   opts.Logger,
	}
}

// Record redacts and classifies ev, appends it and returns the stored entry.
// Critical entries are also sent to the notifier.
func (l *Log) Record(ctx context.Context, ev Event) models.AuditLogEntry {
	entry := models.AuditLogEntry{
		ID:          uuid.NewString(),
		Timestamp:   l.clock.Now(),
		SessionID:   ev.SessionID,
		UserID:      ev.UserID,
		Action:      ev.Action,
		Details:     RedactDetails(ev.Details),
		IPAddress:   ev.IP,
		UserAgent:   ev.UserAgent,
		Fingerprint: fingerprint.Compute(ev.IP, ev.UserAgent),
		Endpoint:    ev.Endpoint,
		Method:      ev.Method,
		Severity:    Classify(ev.Action),
	}

	l.mu.Lock()
	l.append(entry)
	l.mu.Unlock()

	if entry.Severity == models.SeverityCritical {
		l.notify(ctx, Alert{
			Type:     AlertCriticalEntry,
			Entry:    &entry,
			RaisedAt: entry.Timestamp,
		})
	}
	return entry
}

func (l *Log) append(entry models.AuditLogEntry) {
	capacity := len(l.buf)
	if l.size < capacity {
		l.buf[(l.start+l.size)%capacity] = entry
		l.size++
		return
	}
	l.buf[l.start] = entry
	l.start = (l.start + 1) % capacity
}

func (l *Log) notify(ctx context.Context, alert Alert) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := l.notifier.Notify(ctx, alert); err != nil {
		l.logger.Warn("Failed to publish security alert",
			zap.String("type", alert.Type),
			zap.String("identifier", alert.Identifier),
			zap.Error(err))
	}
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Capacity returns the retention bound.
func (l *Log) Capacity() int {
	return len(l.buf)
}

// Entries returns the retained entries oldest first.
func (l *Log) Entries() []models.AuditLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.AuditLogEntry, l.size)
	l.each(func(i int, e *models.AuditLogEntry) bool {
		out[i] = *e
		return true
	})
	return out
}

// each visits entries oldest first until fn returns false. Callers hold mu.
func (l *Log) each(fn func(i int, e *models.AuditLogEntry) bool) {
	capacity := len(l.buf)
	for i := 0; i < l.size; i++ {
		if !fn(i, &l.buf[(l.start+i)%capacity]) {
			return
		}
	}
}

// eachNewest visits entries newest first until fn returns false. Callers
// hold mu.
func (l *Log) eachNewest(fn func(e *models.AuditLogEntry) bool) {
	capacity := len(l.buf)
	for i := l.size - 1; i >= 0; i-- {
		if !fn(&l.buf[(l.start+i)%capacity]) {
			return
		}
	}
}

// Query selects entries from the retained window.
type Query struct {
	Limit    int
	Offset   int
	UserID   string
	Action   string // substring match
	Severity models.Severity
	From     time.Time
	To       time.Time
}

type QueryResult struct {
	Entries []models.AuditLogEntry `json:"entries"`
	Total   int                    `json:"total"`
}

func (q Query) matches(e *models.AuditLogEntry) bool {
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if q.Action != "" && !strings.Contains(e.Action, q.Action) {
		return false
	}
	if q.Severity != "" && e.Severity != q.Severity {
		return false
	}
	if !q.From.IsZero() && e.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.Timestamp.After(q.To) {
		return false
	}
	return true
}

// Query filters, sorts newest first, then paginates. Total counts every
// match before pagination.
func (l *Log) Query(q Query) QueryResult {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	offset := max(q.Offset, 0)

	l.mu.RLock()
	var matched []models.AuditLogEntry
	l.each(func(_ int, e *models.AuditLogEntry) bool {
		if q.matches(e) {
			matched = append(matched, *e)
		}
		return true
	})
	l.mu.RUnlock()

	// Insertion order is oldest first; a stable sort keeps ties in reverse
	// insertion order.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	result := QueryResult{Total: len(matched), Entries: []models.AuditLogEntry{}}
	if offset >= len(matched) {
		return result
	}
	end := min(offset+limit, len(matched))
	result.Entries = matched[offset:end]
	return result
}

// Stats summarises the retained window.
type Stats struct {
	Total      int                     `json:"total"`
	Capacity   int                     `json:"capacity"`
	BySeverity map[models.Severity]int `json:"bySeverity"`
	ByAction   map[string]int          `json:"byAction"`
	Oldest     *time.Time              `json:"oldest,omitempty"`
	Newest     *time.Time              `json:"newest,omitempty"`
}

func (l *Log) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		Total:    l.size,
		Capacity: len(l.buf),
		BySeverity: map[models.Severity]int{
			models.SeverityLow:      0,
			models.SeverityMedium:   0,
			models.SeverityHigh:     0,
			models.SeverityCritical: 0,
		},
		ByAction: make(map[string]int),
	}
	l.each(func(i int, e *models.AuditLogEntry) bool {
		stats.BySeverity[e.Severity]++
		stats.ByAction[e.Action]++
		ts := e.Timestamp
		if i == 0 {
			stats.Oldest = &ts
		}
		if i == l.size-1 {
			stats.Newest = &ts
		}
		return true
	})
	return stats
}
