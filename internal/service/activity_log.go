package service

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pbcdev/attend-sync/internal/models"
)

const activityLogCap = 100

// ActivityLog is a bounded append-only log of sync operations kept for
// diagnostics. Writes never fail; the oldest entries are evicted past the
// cap. Entries are mirrored to the structured logger.
type ActivityLog struct {
	mu      sync.Mutex
	entries []models.ActivityLogEntry
	max     int
	logger  *zap.Logger
	now     func() time.Time
}

// NewActivityLog constructs an ActivityLog holding the most recent 100
// entries.
func NewActivityLog(logger *zap.Logger) *ActivityLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityLog{max: activityLogCap, logger: logger, now: time.Now}
}

// Log appends an entry at the given level.
func (l *ActivityLog) Log(level models.LogLevel, message string) {
	l.mu.Lock()
	l.entries = append(l.entries, models.ActivityLogEntry{
		Timestamp: l.now().UTC(),
		Level:     level,
		Message:   message,
	})
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	l.mu.Unlock()

	switch level {
	case models.LogLevelError:
		l.logger.Error(message)
	case models.LogLevelWarning:
		l.logger.Warn(message)
	default:
		l.logger.Info(message)
	}
}

// Infof records an info entry.
func (l *ActivityLog) Infof(format string, args ...interface{}) {
	l.Log(models.LogLevelInfo, fmt.Sprintf(format, args...))
}

// Warnf records a warning entry.
func (l *ActivityLog) Warnf(format string, args ...interface{}) {
	l.Log(models.LogLevelWarning, fmt.Sprintf(format, args...))
}

// Errorf records an error entry.
func (l *ActivityLog) Errorf(format string, args ...interface{}) {
	l.Log(models.LogLevelError, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the retained entries, oldest first.
func (l *ActivityLog) Entries() []models.ActivityLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ActivityLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
