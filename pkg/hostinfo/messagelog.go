package hostinfo

import (
	"sync"
	"time"

	"github.com/rrflink/sbcd/pkg/model"
	"github.com/rrflink/sbcd/pkg/scheduler"
)

type logEntry struct {
	at       time.Time
	severity scheduler.Severity
	text     string
}

// MessageLog implements scheduler.MessageLog: every message CodeReply
// couldn't address to a waiting code, plus macro/abort diagnostics,
// lands here. It mirrors each entry into the object model's message
// list and keeps its own copy so the host updater can age entries out
// without re-reading the tree.
type MessageLog struct {
	store *model.Store

	mu      sync.Mutex
	entries []logEntry
}

// NewMessageLog returns a MessageLog writing into store.
func NewMessageLog(store *model.Store) *MessageLog {
	return &MessageLog{store: store}
}

// Log appends text at severity, satisfying scheduler.MessageLog.
func (l *MessageLog) Log(severity scheduler.Severity, text string) {
	entry := logEntry{at: time.Now(), severity: severity, text: text}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	g := l.store.AccessReadWrite()
	defer g.Release()
	g.AppendGrowing(model.Path{model.Key("messages")}, []interface{}{entryToModel(entry)})
}

// Prune drops entries older than maxAge and, if any were dropped,
// rewrites the object model's message list to match.
func (l *MessageLog) Prune(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	l.mu.Lock()
	kept := make([]logEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	changed := len(kept) != len(l.entries)
	l.entries = kept
	remaining := make([]interface{}, len(kept))
	for i, e := range kept {
		remaining[i] = entryToModel(e)
	}
	l.mu.Unlock()

	if !changed {
		return
	}

	g := l.store.AccessReadWrite()
	defer g.Release()
	g.ClearGrowing(model.Path{model.Key("messages")})
	if len(remaining) > 0 {
		g.AppendGrowing(model.Path{model.Key("messages")}, remaining)
	}
}

func entryToModel(e logEntry) map[string]interface{} {
	return map[string]interface{}{
		"time":     e.at.Format(time.RFC3339),
		"severity": severityName(e.severity),
		"content":  e.text,
	}
}

func severityName(s scheduler.Severity) string {
	switch s {
	case scheduler.SeverityWarning:
		return "warning"
	case scheduler.SeverityError:
		return "error"
	default:
		return "info"
	}
}
