package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Entry is one audit record of an operator-visible action.
type Entry struct {
	ID           uuid.UUID
	UserID       *uuid.UUID
	Username     string
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	IPAddress    string
	Success      bool
	ErrorMessage string
	Timestamp    time.Time
}

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, entry *Entry) error
}

// Recorder writes audit entries best-effort: a failed write is logged and
// never fails the request that triggered it. A nil Recorder records
// nothing.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.store == nil {
		return
	}
	entry.ID = uuid.New()
	entry.Timestamp = time.Now().UTC()
	if err := r.store.Insert(ctx, &entry); err != nil {
		slog.Error("Failed to write audit entry", "action", entry.Action, "error", err)
		return
	}
	slog.Debug("Audit entry recorded",
		"action", entry.Action,
		"username", entry.Username,
		"resource", entry.ResourceType+"/"+entry.ResourceID,
		"success", entry.Success)
}
