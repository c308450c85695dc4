package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
)

// AuditFilter narrows a query. A zero Limit returns every match.
type AuditFilter struct {
	ActorID  string
	TargetID string
	Category domain.GDPRCategory
	From     time.Time
	To       time.Time
	Limit    int
	After    *AuditCursor
}

// AuditCursor is the position of the last entry already read. Entries are
// ordered by (At, ID), and a query with a cursor resumes strictly after it.
type AuditCursor struct {
	At time.Time
	ID uuid.UUID
}

// AuditRepository is append-only: there is no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, e domain.AuditEntry) error
	Query(ctx context.Context, f AuditFilter) ([]domain.AuditEntry, error)
}
