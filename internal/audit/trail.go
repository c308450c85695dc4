// Package audit is the append-only record of booking decisions.
package audit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

const (
	DefaultQueryLimit = 500
	MaxQueryLimit     = 5000
)

type Filter struct {
	ActorID  string
	TargetID string
	Category domain.GDPRCategory
	From     time.Time
	To       time.Time
	Limit    int

	// PageToken continues a previous query; it comes from Page.NextPageToken.
	PageToken string
}

type Page struct {
	Entries []domain.AuditEntry

	// NextPageToken is empty once every matching entry has been returned.
	NextPageToken string
}

type Trail struct {
	repo   store.AuditRepository
	logger *slog.Logger
}

func NewTrail(repo store.AuditRepository, logger *slog.Logger) *Trail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trail{repo: repo, logger: logger.With("component", "audit")}
}

// Append persists one entry. It is the only write the trail offers.
func (t *Trail) Append(ctx context.Context, e domain.AuditEntry) error {
	if err := checkEntry(e); err != nil {
		return err
	}
	if err := t.repo.Append(ctx, e); err != nil {
		t.logger.Error("audit append failed", "action", e.Action, "target_id", e.TargetID, "err", err)
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Record builds the entry and appends it.
func (t *Trail) Record(ctx context.Context, b *domain.AuditEntryBuilder) (domain.AuditEntry, error) {
	e, err := b.Build()
	if err != nil {
		return domain.AuditEntry{}, err
	}
	if err := t.Append(ctx, e); err != nil {
		return domain.AuditEntry{}, err
	}
	return e, nil
}

// Query returns one page of matching entries ordered by time, oldest first.
// Limit is clamped to MaxQueryLimit; callers follow NextPageToken for the rest.
func (t *Trail) Query(ctx context.Context, f Filter) (Page, error) {
	if f.Category != "" && !f.Category.Valid() {
		return Page{}, &domain.InvalidInputError{Field: "category", Reason: "unknown gdpr category"}
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return Page{}, &domain.InvalidInputError{Field: "to", Reason: "must be after from"}
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultQueryLimit
	case f.Limit > MaxQueryLimit:
		f.Limit = MaxQueryLimit
	}
	var after *store.AuditCursor
	if f.PageToken != "" {
		c, err := decodePageToken(f.PageToken)
		if err != nil {
			return Page{}, &domain.InvalidInputError{Field: "page_token", Reason: "is malformed"}
		}
		after = &c
	}

	// One extra row tells whether another page exists.
	entries, err := t.repo.Query(ctx, store.AuditFilter{
		ActorID:  f.ActorID,
		TargetID: f.TargetID,
		Category: f.Category,
		From:     f.From,
		To:       f.To,
		Limit:    f.Limit + 1,
		After:    after,
	})
	if err != nil {
		return Page{}, fmt.Errorf("query audit trail: %w", err)
	}
	if len(entries) <= f.Limit {
		return Page{Entries: entries}, nil
	}
	entries = entries[:f.Limit]
	last := entries[len(entries)-1]
	return Page{
		Entries:       entries,
		NextPageToken: encodePageToken(store.AuditCursor{At: last.At, ID: last.ID}),
	}, nil
}

func encodePageToken(c store.AuditCursor) string {
	raw := c.At.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodePageToken(token string) (store.AuditCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return store.AuditCursor{}, err
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return store.AuditCursor{}, errors.New("missing separator")
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return store.AuditCursor{}, err
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return store.AuditCursor{}, err
	}
	return store.AuditCursor{At: ts, ID: uid}, nil
}

// checkEntry rejects entries that did not come out of the builder complete.
func checkEntry(e domain.AuditEntry) error {
	var missing []string
	if e.ActorID == "" || !e.ActorType.Valid() {
		missing = append(missing, "actor")
	}
	if e.Action == "" {
		missing = append(missing, "action")
	}
	if e.TargetType == "" || e.TargetID == "" {
		missing = append(missing, "target")
	}
	if !e.Category.Valid() {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return &domain.IncompleteAuditEntryError{Missing: missing}
	}
	return nil
}

func IsIncomplete(err error) bool {
	return errors.Is(err, domain.ErrIncompleteAuditEntry)
}
