package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

// AuditRepo writes to an insert-only table.
type AuditRepo struct {
	db  *bun.DB
	loc *time.Location
}

func NewAuditRepo(db *bun.DB, loc *time.Location) *AuditRepo {
	if loc == nil {
		loc = time.Local
	}
	return &AuditRepo{db: db, loc: loc}
}

func (r *AuditRepo) Append(ctx context.Context, e domain.AuditEntry) error {
	row := auditRow{
		ID:         e.ID,
		ActorID:    e.ActorID,
		ActorType:  string(e.ActorType),
		Action:     string(e.Action),
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Category:   string(e.Category),
		Details:    e.Details,
		CreatedAt:  toNaive(e.At, r.loc),
	}
	if _, err := r.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return mapError("append audit entry", err)
	}
	return nil
}

func (r *AuditRepo) Query(ctx context.Context, f store.AuditFilter) ([]domain.AuditEntry, error) {
	var rows []auditRow
	q := r.db.NewSelect().Model(&rows)
	if f.ActorID != "" {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if f.TargetID != "" {
		q = q.Where("target_id = ?", f.TargetID)
	}
	if f.Category != "" {
		q = q.Where("gdpr_category = ?", string(f.Category))
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", toNaive(f.From, r.loc))
	}
	if !f.To.IsZero() {
		q = q.Where("created_at < ?", toNaive(f.To, r.loc))
	}
	if f.After != nil {
		q = q.Where("(created_at, id) > (?, ?)", toNaive(f.After.At, r.loc), f.After.ID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.OrderExpr("created_at ASC, id ASC").Scan(ctx); err != nil {
		return nil, mapError("query audit log", err)
	}

	out := make([]domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.AuditEntry{
			ID:         row.ID,
			ActorID:    row.ActorID,
			ActorType:  domain.ActorType(row.ActorType),
			Action:     domain.AuditAction(row.Action),
			TargetType: row.TargetType,
			TargetID:   row.TargetID,
			Category:   domain.GDPRCategory(row.Category),
			Details:    row.Details,
			At:         fromNaive(row.CreatedAt, r.loc),
		})
	}
	return out, nil
}

var _ store.AuditRepository = (*AuditRepo)(nil)
