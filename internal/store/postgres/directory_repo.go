package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

const clientHistoryDepth = 50

// DirectoryRepo reads clients, operators and services. Those tables are owned and
// written by the CRUD side of the system.
type DirectoryRepo struct {
	db  *bun.DB
	loc *time.Location
}

func NewDirectoryRepo(db *bun.DB, loc *time.Location) *DirectoryRepo {
	if loc == nil {
		loc = time.Local
	}
	return &DirectoryRepo{db: db, loc: loc}
}

func (r *DirectoryRepo) Client(ctx context.Context, id string) (domain.Client, error) {
	var row clientRow
	err := r.db.NewSelect().Model(&row).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Client{}, mapError("get client", err)
	}
	return domain.Client{ID: row.ID, Name: row.Name, Active: row.Active}, nil
}

func (r *DirectoryRepo) Operator(ctx context.Context, id string) (domain.Operator, error) {
	var row operatorRow
	err := r.db.NewSelect().Model(&row).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Operator{}, mapError("get operator", err)
	}
	return row.toDomain(), nil
}

func (r *DirectoryRepo) ActiveOperators(ctx context.Context) ([]domain.Operator, error) {
	var rows []operatorRow
	err := r.db.NewSelect().Model(&rows).
		Where("active").
		Where("deleted_at IS NULL").
		OrderExpr("name ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError("list operators", err)
	}
	out := make([]domain.Operator, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *DirectoryRepo) Service(ctx context.Context, id string) (domain.Service, error) {
	var row serviceRow
	err := r.db.NewSelect().Model(&row).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Service{}, mapError("get service", err)
	}
	return domain.Service{
		ID:                 row.ID,
		Name:               row.Name,
		DurationMinutes:    row.DurationMinutes,
		Specialization:     row.Specialization,
		RequiresEquipment:  row.RequiresEquipment,
		EquipmentAvailable: row.EquipmentAvailable,
	}, nil
}

// ClientHistory combines the payment record with the start times of the client's
// most recent completed appointments.
func (r *DirectoryRepo) ClientHistory(ctx context.Context, clientID string) (domain.ClientHistory, error) {
	var client clientRow
	err := r.db.NewSelect().Model(&client).
		Where("id = ?", clientID).
		Where("deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.ClientHistory{}, mapError("get client history", err)
	}

	var starts []time.Time
	err = r.db.NewSelect().
		Model((*appointmentRow)(nil)).
		Column("start_at").
		Where("client_id = ?", clientID).
		Where("status = ?", string(domain.StatusCompleted)).
		Where("deleted_at IS NULL").
		OrderExpr("start_at DESC").
		Limit(clientHistoryDepth).
		Scan(ctx, &starts)
	if err != nil {
		return domain.ClientHistory{}, mapError("get client history", err)
	}

	noShows, err := r.db.NewSelect().
		Model((*appointmentRow)(nil)).
		Where("client_id = ?", clientID).
		Where("status = ?", string(domain.StatusNoShow)).
		Where("deleted_at IS NULL").
		Count(ctx)
	if err != nil {
		return domain.ClientHistory{}, mapError("get client history", err)
	}

	h := domain.ClientHistory{
		ClientID:     clientID,
		LatePayments: client.LatePayments,
		NoShows:      noShows,
	}
	for _, s := range starts {
		h.PastStartTimes = append(h.PastStartTimes, fromNaive(s, r.loc))
	}
	return h, nil
}

var _ store.DirectoryRepository = (*DirectoryRepo)(nil)
