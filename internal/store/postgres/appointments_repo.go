package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

type AppointmentRepo struct {
	db  *bun.DB
	loc *time.Location
}

func NewAppointmentRepo(db *bun.DB, loc *time.Location) *AppointmentRepo {
	if loc == nil {
		loc = time.Local
	}
	return &AppointmentRepo{db: db, loc: loc}
}

type bookingTx struct {
	tx  bun.Tx
	loc *time.Location
}

func (r *AppointmentRepo) Get(ctx context.Context, id domain.AppointmentID, vis store.Visibility) (*domain.Appointment, error) {
	var row appointmentRow
	q := r.db.NewSelect().Model(&row).Where("id = ?", uuid.UUID(id))
	if vis == store.ActiveOnly {
		q = q.Where("deleted_at IS NULL")
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, mapError("get appointment", err)
	}
	appt, err := row.toDomain(r.loc)
	if err != nil {
		return nil, store.Wrap("get appointment", store.ErrSerialization, err)
	}
	return appt, nil
}

func (r *AppointmentRepo) ListAll(ctx context.Context, vis store.Visibility) ([]*domain.Appointment, error) {
	return r.list(ctx, "list appointments", vis, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q
	})
}

func (r *AppointmentRepo) ListByClient(ctx context.Context, clientID string, vis store.Visibility) ([]*domain.Appointment, error) {
	return r.list(ctx, "list appointments by client", vis, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("client_id = ?", clientID)
	})
}

func (r *AppointmentRepo) ListByOperator(ctx context.Context, operatorID string, vis store.Visibility) ([]*domain.Appointment, error) {
	return r.list(ctx, "list appointments by operator", vis, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("operator_id = ?", operatorID)
	})
}

func (r *AppointmentRepo) ListByDateRange(ctx context.Context, from, to time.Time, vis store.Visibility) ([]*domain.Appointment, error) {
	return r.list(ctx, "list appointments by date range", vis, func(q *bun.SelectQuery) *bun.SelectQuery {
		return r.overlapping(q, from, to)
	})
}

func (r *AppointmentRepo) ListByOperatorAndDate(ctx context.Context, operatorID string, day time.Time, vis store.Visibility) ([]*domain.Appointment, error) {
	from, to := r.dayBounds(day)
	return r.ListByOperatorAndDateRange(ctx, operatorID, from, to, vis)
}

func (r *AppointmentRepo) ListByOperatorAndDateRange(ctx context.Context, operatorID string, from, to time.Time, vis store.Visibility) ([]*domain.Appointment, error) {
	return r.list(ctx, "list appointments by operator and date", vis, func(q *bun.SelectQuery) *bun.SelectQuery {
		return r.overlapping(q.Where("operator_id = ?", operatorID), from, to)
	})
}

func (r *AppointmentRepo) ListByRoomAndDate(ctx context.Context, roomID string, day time.Time, vis store.Visibility) ([]*domain.Appointment, error) {
	from, to := r.dayBounds(day)
	return r.list(ctx, "list appointments by room and date", vis, func(q *bun.SelectQuery) *bun.SelectQuery {
		return r.overlapping(q.Where("room_id = ?", roomID), from, to)
	})
}

func (r *AppointmentRepo) dayBounds(day time.Time) (time.Time, time.Time) {
	from := domain.StartOfDay(day.In(r.loc))
	return from, from.AddDate(0, 0, 1)
}

func (r *AppointmentRepo) overlapping(q *bun.SelectQuery, from, to time.Time) *bun.SelectQuery {
	return q.
		Where("start_at < ?", toNaive(to, r.loc)).
		Where("end_at > ?", toNaive(from, r.loc))
}

func (r *AppointmentRepo) list(ctx context.Context, op string, vis store.Visibility, apply func(q *bun.SelectQuery) *bun.SelectQuery) ([]*domain.Appointment, error) {
	var rows []appointmentRow
	q := apply(r.db.NewSelect().Model(&rows))
	if vis == store.ActiveOnly {
		q = q.Where("deleted_at IS NULL")
	}
	if err := q.OrderExpr("start_at ASC, id ASC").Scan(ctx); err != nil {
		return nil, mapError(op, err)
	}
	return rowsToDomain(op, rows, r.loc)
}

func rowsToDomain(op string, rows []appointmentRow, loc *time.Location) ([]*domain.Appointment, error) {
	out := make([]*domain.Appointment, 0, len(rows))
	for _, row := range rows {
		a, err := row.toDomain(loc)
		if err != nil {
			return nil, store.Wrap(op, store.ErrSerialization, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *AppointmentRepo) Save(ctx context.Context, appt *domain.Appointment) error {
	return r.InBookingTransaction(ctx, resourcesOf(appt), func(ctx context.Context, tx store.BookingTx) error {
		if err := ensureNotTombstoned(ctx, tx, appt.ID()); err != nil {
			return err
		}
		if err := ensureNoOverlap(ctx, tx, appt); err != nil {
			return err
		}
		return tx.UpsertAppointment(ctx, appt)
	})
}

func (r *AppointmentRepo) Create(ctx context.Context, appt *domain.Appointment) error {
	resources := append(resourcesOf(appt), store.Resource{Kind: store.ResourceAppointment, ID: appt.ID().String()})
	return r.InBookingTransaction(ctx, resources, func(ctx context.Context, tx store.BookingTx) error {
		if err := ensureAbsent(ctx, tx, appt.ID()); err != nil {
			return err
		}
		if err := ensureNoOverlap(ctx, tx, appt); err != nil {
			return err
		}
		return tx.InsertAppointment(ctx, appt)
	})
}

func (r *AppointmentRepo) SoftDelete(ctx context.Context, id domain.AppointmentID, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*appointmentRow)(nil)).
		Set("deleted_at = ?", toNaive(at, r.loc)).
		Set("updated_at = ?", toNaive(at, r.loc)).
		Where("id = ?", uuid.UUID(id)).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return mapError("soft delete appointment", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return mapError("soft delete appointment", err)
	}
	if affected == 0 {
		return store.Wrap("soft delete appointment", store.ErrNotFound, nil)
	}
	return nil
}

// InBookingTransaction runs fn holding transaction-scoped advisory locks on every
// resource, so overlap checks and writes for the same operator or room serialize.
func (r *AppointmentRepo) InBookingTransaction(ctx context.Context, resources []store.Resource, fn func(ctx context.Context, tx store.BookingTx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockResources(ctx, tx, resources); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx, loc: r.loc})
	})
	return mapError("booking transaction", err)
}

func resourcesOf(appt *domain.Appointment) []store.Resource {
	out := []store.Resource{{Kind: store.ResourceOperator, ID: appt.OperatorID()}}
	if appt.RoomID() != "" {
		out = append(out, store.Resource{Kind: store.ResourceRoom, ID: appt.RoomID()})
	}
	return out
}

// lockResources takes the locks in key order so two transactions never wait on each other crosswise.
func lockResources(ctx context.Context, tx bun.Tx, resources []store.Resource) error {
	keys := make([]string, 0, len(resources))
	for _, res := range resources {
		keys = append(keys, res.Key())
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", k).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (t bookingTx) GetAppointment(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error) {
	var row appointmentRow
	err := t.tx.NewSelect().Model(&row).Where("id = ?", uuid.UUID(id)).Limit(1).Scan(ctx)
	if err != nil {
		return nil, mapError("get appointment", err)
	}
	appt, err := row.toDomain(t.loc)
	if err != nil {
		return nil, store.Wrap("get appointment", store.ErrSerialization, err)
	}
	return appt, nil
}

func (t bookingTx) ListOccupying(ctx context.Context, res store.Resource, windowStart, windowEnd time.Time) ([]*domain.Appointment, error) {
	column := "operator_id"
	if res.Kind == store.ResourceRoom {
		column = "room_id"
	}
	var rows []appointmentRow
	err := t.tx.NewSelect().
		Model(&rows).
		Where("? = ?", bun.Ident(column), res.ID).
		Where("deleted_at IS NULL").
		Where("status <> ?", string(domain.StatusCancelled)).
		Where("start_at < ?", toNaive(windowEnd, t.loc)).
		Where("end_at > ?", toNaive(windowStart, t.loc)).
		OrderExpr("start_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError("list occupying appointments", err)
	}
	return rowsToDomain("list occupying appointments", rows, t.loc)
}

func (t bookingTx) InsertAppointment(ctx context.Context, appt *domain.Appointment) error {
	row := toAppointmentRow(appt, t.loc)
	if _, err := t.tx.NewInsert().Model(&row).Exec(ctx); err != nil {
		return mapError("create appointment", err)
	}
	return nil
}

func (t bookingTx) UpsertAppointment(ctx context.Context, appt *domain.Appointment) error {
	row := toAppointmentRow(appt, t.loc)
	_, err := t.tx.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("start_at = EXCLUDED.start_at").
		Set("end_at = EXCLUDED.end_at").
		Set("duration_minutes = EXCLUDED.duration_minutes").
		Set("room_id = EXCLUDED.room_id").
		Set("requires_equipment = EXCLUDED.requires_equipment").
		Set("status = EXCLUDED.status").
		Set("override_by = EXCLUDED.override_by").
		Set("override_reason = EXCLUDED.override_reason").
		Set("override_codes = EXCLUDED.override_codes").
		Set("override_at = EXCLUDED.override_at").
		Set("updated_at = EXCLUDED.updated_at").
		Set("deleted_at = EXCLUDED.deleted_at").
		Exec(ctx)
	if err != nil {
		return mapError("save appointment", err)
	}
	return nil
}

// ensureAbsent refuses to create over an existing row, tombstones included.
func ensureAbsent(ctx context.Context, tx store.BookingTx, id domain.AppointmentID) error {
	_, err := tx.GetAppointment(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	return store.Wrap("create appointment", store.ErrAlreadyExists, fmt.Errorf("appointment %s", id))
}

// ensureNotTombstoned refuses to overwrite a row that was soft-deleted in the meantime.
func ensureNotTombstoned(ctx context.Context, tx store.BookingTx, id domain.AppointmentID) error {
	existing, err := tx.GetAppointment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.Deleted() {
		return store.Wrap("save appointment", store.ErrNotFound, domain.ErrAppointmentDeleted)
	}
	return nil
}

// ensureNoOverlap re-runs the operator and room conflict check inside the booking
// transaction. Cancelled and tombstoned appointments never conflict.
func ensureNoOverlap(ctx context.Context, tx store.BookingTx, appt *domain.Appointment) error {
	if appt.Deleted() || !appt.Status().Occupying() {
		return nil
	}
	for _, res := range resourcesOf(appt) {
		others, err := tx.ListOccupying(ctx, res, appt.Start(), appt.End())
		if err != nil {
			return err
		}
		for _, o := range others {
			if o.ID() == appt.ID() || o.Deleted() || !o.Status().Occupying() {
				continue
			}
			if o.Overlaps(appt.Start(), appt.End()) {
				return store.Wrap("save appointment", store.ErrConflict,
					fmt.Errorf("%s %s already booked by appointment %s", res.Kind, res.ID, o.ID()))
			}
		}
	}
	return nil
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *store.Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.Wrap(op, store.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == "appointments_pkey" {
				return store.Wrap(op, store.ErrAlreadyExists, err)
			}
			return store.Wrap(op, store.ErrConflict, err)
		case "23P01", "40001", "40P01":
			return store.Wrap(op, store.ErrConflict, err)
		case "22P02", "22007", "22008":
			return store.Wrap(op, store.ErrSerialization, err)
		}
	}
	return store.Wrap(op, store.ErrDatabase, err)
}

var _ store.AppointmentRepository = (*AppointmentRepo)(nil)
