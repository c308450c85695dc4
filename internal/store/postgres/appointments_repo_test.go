package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

type fakeBookingTx struct {
	getFn       func(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error)
	occupyingFn func(ctx context.Context, res store.Resource, windowStart, windowEnd time.Time) ([]*domain.Appointment, error)
}

func (f *fakeBookingTx) GetAppointment(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error) {
	if f.getFn == nil {
		panic("GetAppointment not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeBookingTx) ListOccupying(ctx context.Context, res store.Resource, windowStart, windowEnd time.Time) ([]*domain.Appointment, error) {
	if f.occupyingFn == nil {
		return nil, nil
	}
	return f.occupyingFn(ctx, res, windowStart, windowEnd)
}

func (f *fakeBookingTx) InsertAppointment(ctx context.Context, appt *domain.Appointment) error {
	panic("not used")
}

func (f *fakeBookingTx) UpsertAppointment(ctx context.Context, appt *domain.Appointment) error {
	panic("not used")
}

var baseStart = time.Date(2030, 3, 5, 10, 0, 0, 0, time.UTC)

func snapshot(id byte, operator, room string, start time.Time, minutes int, st domain.Status) domain.Snapshot {
	return domain.Snapshot{
		ID:              domain.AppointmentID{15: id},
		Start:           start,
		DurationMinutes: minutes,
		ClientID:        "client-1",
		OperatorID:      operator,
		RoomID:          room,
		ServiceID:       "svc-cut",
		Status:          st,
		CreatedAt:       baseStart.Add(-48 * time.Hour),
		UpdatedAt:       baseStart.Add(-24 * time.Hour),
	}
}

func rehydrate(t *testing.T, s domain.Snapshot) *domain.Appointment {
	t.Helper()
	a, err := domain.Rehydrate(s)
	if err != nil {
		t.Fatalf("Rehydrate error: %v", err)
	}
	return a
}

func TestAppointmentRow_RoundTripKeepsLocalWallClock(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	s := snapshot(1, "op-1", "room-a", time.Date(2030, 3, 5, 10, 0, 0, 0, rome), 45, domain.StatusConfirmed)
	s.RequiresEquipment = true
	s.Override = &domain.OverrideInfo{
		AuthorizedBy: "staff-1",
		Reason:       "client insisted",
		WarningCodes: []domain.Code{domain.CodeShortBreak, domain.CodeClientLatePayments},
		At:           time.Date(2030, 3, 1, 9, 0, 0, 0, rome),
	}
	deleted := time.Date(2030, 3, 2, 12, 0, 0, 0, rome)
	s.DeletedAt = &deleted
	in := rehydrate(t, s)

	row := toAppointmentRow(in, rome)
	if row.StartAt != time.Date(2030, 3, 5, 10, 0, 0, 0, time.UTC) {
		t.Fatalf("StartAt = %s, want naive 10:00", row.StartAt)
	}
	if row.EndAt != time.Date(2030, 3, 5, 10, 45, 0, 0, time.UTC) {
		t.Fatalf("EndAt = %s, want naive 10:45", row.EndAt)
	}
	if row.RoomID == nil || *row.RoomID != "room-a" {
		t.Fatalf("RoomID = %v", row.RoomID)
	}

	out, err := row.toDomain(rome)
	if err != nil {
		t.Fatalf("toDomain error: %v", err)
	}
	if !out.Start().Equal(in.Start()) || out.Start().Location() != rome {
		t.Fatalf("start = %s, want %s", out.Start(), in.Start())
	}
	if out.Status() != domain.StatusConfirmed || !out.RequiresEquipment() {
		t.Fatalf("status/equipment = %s/%v", out.Status(), out.RequiresEquipment())
	}
	o, ok := out.Override()
	if !ok {
		t.Fatalf("override lost")
	}
	if o.AuthorizedBy != "staff-1" || o.Reason != "client insisted" || len(o.WarningCodes) != 2 || !o.At.Equal(s.Override.At) {
		t.Fatalf("override = %+v", o)
	}
	at, ok := out.DeletedAt()
	if !ok || !at.Equal(deleted) {
		t.Fatalf("deleted_at = %s/%v, want %s", at, ok, deleted)
	}
}

func TestAppointmentRow_RoundTripSubMicrosecondClock(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2030, 1, 1, 8, 0, 0, 123456789, rome)

	a, err := domain.NewAppointment(domain.AppointmentDraft{
		Start:           time.Date(2030, 3, 5, 10, 0, 0, 0, rome),
		DurationMinutes: 30,
		ClientID:        "client-1",
		OperatorID:      "op-1",
		ServiceID:       "svc-cut",
	}, now)
	if err != nil {
		t.Fatalf("NewAppointment error: %v", err)
	}
	override := &domain.OverrideInfo{AuthorizedBy: "staff-1", Reason: "agreed", WarningCodes: []domain.Code{domain.CodeShortBreak}, At: now}
	if err := a.Confirm(override, now.Add(time.Second)); err != nil {
		t.Fatalf("Confirm error: %v", err)
	}

	out, err := toAppointmentRow(a, rome).toDomain(rome)
	if err != nil {
		t.Fatalf("toDomain error: %v", err)
	}
	if !out.CreatedAt().Equal(a.CreatedAt()) {
		t.Fatalf("created_at = %s, want %s", out.CreatedAt(), a.CreatedAt())
	}
	if !out.UpdatedAt().Equal(a.UpdatedAt()) {
		t.Fatalf("updated_at = %s, want %s", out.UpdatedAt(), a.UpdatedAt())
	}
	got, _ := out.Override()
	want, _ := a.Override()
	if !got.At.Equal(want.At) {
		t.Fatalf("override.At = %s, want %s", got.At, want.At)
	}
}

func TestAppointmentRow_NoRoomNoOverride(t *testing.T) {
	in := rehydrate(t, snapshot(2, "op-1", "", baseStart, 30, domain.StatusDraft))

	row := toAppointmentRow(in, time.UTC)
	if row.RoomID != nil || row.OverrideBy != nil || row.OverrideCodes != nil || row.DeletedAt != nil {
		t.Fatalf("optional columns set: %+v", row)
	}

	out, err := row.toDomain(time.UTC)
	if err != nil {
		t.Fatalf("toDomain error: %v", err)
	}
	if out.RoomID() != "" || out.Deleted() {
		t.Fatalf("room/deleted = %q/%v", out.RoomID(), out.Deleted())
	}
	if _, ok := out.Override(); ok {
		t.Fatalf("unexpected override")
	}
}

func TestAppointmentRow_UnknownStatusIsRejected(t *testing.T) {
	row := toAppointmentRow(rehydrate(t, snapshot(3, "op-1", "", baseStart, 30, domain.StatusDraft)), time.UTC)
	row.Status = "archived"

	if _, err := row.toDomain(time.UTC); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEnsureNoOverlap(t *testing.T) {
	candidate := rehydrate(t, snapshot(10, "op-1", "room-a", baseStart, 30, domain.StatusConfirmed))

	tests := []struct {
		name     string
		existing map[string][]*domain.Appointment
		wantErr  bool
	}{
		{
			name: "operator overlap",
			existing: map[string][]*domain.Appointment{
				"operator:op-1": {rehydrate(t, snapshot(11, "op-1", "", baseStart.Add(15*time.Minute), 30, domain.StatusConfirmed))},
			},
			wantErr: true,
		},
		{
			name: "room overlap",
			existing: map[string][]*domain.Appointment{
				"room:room-a": {rehydrate(t, snapshot(12, "op-2", "room-a", baseStart.Add(-15*time.Minute), 30, domain.StatusInProgress))},
			},
			wantErr: true,
		},
		{
			name: "touching edges",
			existing: map[string][]*domain.Appointment{
				"operator:op-1": {rehydrate(t, snapshot(13, "op-1", "", baseStart.Add(30*time.Minute), 30, domain.StatusConfirmed))},
			},
		},
		{
			name: "cancelled does not occupy",
			existing: map[string][]*domain.Appointment{
				"operator:op-1": {rehydrate(t, snapshot(14, "op-1", "", baseStart, 30, domain.StatusCancelled))},
			},
		},
		{
			name: "self is ignored",
			existing: map[string][]*domain.Appointment{
				"operator:op-1": {candidate},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &fakeBookingTx{
				occupyingFn: func(ctx context.Context, res store.Resource, windowStart, windowEnd time.Time) ([]*domain.Appointment, error) {
					if !windowStart.Equal(candidate.Start()) || !windowEnd.Equal(candidate.End()) {
						t.Fatalf("window = [%s, %s)", windowStart, windowEnd)
					}
					return tt.existing[res.Key()], nil
				},
			}
			err := ensureNoOverlap(context.Background(), tx, candidate)
			if tt.wantErr {
				if !errors.Is(err, store.ErrConflict) {
					t.Fatalf("err = %v, want ErrConflict", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v, want nil", err)
			}
		})
	}
}

func TestEnsureNoOverlap_SkipsNonOccupyingCandidate(t *testing.T) {
	candidate := rehydrate(t, snapshot(20, "op-1", "", baseStart, 30, domain.StatusCancelled))
	tx := &fakeBookingTx{
		occupyingFn: func(ctx context.Context, res store.Resource, windowStart, windowEnd time.Time) ([]*domain.Appointment, error) {
			t.Fatalf("ListOccupying called for cancelled candidate")
			return nil, nil
		},
	}
	if err := ensureNoOverlap(context.Background(), tx, candidate); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}

func TestEnsureNotTombstoned(t *testing.T) {
	id := domain.AppointmentID{15: 30}
	deleted := baseStart.Add(-time.Hour)
	gone := snapshot(30, "op-1", "", baseStart, 30, domain.StatusConfirmed)
	gone.DeletedAt = &deleted

	tests := []struct {
		name    string
		get     func(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error)
		wantErr error
	}{
		{
			name: "new appointment",
			get: func(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error) {
				return nil, store.Wrap("get appointment", store.ErrNotFound, sql.ErrNoRows)
			},
		},
		{
			name: "live appointment",
			get: func(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error) {
				return rehydrate(t, snapshot(30, "op-1", "", baseStart, 30, domain.StatusConfirmed)), nil
			},
		},
		{
			name: "tombstoned appointment",
			get: func(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error) {
				return rehydrate(t, gone), nil
			},
			wantErr: domain.ErrAppointmentDeleted,
		},
		{
			name: "storage failure",
			get: func(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error) {
				return nil, store.Wrap("get appointment", store.ErrDatabase, errors.New("connection reset"))
			},
			wantErr: store.ErrDatabase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ensureNotTombstoned(context.Background(), &fakeBookingTx{getFn: tt.get}, id)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("err = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsureAbsent(t *testing.T) {
	id := domain.AppointmentID{15: 31}
	deleted := baseStart.Add(-time.Hour)
	gone := snapshot(31, "op-1", "", baseStart, 30, domain.StatusConfirmed)
	gone.DeletedAt = &deleted

	tests := []struct {
		name    string
		get     func(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error)
		wantErr error
	}{
		{
			name: "free id",
			get: func(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error) {
				return nil, store.Wrap("get appointment", store.ErrNotFound, sql.ErrNoRows)
			},
		},
		{
			name: "same id already stored",
			get: func(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error) {
				return rehydrate(t, snapshot(31, "op-2", "", baseStart.Add(time.Hour), 30, domain.StatusConfirmed)), nil
			},
			wantErr: store.ErrAlreadyExists,
		},
		{
			name: "same id tombstoned",
			get: func(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error) {
				return rehydrate(t, gone), nil
			},
			wantErr: store.ErrAlreadyExists,
		},
		{
			name: "storage failure",
			get: func(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error) {
				return nil, store.Wrap("get appointment", store.ErrDatabase, errors.New("connection reset"))
			},
			wantErr: store.ErrDatabase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ensureAbsent(context.Background(), &fakeBookingTx{getFn: tt.get}, id)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("err = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"exclusion violation", &pgconn.PgError{Code: "23P01"}, store.ErrConflict},
		{"unique violation", &pgconn.PgError{Code: "23505"}, store.ErrConflict},
		{"primary key violation", &pgconn.PgError{Code: "23505", ConstraintName: "appointments_pkey"}, store.ErrAlreadyExists},
		{"serialization failure", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), store.ErrConflict},
		{"bad text representation", &pgconn.PgError{Code: "22P02"}, store.ErrSerialization},
		{"other pg error", &pgconn.PgError{Code: "53300"}, store.ErrDatabase},
		{"plain error", errors.New("dial tcp: refused"), store.ErrDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("op", tt.err)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("cause lost: %v", err)
			}
		})
	}

	if mapError("op", nil) != nil {
		t.Fatalf("mapError(nil) != nil")
	}

	already := store.Wrap("inner", store.ErrConflict, nil)
	if got := mapError("outer", already); got != already {
		t.Fatalf("store error rewrapped: %v", got)
	}
}

func TestResourcesOf(t *testing.T) {
	withRoom := rehydrate(t, snapshot(40, "op-1", "room-a", baseStart, 30, domain.StatusDraft))
	if got := resourcesOf(withRoom); len(got) != 2 || got[1].Key() != "room:room-a" {
		t.Fatalf("resources = %v", got)
	}
	noRoom := rehydrate(t, snapshot(41, "op-1", "", baseStart, 30, domain.StatusDraft))
	if got := resourcesOf(noRoom); len(got) != 1 || got[0].Key() != "operator:op-1" {
		t.Fatalf("resources = %v", got)
	}
}
