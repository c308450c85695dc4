package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"salonbook/backend/internal/domain"
)

// Timestamps are stored as naive local wall-clock values (timestamp without
// time zone). toNaive and fromNaive convert at the boundary.
func toNaive(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC).
		Truncate(domain.TimePrecision)
}

func fromNaive(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func toNaivePtr(t *time.Time, loc *time.Location) *time.Time {
	if t == nil {
		return nil
	}
	n := toNaive(*t, loc)
	return &n
}

func fromNaivePtr(t *time.Time, loc *time.Location) *time.Time {
	if t == nil {
		return nil
	}
	l := fromNaive(*t, loc)
	return &l
}

type appointmentRow struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                uuid.UUID  `bun:"id,pk,type:uuid"`
	StartAt           time.Time  `bun:"start_at,notnull"`
	EndAt             time.Time  `bun:"end_at,notnull"`
	DurationMinutes   int        `bun:"duration_minutes,notnull"`
	ClientID          string     `bun:"client_id,notnull"`
	OperatorID        string     `bun:"operator_id,notnull"`
	RoomID            *string    `bun:"room_id"`
	ServiceID         string     `bun:"service_id,notnull"`
	RequiresEquipment bool       `bun:"requires_equipment,notnull"`
	Status            string     `bun:"status,notnull"`
	OverrideBy        *string    `bun:"override_by"`
	OverrideReason    *string    `bun:"override_reason"`
	OverrideCodes     []string   `bun:"override_codes,array"`
	OverrideAt        *time.Time `bun:"override_at"`
	CreatedAt         time.Time  `bun:"created_at,notnull"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull"`
	DeletedAt         *time.Time `bun:"deleted_at"`
}

func toAppointmentRow(a *domain.Appointment, loc *time.Location) appointmentRow {
	s := a.Snapshot()
	row := appointmentRow{
		ID:                uuid.UUID(s.ID),
		StartAt:           toNaive(s.Start, loc),
		EndAt:             toNaive(a.End(), loc),
		DurationMinutes:   s.DurationMinutes,
		ClientID:          s.ClientID,
		OperatorID:        s.OperatorID,
		ServiceID:         s.ServiceID,
		RequiresEquipment: s.RequiresEquipment,
		Status:            string(s.Status),
		CreatedAt:         toNaive(s.CreatedAt, loc),
		UpdatedAt:         toNaive(s.UpdatedAt, loc),
		DeletedAt:         toNaivePtr(s.DeletedAt, loc),
	}
	if s.RoomID != "" {
		room := s.RoomID
		row.RoomID = &room
	}
	if s.Override != nil {
		by := s.Override.AuthorizedBy
		reason := s.Override.Reason
		at := toNaive(s.Override.At, loc)
		row.OverrideBy = &by
		row.OverrideReason = &reason
		row.OverrideAt = &at
		row.OverrideCodes = make([]string, 0, len(s.Override.WarningCodes))
		for _, c := range s.Override.WarningCodes {
			row.OverrideCodes = append(row.OverrideCodes, string(c))
		}
	}
	return row
}

func (a appointmentRow) toDomain(loc *time.Location) (*domain.Appointment, error) {
	s := domain.Snapshot{
		ID:                domain.AppointmentID(a.ID),
		Start:             fromNaive(a.StartAt, loc),
		DurationMinutes:   a.DurationMinutes,
		ClientID:          a.ClientID,
		OperatorID:        a.OperatorID,
		ServiceID:         a.ServiceID,
		RequiresEquipment: a.RequiresEquipment,
		Status:            domain.Status(a.Status),
		CreatedAt:         fromNaive(a.CreatedAt, loc),
		UpdatedAt:         fromNaive(a.UpdatedAt, loc),
		DeletedAt:         fromNaivePtr(a.DeletedAt, loc),
	}
	if a.RoomID != nil {
		s.RoomID = *a.RoomID
	}
	if a.OverrideBy != nil {
		o := domain.OverrideInfo{AuthorizedBy: *a.OverrideBy}
		if a.OverrideReason != nil {
			o.Reason = *a.OverrideReason
		}
		if a.OverrideAt != nil {
			o.At = fromNaive(*a.OverrideAt, loc)
		}
		for _, c := range a.OverrideCodes {
			o.WarningCodes = append(o.WarningCodes, domain.Code(c))
		}
		s.Override = &o
	}
	return domain.Rehydrate(s)
}

type clientRow struct {
	bun.BaseModel `bun:"table:clients"`

	ID           string     `bun:"id,pk"`
	Name         string     `bun:"name,notnull"`
	Active       bool       `bun:"active,notnull"`
	LatePayments int        `bun:"late_payments,notnull"`
	DeletedAt    *time.Time `bun:"deleted_at"`
}

type operatorRow struct {
	bun.BaseModel `bun:"table:operators"`

	ID              string     `bun:"id,pk"`
	Name            string     `bun:"name,notnull"`
	Specializations []string   `bun:"specializations,array,notnull"`
	Active          bool       `bun:"active,notnull"`
	DeletedAt       *time.Time `bun:"deleted_at"`
}

func (o operatorRow) toDomain() domain.Operator {
	return domain.Operator{
		ID:              o.ID,
		Name:            o.Name,
		Specializations: append([]string(nil), o.Specializations...),
		Active:          o.Active,
	}
}

type serviceRow struct {
	bun.BaseModel `bun:"table:services"`

	ID                 string     `bun:"id,pk"`
	Name               string     `bun:"name,notnull"`
	DurationMinutes    int        `bun:"duration_minutes,notnull"`
	Specialization     string     `bun:"specialization,notnull"`
	RequiresEquipment  bool       `bun:"requires_equipment,notnull"`
	EquipmentAvailable bool       `bun:"equipment_available,notnull"`
	DeletedAt          *time.Time `bun:"deleted_at"`
}

type auditRow struct {
	bun.BaseModel `bun:"table:audit_log"`

	ID         uuid.UUID         `bun:"id,pk,type:uuid"`
	ActorID    string            `bun:"actor_id,notnull"`
	ActorType  string            `bun:"actor_type,notnull"`
	Action     string            `bun:"action,notnull"`
	TargetType string            `bun:"target_type,notnull"`
	TargetID   string            `bun:"target_id,notnull"`
	Category   string            `bun:"gdpr_category,notnull"`
	Details    map[string]string `bun:"details,type:jsonb"`
	CreatedAt  time.Time         `bun:"created_at,notnull"`
}

func (a *auditRow) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && a.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		a.ID = id
	}
	return nil
}
