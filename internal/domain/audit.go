package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ActorType string

const (
	ActorStaff         ActorType = "staff"
	ActorSystem        ActorType = "system"
	ActorClientChannel ActorType = "client_channel"
)

func (t ActorType) Valid() bool {
	return t == ActorStaff || t == ActorSystem || t == ActorClientChannel
}

// GDPRCategory tags an audit entry so data-subject requests can find it.
type GDPRCategory string

const (
	GDPRBooking    GDPRCategory = "booking"
	GDPRClientData GDPRCategory = "client_data"
	GDPRConsent    GDPRCategory = "consent"
	GDPROverride   GDPRCategory = "override"
	GDPRSystem     GDPRCategory = "system"
)

func (c GDPRCategory) Valid() bool {
	switch c {
	case GDPRBooking, GDPRClientData, GDPRConsent, GDPROverride, GDPRSystem:
		return true
	}
	return false
}

type AuditAction string

const (
	ActionValidated         AuditAction = "booking_request.validated"
	ActionRejected          AuditAction = "appointment.rejected"
	ActionCreated           AuditAction = "appointment.created"
	ActionConfirmed         AuditAction = "appointment.confirmed"
	ActionOverrideAccepted  AuditAction = "appointment.override_accepted"
	ActionStarted           AuditAction = "appointment.started"
	ActionCompleted         AuditAction = "appointment.completed"
	ActionCancelled         AuditAction = "appointment.cancelled"
	ActionNoShow            AuditAction = "appointment.no_show"
	ActionRescheduled       AuditAction = "appointment.rescheduled"
	ActionDeleted           AuditAction = "appointment.deleted"
	ActionHolidaysRefreshed AuditAction = "holidays.refreshed"
)

const (
	TargetAppointment = "appointment"

	// TargetBookingRequest marks entries about a request that was never stored.
	TargetBookingRequest = "booking_request"
)

type AuditEntry struct {
	ID         uuid.UUID
	ActorID    string
	ActorType  ActorType
	Action     AuditAction
	TargetType string
	TargetID   string
	Category   GDPRCategory
	Details    map[string]string
	At         time.Time
}

var ErrIncompleteAuditEntry = errors.New("incomplete audit entry")

type IncompleteAuditEntryError struct {
	Missing []string
}

func (e *IncompleteAuditEntryError) Error() string {
	return ErrIncompleteAuditEntry.Error() + ": missing " + strings.Join(e.Missing, ", ")
}

func (e *IncompleteAuditEntryError) Unwrap() error { return ErrIncompleteAuditEntry }

// AuditEntryBuilder accumulates an entry. Build fails when actor, action or target is missing.
type AuditEntryBuilder struct {
	e AuditEntry
}

func NewAuditEntry() *AuditEntryBuilder {
	return &AuditEntryBuilder{e: AuditEntry{Details: map[string]string{}}}
}

func (b *AuditEntryBuilder) Actor(id string, t ActorType) *AuditEntryBuilder {
	b.e.ActorID = strings.TrimSpace(id)
	b.e.ActorType = t
	return b
}

func (b *AuditEntryBuilder) Action(a AuditAction) *AuditEntryBuilder {
	b.e.Action = a
	return b
}

func (b *AuditEntryBuilder) Target(targetType, id string) *AuditEntryBuilder {
	b.e.TargetType = strings.TrimSpace(targetType)
	b.e.TargetID = strings.TrimSpace(id)
	return b
}

func (b *AuditEntryBuilder) Appointment(id AppointmentID) *AuditEntryBuilder {
	return b.Target(TargetAppointment, id.String())
}

func (b *AuditEntryBuilder) Category(c GDPRCategory) *AuditEntryBuilder {
	b.e.Category = c
	return b
}

func (b *AuditEntryBuilder) Detail(key, value string) *AuditEntryBuilder {
	b.e.Details[key] = value
	return b
}

func (b *AuditEntryBuilder) At(t time.Time) *AuditEntryBuilder {
	b.e.At = t
	return b
}

func (b *AuditEntryBuilder) Build() (AuditEntry, error) {
	var missing []string
	if b.e.ActorID == "" || !b.e.ActorType.Valid() {
		missing = append(missing, "actor")
	}
	if b.e.Action == "" {
		missing = append(missing, "action")
	}
	if b.e.TargetType == "" || b.e.TargetID == "" {
		missing = append(missing, "target")
	}
	if b.e.Category != "" && !b.e.Category.Valid() {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return AuditEntry{}, &IncompleteAuditEntryError{Missing: missing}
	}

	out := b.e
	out.Details = make(map[string]string, len(b.e.Details))
	for k, v := range b.e.Details {
		out.Details[k] = v
	}
	if out.Category == "" {
		out.Category = GDPRSystem
	}
	if out.At.IsZero() {
		out.At = time.Now()
	}
	if out.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return AuditEntry{}, err
		}
		out.ID = id
	}
	return out, nil
}

// MustBuild panics on an incomplete entry. A missing field is a programming error.
func (b *AuditEntryBuilder) MustBuild() AuditEntry {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}
