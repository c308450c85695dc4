package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentID uuid.UUID

func NewAppointmentID() (AppointmentID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return AppointmentID{}, err
	}
	return AppointmentID(id), nil
}

func ParseAppointmentID(s string) (AppointmentID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return AppointmentID{}, err
	}
	return AppointmentID(id), nil
}

func (id AppointmentID) String() string { return uuid.UUID(id).String() }

func (id AppointmentID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

type Status string

const (
	StatusDraft      Status = "draft"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

var transitions = map[Status][]Status{
	StatusDraft:      {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// AllStatuses lists every lifecycle state, initial state first.
func AllStatuses() []Status {
	return []Status{StatusDraft, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow}
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Occupying reports whether an appointment in this state holds its operator and room.
// Only cancellation releases the slot.
func (s Status) Occupying() bool {
	return s.Valid() && s != StatusCancelled
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OverrideInfo records who accepted a booking despite warnings, and why.
type OverrideInfo struct {
	AuthorizedBy string
	Reason       string
	WarningCodes []Code
	At           time.Time
}

func (o OverrideInfo) validate() error {
	if strings.TrimSpace(o.AuthorizedBy) == "" {
		return &InvalidInputError{Field: "override.authorized_by", Reason: "is required"}
	}
	if strings.TrimSpace(o.Reason) == "" {
		return &InvalidInputError{Field: "override.reason", Reason: "is required"}
	}
	return nil
}

// Covers reports whether every code in codes was acknowledged by the override.
func (o OverrideInfo) Covers(codes []Code) bool {
	acked := make(map[Code]struct{}, len(o.WarningCodes))
	for _, c := range o.WarningCodes {
		acked[c] = struct{}{}
	}
	for _, c := range codes {
		if _, ok := acked[c]; !ok {
			return false
		}
	}
	return true
}

// AppointmentDraft is a booking request that has not been turned into an aggregate yet.
type AppointmentDraft struct {
	ID                AppointmentID
	Start             time.Time
	DurationMinutes   int
	ClientID          string
	OperatorID        string
	RoomID            string
	ServiceID         string
	RequiresEquipment bool
}

func (d AppointmentDraft) End() time.Time {
	return d.Start.Add(time.Duration(d.DurationMinutes) * time.Minute)
}

type Appointment struct {
	id                AppointmentID
	start             time.Time
	durationMinutes   int
	clientID          string
	operatorID        string
	roomID            string
	serviceID         string
	requiresEquipment bool
	status            Status
	override          *OverrideInfo
	createdAt         time.Time
	updatedAt         time.Time
	deletedAt         *time.Time
}

// TimePrecision is the resolution the store keeps. Every instant held by the
// aggregate is truncated to it so a saved appointment reloads equal.
const TimePrecision = time.Microsecond

func stamp(t time.Time) time.Time { return t.Truncate(TimePrecision) }

// NewAppointment builds a Draft appointment. The start must not lie before now;
// that check happens here only and is not repeated when the aggregate is reloaded.
func NewAppointment(d AppointmentDraft, now time.Time) (*Appointment, error) {
	if err := requireRef("client_id", d.ClientID); err != nil {
		return nil, err
	}
	if err := requireRef("operator_id", d.OperatorID); err != nil {
		return nil, err
	}
	if err := requireRef("service_id", d.ServiceID); err != nil {
		return nil, err
	}
	start, now := stamp(d.Start), stamp(now)
	if err := checkSchedule(start, d.DurationMinutes, now); err != nil {
		return nil, err
	}

	id := d.ID
	if id.IsZero() {
		var err error
		id, err = NewAppointmentID()
		if err != nil {
			return nil, err
		}
	}

	return &Appointment{
		id:                id,
		start:             start,
		durationMinutes:   d.DurationMinutes,
		clientID:          strings.TrimSpace(d.ClientID),
		operatorID:        strings.TrimSpace(d.OperatorID),
		roomID:            strings.TrimSpace(d.RoomID),
		serviceID:         strings.TrimSpace(d.ServiceID),
		requiresEquipment: d.RequiresEquipment,
		status:            StatusDraft,
		createdAt:         now,
		updatedAt:         now,
	}, nil
}

func requireRef(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &InvalidInputError{Field: field, Reason: "is required"}
	}
	return nil
}

func checkSchedule(start time.Time, minutes int, now time.Time) error {
	if minutes <= 0 {
		return &InvalidDurationError{Minutes: minutes}
	}
	if start.Before(now) {
		return &PastAppointmentError{Start: start}
	}
	end := start.Add(time.Duration(minutes) * time.Minute)
	if crossesMidnight(start, end) {
		return &PastMidnightError{End: end}
	}
	return nil
}

// crossesMidnight is true when end is at or after 00:00 of the day following start.
func crossesMidnight(start, end time.Time) bool {
	y, m, d := start.Date()
	nextDay := time.Date(y, m, d+1, 0, 0, 0, 0, start.Location())
	return !end.Before(nextDay)
}

func (a *Appointment) ID() AppointmentID       { return a.id }
func (a *Appointment) Start() time.Time        { return a.start }
func (a *Appointment) DurationMinutes() int    { return a.durationMinutes }
func (a *Appointment) ClientID() string        { return a.clientID }
func (a *Appointment) OperatorID() string      { return a.operatorID }
func (a *Appointment) RoomID() string          { return a.roomID }
func (a *Appointment) ServiceID() string       { return a.serviceID }
func (a *Appointment) RequiresEquipment() bool { return a.requiresEquipment }
func (a *Appointment) Status() Status          { return a.status }
func (a *Appointment) CreatedAt() time.Time    { return a.createdAt }
func (a *Appointment) UpdatedAt() time.Time    { return a.updatedAt }

func (a *Appointment) End() time.Time {
	return a.start.Add(time.Duration(a.durationMinutes) * time.Minute)
}

func (a *Appointment) Override() (OverrideInfo, bool) {
	if a.override == nil {
		return OverrideInfo{}, false
	}
	o := *a.override
	o.WarningCodes = append([]Code(nil), a.override.WarningCodes...)
	return o, true
}

func (a *Appointment) DeletedAt() (time.Time, bool) {
	if a.deletedAt == nil {
		return time.Time{}, false
	}
	return *a.deletedAt, true
}

func (a *Appointment) Deleted() bool { return a.deletedAt != nil }

// Overlaps uses half-open intervals: touching edges do not overlap.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return Overlaps(a.start, a.End(), start, end)
}

func Overlaps(startA, endA, startB, endB time.Time) bool {
	return startA.Before(endB) && startB.Before(endA)
}

// Draft returns the booking request this aggregate currently describes.
func (a *Appointment) Draft() AppointmentDraft {
	return AppointmentDraft{
		ID:                a.id,
		Start:             a.start,
		DurationMinutes:   a.durationMinutes,
		ClientID:          a.clientID,
		OperatorID:        a.operatorID,
		RoomID:            a.roomID,
		ServiceID:         a.serviceID,
		RequiresEquipment: a.requiresEquipment,
	}
}

var ErrAppointmentDeleted = errors.New("appointment is deleted")

func (a *Appointment) TransitionTo(to Status, at time.Time) error {
	if a.deletedAt != nil {
		return ErrAppointmentDeleted
	}
	if !CanTransition(a.status, to) {
		return &InvalidTransitionError{From: a.status, To: to}
	}
	a.status = to
	a.updatedAt = stamp(at)
	return nil
}

// Confirm moves a Draft to Confirmed. A non-nil override is stored with the booking.
func (a *Appointment) Confirm(override *OverrideInfo, at time.Time) error {
	if override != nil {
		if err := override.validate(); err != nil {
			return err
		}
	}
	if err := a.TransitionTo(StatusConfirmed, at); err != nil {
		return err
	}
	if override != nil {
		o := *override
		o.WarningCodes = append([]Code(nil), override.WarningCodes...)
		if o.At.IsZero() {
			o.At = at
		}
		o.At = stamp(o.At)
		a.override = &o
	}
	return nil
}

// Begin marks the service as started.
func (a *Appointment) Begin(at time.Time) error { return a.TransitionTo(StatusInProgress, at) }

func (a *Appointment) Complete(at time.Time) error { return a.TransitionTo(StatusCompleted, at) }

func (a *Appointment) Cancel(at time.Time) error { return a.TransitionTo(StatusCancelled, at) }

func (a *Appointment) MarkNoShow(at time.Time) error { return a.TransitionTo(StatusNoShow, at) }

// Reschedule moves a Draft or Confirmed appointment; the construction invariants apply again.
func (a *Appointment) Reschedule(start time.Time, minutes int, now time.Time) error {
	if a.deletedAt != nil {
		return ErrAppointmentDeleted
	}
	if a.status != StatusDraft && a.status != StatusConfirmed {
		return &NotReschedulableError{Status: a.status}
	}
	start, now = stamp(start), stamp(now)
	if err := checkSchedule(start, minutes, now); err != nil {
		return err
	}
	a.start = start
	a.durationMinutes = minutes
	a.updatedAt = now
	return nil
}

func (a *Appointment) MarkDeleted(at time.Time) error {
	if a.deletedAt != nil {
		return ErrAppointmentDeleted
	}
	t := stamp(at)
	a.deletedAt = &t
	a.updatedAt = t
	return nil
}

// Snapshot is the flat, storable form of an Appointment.
type Snapshot struct {
	ID                AppointmentID
	Start             time.Time
	DurationMinutes   int
	ClientID          string
	OperatorID        string
	RoomID            string
	ServiceID         string
	RequiresEquipment bool
	Status            Status
	Override          *OverrideInfo
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

func (a *Appointment) Snapshot() Snapshot {
	s := Snapshot{
		ID:                a.id,
		Start:             a.start,
		DurationMinutes:   a.durationMinutes,
		ClientID:          a.clientID,
		OperatorID:        a.operatorID,
		RoomID:            a.roomID,
		ServiceID:         a.serviceID,
		RequiresEquipment: a.requiresEquipment,
		Status:            a.status,
		CreatedAt:         a.createdAt,
		UpdatedAt:         a.updatedAt,
	}
	if o, ok := a.Override(); ok {
		s.Override = &o
	}
	if a.deletedAt != nil {
		t := *a.deletedAt
		s.DeletedAt = &t
	}
	return s
}

// Rehydrate rebuilds an aggregate loaded from storage. The past-start check is
// not applied: it only holds at creation time.
func Rehydrate(s Snapshot) (*Appointment, error) {
	if s.ID.IsZero() {
		return nil, &InvalidInputError{Field: "id", Reason: "is required"}
	}
	if !s.Status.Valid() {
		return nil, &InvalidInputError{Field: "status", Reason: "unknown value " + string(s.Status)}
	}
	if s.DurationMinutes <= 0 {
		return nil, &InvalidDurationError{Minutes: s.DurationMinutes}
	}
	a := &Appointment{
		id:                s.ID,
		start:             s.Start,
		durationMinutes:   s.DurationMinutes,
		clientID:          s.ClientID,
		operatorID:        s.OperatorID,
		roomID:            s.RoomID,
		serviceID:         s.ServiceID,
		requiresEquipment: s.RequiresEquipment,
		status:            s.Status,
		createdAt:         s.CreatedAt,
		updatedAt:         s.UpdatedAt,
	}
	if s.Override != nil {
		o := *s.Override
		o.WarningCodes = append([]Code(nil), s.Override.WarningCodes...)
		a.override = &o
	}
	if s.DeletedAt != nil {
		t := *s.DeletedAt
		a.deletedAt = &t
	}
	return a, nil
}
