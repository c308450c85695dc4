package booking

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

// Confirm re-validates a Draft and confirms it. The appointment itself is not
// counted as competing with its own slot.
func (s *Service) Confirm(ctx context.Context, actor Actor, id domain.AppointmentID, o *Override) (out BookResult, err error) {
	ctx, span := s.startSpan(ctx, "Confirm", attribute.String("appointment_id", id.String()))
	defer func() { endSpan(span, err) }()

	if err := actor.validate(); err != nil {
		return BookResult{}, err
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return BookResult{}, err
	}
	if appt.Status() != domain.StatusDraft {
		return BookResult{}, &domain.InvalidTransitionError{From: appt.Status(), To: domain.StatusConfirmed}
	}

	res, err := s.engine.Validate(ctx, appt.Draft(), s.validationContext())
	if err != nil {
		return BookResult{}, err
	}
	if err := s.gate(ctx, actor, id, res, o, true); err != nil {
		return BookResult{Validation: res}, err
	}

	now := s.clock()
	override := overrideInfo(actor, o, res, now)
	if err := appt.Confirm(override, now); err != nil {
		return BookResult{}, err
	}
	if err := s.appts.Save(ctx, appt); err != nil {
		return BookResult{Validation: res}, err
	}

	b := s.entry(actor, domain.ActionConfirmed, id, domain.GDPRBooking)
	withFindings(b, res)
	if _, err := s.trail.Record(ctx, b); err != nil {
		return BookResult{}, err
	}
	if override != nil {
		if err := s.recordOverride(ctx, actor, id, *override); err != nil {
			return BookResult{}, err
		}
	}
	return BookResult{Appointment: appt, Validation: res}, nil
}

var transitionActions = map[domain.Status]domain.AuditAction{
	domain.StatusInProgress: domain.ActionStarted,
	domain.StatusCompleted:  domain.ActionCompleted,
	domain.StatusCancelled:  domain.ActionCancelled,
	domain.StatusNoShow:     domain.ActionNoShow,
}

// Transition applies a lifecycle change that needs no validation pass.
// Confirmation goes through Confirm instead.
func (s *Service) Transition(ctx context.Context, actor Actor, id domain.AppointmentID, to domain.Status, reason string) (appt *domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "Transition",
		attribute.String("appointment_id", id.String()),
		attribute.String("to", string(to)),
	)
	defer func() { endSpan(span, err) }()

	if err := actor.validate(); err != nil {
		return nil, err
	}
	action, ok := transitionActions[to]
	if !ok {
		if to == domain.StatusConfirmed {
			return nil, validationError("use confirm to move an appointment to confirmed")
		}
		return nil, validationError("unknown target status " + string(to))
	}

	appt, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	from := appt.Status()
	if err := appt.TransitionTo(to, s.clock()); err != nil {
		return nil, err
	}
	if err := s.appts.Save(ctx, appt); err != nil {
		return nil, err
	}

	b := s.entry(actor, action, id, domain.GDPRBooking).
		Detail("from", string(from)).
		Detail("to", string(to))
	if reason != "" {
		b.Detail("reason", reason)
	}
	if _, err := s.trail.Record(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("appointment transitioned", "appointment_id", id.String(), "from", string(from), "to", string(to))
	return appt, nil
}

func (s *Service) Begin(ctx context.Context, actor Actor, id domain.AppointmentID) (*domain.Appointment, error) {
	return s.Transition(ctx, actor, id, domain.StatusInProgress, "")
}

func (s *Service) Complete(ctx context.Context, actor Actor, id domain.AppointmentID) (*domain.Appointment, error) {
	return s.Transition(ctx, actor, id, domain.StatusCompleted, "")
}

func (s *Service) Cancel(ctx context.Context, actor Actor, id domain.AppointmentID, reason string) (*domain.Appointment, error) {
	return s.Transition(ctx, actor, id, domain.StatusCancelled, reason)
}

func (s *Service) MarkNoShow(ctx context.Context, actor Actor, id domain.AppointmentID) (*domain.Appointment, error) {
	return s.Transition(ctx, actor, id, domain.StatusNoShow, "")
}

type RescheduleInput struct {
	Actor           Actor
	ID              domain.AppointmentID
	Start           time.Time
	DurationMinutes int
	Override        *Override
}

// Reschedule moves a Draft or Confirmed appointment. The new slot is validated
// like a new booking; a Confirmed appointment needs an override for new warnings.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (out BookResult, err error) {
	ctx, span := s.startSpan(ctx, "Reschedule", attribute.String("appointment_id", in.ID.String()))
	defer func() { endSpan(span, err) }()

	if err := in.Actor.validate(); err != nil {
		return BookResult{}, err
	}
	appt, err := s.load(ctx, in.ID)
	if err != nil {
		return BookResult{}, err
	}
	minutes := in.DurationMinutes
	if minutes == 0 {
		minutes = appt.DurationMinutes()
	}
	prevStart := appt.Start()

	now := s.clock()
	if err := appt.Reschedule(in.Start.In(s.loc), minutes, now); err != nil {
		return BookResult{}, err
	}

	res, err := s.engine.Validate(ctx, appt.Draft(), s.validationContext())
	if err != nil {
		return BookResult{}, err
	}
	confirmed := appt.Status() == domain.StatusConfirmed
	if err := s.gate(ctx, in.Actor, in.ID, res, in.Override, confirmed); err != nil {
		return BookResult{Validation: res}, err
	}
	if err := s.appts.Save(ctx, appt); err != nil {
		return BookResult{Validation: res}, err
	}

	b := s.entry(in.Actor, domain.ActionRescheduled, in.ID, domain.GDPRBooking).
		Detail("from", prevStart.Format(time.RFC3339)).
		Detail("to", appt.Start().Format(time.RFC3339))
	withFindings(b, res)
	if _, err := s.trail.Record(ctx, b); err != nil {
		return BookResult{}, err
	}
	if confirmed {
		if o := overrideInfo(in.Actor, in.Override, res, now); o != nil {
			if err := s.recordOverride(ctx, in.Actor, in.ID, *o); err != nil {
				return BookResult{}, err
			}
		}
	}
	return BookResult{Appointment: appt, Validation: res}, nil
}

// Delete sets the tombstone. The row stays in storage and in the audit trail.
func (s *Service) Delete(ctx context.Context, actor Actor, id domain.AppointmentID, reason string) (err error) {
	ctx, span := s.startSpan(ctx, "Delete", attribute.String("appointment_id", id.String()))
	defer func() { endSpan(span, err) }()

	if err := actor.validate(); err != nil {
		return err
	}
	if id.IsZero() {
		return validationError("appointment_id is required")
	}
	if err := s.appts.SoftDelete(ctx, id, s.clock()); err != nil {
		return err
	}

	b := s.entry(actor, domain.ActionDeleted, id, domain.GDPRBooking)
	if reason != "" {
		b.Detail("reason", reason)
	}
	_, err = s.trail.Record(ctx, b)
	return err
}

func (s *Service) load(ctx context.Context, id domain.AppointmentID) (*domain.Appointment, error) {
	if id.IsZero() {
		return nil, validationError("appointment_id is required")
	}
	return s.appts.Get(ctx, id, store.ActiveOnly)
}
