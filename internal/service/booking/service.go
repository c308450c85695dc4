// Package booking runs booking requests through the appointment aggregate, the
// validation engine, the repository and the audit trail.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"salonbook/backend/internal/audit"
	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
	"salonbook/backend/internal/validation"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// BlockedError rejects a request whose validation produced hard blocks.
type BlockedError struct {
	Result domain.ValidationResult
}

func (e *BlockedError) Error() string {
	var parts []string
	for _, b := range e.Result.Blocks() {
		parts = append(parts, b.Error())
	}
	return "booking rejected: " + strings.Join(parts, "; ")
}

// OverrideRequiredError is returned when warnings were raised and no override
// acknowledged all of them.
type OverrideRequiredError struct {
	Unacknowledged []domain.Code
	Result         domain.ValidationResult
}

func (e *OverrideRequiredError) Error() string {
	codes := make([]string, 0, len(e.Unacknowledged))
	for _, c := range e.Unacknowledged {
		codes = append(codes, string(c))
	}
	return "override required for warnings: " + strings.Join(codes, ", ")
}

type Actor struct {
	ID   string
	Type domain.ActorType
}

func (a Actor) validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return validationError("actor_id is required")
	}
	if !a.Type.Valid() {
		return validationError("actor_type is invalid")
	}
	return nil
}

// Override is the caller's acknowledgement of the warnings of a validation pass.
// The acting staff member is recorded as the authorizer.
type Override struct {
	Reason       string
	WarningCodes []domain.Code
}

type Deps struct {
	Appointments store.AppointmentRepository
	Directory    store.DirectoryRepository
	Trail        *audit.Trail
	Engine       *validation.Engine
	Holidays     validation.HolidaySource
	Hours        domain.WorkingHours
	Location     *time.Location
	Logger       *slog.Logger
	Now          func() time.Time
}

type Service struct {
	appts    store.AppointmentRepository
	dir      store.DirectoryRepository
	trail    *audit.Trail
	engine   *validation.Engine
	holidays validation.HolidaySource
	hours    domain.WorkingHours
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer
}

func NewService(d Deps) *Service {
	s := &Service{
		appts:    d.Appointments,
		dir:      d.Directory,
		trail:    d.Trail,
		engine:   d.Engine,
		holidays: d.Holidays,
		hours:    d.Hours,
		loc:      d.Location,
		logger:   d.Logger,
		now:      d.Now,
		tracer:   otel.Tracer("salonbook/booking"),
	}
	if s.engine == nil {
		s.engine = validation.NewEngine(validation.DefaultPolicy())
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "booking")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().In(s.loc).Truncate(domain.TimePrecision) }

func (s *Service) validationContext() validation.Context {
	return validation.NewStoreContext(s.appts, s.dir, s.hours, s.holidays)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "booking."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type BookInput struct {
	Actor             Actor
	Start             time.Time
	DurationMinutes   int
	ClientID          string
	OperatorID        string
	RoomID            string
	ServiceID         string
	RequiresEquipment bool
	Override          *Override
	IdempotencyKey    string
}

func (in BookInput) draft(loc *time.Location) domain.AppointmentDraft {
	return domain.AppointmentDraft{
		Start:             in.Start.In(loc).Truncate(domain.TimePrecision),
		DurationMinutes:   in.DurationMinutes,
		ClientID:          strings.TrimSpace(in.ClientID),
		OperatorID:        strings.TrimSpace(in.OperatorID),
		RoomID:            strings.TrimSpace(in.RoomID),
		ServiceID:         strings.TrimSpace(in.ServiceID),
		RequiresEquipment: in.RequiresEquipment,
	}
}

type BookResult struct {
	Appointment *domain.Appointment
	Validation  domain.ValidationResult
	// Replayed is set when an idempotency key matched an earlier identical request.
	Replayed bool
}

// Validate is a dry run: nothing is saved, but the decision is audited.
func (s *Service) Validate(ctx context.Context, in BookInput) (res domain.ValidationResult, err error) {
	ctx, span := s.startSpan(ctx, "Validate", attribute.String("operator_id", in.OperatorID))
	defer func() { endSpan(span, err) }()

	if err := in.Actor.validate(); err != nil {
		return domain.ValidationResult{}, err
	}
	appt, err := domain.NewAppointment(in.draft(s.loc), s.clock())
	if err != nil {
		return domain.ValidationResult{}, err
	}
	res, err = s.engine.Validate(ctx, appt.Draft(), s.validationContext())
	if err != nil {
		return domain.ValidationResult{}, err
	}

	// The draft id is never stored, so the entry names the request instead.
	requestID, err := uuid.NewV7()
	if err != nil {
		return domain.ValidationResult{}, err
	}
	b := s.entry(in.Actor, domain.ActionValidated, appt.ID(), domain.GDPRBooking).
		Target(domain.TargetBookingRequest, requestID.String()).
		Detail("client_id", appt.ClientID()).
		Detail("operator_id", appt.OperatorID()).
		Detail("start", appt.Start().Format(time.RFC3339))
	withFindings(b, res)
	if _, err := s.trail.Record(ctx, b); err != nil {
		return domain.ValidationResult{}, err
	}
	return res, nil
}

// Book validates and confirms a new appointment in one step. Hard blocks reject
// it; warnings need an override that acknowledges every warning code.
func (s *Service) Book(ctx context.Context, in BookInput) (out BookResult, err error) {
	ctx, span := s.startSpan(ctx, "Book",
		attribute.String("operator_id", in.OperatorID),
		attribute.String("service_id", in.ServiceID),
	)
	defer func() { endSpan(span, err) }()

	return s.create(ctx, in, true)
}

// CreateDraft stores an unconfirmed appointment. Blocks still reject it; warnings
// are reported but only need an override at confirmation.
func (s *Service) CreateDraft(ctx context.Context, in BookInput) (out BookResult, err error) {
	ctx, span := s.startSpan(ctx, "CreateDraft", attribute.String("operator_id", in.OperatorID))
	defer func() { endSpan(span, err) }()

	return s.create(ctx, in, false)
}

func (s *Service) create(ctx context.Context, in BookInput, confirm bool) (BookResult, error) {
	if err := in.Actor.validate(); err != nil {
		return BookResult{}, err
	}
	now := s.clock()
	d := in.draft(s.loc)

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return BookResult{}, validationError("idempotency_key too long")
		}
		d.ID = domain.AppointmentID(uuid.NewSHA1(uuid.NameSpaceOID, []byte("salonbook:book:"+in.Actor.ID+":"+key)))
		prev, err := s.appts.Get(ctx, d.ID, store.IncludeDeleted)
		switch {
		case err == nil:
			return replay(key, prev, d)
		case !errors.Is(err, store.ErrNotFound):
			return BookResult{}, err
		}
	}

	appt, err := domain.NewAppointment(d, now)
	if err != nil {
		return BookResult{}, err
	}

	res, err := s.engine.Validate(ctx, appt.Draft(), s.validationContext())
	if err != nil {
		return BookResult{}, err
	}
	if err := s.gate(ctx, in.Actor, appt.ID(), res, in.Override, confirm); err != nil {
		return BookResult{Validation: res}, err
	}

	var override *domain.OverrideInfo
	if confirm {
		override = overrideInfo(in.Actor, in.Override, res, now)
		if err := appt.Confirm(override, now); err != nil {
			return BookResult{}, err
		}
	}

	if err := s.appts.Create(ctx, appt); err != nil {
		if key != "" && errors.Is(err, store.ErrAlreadyExists) {
			// A concurrent request with the same key got there first.
			prev, err := s.appts.Get(ctx, d.ID, store.IncludeDeleted)
			if err != nil {
				return BookResult{}, err
			}
			return replay(key, prev, d)
		}
		s.logger.Warn("create appointment failed", "appointment_id", appt.ID().String(), "err", err)
		return BookResult{Validation: res}, err
	}

	b := s.entry(in.Actor, domain.ActionCreated, appt.ID(), domain.GDPRBooking).
		Detail("status", string(appt.Status())).
		Detail("start", appt.Start().Format(time.RFC3339)).
		Detail("operator_id", appt.OperatorID()).
		Detail("client_id", appt.ClientID())
	withFindings(b, res)
	if _, err := s.trail.Record(ctx, b); err != nil {
		return BookResult{}, err
	}
	if override != nil {
		if err := s.recordOverride(ctx, in.Actor, appt.ID(), *override); err != nil {
			return BookResult{}, err
		}
	}

	s.logger.Info("appointment created",
		"appointment_id", appt.ID().String(),
		"status", string(appt.Status()),
		"warnings", len(res.Warnings()),
	)
	return BookResult{Appointment: appt, Validation: res}, nil
}

// gate turns a validation result into a decision. Rejections are audited here.
func (s *Service) gate(ctx context.Context, actor Actor, id domain.AppointmentID, res domain.ValidationResult, o *Override, needOverride bool) error {
	var decision error
	switch {
	case res.IsBlocked():
		decision = &BlockedError{Result: res}
	case needOverride && res.HasWarnings():
		if missing := unacknowledged(o, res.WarningCodes()); len(missing) > 0 {
			decision = &OverrideRequiredError{Unacknowledged: missing, Result: res}
		} else if strings.TrimSpace(o.Reason) == "" {
			decision = validationError("override reason is required")
		}
	}
	if decision == nil {
		return nil
	}

	b := s.entry(actor, domain.ActionRejected, id, domain.GDPRBooking).Detail("reason", decision.Error())
	withFindings(b, res)
	if _, err := s.trail.Record(ctx, b); err != nil {
		return err
	}
	return decision
}

func unacknowledged(o *Override, warnings []domain.Code) []domain.Code {
	acked := map[domain.Code]bool{}
	if o != nil {
		for _, c := range o.WarningCodes {
			acked[c] = true
		}
	}
	seen := map[domain.Code]bool{}
	var out []domain.Code
	for _, c := range warnings {
		if acked[c] || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// overrideInfo records only the codes that were actually raised.
func overrideInfo(actor Actor, o *Override, res domain.ValidationResult, at time.Time) *domain.OverrideInfo {
	if o == nil || !res.HasWarnings() {
		return nil
	}
	seen := map[domain.Code]bool{}
	var codes []domain.Code
	for _, c := range res.WarningCodes() {
		if !seen[c] {
			seen[c] = true
			codes = append(codes, c)
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return &domain.OverrideInfo{
		AuthorizedBy: actor.ID,
		Reason:       strings.TrimSpace(o.Reason),
		WarningCodes: codes,
		At:           at,
	}
}

func replay(key string, prev *domain.Appointment, d domain.AppointmentDraft) (BookResult, error) {
	if !sameRequest(prev.Draft(), d) {
		return BookResult{}, fmt.Errorf("idempotency key %q: %w", key, store.ErrIdempotencyConflict)
	}
	return BookResult{Appointment: prev, Replayed: true}, nil
}

func sameRequest(a, b domain.AppointmentDraft) bool {
	return a.Start.Equal(b.Start) &&
		a.DurationMinutes == b.DurationMinutes &&
		a.ClientID == b.ClientID &&
		a.OperatorID == b.OperatorID &&
		a.RoomID == b.RoomID &&
		a.ServiceID == b.ServiceID &&
		a.RequiresEquipment == b.RequiresEquipment
}

func (s *Service) entry(actor Actor, action domain.AuditAction, id domain.AppointmentID, cat domain.GDPRCategory) *domain.AuditEntryBuilder {
	return domain.NewAuditEntry().
		Actor(actor.ID, actor.Type).
		Action(action).
		Appointment(id).
		Category(cat).
		At(s.clock())
}

func withFindings(b *domain.AuditEntryBuilder, res domain.ValidationResult) {
	b.Detail("blocked", fmt.Sprint(res.IsBlocked()))
	if c := joinCodes(res.BlockCodes()); c != "" {
		b.Detail("blocks", c)
	}
	if c := joinCodes(res.WarningCodes()); c != "" {
		b.Detail("warnings", c)
	}
	if c := joinCodes(res.SuggestionCodes()); c != "" {
		b.Detail("suggestions", c)
	}
}

func joinCodes(cs []domain.Code) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, string(c))
	}
	return strings.Join(parts, ",")
}

func (s *Service) recordOverride(ctx context.Context, actor Actor, id domain.AppointmentID, o domain.OverrideInfo) error {
	b := s.entry(actor, domain.ActionOverrideAccepted, id, domain.GDPROverride).
		Detail("authorized_by", o.AuthorizedBy).
		Detail("reason", o.Reason).
		Detail("warnings", joinCodes(o.WarningCodes))
	_, err := s.trail.Record(ctx, b)
	return err
}
