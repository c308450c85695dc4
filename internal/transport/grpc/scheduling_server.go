package grpc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"salonbook/backend/internal/audit"
	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/service/booking"
)

type bookingService interface {
	Validate(ctx context.Context, in booking.BookInput) (domain.ValidationResult, error)
	Book(ctx context.Context, in booking.BookInput) (booking.BookResult, error)
	CreateDraft(ctx context.Context, in booking.BookInput) (booking.BookResult, error)
	Confirm(ctx context.Context, actor booking.Actor, id domain.AppointmentID, o *booking.Override) (booking.BookResult, error)
	Transition(ctx context.Context, actor booking.Actor, id domain.AppointmentID, to domain.Status, reason string) (*domain.Appointment, error)
	Reschedule(ctx context.Context, in booking.RescheduleInput) (booking.BookResult, error)
	Delete(ctx context.Context, actor booking.Actor, id domain.AppointmentID, reason string) error
	Get(ctx context.Context, id domain.AppointmentID, includeDeleted bool) (*domain.Appointment, error)
	List(ctx context.Context, f booking.ListFilter) ([]*domain.Appointment, error)
	QueryAudit(ctx context.Context, f audit.Filter) (audit.Page, error)
}

type SchedulingServer struct {
	svc bookingService
	loc *time.Location
	log *slog.Logger
}

func NewSchedulingServer(svc bookingService, loc *time.Location, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &SchedulingServer{
		svc: svc,
		loc: loc,
		log: log.With(slog.String("component", "grpc.scheduling")),
	}
}

var (
	_ SchedulingServiceServer = (*SchedulingServer)(nil)
	_ bookingService          = (*booking.Service)(nil)
)

func invalid(log *slog.Logger, reason, msg string) error {
	log.Warn("invalid request", slog.String("reason", reason))
	return status.Error(codes.InvalidArgument, msg)
}

func actorOf(f fields) booking.Actor {
	t := domain.ActorType(f.str("actor_type"))
	if t == "" {
		t = domain.ActorStaff
	}
	return booking.Actor{ID: f.str("actor_id"), Type: t}
}

func overrideOf(f fields) *booking.Override {
	o, ok := f.object("override")
	if !ok {
		return nil
	}
	out := &booking.Override{Reason: o.str("reason")}
	for _, c := range o.stringList("warning_codes") {
		out.WarningCodes = append(out.WarningCodes, domain.Code(c))
	}
	return out
}

func appointmentIDOf(f fields) (domain.AppointmentID, error) {
	return domain.ParseAppointmentID(f.str("appointment_id"))
}

func (s *SchedulingServer) bookInput(ctx context.Context, f fields) (booking.BookInput, error) {
	if !f.has("start") {
		return booking.BookInput{}, status.Error(codes.InvalidArgument, "start is required")
	}
	start, err := f.timestamp("start")
	if err != nil {
		return booking.BookInput{}, status.Error(codes.InvalidArgument, err.Error())
	}
	minutes, err := f.integer("duration_minutes")
	if err != nil {
		return booking.BookInput{}, status.Error(codes.InvalidArgument, err.Error())
	}
	return booking.BookInput{
		Actor:             actorOf(f),
		Start:             start,
		DurationMinutes:   minutes,
		ClientID:          f.str("client_id"),
		OperatorID:        f.str("operator_id"),
		RoomID:            f.str("room_id"),
		ServiceID:         f.str("service_id"),
		RequiresEquipment: f.boolean("requires_equipment"),
		Override:          overrideOf(f),
		IdempotencyKey:    idempotencyKey(ctx),
	}, nil
}

func (s *SchedulingServer) ValidateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ValidateAppointment"))
	if req == nil {
		return nil, invalid(log, "nil_request", "request is required")
	}
	in, err := s.bookInput(ctx, fieldsOf(req))
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}

	res, err := s.svc.Validate(ctx, in)
	if err != nil {
		return nil, toStatus(log, err)
	}
	log.Debug("appointment validated",
		slog.String("operator_id", in.OperatorID),
		slog.Bool("blocked", res.IsBlocked()),
		slog.Int("warnings", len(res.Warnings())),
	)
	return validationStruct(res), nil
}

func (s *SchedulingServer) BookAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "BookAppointment"))
	if req == nil {
		return nil, invalid(log, "nil_request", "request is required")
	}
	f := fieldsOf(req)
	in, err := s.bookInput(ctx, f)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		return nil, err
	}

	book := s.svc.Book
	if f.boolean("draft") {
		book = s.svc.CreateDraft
	}
	out, err := book(ctx, in)
	if err != nil {
		return nil, toStatus(log.With(slog.String("operator_id", in.OperatorID)), err)
	}

	log.Info("appointment booked",
		slog.String("appointment_id", out.Appointment.ID().String()),
		slog.String("status", string(out.Appointment.Status())),
		slog.Bool("replayed", out.Replayed),
	)
	return bookResponse(out), nil
}

func bookResponse(out booking.BookResult) *structpb.Struct {
	resp := validationStruct(out.Validation)
	resp.Fields["appointment"] = appointmentValue(out.Appointment)
	resp.Fields["replayed"] = structpb.NewBoolValue(out.Replayed)
	return resp
}

func (s *SchedulingServer) TransitionAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "TransitionAppointment"))
	if req == nil {
		return nil, invalid(log, "nil_request", "request is required")
	}
	f := fieldsOf(req)
	id, err := appointmentIDOf(f)
	if err != nil {
		return nil, invalid(log, "invalid_uuid", "appointment_id must be a UUID")
	}
	to := domain.Status(f.str("to"))
	if !to.Valid() {
		return nil, invalid(log, "invalid_status", "to must be a valid status")
	}
	actor := actorOf(f)

	if to == domain.StatusConfirmed {
		out, err := s.svc.Confirm(ctx, actor, id, overrideOf(f))
		if err != nil {
			return nil, toStatus(log.With(slog.String("appointment_id", id.String())), err)
		}
		log.Info("appointment confirmed", slog.String("appointment_id", id.String()))
		return bookResponse(out), nil
	}

	appt, err := s.svc.Transition(ctx, actor, id, to, f.str("reason"))
	if err != nil {
		return nil, toStatus(log.With(slog.String("appointment_id", id.String())), err)
	}
	log.Info("appointment transitioned", slog.String("appointment_id", id.String()), slog.String("to", string(to)))
	return &structpb.Struct{Fields: map[string]*structpb.Value{"appointment": appointmentValue(appt)}}, nil
}

func (s *SchedulingServer) RescheduleAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "RescheduleAppointment"))
	if req == nil {
		return nil, invalid(log, "nil_request", "request is required")
	}
	f := fieldsOf(req)
	id, err := appointmentIDOf(f)
	if err != nil {
		return nil, invalid(log, "invalid_uuid", "appointment_id must be a UUID")
	}
	if !f.has("start") {
		return nil, invalid(log, "missing_start", "start is required")
	}
	start, err := f.timestamp("start")
	if err != nil {
		return nil, invalid(log, "invalid_start", err.Error())
	}
	minutes, err := f.integer("duration_minutes")
	if err != nil {
		return nil, invalid(log, "invalid_duration", err.Error())
	}

	out, err := s.svc.Reschedule(ctx, booking.RescheduleInput{
		Actor:           actorOf(f),
		ID:              id,
		Start:           start,
		DurationMinutes: minutes,
		Override:        overrideOf(f),
	})
	if err != nil {
		return nil, toStatus(log.With(slog.String("appointment_id", id.String())), err)
	}
	log.Info("appointment rescheduled", slog.String("appointment_id", id.String()), slog.Time("start", out.Appointment.Start()))
	return bookResponse(out), nil
}

func (s *SchedulingServer) DeleteAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DeleteAppointment"))
	if req == nil {
		return nil, invalid(log, "nil_request", "request is required")
	}
	f := fieldsOf(req)
	id, err := appointmentIDOf(f)
	if err != nil {
		return nil, invalid(log, "invalid_uuid", "appointment_id must be a UUID")
	}

	if err := s.svc.Delete(ctx, actorOf(f), id, f.str("reason")); err != nil {
		return nil, toStatus(log.With(slog.String("appointment_id", id.String())), err)
	}
	log.Info("appointment deleted", slog.String("appointment_id", id.String()))
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

func (s *SchedulingServer) GetAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))
	if req == nil {
		return nil, invalid(log, "nil_request", "request is required")
	}
	f := fieldsOf(req)
	id, err := appointmentIDOf(f)
	if err != nil {
		return nil, invalid(log, "invalid_uuid", "appointment_id must be a UUID")
	}

	appt, err := s.svc.Get(ctx, id, f.boolean("include_deleted"))
	if err != nil {
		return nil, toStatus(log.With(slog.String("appointment_id", id.String())), err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"appointment": appointmentValue(appt)}}, nil
}

func (s *SchedulingServer) ListAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))
	f := fieldsOf(req)

	day, err := f.date("day", s.loc)
	if err != nil {
		return nil, invalid(log, "invalid_day", err.Error())
	}
	from, err := f.timestamp("from")
	if err != nil {
		return nil, invalid(log, "invalid_window", err.Error())
	}
	to, err := f.timestamp("to")
	if err != nil {
		return nil, invalid(log, "invalid_window", err.Error())
	}

	appts, err := s.svc.List(ctx, booking.ListFilter{
		ClientID:       f.str("client_id"),
		OperatorID:     f.str("operator_id"),
		RoomID:         f.str("room_id"),
		Day:            day,
		From:           from,
		To:             to,
		IncludeDeleted: f.boolean("include_deleted"),
	})
	if err != nil {
		return nil, toStatus(log, err)
	}

	out := make([]*structpb.Value, 0, len(appts))
	for _, a := range appts {
		out = append(out, appointmentValue(a))
	}
	log.Debug("appointments listed", slog.Int("count", len(out)))
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"appointments": structpb.NewListValue(&structpb.ListValue{Values: out}),
	}}, nil
}

func (s *SchedulingServer) QueryAudit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "QueryAudit"))
	f := fieldsOf(req)

	from, err := f.timestamp("from")
	if err != nil {
		return nil, invalid(log, "invalid_window", err.Error())
	}
	to, err := f.timestamp("to")
	if err != nil {
		return nil, invalid(log, "invalid_window", err.Error())
	}
	limit, err := f.integer("limit")
	if err != nil {
		return nil, invalid(log, "invalid_limit", err.Error())
	}

	page, err := s.svc.QueryAudit(ctx, audit.Filter{
		ActorID:   f.str("actor_id"),
		TargetID:  f.str("target_id"),
		Category:  domain.GDPRCategory(f.str("category")),
		From:      from,
		To:        to,
		Limit:     limit,
		PageToken: f.str("page_token"),
	})
	if err != nil {
		return nil, toStatus(log, err)
	}

	out := make([]*structpb.Value, 0, len(page.Entries))
	for _, e := range page.Entries {
		out = append(out, auditValue(e))
	}
	resp := &structpb.Struct{Fields: map[string]*structpb.Value{
		"entries": structpb.NewListValue(&structpb.ListValue{Values: out}),
	}}
	if page.NextPageToken != "" {
		resp.Fields["next_page_token"] = structpb.NewStringValue(page.NextPageToken)
	}
	return resp, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
