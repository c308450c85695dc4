package grpc

import (
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/service/booking"
	"salonbook/backend/internal/store"
)

// toStatus maps service errors to gRPC statuses. Rejections carry the full
// validation result as a status detail.
func toStatus(log *slog.Logger, err error) error {
	var (
		vErr       *booking.ValidationError
		blocked    *booking.BlockedError
		override   *booking.OverrideRequiredError
		transition *domain.InvalidTransitionError
		frozen     *domain.NotReschedulableError
		input      *domain.InvalidInputError
		duration   *domain.InvalidDurationError
		past       *domain.PastAppointmentError
		midnight   *domain.PastMidnightError
		incomplete *domain.IncompleteAuditEntryError
	)

	switch {
	case errors.As(err, &blocked):
		log.Info("request blocked", slog.Any("codes", blocked.Result.BlockCodes()))
		return withResult(codes.FailedPrecondition, err.Error(), blocked.Result)
	case errors.As(err, &override):
		log.Info("override required", slog.Any("codes", override.Unacknowledged))
		return withResult(codes.FailedPrecondition, err.Error(), override.Result)
	case errors.As(err, &vErr), errors.As(err, &input), errors.As(err, &duration),
		errors.As(err, &past), errors.As(err, &midnight):
		log.Warn("invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &transition), errors.As(err, &frozen), errors.Is(err, domain.ErrAppointmentDeleted):
		log.Info("transition refused", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrAlreadyExists):
		log.Warn("appointment already exists", slog.Any("err", err))
		return status.Error(codes.AlreadyExists, "appointment already exists")
	case errors.Is(err, store.ErrNotFound):
		log.Info("not found", slog.Any("err", err))
		return status.Error(codes.NotFound, "appointment not found")
	case errors.Is(err, store.ErrConflict):
		log.Info("booking conflict", slog.Any("err", err))
		return status.Error(codes.Aborted, "That slot was just taken. Validate again and pick a different slot.")
	case errors.As(err, &incomplete):
		log.Error("audit entry incomplete", slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	default:
		log.Error("request failed", slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}
}

func withResult(code codes.Code, msg string, r domain.ValidationResult) error {
	st := status.New(code, msg)
	if detailed, err := st.WithDetails(validationStruct(r)); err == nil {
		st = detailed
	}
	return st.Err()
}
