package booking

import (
	"context"
	"strings"
	"time"

	"salonbook/backend/internal/audit"
	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

func (s *Service) Get(ctx context.Context, id domain.AppointmentID, includeDeleted bool) (*domain.Appointment, error) {
	if id.IsZero() {
		return nil, validationError("appointment_id is required")
	}
	return s.appts.Get(ctx, id, visibility(includeDeleted))
}

// ListFilter selects one repository query. Day and From/To are exclusive.
type ListFilter struct {
	ClientID       string
	OperatorID     string
	RoomID         string
	Day            time.Time
	From           time.Time
	To             time.Time
	IncludeDeleted bool
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*domain.Appointment, error) {
	vis := visibility(f.IncludeDeleted)
	client := strings.TrimSpace(f.ClientID)
	operator := strings.TrimSpace(f.OperatorID)
	room := strings.TrimSpace(f.RoomID)
	hasDay := !f.Day.IsZero()
	hasRange := !f.From.IsZero() || !f.To.IsZero()

	if hasDay && hasRange {
		return nil, validationError("day cannot be combined with from/to")
	}
	if hasRange {
		if f.From.IsZero() || f.To.IsZero() {
			return nil, validationError("from and to are both required")
		}
		if !f.To.After(f.From) {
			return nil, validationError("to must be after from")
		}
	}
	if client != "" && (operator != "" || room != "" || hasDay || hasRange) {
		return nil, validationError("client_id cannot be combined with other filters")
	}
	if room != "" && (operator != "" || !hasDay) {
		return nil, validationError("room_id requires day and no operator_id")
	}

	day := f.Day.In(s.loc)
	from, to := f.From.In(s.loc), f.To.In(s.loc)

	switch {
	case client != "":
		return s.appts.ListByClient(ctx, client, vis)
	case room != "":
		return s.appts.ListByRoomAndDate(ctx, room, day, vis)
	case operator != "" && hasDay:
		return s.appts.ListByOperatorAndDate(ctx, operator, day, vis)
	case operator != "" && hasRange:
		return s.appts.ListByOperatorAndDateRange(ctx, operator, from, to, vis)
	case operator != "":
		return s.appts.ListByOperator(ctx, operator, vis)
	case hasDay:
		start := domain.StartOfDay(day)
		return s.appts.ListByDateRange(ctx, start, start.AddDate(0, 0, 1), vis)
	case hasRange:
		return s.appts.ListByDateRange(ctx, from, to, vis)
	default:
		return s.appts.ListAll(ctx, vis)
	}
}

func (s *Service) QueryAudit(ctx context.Context, f audit.Filter) (audit.Page, error) {
	return s.trail.Query(ctx, f)
}

func visibility(includeDeleted bool) store.Visibility {
	if includeDeleted {
		return store.IncludeDeleted
	}
	return store.ActiveOnly
}
