package validation

import (
	"context"
	"fmt"
	"time"

	"salonbook/backend/internal/domain"
)

type interval struct {
	start time.Time
	end   time.Time
}

func busyIntervals(appts []*domain.Appointment) []interval {
	out := make([]interval, 0, len(appts))
	for _, a := range appts {
		out = append(out, interval{start: a.Start(), end: a.End()})
	}
	return out
}

// freeSlots returns the start times within the day's opening window where a
// booking of the given length fits without touching any busy interval. Slots
// that already started are skipped.
func freeSlots(day time.Time, hours domain.WorkingHours, minutes, stepMinutes int, busy []interval, now time.Time) []time.Time {
	w, ok := hours.Window(day.Weekday())
	if !ok || minutes <= 0 || stepMinutes <= 0 {
		return nil
	}
	windowStart, windowEnd := w.Open.On(day), w.Close.On(day)
	duration := time.Duration(minutes) * time.Minute
	step := time.Duration(stepMinutes) * time.Minute

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []interval) bool {
	for _, b := range busy {
		if domain.Overlaps(start, end, b.start, b.end) {
			return true
		}
	}
	return false
}

// closestSlot picks the slot nearest to target, excluding target itself. Ties go to the earlier slot.
func closestSlot(slots []time.Time, target time.Time) (time.Time, bool) {
	var best time.Time
	var bestDist time.Duration
	found := false
	for _, s := range slots {
		if s.Equal(target) {
			continue
		}
		d := s.Sub(target)
		if d < 0 {
			d = -d
		}
		if !found || d < bestDist {
			best, bestDist, found = s, d, true
		}
	}
	return best, found
}

func (e *Engine) suggest(ctx context.Context, p *pass, vc Context) error {
	c := p.candidate
	hours := vc.WorkingHours()
	now := e.now()

	if p.conflict {
		slots := freeSlots(c.Start, hours, c.DurationMinutes, e.policy.SlotStepMinutes, busyIntervals(p.booked), now)
		if s, ok := closestSlot(slots, c.Start); ok {
			p.suggestions = append(p.suggestions, domain.BetterSlot{OperatorID: c.OperatorID, Start: s})
		}
	}

	if p.history != nil {
		if preferred, ok := p.history.PreferredDayPart(); ok {
			if requested := domain.DayPartOf(domain.TimeOfDayOf(c.Start)); preferred != requested {
				p.suggestions = append(p.suggestions, domain.PreferredTime{Preferred: preferred, Requested: requested})
			}
		}
	}

	if p.service == nil || p.service.Specialization == "" {
		return nil
	}
	unfit := p.operator == nil || !p.operator.HasSpecialization(p.service.Specialization)
	if !unfit && !p.conflict {
		return nil
	}
	ops, err := vc.ActiveOperators(ctx)
	if err != nil {
		return fmt.Errorf("list active operators: %w", err)
	}
	for _, op := range ops {
		if op.ID == c.OperatorID || !op.Active || !op.HasSpecialization(p.service.Specialization) {
			continue
		}
		booked, err := vc.OperatorAppointments(ctx, op.ID, c.Start)
		if err != nil {
			return fmt.Errorf("list operator appointments: %w", err)
		}
		slots := freeSlots(c.Start, hours, c.DurationMinutes, e.policy.SlotStepMinutes, busyIntervals(competing(booked, c.ID)), now)
		if len(slots) == 0 {
			continue
		}
		p.suggestions = append(p.suggestions, domain.SpecializedOperator{
			OperatorID: op.ID,
			Name:       op.Name,
			FirstFree:  slots[0],
		})
		break
	}
	return nil
}
