package validation

import (
	"context"
	"fmt"
	"time"

	"salonbook/backend/internal/domain"
)

// checkWorkingHours looks at the start time only. A booking that begins inside
// the window and runs past closing is accepted without a warning.
func (e *Engine) checkWorkingHours(p *pass, hours domain.WorkingHours) {
	start := p.candidate.Start
	requested := domain.TimeOfDayOf(start)

	w, ok := hours.Window(start.Weekday())
	if !ok {
		p.warnings = append(p.warnings, domain.OutsideWorkingHours{Requested: requested, Closed: true})
		return
	}
	if !w.Contains(requested) {
		p.warnings = append(p.warnings, domain.OutsideWorkingHours{Requested: requested, Window: w})
	}
}

func (e *Engine) checkHoliday(p *pass, hours domain.WorkingHours, holidays domain.HolidaySet) {
	h, ok := holidays.Lookup(p.candidate.Start)
	if !ok {
		return
	}
	next, found := domain.NextWorkingDay(p.candidate.Start, hours, holidays)
	p.warnings = append(p.warnings, domain.HolidayBooking{Holiday: h, NextWorkingDay: next, HasNext: found})
}

func (e *Engine) checkClientRisk(ctx context.Context, p *pass, vc Context) error {
	if p.client == nil {
		return nil
	}
	h, err := lookup(vc.ClientHistory(ctx, p.client.ID))
	if err != nil {
		return fmt.Errorf("load client history %s: %w", p.client.ID, err)
	}
	if h == nil {
		return nil
	}
	p.history = h
	if h.LatePayments > e.policy.LatePaymentThreshold {
		p.warnings = append(p.warnings, domain.ClientLatePayments{
			Count:     h.LatePayments,
			Threshold: e.policy.LatePaymentThreshold,
		})
	}
	return nil
}

func (e *Engine) checkSpecialization(p *pass) {
	if p.operator == nil || p.service == nil {
		return
	}
	if !p.operator.HasSpecialization(p.service.Specialization) {
		p.warnings = append(p.warnings, domain.OperatorNotSpecialized{
			OperatorID:     p.operator.ID,
			Specialization: p.service.Specialization,
		})
	}
}

// checkBreaks compares the candidate with the nearest non-overlapping booking on
// each side. Overlapping bookings are already reported as conflicts.
func (e *Engine) checkBreaks(p *pass) {
	if e.policy.RecommendedBufferMins == 0 {
		return
	}
	start, end := p.candidate.Start, p.candidate.End()

	var before, after *domain.Appointment
	for _, a := range p.booked {
		if a.Overlaps(start, end) {
			continue
		}
		if !a.End().After(start) {
			if before == nil || a.End().After(before.End()) {
				before = a
			}
			continue
		}
		if after == nil || a.Start().Before(after.Start()) {
			after = a
		}
	}

	buffer := time.Duration(e.policy.RecommendedBufferMins) * time.Minute
	if before != nil {
		if gap := start.Sub(before.End()); gap < buffer {
			p.warnings = append(p.warnings, e.shortBreak(before.ID(), gap))
		}
	}
	if after != nil {
		if gap := after.Start().Sub(end); gap < buffer {
			p.warnings = append(p.warnings, e.shortBreak(after.ID(), gap))
		}
	}
}

func (e *Engine) shortBreak(adjacent domain.AppointmentID, gap time.Duration) domain.ShortBreak {
	return domain.ShortBreak{
		AdjacentID:         adjacent,
		ActualMinutes:      int(gap / time.Minute),
		RecommendedMinutes: e.policy.RecommendedBufferMins,
	}
}
