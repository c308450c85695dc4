// Package validation decides whether a proposed appointment may be accepted.
//
// Every check runs on every pass. Findings accumulate into three tiers: blocks
// reject the request, warnings need an audited override, suggestions are advisory.
package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

// Context gives the engine read access to everything a pass needs.
// Errors other than store.ErrNotFound from the lookups abort the pass.
type Context interface {
	OperatorAppointments(ctx context.Context, operatorID string, day time.Time) ([]*domain.Appointment, error)
	RoomAppointments(ctx context.Context, roomID string, day time.Time) ([]*domain.Appointment, error)
	Client(ctx context.Context, id string) (domain.Client, error)
	Operator(ctx context.Context, id string) (domain.Operator, error)
	Service(ctx context.Context, id string) (domain.Service, error)
	ActiveOperators(ctx context.Context) ([]domain.Operator, error)
	ClientHistory(ctx context.Context, clientID string) (domain.ClientHistory, error)
	WorkingHours() domain.WorkingHours
	Holidays() domain.HolidaySet
}

// Policy holds the tunable thresholds of a validation pass.
type Policy struct {
	LatePaymentThreshold  int
	RecommendedBufferMins int
	SlotStepMinutes       int
}

func DefaultPolicy() Policy {
	return Policy{
		LatePaymentThreshold:  2,
		RecommendedBufferMins: 10,
		SlotStepMinutes:       15,
	}
}

type Engine struct {
	policy Policy
	now    func() time.Time
}

type Option func(*Engine)

// WithClock overrides the clock used to skip slots that already started.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(p Policy, opts ...Option) *Engine {
	d := DefaultPolicy()
	if p.LatePaymentThreshold < 0 {
		p.LatePaymentThreshold = d.LatePaymentThreshold
	}
	if p.RecommendedBufferMins < 0 {
		p.RecommendedBufferMins = d.RecommendedBufferMins
	}
	if p.SlotStepMinutes <= 0 {
		p.SlotStepMinutes = d.SlotStepMinutes
	}
	e := &Engine{policy: p, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() Policy { return e.policy }

type pass struct {
	candidate   domain.AppointmentDraft
	blocks      []domain.Block
	warnings    []domain.Warning
	suggestions []domain.Suggestion

	client   *domain.Client
	operator *domain.Operator
	service  *domain.Service
	history  *domain.ClientHistory
	booked   []*domain.Appointment
	conflict bool
}

// Validate runs every check against candidate. The candidate itself is excluded
// from the competing appointments by ID, so an existing appointment can be re-validated.
func (e *Engine) Validate(ctx context.Context, candidate domain.AppointmentDraft, vc Context) (domain.ValidationResult, error) {
	p := &pass{candidate: candidate}

	if err := e.checkReferences(ctx, p, vc); err != nil {
		return domain.ValidationResult{}, err
	}
	if err := e.checkResourceConflicts(ctx, p, vc); err != nil {
		return domain.ValidationResult{}, err
	}
	e.checkEquipment(p)
	e.checkWorkingHours(p, vc.WorkingHours())
	e.checkHoliday(p, vc.WorkingHours(), vc.Holidays())
	if err := e.checkClientRisk(ctx, p, vc); err != nil {
		return domain.ValidationResult{}, err
	}
	e.checkSpecialization(p)
	e.checkBreaks(p)
	if err := e.suggest(ctx, p, vc); err != nil {
		return domain.ValidationResult{}, err
	}

	return domain.NewValidationResult(orderBlocks(p.blocks), p.warnings, p.suggestions), nil
}

// lookup turns store.ErrNotFound into ok=false and passes any other failure through.
func lookup[T any](v T, err error) (*T, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (e *Engine) checkReferences(ctx context.Context, p *pass, vc Context) error {
	c := p.candidate

	client, err := lookup(vc.Client(ctx, c.ClientID))
	if err != nil {
		return fmt.Errorf("lookup client %s: %w", c.ClientID, err)
	}
	if client == nil {
		p.blocks = append(p.blocks, domain.ClientNotFound{ClientID: c.ClientID})
	}
	p.client = client

	op, err := lookup(vc.Operator(ctx, c.OperatorID))
	if err != nil {
		return fmt.Errorf("lookup operator %s: %w", c.OperatorID, err)
	}
	if op == nil {
		p.blocks = append(p.blocks, domain.OperatorNotFound{OperatorID: c.OperatorID})
	}
	p.operator = op

	svc, err := lookup(vc.Service(ctx, c.ServiceID))
	if err != nil {
		return fmt.Errorf("lookup service %s: %w", c.ServiceID, err)
	}
	if svc == nil {
		p.blocks = append(p.blocks, domain.ServiceNotFound{ServiceID: c.ServiceID})
	}
	p.service = svc
	return nil
}

func (e *Engine) checkResourceConflicts(ctx context.Context, p *pass, vc Context) error {
	c := p.candidate
	start, end := c.Start, c.End()

	booked, err := vc.OperatorAppointments(ctx, c.OperatorID, c.Start)
	if err != nil {
		return fmt.Errorf("list operator appointments: %w", err)
	}
	p.booked = competing(booked, c.ID)
	for _, a := range p.booked {
		if a.Overlaps(start, end) {
			p.conflict = true
			p.blocks = append(p.blocks, domain.OperatorConflict{
				OperatorID:    c.OperatorID,
				At:            a.Start(),
				ConflictingID: a.ID(),
			})
		}
	}

	if c.RoomID == "" {
		return nil
	}
	inRoom, err := vc.RoomAppointments(ctx, c.RoomID, c.Start)
	if err != nil {
		return fmt.Errorf("list room appointments: %w", err)
	}
	for _, a := range competing(inRoom, c.ID) {
		if a.Overlaps(start, end) {
			p.blocks = append(p.blocks, domain.RoomConflict{
				RoomID:        c.RoomID,
				At:            a.Start(),
				ConflictingID: a.ID(),
			})
		}
	}
	return nil
}

// competing drops the candidate itself, tombstoned rows and cancelled appointments.
func competing(appts []*domain.Appointment, self domain.AppointmentID) []*domain.Appointment {
	out := make([]*domain.Appointment, 0, len(appts))
	for _, a := range appts {
		if a == nil || a.Deleted() || !a.Status().Occupying() {
			continue
		}
		if !self.IsZero() && a.ID() == self {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (e *Engine) checkEquipment(p *pass) {
	if p.service == nil {
		return
	}
	required := p.candidate.RequiresEquipment || p.service.RequiresEquipment
	if required && !p.service.EquipmentAvailable {
		p.blocks = append(p.blocks, domain.EquipmentUnavailable{ServiceID: p.service.ID})
	}
}

// orderBlocks keeps the documented priority: resource conflicts, equipment, then references.
func orderBlocks(blocks []domain.Block) []domain.Block {
	rank := func(b domain.Block) int {
		switch b.Code() {
		case domain.CodeOperatorConflict:
			return 0
		case domain.CodeRoomConflict:
			return 1
		case domain.CodeEquipmentUnavailable:
			return 2
		default:
			return 3
		}
	}
	out := make([]domain.Block, 0, len(blocks))
	for r := 0; r <= 3; r++ {
		for _, b := range blocks {
			if rank(b) == r {
				out = append(out, b)
			}
		}
	}
	return out
}
