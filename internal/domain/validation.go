package domain

import (
	"fmt"
	"time"
)

// Block is a finding that rejects the request outright.
type Block interface {
	error
	Coded
	isBlock()
}

// Warning is a finding that may be accepted through an explicit override.
type Warning interface {
	Coded
	Message() string
	isWarning()
}

// Suggestion is advisory output. It never affects acceptance.
type Suggestion interface {
	Coded
	Message() string
	isSuggestion()
}

type OperatorConflict struct {
	OperatorID    string
	At            time.Time
	ConflictingID AppointmentID
}

func (b OperatorConflict) Error() string {
	return fmt.Sprintf("operator %s is already booked at %s", b.OperatorID, b.At.Format("2006-01-02 15:04"))
}
func (OperatorConflict) Code() Code { return CodeOperatorConflict }
func (OperatorConflict) isBlock()   {}

type RoomConflict struct {
	RoomID        string
	At            time.Time
	ConflictingID AppointmentID
}

func (b RoomConflict) Error() string {
	return fmt.Sprintf("room %s is already occupied at %s", b.RoomID, b.At.Format("2006-01-02 15:04"))
}
func (RoomConflict) Code() Code { return CodeRoomConflict }
func (RoomConflict) isBlock()   {}

type EquipmentUnavailable struct {
	ServiceID string
}

func (b EquipmentUnavailable) Error() string {
	return fmt.Sprintf("equipment required by service %s is not available", b.ServiceID)
}
func (EquipmentUnavailable) Code() Code { return CodeEquipmentUnavailable }
func (EquipmentUnavailable) isBlock()   {}

type ClientNotFound struct{ ClientID string }

func (b ClientNotFound) Error() string { return fmt.Sprintf("client %s not found", b.ClientID) }
func (ClientNotFound) Code() Code      { return CodeClientNotFound }
func (ClientNotFound) isBlock()        {}

type OperatorNotFound struct{ OperatorID string }

func (b OperatorNotFound) Error() string { return fmt.Sprintf("operator %s not found", b.OperatorID) }
func (OperatorNotFound) Code() Code      { return CodeOperatorNotFound }
func (OperatorNotFound) isBlock()        {}

type ServiceNotFound struct{ ServiceID string }

func (b ServiceNotFound) Error() string { return fmt.Sprintf("service %s not found", b.ServiceID) }
func (ServiceNotFound) Code() Code      { return CodeServiceNotFound }
func (ServiceNotFound) isBlock()        {}

// OutsideWorkingHours is raised when the start falls outside the weekday's window.
// Closed is set when the weekday has no window at all.
type OutsideWorkingHours struct {
	Requested TimeOfDay
	Window    Window
	Closed    bool
}

func (w OutsideWorkingHours) Message() string {
	if w.Closed {
		return fmt.Sprintf("requested %s on a closed day", w.Requested)
	}
	return fmt.Sprintf("requested %s is outside working hours %s", w.Requested, w.Window)
}
func (OutsideWorkingHours) Code() Code { return CodeOutsideWorkingHours }
func (OutsideWorkingHours) isWarning() {}

type HolidayBooking struct {
	Holiday        Holiday
	NextWorkingDay time.Time
	HasNext        bool
}

func (w HolidayBooking) Message() string {
	if !w.HasNext {
		return fmt.Sprintf("requested day is a holiday (%s)", w.Holiday.Name)
	}
	return fmt.Sprintf("requested day is a holiday (%s); next working day is %s", w.Holiday.Name, w.NextWorkingDay.Format(time.DateOnly))
}
func (HolidayBooking) Code() Code { return CodeHoliday }
func (HolidayBooking) isWarning() {}

type ClientLatePayments struct {
	Count     int
	Threshold int
}

func (w ClientLatePayments) Message() string {
	return fmt.Sprintf("client has %d late payments (threshold %d)", w.Count, w.Threshold)
}
func (ClientLatePayments) Code() Code { return CodeClientLatePayments }
func (ClientLatePayments) isWarning() {}

type OperatorNotSpecialized struct {
	OperatorID     string
	Specialization string
}

func (w OperatorNotSpecialized) Message() string {
	return fmt.Sprintf("operator %s lacks specialization %q", w.OperatorID, w.Specialization)
}
func (OperatorNotSpecialized) Code() Code { return CodeOperatorNotSpecialized }
func (OperatorNotSpecialized) isWarning() {}

type ShortBreak struct {
	AdjacentID         AppointmentID
	ActualMinutes      int
	RecommendedMinutes int
}

func (w ShortBreak) Message() string {
	return fmt.Sprintf("only %d minutes between bookings (recommended %d)", w.ActualMinutes, w.RecommendedMinutes)
}
func (ShortBreak) Code() Code { return CodeShortBreak }
func (ShortBreak) isWarning() {}

type BetterSlot struct {
	OperatorID string
	Start      time.Time
}

func (s BetterSlot) Message() string {
	return fmt.Sprintf("operator %s is free at %s", s.OperatorID, s.Start.Format("15:04"))
}
func (BetterSlot) Code() Code    { return CodeBetterSlot }
func (BetterSlot) isSuggestion() {}

type DayPart string

const (
	DayPartMorning   DayPart = "morning"
	DayPartAfternoon DayPart = "afternoon"
	DayPartEvening   DayPart = "evening"
)

func DayPartOf(t TimeOfDay) DayPart {
	switch {
	case t < NewTimeOfDay(13, 0):
		return DayPartMorning
	case t < NewTimeOfDay(18, 0):
		return DayPartAfternoon
	default:
		return DayPartEvening
	}
}

type PreferredTime struct {
	Preferred DayPart
	Requested DayPart
}

func (s PreferredTime) Message() string {
	return fmt.Sprintf("client usually books in the %s", s.Preferred)
}
func (PreferredTime) Code() Code    { return CodePreferredTime }
func (PreferredTime) isSuggestion() {}

type SpecializedOperator struct {
	OperatorID string
	Name       string
	FirstFree  time.Time
}

func (s SpecializedOperator) Message() string {
	return fmt.Sprintf("%s is specialized and free at %s", s.Name, s.FirstFree.Format("15:04"))
}
func (SpecializedOperator) Code() Code    { return CodeSpecializedOperator }
func (SpecializedOperator) isSuggestion() {}

// ValidationResult is the outcome of one validation pass. It is immutable once built.
type ValidationResult struct {
	blocks      []Block
	warnings    []Warning
	suggestions []Suggestion
}

func NewValidationResult(blocks []Block, warnings []Warning, suggestions []Suggestion) ValidationResult {
	return ValidationResult{
		blocks:      append([]Block(nil), blocks...),
		warnings:    append([]Warning(nil), warnings...),
		suggestions: append([]Suggestion(nil), suggestions...),
	}
}

// IsBlocked is the only accept/reject signal.
func (r ValidationResult) IsBlocked() bool { return len(r.blocks) > 0 }

func (r ValidationResult) HasWarnings() bool { return len(r.warnings) > 0 }

func (r ValidationResult) Blocks() []Block { return append([]Block(nil), r.blocks...) }

func (r ValidationResult) Warnings() []Warning { return append([]Warning(nil), r.warnings...) }

func (r ValidationResult) Suggestions() []Suggestion {
	return append([]Suggestion(nil), r.suggestions...)
}

func (r ValidationResult) BlockCodes() []Code {
	out := make([]Code, 0, len(r.blocks))
	for _, b := range r.blocks {
		out = append(out, b.Code())
	}
	return out
}

func (r ValidationResult) WarningCodes() []Code {
	out := make([]Code, 0, len(r.warnings))
	for _, w := range r.warnings {
		out = append(out, w.Code())
	}
	return out
}

func (r ValidationResult) SuggestionCodes() []Code {
	out := make([]Code, 0, len(r.suggestions))
	for _, s := range r.suggestions {
		out = append(out, s.Code())
	}
	return out
}
