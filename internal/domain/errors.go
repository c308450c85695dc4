package domain

import (
	"fmt"
	"time"
)

// Code identifies a kind of finding or failure independently of its message.
type Code string

const (
	CodeInvalidTransition Code = "TransizioneNonValida"
	CodePastAppointment   Code = "AppuntamentoPassato"
	CodeInvalidDuration   Code = "DurataNonValida"
	CodePastMidnight      Code = "OltreMezzanotte"
	CodeInvalidInput      Code = "InputNonValido"
	CodeNotReschedulable  Code = "NonRiprogrammabile"

	CodeOperatorConflict     Code = "ConflictOperatore"
	CodeRoomConflict         Code = "ConflictSala"
	CodeEquipmentUnavailable Code = "AttrezzaturaNonDisponibile"
	CodeClientNotFound       Code = "ClienteNonTrovato"
	CodeOperatorNotFound     Code = "OperatoreNonTrovato"
	CodeServiceNotFound      Code = "ServizioNonTrovato"

	CodeOutsideWorkingHours    Code = "FuoriOrarioLavorativo"
	CodeHoliday                Code = "GiornoFestivo"
	CodeClientLatePayments     Code = "ClienteStoricoRitardi"
	CodeOperatorNotSpecialized Code = "OperatoreNonSpecializzato"
	CodeShortBreak             Code = "PausaTroppoBreve"

	CodeBetterSlot          Code = "SlotMigliore"
	CodePreferredTime       Code = "OrarioPreferito"
	CodeSpecializedOperator Code = "OperatoreSpecializzato"
)

// Coded is implemented by every error and finding that carries a Code.
type Coded interface {
	Code() Code
}

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Code() Code { return CodeInvalidTransition }

type PastAppointmentError struct {
	Start time.Time
}

func (e *PastAppointmentError) Error() string {
	return fmt.Sprintf("appointment start %s is in the past", e.Start.Format("2006-01-02T15:04"))
}

func (e *PastAppointmentError) Code() Code { return CodePastAppointment }

type InvalidDurationError struct {
	Minutes int
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid duration: %d minutes", e.Minutes)
}

func (e *InvalidDurationError) Code() Code { return CodeInvalidDuration }

type PastMidnightError struct {
	End time.Time
}

func (e *PastMidnightError) Error() string {
	return fmt.Sprintf("appointment would end past midnight at %s", e.End.Format("2006-01-02T15:04"))
}

func (e *PastMidnightError) Code() Code { return CodePastMidnight }

type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return e.Field + " " + e.Reason
}

func (e *InvalidInputError) Code() Code { return CodeInvalidInput }

// NotReschedulableError rejects moving an appointment that is under way or closed.
type NotReschedulableError struct {
	Status Status
}

func (e *NotReschedulableError) Error() string {
	return fmt.Sprintf("appointment in status %s cannot be rescheduled", e.Status)
}

func (e *NotReschedulableError) Code() Code { return CodeNotReschedulable }
