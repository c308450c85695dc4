package grpc

import (
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"salonbook/backend/internal/domain"
)

// fields wraps a request struct with typed accessors. Missing keys read as zero values.
type fields map[string]*structpb.Value

func fieldsOf(s *structpb.Struct) fields {
	if s == nil {
		return fields{}
	}
	return s.GetFields()
}

func (f fields) has(key string) bool {
	v, ok := f[key]
	if !ok {
		return false
	}
	_, null := v.GetKind().(*structpb.Value_NullValue)
	return !null
}

func (f fields) str(key string) string {
	return strings.TrimSpace(f[key].GetStringValue())
}

func (f fields) boolean(key string) bool {
	return f[key].GetBoolValue()
}

func (f fields) integer(key string) (int, error) {
	if !f.has(key) {
		return 0, nil
	}
	n := f[key].GetNumberValue()
	if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return int(n), nil
}

func (f fields) timestamp(key string) (time.Time, error) {
	raw := f.str(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp", key)
	}
	return t, nil
}

func (f fields) date(key string, loc *time.Location) (time.Time, error) {
	raw := f.str(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a YYYY-MM-DD date", key)
	}
	return t, nil
}

func (f fields) stringList(key string) []string {
	var out []string
	for _, v := range f[key].GetListValue().GetValues() {
		if s := strings.TrimSpace(v.GetStringValue()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (f fields) object(key string) (fields, bool) {
	s := f[key].GetStructValue()
	if s == nil {
		return nil, false
	}
	return s.GetFields(), true
}

func appointmentValue(a *domain.Appointment) *structpb.Value {
	m := map[string]*structpb.Value{
		"id":                 structpb.NewStringValue(a.ID().String()),
		"start":              structpb.NewStringValue(a.Start().Format(time.RFC3339)),
		"end":                structpb.NewStringValue(a.End().Format(time.RFC3339)),
		"duration_minutes":   structpb.NewNumberValue(float64(a.DurationMinutes())),
		"client_id":          structpb.NewStringValue(a.ClientID()),
		"operator_id":        structpb.NewStringValue(a.OperatorID()),
		"service_id":         structpb.NewStringValue(a.ServiceID()),
		"requires_equipment": structpb.NewBoolValue(a.RequiresEquipment()),
		"status":             structpb.NewStringValue(string(a.Status())),
		"created_at":         structpb.NewStringValue(a.CreatedAt().Format(time.RFC3339)),
		"updated_at":         structpb.NewStringValue(a.UpdatedAt().Format(time.RFC3339)),
	}
	if room := a.RoomID(); room != "" {
		m["room_id"] = structpb.NewStringValue(room)
	}
	if o, ok := a.Override(); ok {
		m["override"] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"authorized_by": structpb.NewStringValue(o.AuthorizedBy),
			"reason":        structpb.NewStringValue(o.Reason),
			"warning_codes": codesValue(o.WarningCodes),
			"at":            structpb.NewStringValue(o.At.Format(time.RFC3339)),
		}})
	}
	if at, ok := a.DeletedAt(); ok {
		m["deleted_at"] = structpb.NewStringValue(at.Format(time.RFC3339))
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: m})
}

func codesValue(cs []domain.Code) *structpb.Value {
	vals := make([]*structpb.Value, 0, len(cs))
	for _, c := range cs {
		vals = append(vals, structpb.NewStringValue(string(c)))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func finding(code domain.Code, message string) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"code":    structpb.NewStringValue(string(code)),
		"message": structpb.NewStringValue(message),
	}})
}

func validationStruct(r domain.ValidationResult) *structpb.Struct {
	blocks := make([]*structpb.Value, 0)
	for _, b := range r.Blocks() {
		blocks = append(blocks, finding(b.Code(), b.Error()))
	}
	warnings := make([]*structpb.Value, 0)
	for _, w := range r.Warnings() {
		warnings = append(warnings, finding(w.Code(), w.Message()))
	}
	suggestions := make([]*structpb.Value, 0)
	for _, s := range r.Suggestions() {
		suggestions = append(suggestions, finding(s.Code(), s.Message()))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"blocked":     structpb.NewBoolValue(r.IsBlocked()),
		"blocks":      structpb.NewListValue(&structpb.ListValue{Values: blocks}),
		"warnings":    structpb.NewListValue(&structpb.ListValue{Values: warnings}),
		"suggestions": structpb.NewListValue(&structpb.ListValue{Values: suggestions}),
	}}
}

func auditValue(e domain.AuditEntry) *structpb.Value {
	details := make(map[string]*structpb.Value, len(e.Details))
	for k, v := range e.Details {
		details[k] = structpb.NewStringValue(v)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"id":          structpb.NewStringValue(e.ID.String()),
		"actor_id":    structpb.NewStringValue(e.ActorID),
		"actor_type":  structpb.NewStringValue(string(e.ActorType)),
		"action":      structpb.NewStringValue(string(e.Action)),
		"target_type": structpb.NewStringValue(e.TargetType),
		"target_id":   structpb.NewStringValue(e.TargetID),
		"category":    structpb.NewStringValue(string(e.Category)),
		"details":     structpb.NewStructValue(&structpb.Struct{Fields: details}),
		"at":          structpb.NewStringValue(e.At.Format(time.RFC3339Nano)),
	}})
}
