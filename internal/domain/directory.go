package domain

import "time"

// Client, Operator and Service are reference records owned by the CRUD side of
// the system. The scheduling core only reads them.
type Client struct {
	ID     string
	Name   string
	Active bool
}

type Operator struct {
	ID              string
	Name            string
	Specializations []string
	Active          bool
}

func (o Operator) HasSpecialization(tag string) bool {
	if tag == "" {
		return true
	}
	for _, s := range o.Specializations {
		if s == tag {
			return true
		}
	}
	return false
}

type Service struct {
	ID                 string
	Name               string
	DurationMinutes    int
	Specialization     string
	RequiresEquipment  bool
	EquipmentAvailable bool
}

// ClientHistory summarises a client's past payments and attendance.
type ClientHistory struct {
	ClientID       string
	LatePayments   int
	NoShows        int
	PastStartTimes []time.Time
}

// PreferredDayPart returns the part of the day the client books most often.
// Ties resolve to the earlier part of the day.
func (h ClientHistory) PreferredDayPart() (DayPart, bool) {
	if len(h.PastStartTimes) == 0 {
		return "", false
	}
	counts := map[DayPart]int{}
	for _, t := range h.PastStartTimes {
		counts[DayPartOf(TimeOfDayOf(t))]++
	}
	var best DayPart
	bestN := 0
	for _, p := range []DayPart{DayPartMorning, DayPartAfternoon, DayPartEvening} {
		if counts[p] > bestN {
			best, bestN = p, counts[p]
		}
	}
	return best, true
}
