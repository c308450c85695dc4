package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return NewTimeOfDay(h, m), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On returns the instant at this time of day on the calendar date of day.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location())
}

// Window is a half-open opening interval [Open, Close).
type Window struct {
	Open  TimeOfDay
	Close TimeOfDay
}

func (w Window) Contains(t TimeOfDay) bool {
	return t >= w.Open && t < w.Close
}

func (w Window) String() string {
	return w.Open.String() + "-" + w.Close.String()
}

// WorkingHours maps weekdays to their opening window. Days without a window are closed.
type WorkingHours struct {
	days map[time.Weekday]Window
}

func NewWorkingHours(days map[time.Weekday]Window) (WorkingHours, error) {
	out := make(map[time.Weekday]Window, len(days))
	for wd, w := range days {
		if w.Close <= w.Open {
			return WorkingHours{}, fmt.Errorf("working hours for %s: close %s must be after open %s", wd, w.Close, w.Open)
		}
		out[wd] = w
	}
	return WorkingHours{days: out}, nil
}

func (h WorkingHours) Window(wd time.Weekday) (Window, bool) {
	w, ok := h.days[wd]
	return w, ok
}

func (h WorkingHours) IsWorkingDay(wd time.Weekday) bool {
	_, ok := h.days[wd]
	return ok
}

// Contains reports whether t falls inside the opening window of its weekday.
func (h WorkingHours) Contains(t time.Time) bool {
	w, ok := h.days[t.Weekday()]
	if !ok {
		return false
	}
	return w.Contains(TimeOfDayOf(t))
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWorkingHours reads "mon=09:00-18:00,tue=09:00-18:00". Weekdays not listed are closed.
func ParseWorkingHours(s string) (WorkingHours, error) {
	days := make(map[time.Weekday]Window)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, span, ok := strings.Cut(part, "=")
		if !ok {
			return WorkingHours{}, fmt.Errorf("invalid working hours entry %q", part)
		}
		wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return WorkingHours{}, fmt.Errorf("invalid weekday %q", name)
		}
		openStr, closeStr, ok := strings.Cut(span, "-")
		if !ok {
			return WorkingHours{}, fmt.Errorf("invalid working hours window %q", span)
		}
		open, err := ParseTimeOfDay(openStr)
		if err != nil {
			return WorkingHours{}, err
		}
		closeAt, err := ParseTimeOfDay(closeStr)
		if err != nil {
			return WorkingHours{}, err
		}
		days[wd] = Window{Open: open, Close: closeAt}
	}
	return NewWorkingHours(days)
}

// Holiday is a public holiday or closure day. Recurring holidays match the same
// month and day in every year.
type Holiday struct {
	Date      time.Time
	Name      string
	Recurring bool
}

// HolidaySet is an immutable lookup over holiday facts.
type HolidaySet struct {
	exact     map[string]Holiday
	recurring map[string]Holiday
}

func NewHolidaySet(holidays []Holiday) HolidaySet {
	s := HolidaySet{
		exact:     make(map[string]Holiday, len(holidays)),
		recurring: make(map[string]Holiday),
	}
	for _, h := range holidays {
		s.exact[h.Date.Format(time.DateOnly)] = h
		if h.Recurring {
			s.recurring[h.Date.Format("01-02")] = h
		}
	}
	return s
}

func (s HolidaySet) Len() int { return len(s.exact) }

func (s HolidaySet) Lookup(day time.Time) (Holiday, bool) {
	if h, ok := s.exact[day.Format(time.DateOnly)]; ok {
		return h, true
	}
	h, ok := s.recurring[day.Format("01-02")]
	return h, ok
}

// All returns the facts sorted by date.
func (s HolidaySet) All() []Holiday {
	out := make([]Holiday, 0, len(s.exact))
	for _, h := range s.exact {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

const maxWorkingDaySearch = 366

// NextWorkingDay returns midnight of the first day after from that is a working
// weekday and not a holiday.
func NextWorkingDay(from time.Time, hours WorkingHours, holidays HolidaySet) (time.Time, bool) {
	y, m, d := from.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, from.Location())
	for i := 0; i < maxWorkingDaySearch; i++ {
		day = day.AddDate(0, 0, 1)
		if !hours.IsWorkingDay(day.Weekday()) {
			continue
		}
		if _, ok := holidays.Lookup(day); ok {
			continue
		}
		return day, true
	}
	return time.Time{}, false
}

// StartOfDay returns midnight of t's calendar date in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
