package usecase

import "time"

// WorkSchedule decides whether "now" is a sendable instant and, when it is
// not, when the next one starts.
type WorkSchedule interface {
	CanSendNow(now time.Time) bool
	NextSendableTime(now time.Time) time.Time
}

// OfficeHours is the default WorkSchedule: weekdays between StartHour
// (inclusive) and EndHour (exclusive), minus registered holidays.
type OfficeHours struct {
	StartHour int
	EndHour   int
	Location  *time.Location
	holidays  map[string]struct{} // "2006-01-02" keys
}

func NewOfficeHours(startHour, endHour int, loc *time.Location) *OfficeHours {
	if loc == nil {
		loc = time.Local
	}
	return &OfficeHours{
		StartHour: startHour,
		EndHour:   endHour,
		Location:  loc,
		holidays:  make(map[string]struct{}),
	}
}

// AddHoliday registers a non-sendable date.
func (o *OfficeHours) AddHoliday(date time.Time) {
	o.holidays[date.In(o.Location).Format("2006-01-02")] = struct{}{}
}

func (o *OfficeHours) workday(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := o.holidays[t.Format("2006-01-02")]
	return !holiday
}

func (o *OfficeHours) CanSendNow(now time.Time) bool {
	t := now.In(o.Location)
	if !o.workday(t) {
		return false
	}
	return t.Hour() >= o.StartHour && t.Hour() < o.EndHour
}

func (o *OfficeHours) NextSendableTime(now time.Time) time.Time {
	t := now.In(o.Location)

	// Later today still counts when we are before opening on a workday.
	if o.workday(t) && t.Hour() < o.StartHour {
		return time.Date(t.Year(), t.Month(), t.Day(), o.StartHour, 0, 0, 0, o.Location)
	}

	next := time.Date(t.Year(), t.Month(), t.Day(), o.StartHour, 0, 0, 0, o.Location).AddDate(0, 0, 1)
	for !o.workday(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
