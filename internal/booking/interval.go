package booking

import (
	"strings"
	"time"

	"room-reservation-api/internal/model"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var clockLayouts = []string{ClockLayout, "15:04:05"}

// RawInterval is the unparsed interval input of a booking request. Either
// only a date is given (whole day) or clock times are given too.
type RawInterval struct {
	Date      string
	StartDate string
	StartTime string
	EndDate   string
	EndTime   string
}

func (r RawInterval) allDay() bool {
	return strings.TrimSpace(r.StartTime) == "" && strings.TrimSpace(r.EndTime) == ""
}

// Naive drops the location of t, keeping its wall clock in time.UTC. All
// instants handled by this package live in that frame.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// DayInterval covers the whole calendar day [date 00:00, next day 00:00).
func DayInterval(roomID, date string) (model.Interval, error) {
	return DayRange(roomID, date, date)
}

// DayRange covers every calendar day from startDate through endDate
// inclusive: [startDate 00:00, endDate+1 00:00).
func DayRange(roomID, startDate, endDate string) (model.Interval, error) {
	if err := required("roomId", roomID); err != nil {
		return model.Interval{}, err
	}
	first, err := parseDate("startDate", startDate)
	if err != nil {
		return model.Interval{}, err
	}
	last, err := parseDate("endDate", endDate)
	if err != nil {
		return model.Interval{}, err
	}
	if last.Before(first) {
		return model.Interval{}, &InvalidIntervalError{
			Field:  "endDate",
			Value:  strings.TrimSpace(endDate),
			Reason: "must not be before startDate",
		}
	}
	return model.Interval{
		RoomID: strings.TrimSpace(roomID),
		Start:  first,
		End:    last.AddDate(0, 0, 1),
	}, nil
}

// TimedInterval combines calendar dates with clock times into an interval.
func TimedInterval(roomID, startDate, startClock, endDate, endClock string) (model.Interval, error) {
	if err := required("roomId", roomID); err != nil {
		return model.Interval{}, err
	}
	start, err := combine("start", startDate, startClock)
	if err != nil {
		return model.Interval{}, err
	}
	end, err := combine("end", endDate, endClock)
	if err != nil {
		return model.Interval{}, err
	}
	if !start.Before(end) {
		return model.Interval{}, &InvalidIntervalError{
			Field:  "end",
			Value:  end.Format(DateLayout + " " + ClockLayout),
			Reason: "must be after start",
		}
	}
	return model.Interval{RoomID: strings.TrimSpace(roomID), Start: start, End: end}, nil
}

// ParseInterval builds the interval for raw. Date stands in for a missing
// start date and must agree with it when both are given. A missing end date
// falls back to the start date.
func ParseInterval(roomID string, raw RawInterval) (model.Interval, error) {
	startDate, err := raw.startDate()
	if err != nil {
		return model.Interval{}, err
	}
	endDate := firstNonEmpty(raw.EndDate, startDate)
	if raw.allDay() {
		return DayRange(roomID, startDate, endDate)
	}
	return TimedInterval(roomID, startDate, raw.StartTime, endDate, raw.EndTime)
}

func (r RawInterval) startDate() (string, error) {
	date, start := strings.TrimSpace(r.Date), strings.TrimSpace(r.StartDate)
	if date != "" && start != "" && date != start {
		return "", &InvalidIntervalError{Field: "startDate", Value: start, Reason: "does not match date " + date}
	}
	return firstNonEmpty(start, date), nil
}

func combine(field, date, clock string) (time.Time, error) {
	day, err := parseDate(field+"Date", date)
	if err != nil {
		return time.Time{}, err
	}
	if err := required(field+"Time", clock); err != nil {
		return time.Time{}, err
	}
	clock = strings.TrimSpace(clock)
	for _, layout := range clockLayouts {
		c, err := time.Parse(layout, clock)
		if err == nil {
			return day.Add(time.Duration(c.Hour())*time.Hour +
				time.Duration(c.Minute())*time.Minute +
				time.Duration(c.Second())*time.Second), nil
		}
	}
	return time.Time{}, &InvalidIntervalError{Field: field + "Time", Value: clock, Reason: "is not a HH:MM clock time"}
}

func parseDate(field, value string) (time.Time, error) {
	if err := required(field, value); err != nil {
		return time.Time{}, err
	}
	value = strings.TrimSpace(value)
	d, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, &InvalidIntervalError{Field: field, Value: value, Reason: "is not a YYYY-MM-DD date"}
	}
	return d, nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &InvalidIntervalError{Field: field, Reason: "is required"}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
