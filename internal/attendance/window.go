package attendance

import (
	"time"
)

const dateLayout = "2006-01-02"

// Window is an inclusive timestamp range covering whole calendar days.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds the window from start 00:00:00.000 to end 23:59:59.999
// in loc. Dates are YYYY-MM-DD.
func NewWindow(start, end string, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	var fields []FieldError
	if start == "" {
		fields = append(fields, FieldError{Field: "start", Error: "required"})
	}
	if end == "" {
		fields = append(fields, FieldError{Field: "end", Error: "required"})
	}
	if len(fields) > 0 {
		return Window{}, Invalid("select a start and end date", fields...)
	}

	s, err := time.ParseInLocation(dateLayout, start, loc)
	if err != nil {
		return Window{}, Invalid("invalid start date", FieldError{Field: "start", Error: "expected YYYY-MM-DD"})
	}
	e, err := time.ParseInLocation(dateLayout, end, loc)
	if err != nil {
		return Window{}, Invalid("invalid end date", FieldError{Field: "end", Error: "expected YYYY-MM-DD"})
	}
	e = time.Date(e.Year(), e.Month(), e.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
	if s.After(e) {
		return Window{}, Invalid("start date cannot be after end date")
	}
	return Window{Start: s, End: e}, nil
}

// StartMillis is the inclusive lower bound in epoch milliseconds.
func (w Window) StartMillis() int64 { return w.Start.UnixMilli() }

// EndMillis is the inclusive upper bound in epoch milliseconds.
func (w Window) EndMillis() int64 { return w.End.UnixMilli() }

// Contains reports whether ts (epoch ms) falls inside the window.
func (w Window) Contains(ts int64) bool {
	return ts >= w.StartMillis() && ts <= w.EndMillis()
}

// StartDate and EndDate return the calendar dates the window was built from.
func (w Window) StartDate() string { return w.Start.Format(dateLayout) }
func (w Window) EndDate() string   { return w.End.Format(dateLayout) }
