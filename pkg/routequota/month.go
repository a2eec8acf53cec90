package routequota

import "time"

// monthLayout is the persisted month identifier format (YYYY-MM).
const monthLayout = "2006-01"

// MonthKey returns the calendar month identifier of t in loc.
// A nil location uses t's own location.
func MonthKey(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(monthLayout)
}

// NextReset returns the first instant of the month following t in loc,
// i.e. when the current quota month rolls over.
func NextReset(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = t.Location()
	}
	tt := t.In(loc)
	// day=1 of month+1 never overflows, unlike AddDate on the 31st.
	return time.Date(tt.Year(), tt.Month()+1, 1, 0, 0, 0, 0, loc)
}

// parseMonth reports whether s is a well-formed month identifier.
func parseMonth(s string) bool {
	_, err := time.Parse(monthLayout, s)
	return err == nil
}
