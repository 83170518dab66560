// Package locale renders dates and times the way the es-CO pages show them.
package locale

import (
	"fmt"
	"time"
)

var (
	weekdays = [...]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"}
	months   = [...]string{"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sept", "oct", "nov", "dic"}
)

// ISODate is the yyyy-mm-dd form used as the session date key.
func ISODate(t time.Time) string {
	return t.Format("2006-01-02")
}

// ShortDate renders "mié, 02 ene".
func ShortDate(t time.Time) string {
	return fmt.Sprintf("%s, %02d %s", weekdays[t.Weekday()], t.Day(), months[t.Month()-1])
}

// Clock renders a 12-hour "03:04 p. m." time.
func Clock(t time.Time) string {
	return fmt.Sprintf("%02d:%02d %s", hour12(t), t.Minute(), meridiem(t))
}

// DateTime renders "2/1/2024, 3:04:05 p. m.", the long form used for chat timestamps.
func DateTime(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d, %d:%02d:%02d %s",
		t.Day(), int(t.Month()), t.Year(), hour12(t), t.Minute(), t.Second(), meridiem(t))
}

func hour12(t time.Time) int {
	h := t.Hour() % 12
	if h == 0 {
		h = 12
	}
	return h
}

func meridiem(t time.Time) string {
	if t.Hour() < 12 {
		return "a. m."
	}
	return "p. m."
}

// StartOfDay is midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
