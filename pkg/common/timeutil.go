package common

import "time"

// HourStart truncates t to the start of its UTC hour.
func HourStart(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// DayStart truncates t to the start of its UTC calendar day.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the start of the UTC week (Monday) containing t.
func WeekStart(t time.Time) time.Time {
	d := DayStart(t)
	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7
	}
	return d.AddDate(0, 0, -(wd - 1))
}

// MonthStart returns the first day of the UTC month containing t.
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
