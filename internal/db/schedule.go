package db

import "time"

// NextRun computes the next due instant strictly after from, based on the
// schedule's frequency and time-of-day fields. The same inputs always yield
// the same instant. Returns the zero time for frequencies that are never
// auto-dispatched (manual, snapshot).
func (s *BackupSchedule) NextRun(from time.Time) time.Time {
	at := time.Date(from.Year(), from.Month(), from.Day(), s.Hour, s.Minute, 0, 0, from.Location())

	switch s.Frequency {
	case FreqDaily:
		if !at.After(from) {
			at = at.AddDate(0, 0, 1)
		}
		return at

	case FreqWeekly:
		// Walk forward to the requested weekday.
		for int(at.Weekday()) != s.DayOfWeek || !at.After(from) {
			at = at.AddDate(0, 0, 1)
		}
		return at

	case FreqMonthly:
		day := s.DayOfMonth
		if day < 1 {
			day = 1
		}
		if day > 28 {
			day = 28 // keep the schedule valid in February
		}
		at = time.Date(from.Year(), from.Month(), day, s.Hour, s.Minute, 0, 0, from.Location())
		if !at.After(from) {
			at = time.Date(from.Year(), from.Month(), 1, s.Hour, s.Minute, 0, 0, from.Location()).
				AddDate(0, 1, day-1)
		}
		return at
	}

	return time.Time{}
}
