package session

import (
	"time"

	"github.com/fyrsmithlabs/dialerd/internal/config"
)

// Hours is the fixed weekly business-hours schedule.
type Hours struct {
	loc      *time.Location
	open     int
	close    int
	weekends bool
}

// NewHours builds the schedule from configuration.
func NewHours(cfg config.HoursConfig) Hours {
	return Hours{
		loc:      cfg.Location(),
		open:     cfg.Open,
		close:    cfg.Close,
		weekends: cfg.Weekends,
	}
}

// Within reports whether t falls inside business hours.
func (h Hours) Within(t time.Time) bool {
	local := t.In(h.loc)
	if !h.weekends {
		switch local.Weekday() {
		case time.Saturday, time.Sunday:
			return false
		}
	}
	hour := local.Hour()
	return hour >= h.open && hour < h.close
}

// NextOpen returns the start of the next business day at the given hour.
// Used for default callback scheduling.
func (h Hours) NextOpen(after time.Time, hour int) time.Time {
	local := after.In(h.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, h.loc).AddDate(0, 0, 1)
	if !h.weekends {
		for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
			next = next.AddDate(0, 0, 1)
		}
	}
	return next
}
