// Package conflict decides whether a schedule or maintenance window collides
// with an existing active record for the same vehicle or driver.
//
// All ranges are inclusive on both ends and measured in whole UTC calendar
// days: two ranges overlap iff they share at least one day. A missing end is
// unbounded on that side only.
package conflict

import (
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/fleet-scheduler/internal/models"
)

// DateLayout is the calendar-day format used in requests and messages.
const DateLayout = "2006-01-02"

// ErrEndBeforeStart is returned when a range ends before it starts.
var ErrEndBeforeStart = errors.New("end date is before start date")

// Period is an inclusive range of days. A nil End means open-ended.
type Period struct {
	Start time.Time
	End   *time.Time
}

// Day truncates t to the start of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayPtr is Day for optional dates.
func DayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := Day(*t)
	return &d
}

// NewPeriod normalises both ends to days and checks end >= start.
func NewPeriod(start time.Time, end *time.Time) (Period, error) {
	p := Period{Start: Day(start), End: DayPtr(end)}
	if p.End != nil && p.End.Before(p.Start) {
		return Period{}, ErrEndBeforeStart
	}
	return p, nil
}

// Overlaps reports whether p and q share a day: p.Start <= q.End and
// q.Start <= p.End, with a nil end treated as +infinity.
func (p Period) Overlaps(q Period) bool {
	if q.End != nil && p.Start.After(*q.End) {
		return false
	}
	if p.End != nil && q.Start.After(*p.End) {
		return false
	}
	return true
}

// Overlaps is the symmetric form of Period.Overlaps.
func Overlaps(a, b Period) bool {
	return a.Overlaps(b)
}

// OpenEnded reports whether the period has no end.
func (p Period) OpenEnded() bool {
	return p.End == nil
}

func (p Period) String() string {
	if p.End == nil {
		return fmt.Sprintf("from %s (open-ended)", p.Start.Format(DateLayout))
	}
	return fmt.Sprintf("from %s to %s", p.Start.Format(DateLayout), p.End.Format(DateLayout))
}

// SchedulePeriod returns the day range a schedule occupies.
func SchedulePeriod(s *models.Schedule) Period {
	return Period{Start: Day(s.StartDate), End: DayPtr(s.EndDate)}
}

// MaintenancePeriod returns the day range a maintenance window occupies. An
// uncompleted window without a completion date stays open.
func MaintenancePeriod(m *models.Maintenance) Period {
	return Period{Start: Day(m.MaintenanceDate), End: DayPtr(m.CompletionDate)}
}
