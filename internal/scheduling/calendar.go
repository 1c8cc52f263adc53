package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/carebridge/hms/pkg/logger"
	"github.com/carebridge/hms/pkg/types"
)

// Weekly template boundaries. Weekday mornings run 08:00 up to but not
// including 13:00; afternoons resume at 14:00 with the last slot at 16:30.
// Saturdays run 08:00 with the last slot at 12:30. Sundays have no slots.
const (
	slotDuration = 30 * time.Minute

	weekdayMorningStartHour = 8
	weekdayMorningEndHour   = 13
	weekdayAfternoonStart   = 14
	weekdayLastSlotHour     = 16
	weekdayLastSlotMinute   = 30
	saturdayStartHour       = 8
	saturdayLastSlotHour    = 12
	saturdayLastSlotMinute  = 30
)

// SlotCalendar holds the generated bookable slots for one doctor over an
// inclusive date range. Slots are generated once and never regenerated;
// availability is the only mutable state.
type SlotCalendar struct {
	DoctorID string
	Start    time.Time
	End      time.Time

	days map[string][]*types.AppointmentSlot
}

// NewSlotCalendar generates the full slot set for the doctor across
// [start, end] inclusive, following the weekly business-hours template.
func NewSlotCalendar(doctorID string, start, end time.Time, log *logger.Logger) (*SlotCalendar, error) {
	start = midnight(start)
	end = midnight(end)

	if end.Before(start) {
		return nil, types.NewInvalidRangeError(
			fmt.Sprintf("calendar end date %s precedes start date %s",
				end.Format(types.SlotDateFormat), start.Format(types.SlotDateFormat)))
	}

	cal := &SlotCalendar{
		DoctorID: doctorID,
		Start:    start,
		End:      end,
		days:     make(map[string][]*types.AppointmentSlot),
	}

	total := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		slots := generateDaySlots(doctorID, d)
		cal.days[d.Format(types.SlotDateFormat)] = slots
		total += len(slots)
	}

	if log != nil {
		log.WithComponent("calendar").Infof("Generated %d slots for doctor %s between %s and %s",
			total, doctorID, start.Format(types.SlotDateFormat), end.Format(types.SlotDateFormat))
	}

	return cal, nil
}

// generateDaySlots produces the ordered slot list for a single calendar day.
func generateDaySlots(doctorID string, day time.Time) []*types.AppointmentSlot {
	var slots []*types.AppointmentSlot

	appendRange := func(from, until time.Time) {
		for t := from; !t.After(until); t = t.Add(slotDuration) {
			slots = append(slots, &types.AppointmentSlot{
				DoctorID:  doctorID,
				Start:     t,
				Available: true,
			})
		}
	}

	switch day.Weekday() {
	case time.Sunday:
		// closed
	case time.Saturday:
		appendRange(
			at(day, saturdayStartHour, 0),
			at(day, saturdayLastSlotHour, saturdayLastSlotMinute),
		)
	default:
		// 13:00 is the morning/afternoon boundary and is never a slot.
		appendRange(
			at(day, weekdayMorningStartHour, 0),
			at(day, weekdayMorningEndHour, 0).Add(-slotDuration),
		)
		appendRange(
			at(day, weekdayAfternoonStart, 0),
			at(day, weekdayLastSlotHour, weekdayLastSlotMinute),
		)
	}

	return slots
}

// SlotsOn returns the generated slot sequence for a date. Dates outside the
// calendar range and Sundays yield an empty result.
func (c *SlotCalendar) SlotsOn(date time.Time) []*types.AppointmentSlot {
	return c.days[midnight(date).Format(types.SlotDateFormat)]
}

// SlotAt resolves a single slot by its exact start time, or nil when the
// calendar has no slot at that time.
func (c *SlotCalendar) SlotAt(start time.Time) *types.AppointmentSlot {
	for _, slot := range c.SlotsOn(start) {
		if slot.Start.Format(types.SlotTimeFormat) == start.Format(types.SlotTimeFormat) {
			return slot
		}
	}
	return nil
}

// RenderMonth produces a fixed-width calendar grid for one month. A day cell
// shows the day number when at least one slot passes the availability filter,
// "--" when the day has slots but none pass, and is blank when the day has no
// generated slots at all.
func (c *SlotCalendar) RenderMonth(year int, month time.Month, onlyAvailable bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %d - doctor %s\n", month.String(), year, c.DoctorID)
	b.WriteString("Su Mo Tu We Th Fr Sa\n")

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < int(first.Weekday()); i++ {
		b.WriteString("   ")
	}

	for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
		b.WriteString(c.renderDayCell(d, onlyAvailable))
		if d.Weekday() == time.Saturday {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	b.WriteString("\n")

	return b.String()
}

func (c *SlotCalendar) renderDayCell(day time.Time, onlyAvailable bool) string {
	slots := c.SlotsOn(day)
	if len(slots) == 0 {
		return "  "
	}
	if onlyAvailable {
		any := false
		for _, slot := range slots {
			if slot.Available {
				any = true
				break
			}
		}
		if !any {
			return "--"
		}
	}
	return fmt.Sprintf("%2d", day.Day())
}

// midnight truncates a timestamp to the start of its calendar day.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// at returns the given clock time on the given day.
func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
