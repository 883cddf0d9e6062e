package enums

import "fmt"

// ReminderMilestone names one of the fixed expiry reminder points.
type ReminderMilestone string

const (
	ReminderThreeDays ReminderMilestone = "reminder_3_days"
	ReminderOneDay    ReminderMilestone = "reminder_1_day"
	ReminderToday     ReminderMilestone = "reminder_today"
)

var validReminderMilestones = []ReminderMilestone{
	ReminderThreeDays,
	ReminderOneDay,
	ReminderToday,
}

// ReminderMilestones returns every milestone, furthest first.
func ReminderMilestones() []ReminderMilestone {
	out := make([]ReminderMilestone, len(validReminderMilestones))
	copy(out, validReminderMilestones)
	return out
}

// String implements fmt.Stringer.
func (m ReminderMilestone) String() string {
	return string(m)
}

// IsValid reports whether the value is a known ReminderMilestone.
func (m ReminderMilestone) IsValid() bool {
	for _, candidate := range validReminderMilestones {
		if candidate == m {
			return true
		}
	}
	return false
}

// DaysBefore is the calendar-day distance to expiry at which the milestone fires.
func (m ReminderMilestone) DaysBefore() int {
	switch m {
	case ReminderThreeDays:
		return 3
	case ReminderOneDay:
		return 1
	default:
		return 0
	}
}

// MilestoneForDays maps a day distance to its milestone, if any.
func MilestoneForDays(days int) (ReminderMilestone, bool) {
	for _, candidate := range validReminderMilestones {
		if candidate.DaysBefore() == days {
			return candidate, true
		}
	}
	return "", false
}

// ParseReminderMilestone converts raw input into a ReminderMilestone.
func ParseReminderMilestone(value string) (ReminderMilestone, error) {
	for _, candidate := range validReminderMilestones {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reminder milestone %q", value)
}
