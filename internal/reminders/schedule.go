package reminders

import (
	"time"

	"github.com/angelmondragon/rechargecodes-backend/pkg/db/models"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
)

// DaysUntil is the calendar-day distance between now and expiresAt in loc.
// Both instants are truncated to midnight first, so the hour of day never shifts the result.
func DaysUntil(expiresAt, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	return int(calendarDay(expiresAt, loc).Sub(calendarDay(now, loc)) / (24 * time.Hour))
}

// DueMilestone returns the milestone that fires for a purchase at now, if any and if still unsent.
func DueMilestone(p models.Purchase, now time.Time, loc *time.Location) (enums.ReminderMilestone, bool) {
	milestone, ok := enums.MilestoneForDays(DaysUntil(p.ExpiresAt, now, loc))
	if !ok {
		return "", false
	}
	if p.ExpiryReminders.For(milestone).Sent {
		return "", false
	}
	return milestone, true
}

// calendarDay re-anchors the local date at UTC midnight so differences are whole days even across DST.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
