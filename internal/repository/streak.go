package repository

import (
	"sort"
	"time"

	"starchart/internal/models"
)

// computeStreak recalculates a child's streak for one behavior type from the event ledger.
// A streak counts consecutive calendar days with at least one logged event; the current
// streak is broken once a full day passes without one.
func computeStreak(events []models.BehaviorEvent, existing models.BehaviorStreak, now time.Time, loc *time.Location) models.BehaviorStreak {
	days := make(map[time.Time]bool)
	for _, e := range events {
		if e.ChildID != existing.ChildID || e.BehaviorTypeID != existing.BehaviorTypeID {
			continue
		}
		days[dayOf(e.Timestamp, loc)] = true
	}

	streak := existing
	streak.CurrentStreak = 0
	streak.LastCompletedDate = nil
	if len(days) == 0 {
		return streak
	}

	ordered := make([]time.Time, 0, len(days))
	for d := range days {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	longest, run := 1, 1
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Equal(ordered[i-1].AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	last := ordered[len(ordered)-1]
	streak.LastCompletedDate = &last
	if !last.Before(dayOf(now, loc).AddDate(0, 0, -1)) {
		streak.CurrentStreak = run
	}
	if longest > streak.LongestStreak {
		streak.LongestStreak = longest
	}
	return streak
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
