package quota

import "time"

// Window selects the period the cost budget resets on.
type Window string

const (
	WindowDay  Window = "day"
	WindowWeek Window = "week"
)

// ParseWindow maps a config value to a Window, defaulting to a daily budget.
func ParseWindow(raw string) Window {
	if raw == string(WindowWeek) {
		return WindowWeek
	}
	return WindowDay
}

// Record is the persisted quota state of one client.
//
// Window counts are derived from Timestamps. The hourly window trails: it
// counts admitted requests younger than one hour. The daily and weekly windows
// count requests at or after their calendar anchor, so advancing an anchor
// zeroes that window before anything reads it. Anchors never move backwards.
type Record struct {
	Timestamps []time.Time `json:"timestamps,omitempty"`
	Cost       float64     `json:"cost"`
	HourStart  time.Time   `json:"hour_start"`
	DayStart   time.Time   `json:"day_start"`
	WeekStart  time.Time   `json:"week_start"`
	CostStart  time.Time   `json:"cost_start"`
}

func (r Record) clone() Record {
	out := r
	if r.Timestamps != nil {
		out.Timestamps = append([]time.Time(nil), r.Timestamps...)
	}
	return out
}

// roll advances every anchor to the window containing now and returns the
// effective time to record against. A clock that steps backwards is clamped
// to the newest anchor so admitted requests always land inside the current windows.
func (r *Record) roll(now time.Time, costWindow Window) time.Time {
	now = now.UTC()
	if now.Before(r.HourStart) {
		now = r.HourStart
	}
	if n := len(r.Timestamps); n > 0 && now.Before(r.Timestamps[n-1]) {
		now = r.Timestamps[n-1]
	}

	r.HourStart = later(r.HourStart, hourStart(now))
	r.DayStart = later(r.DayStart, dayStart(now))
	r.WeekStart = later(r.WeekStart, weekStart(now))

	costAnchor := dayStart(now)
	if costWindow == WindowWeek {
		costAnchor = weekStart(now)
	}
	if costAnchor.After(r.CostStart) {
		r.CostStart = costAnchor
		r.Cost = 0
	}

	r.prune(earlier(r.WeekStart, now.Add(-time.Hour)))
	return now
}

func (r *Record) prune(before time.Time) {
	i := 0
	for i < len(r.Timestamps) && r.Timestamps[i].Before(before) {
		i++
	}
	if i == 0 {
		return
	}
	r.Timestamps = append([]time.Time(nil), r.Timestamps[i:]...)
}

func (r Record) countSince(anchor time.Time) int {
	n := 0
	for i := len(r.Timestamps) - 1; i >= 0; i-- {
		if r.Timestamps[i].Before(anchor) {
			break
		}
		n++
	}
	return n
}

// hourCount counts requests admitted in the hour ending at now.
func (r Record) hourCount(now time.Time) int {
	n := 0
	for i := len(r.Timestamps) - 1; i >= 0; i-- {
		if now.Sub(r.Timestamps[i]) >= time.Hour {
			break
		}
		n++
	}
	return n
}

// hourFrees returns when the oldest request of the trailing hour ages out.
// The second result is false when the trailing hour is empty.
func (r Record) hourFrees(now time.Time) (time.Time, bool) {
	for _, ts := range r.Timestamps {
		if now.Sub(ts) < time.Hour {
			return ts.Add(time.Hour), true
		}
	}
	return time.Time{}, false
}

func (r Record) dayCount() int  { return r.countSince(r.DayStart) }
func (r Record) weekCount() int { return r.countSince(r.WeekStart) }

func (r Record) costEnd(costWindow Window) time.Time {
	if costWindow == WindowWeek {
		return r.CostStart.AddDate(0, 0, 7)
	}
	return r.CostStart.AddDate(0, 0, 1)
}

func hourStart(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// weekStart returns Monday 00:00 UTC of the ISO week containing t.
func weekStart(t time.Time) time.Time {
	day := dayStart(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func earlier(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
