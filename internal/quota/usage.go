package quota

import (
	"math"
	"time"
)

// Unlimited is reported as Remaining for windows whose cap is disabled.
const Unlimited = -1

// Usage is a point-in-time view of a client's quota.
type Usage struct {
	ClientID          string      `json:"client_id"`
	Hourly            WindowUsage `json:"hourly"`
	Daily             WindowUsage `json:"daily"`
	Weekly            WindowUsage `json:"weekly"`
	Cost              CostUsage   `json:"cost"`
	CanSubmit         bool        `json:"can_submit"`
	BlockedBy         string      `json:"blocked_by,omitempty"`
	RetryAfterSeconds int         `json:"retry_after_seconds,omitempty"`
	Warnings          []string    `json:"warnings,omitempty"`
}

// WindowUsage describes one request-count window.
type WindowUsage struct {
	Used            int       `json:"used"`
	Limit           int       `json:"limit"`
	Remaining       int       `json:"remaining"`
	ResetsAt        time.Time `json:"resets_at"`
	ResetsInSeconds int       `json:"resets_in_seconds"`
}

// CostUsage describes the spend budget.
type CostUsage struct {
	SpentUSD        float64   `json:"spent_usd"`
	CapUSD          float64   `json:"cap_usd"`
	RemainingUSD    float64   `json:"remaining_usd"`
	Window          Window    `json:"window"`
	ResetsAt        time.Time `json:"resets_at"`
	ResetsInSeconds int       `json:"resets_in_seconds"`
}

func (l *Ledger) usage(clientID string, r Record, now time.Time) Usage {
	u := Usage{
		ClientID: clientID,
		Hourly:   windowUsage(r.hourCount(now), l.limits.Hourly, hourlyReset(r, now), now),
		Daily:    windowUsage(r.dayCount(), l.limits.Daily, r.DayStart.AddDate(0, 0, 1), now),
		Weekly:   windowUsage(r.weekCount(), l.limits.Weekly, r.WeekStart.AddDate(0, 0, 7), now),
		Cost: CostUsage{
			SpentUSD:        roundUSD(r.Cost),
			CapUSD:          l.limits.CostCap,
			RemainingUSD:    Unlimited,
			Window:          l.limits.CostWindow,
			ResetsAt:        r.costEnd(l.limits.CostWindow),
			ResetsInSeconds: secondsUntil(r.costEnd(l.limits.CostWindow), now),
		},
		CanSubmit: true,
	}
	if l.limits.CostCap > 0 {
		u.Cost.RemainingUSD = roundUSD(math.Max(0, l.limits.CostCap-r.Cost))
	}
	if exceeded := l.check(r, now, l.limits.CostPerRequest); exceeded != nil {
		u.CanSubmit = false
		u.BlockedBy = exceeded.Limit
		u.RetryAfterSeconds = exceeded.RetryAfterSeconds()
	}
	u.Warnings = l.warnings(r, now)
	return u
}

func (l *Ledger) warnings(r Record, now time.Time) []string {
	ratio := l.limits.WarnRatio
	if ratio <= 0 || ratio >= 1 {
		return nil
	}
	var out []string
	near := func(used float64, limit float64) bool {
		return limit > 0 && used >= limit*ratio
	}
	if near(float64(r.hourCount(now)), float64(l.limits.Hourly)) {
		out = append(out, "hourly_limit_near")
	}
	if near(float64(r.dayCount()), float64(l.limits.Daily)) {
		out = append(out, "daily_limit_near")
	}
	if near(float64(r.weekCount()), float64(l.limits.Weekly)) {
		out = append(out, "weekly_limit_near")
	}
	if near(r.Cost, l.limits.CostCap) {
		out = append(out, "cost_cap_near")
	}
	return out
}

// hourlyReset is when the trailing hour next loses a request. An empty
// window reports now.
func hourlyReset(r Record, now time.Time) time.Time {
	if frees, ok := r.hourFrees(now); ok {
		return frees
	}
	return now
}

func windowUsage(used, limit int, resetsAt, now time.Time) WindowUsage {
	w := WindowUsage{
		Used:            used,
		Limit:           limit,
		Remaining:       Unlimited,
		ResetsAt:        resetsAt,
		ResetsInSeconds: secondsUntil(resetsAt, now),
	}
	if limit > 0 {
		w.Remaining = limit - used
		if w.Remaining < 0 {
			w.Remaining = 0
		}
	}
	return w
}

func secondsUntil(t, now time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func roundUSD(v float64) float64 {
	return math.Round(v*10000) / 10000
}
