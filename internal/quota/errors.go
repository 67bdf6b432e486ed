package quota

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrQuotaExceeded matches any *ExceededError via errors.Is.
var ErrQuotaExceeded = errors.New("quota exceeded")

// ErrContention is returned when a store could not apply an update after repeated conflicts.
var ErrContention = errors.New("quota record contention")

// Limit names, in the order they are checked.
const (
	LimitHourly = "hourly"
	LimitDaily  = "daily"
	LimitWeekly = "weekly"
	LimitCost   = "cost"
)

// ExceededError reports which cap refused a reservation and when it frees up.
type ExceededError struct {
	Limit      string
	Cap        float64
	Used       float64
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s limit (used %g of %g), retry after %s", e.Limit, e.Used, e.Cap, e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrQuotaExceeded) true.
func (e *ExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (e *ExceededError) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Message is the user-facing explanation.
func (e *ExceededError) Message() string {
	switch e.Limit {
	case LimitHourly:
		return fmt.Sprintf("Rate limit exceeded: maximum %d trips per hour. Please try again later.", int(e.Cap))
	case LimitDaily:
		return fmt.Sprintf("Daily limit exceeded: maximum %d trips per day. Please try again tomorrow.", int(e.Cap))
	case LimitWeekly:
		return fmt.Sprintf("Weekly limit exceeded: maximum %d trips per week.", int(e.Cap))
	case LimitCost:
		return fmt.Sprintf("Budget limit reached: $%.2f spent of $%.2f. Please try again after the budget resets.", e.Used, e.Cap)
	default:
		return "Quota exceeded. Please try again later."
	}
}
