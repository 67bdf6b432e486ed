package sanitize

import (
	"regexp"
	"strconv"
	"strings"
)

var durationPattern = regexp.MustCompile(`(?i)^\s*(\d{1,4})\s*(days?|d|weeks?|wks?|w|nights?)?\b`)

// Duration parses text such as "5 days", "2 weeks" or "10" into a day count.
// Text without a leading number is rejected rather than defaulted.
func (v *Validator) Duration(text string) (int, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return 0, invalid(FieldDuration, RuleRequired, "duration is required")
	}
	if len(cleaned) > 50 {
		return 0, invalid(FieldDuration, RuleTooLong, "duration must be at most 50 characters")
	}
	m := durationPattern.FindStringSubmatch(cleaned)
	if m == nil {
		return 0, invalid(FieldDuration, RuleFormat, "unparseable duration %q: expected a number of days or weeks", cleaned)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, invalid(FieldDuration, RuleFormat, "unparseable duration %q", cleaned)
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "w") {
		n *= 7
	}
	return v.Days(n)
}

// Days bounds an already-numeric day count.
func (v *Validator) Days(n int) (int, error) {
	if n < 1 {
		return 0, invalid(FieldDuration, RuleRange, "duration must be at least 1 day")
	}
	if n > v.rules.MaxDurationDays {
		return 0, invalid(FieldDuration, RuleRange, "duration must be at most %d days", v.rules.MaxDurationDays)
	}
	return n, nil
}
