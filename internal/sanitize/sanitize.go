// Package sanitize validates user-supplied trip request fields.
//
// Free text that fails a check is rejected, never rewritten: the itinerary is
// rendered as HTML, and stripping markers out of hostile input is easy to
// bypass.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field names as they appear in request bodies.
const (
	FieldDestination         = "destination"
	FieldDuration            = "duration"
	FieldBudgetLevel         = "budget_level"
	FieldTravelStyle         = "travel_style"
	FieldSpecialRequirements = "special_requirements"
	FieldClientID            = "client_id"
)

// DefaultPatterns flags markup/script injection, SQL statements, path traversal and code evaluation.
var DefaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon(error|load|click|mouseover)\s*=`),
	regexp.MustCompile(`(?i)<\s*(iframe|object|embed|svg)\b`),
	regexp.MustCompile(`(?i)\b(select\s+[\w*,\s]+\s+from|drop\s+(table|database)|insert\s+into|delete\s+from|update\s+\w+\s+set|union\s+(all\s+)?select)\b`),
	regexp.MustCompile(`;\s*--`),
	regexp.MustCompile(`\.\./|\.\.\\`),
	regexp.MustCompile(`(?i)\b(eval|exec)\s*\(`),
}

// Rules configures field limits.
type Rules struct {
	MaxDestinationLength         int
	MaxSpecialRequirementsLength int
	MaxTravelStyleLength         int
	MaxTravelStyles              int
	MaxDurationDays              int
	Patterns                     []*regexp.Regexp
}

// DefaultRules returns the production limits.
func DefaultRules() Rules {
	return Rules{
		MaxDestinationLength:         100,
		MaxSpecialRequirementsLength: 500,
		MaxTravelStyleLength:         40,
		MaxTravelStyles:              5,
		MaxDurationDays:              30,
		Patterns:                     DefaultPatterns,
	}
}

// Validator applies Rules to request fields.
type Validator struct {
	rules Rules
}

// New constructs a Validator; zero-valued limits fall back to DefaultRules.
func New(rules Rules) *Validator {
	def := DefaultRules()
	if rules.MaxDestinationLength <= 0 {
		rules.MaxDestinationLength = def.MaxDestinationLength
	}
	if rules.MaxSpecialRequirementsLength <= 0 {
		rules.MaxSpecialRequirementsLength = def.MaxSpecialRequirementsLength
	}
	if rules.MaxTravelStyleLength <= 0 {
		rules.MaxTravelStyleLength = def.MaxTravelStyleLength
	}
	if rules.MaxTravelStyles <= 0 {
		rules.MaxTravelStyles = def.MaxTravelStyles
	}
	if rules.MaxDurationDays <= 0 {
		rules.MaxDurationDays = def.MaxDurationDays
	}
	if rules.Patterns == nil {
		rules.Patterns = def.Patterns
	}
	return &Validator{rules: rules}
}

// Rules returns the effective limits.
func (v *Validator) Rules() Rules {
	return v.rules
}

// Text trims text and rejects it when empty (if required), longer than maxLen
// runes, or matching a suspicious pattern.
func (v *Validator) Text(field, text string, maxLen int, required bool) (string, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		if required {
			return "", invalid(field, RuleRequired, "%s is required", field)
		}
		return "", nil
	}
	if !utf8.ValidString(cleaned) {
		return "", invalid(field, RuleFormat, "%s must be valid UTF-8 text", field)
	}
	if maxLen > 0 && utf8.RuneCountInString(cleaned) > maxLen {
		return "", invalid(field, RuleTooLong, "%s must be at most %d characters", field, maxLen)
	}
	for _, p := range v.rules.Patterns {
		if p.MatchString(cleaned) {
			return "", invalid(field, RuleSuspicious, "%s contains disallowed content", field)
		}
	}
	return cleaned, nil
}

// Destination validates the required destination field.
func (v *Validator) Destination(text string) (string, error) {
	return v.Text(FieldDestination, text, v.rules.MaxDestinationLength, true)
}

// SpecialRequirements validates the optional free-text notes field.
func (v *Validator) SpecialRequirements(text string) (string, error) {
	return v.Text(FieldSpecialRequirements, text, v.rules.MaxSpecialRequirementsLength, false)
}

// TravelStyles validates each style entry and drops blanks and duplicates.
func (v *Validator) TravelStyles(styles []string) ([]string, error) {
	out := make([]string, 0, len(styles))
	seen := make(map[string]struct{}, len(styles))
	for _, s := range styles {
		cleaned, err := v.Text(FieldTravelStyle, s, v.rules.MaxTravelStyleLength, false)
		if err != nil {
			return nil, err
		}
		if cleaned == "" {
			continue
		}
		key := strings.ToLower(cleaned)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cleaned)
	}
	if len(out) > v.rules.MaxTravelStyles {
		return nil, invalid(FieldTravelStyle, RuleTooMany, "at most %d travel styles are allowed", v.rules.MaxTravelStyles)
	}
	return out, nil
}

var budgetLevels = map[string]string{
	"budget":    "Budget",
	"moderate":  "Moderate",
	"mid-range": "Moderate",
	"midrange":  "Moderate",
	"luxury":    "Luxury",
}

// BudgetLevel normalizes the budget tier; blank means Moderate.
func (v *Validator) BudgetLevel(level string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(level))
	if key == "" {
		return "Moderate", nil
	}
	if canonical, ok := budgetLevels[key]; ok {
		return canonical, nil
	}
	return "", invalid(FieldBudgetLevel, RuleEnum, "budget_level must be one of Budget, Moderate, Luxury")
}

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

// ClientID checks a caller-supplied identity.
func ClientID(id string) error {
	if !clientIDPattern.MatchString(id) {
		return invalid(FieldClientID, RuleFormat, "client_id must be 1-128 characters of letters, digits, '.', '_', ':', '@' or '-'")
	}
	return nil
}
