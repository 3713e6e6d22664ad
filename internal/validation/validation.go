package validation

import (
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	"access-service/internal/util"
)

// Field types a Rule may require.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Rule declares the constraints on one payload field. Zero-valued
// constraints are not checked.
type Rule struct {
	Required  bool
	Type      string
	Pattern   *regexp.Regexp
	MaxLength int
	NoMarkup  bool
}

// Rules maps field names to their rule.
type Rules map[string]Rule

// Validate checks payload, a decoded JSON object, against rules and returns
// one message per violated rule. Fields are visited in name order and each
// field's rules in declaration order, so output is stable. A missing
// optional field is skipped entirely.
func Validate(payload map[string]any, rules Rules) []string {
	fields := make([]string, 0, len(rules))
	for name := range rules {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var violations []string
	for _, name := range fields {
		rule := rules[name]
		value, present := payload[name]
		if !present || value == nil {
			if rule.Required {
				violations = append(violations, fmt.Sprintf("%s is required", name))
			}
			continue
		}

		if rule.Type != "" && !hasType(value, rule.Type) {
			violations = append(violations, fmt.Sprintf("%s must be of type %s", name, rule.Type))
			continue
		}

		s, isString := value.(string)
		if !isString {
			continue
		}
		if rule.Pattern != nil && !rule.Pattern.MatchString(s) {
			violations = append(violations, fmt.Sprintf("%s has an invalid format", name))
		}
		if rule.MaxLength > 0 && utf8.RuneCountInString(s) > rule.MaxLength {
			violations = append(violations, fmt.Sprintf("%s must be at most %d characters", name, rule.MaxLength))
		}
		if rule.NoMarkup && util.ContainsMarkup(s) {
			violations = append(violations, fmt.Sprintf("%s must not contain markup", name))
		}
	}
	return violations
}

func hasType(value any, typ string) bool {
	switch typ {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeObject:
		_, ok := value.(map[string]any)
		return ok
	case TypeArray:
		_, ok := value.([]any)
		return ok
	}
	return false
}
