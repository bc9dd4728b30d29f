package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// cronFieldRanges gives the inclusive [min, max] bounds for each of the
// five standard cron fields, in order: minute, hour, day, month, weekday.
var cronFieldRanges = [5][2]int{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day
	{1, 12}, // month
	{0, 7},  // weekday (0 and 7 both denote Sunday)
}

var cronFieldNames = [5]string{"minute", "hour", "day", "month", "weekday"}

// cronItemPattern matches one comma-separated item of a cron field:
// "*", a literal, a range "a-b", and an optional "/n" step suffix on
// any of those.
var cronItemPattern = regexp.MustCompile(`^(\*|\d+)(-(\d+))?(/(\d+))?$`)

// ValidateCron validates a 5-field cron expression: each field accepts
// "*", a literal, a range ("a-b"), a comma-separated list, and a step
// ("*/n" or "a/n" or "a-b/n"), with field-specific ranges. It is the
// admission gate run before an expression is ever handed to the
// scheduling library.
func ValidateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("cron: expected 5 fields, got %d in %q", len(fields), expr)
	}
	for i, field := range fields {
		lo, hi := cronFieldRanges[i][0], cronFieldRanges[i][1]
		if err := validateCronField(field, lo, hi); err != nil {
			return fmt.Errorf("cron: %s field %q: %w", cronFieldNames[i], field, err)
		}
	}
	return nil
}

func validateCronField(field string, lo, hi int) error {
	for _, item := range strings.Split(field, ",") {
		if item == "" {
			return fmt.Errorf("empty list item")
		}
		m := cronItemPattern.FindStringSubmatch(item)
		if m == nil {
			return fmt.Errorf("malformed item %q", item)
		}
		base, rangeEnd, step := m[1], m[3], m[5]

		var a, b int
		if base == "*" {
			a, b = lo, hi
		} else {
			v, err := strconv.Atoi(base)
			if err != nil || v < lo || v > hi {
				return fmt.Errorf("value %q out of range [%d,%d]", base, lo, hi)
			}
			a = v
			b = v
			if rangeEnd != "" {
				v2, err := strconv.Atoi(rangeEnd)
				if err != nil || v2 < lo || v2 > hi {
					return fmt.Errorf("range end %q out of range [%d,%d]", rangeEnd, lo, hi)
				}
				if v2 < v {
					return fmt.Errorf("range %q-%q is descending", base, rangeEnd)
				}
				b = v2
			}
		}
		_ = a
		_ = b
		if step != "" {
			n, err := strconv.Atoi(step)
			if err != nil || n < 1 {
				return fmt.Errorf("step %q must be a positive integer", step)
			}
		}
	}
	return nil
}
