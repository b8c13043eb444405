package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Shape is one of the fixed repeat choices offered to users.
type Shape string

const (
	ShapeNone     Shape = "none"
	ShapeDaily    Shape = "daily"
	ShapeWeekdays Shape = "weekdays"
	ShapeWeekly   Shape = "weekly"
	ShapeMonthly  Shape = "monthly"
)

// ErrUnsupportedRule is returned for rule strings outside the five shapes.
var ErrUnsupportedRule = errors.New("unsupported recurrence rule")

// CustomLabel is the description of any rule Describe cannot name.
const CustomLabel = "Custom"

// dayCodes is indexed by time.Weekday.
var dayCodes = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// ParseShape maps user input ("weekly", "Weekdays", "") to a Shape.
func ParseShape(s string) (Shape, error) {
	switch Shape(strings.ToLower(strings.TrimSpace(s))) {
	case "", ShapeNone:
		return ShapeNone, nil
	case ShapeDaily:
		return ShapeDaily, nil
	case ShapeWeekdays:
		return ShapeWeekdays, nil
	case ShapeWeekly:
		return ShapeWeekly, nil
	case ShapeMonthly:
		return ShapeMonthly, nil
	}
	return "", fmt.Errorf("unknown repeat %q (want none, daily, weekdays, weekly or monthly)", s)
}

// Rule is a decoded recurrence rule. Weekday is meaningful for ShapeWeekly,
// MonthDay for ShapeMonthly.
type Rule struct {
	Shape    Shape
	Weekday  time.Weekday
	MonthDay int
}

// Encode builds the stored rule string for shape, taking the weekday or
// day-of-month from anchor. ShapeNone encodes to "".
func Encode(shape Shape, anchor Date) (string, error) {
	if anchor.IsZero() && shape != ShapeNone && shape != ShapeDaily && shape != ShapeWeekdays {
		return "", fmt.Errorf("%s rule needs an anchor date", shape)
	}
	switch shape {
	case ShapeNone:
		return "", nil
	case ShapeDaily:
		return "FREQ=DAILY", nil
	case ShapeWeekdays:
		return "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR", nil
	case ShapeWeekly:
		return "FREQ=WEEKLY;BYDAY=" + dayCodes[anchor.Weekday()], nil
	case ShapeMonthly:
		return "FREQ=MONTHLY;BYMONTHDAY=" + strconv.Itoa(anchor.Day()), nil
	}
	return "", fmt.Errorf("unknown shape %q", shape)
}

// String re-encodes the rule in canonical form.
func (r Rule) String() string {
	switch r.Shape {
	case ShapeDaily:
		return "FREQ=DAILY"
	case ShapeWeekdays:
		return "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR"
	case ShapeWeekly:
		return "FREQ=WEEKLY;BYDAY=" + dayCodes[r.Weekday]
	case ShapeMonthly:
		return "FREQ=MONTHLY;BYMONTHDAY=" + strconv.Itoa(r.MonthDay)
	}
	return ""
}

// Parse decodes a stored rule. Keys and values are case-insensitive; the
// RFC 5545 syntax is handled by rrule-go, then narrowed to the supported
// shapes. Anything with COUNT, UNTIL, INTERVAL>1 or extra BY* parts is
// rejected with ErrUnsupportedRule.
func Parse(rule string) (Rule, error) {
	s := strings.ToUpper(strings.TrimSpace(rule))
	s = strings.TrimPrefix(s, "RRULE:")
	if s == "" {
		return Rule{}, fmt.Errorf("%w: empty", ErrUnsupportedRule)
	}
	opt, err := rrule.StrToROption(s)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %v", ErrUnsupportedRule, err)
	}
	if opt.Interval > 1 || opt.Count != 0 || !opt.Until.IsZero() ||
		len(opt.Bysetpos) > 0 || len(opt.Bymonth) > 0 || len(opt.Byyearday) > 0 ||
		len(opt.Byweekno) > 0 || len(opt.Byhour) > 0 || len(opt.Byminute) > 0 ||
		len(opt.Bysecond) > 0 || len(opt.Byeaster) > 0 {
		return Rule{}, fmt.Errorf("%w: %s", ErrUnsupportedRule, rule)
	}

	switch opt.Freq {
	case rrule.DAILY:
		if len(opt.Byweekday) == 0 && len(opt.Bymonthday) == 0 {
			return Rule{Shape: ShapeDaily}, nil
		}
	case rrule.WEEKLY:
		if len(opt.Bymonthday) > 0 {
			break
		}
		days, ok := plainWeekdays(opt.Byweekday)
		if !ok {
			break
		}
		if len(days) == 1 {
			return Rule{Shape: ShapeWeekly, Weekday: days[0]}, nil
		}
		if isMonToFri(days) {
			return Rule{Shape: ShapeWeekdays}, nil
		}
	case rrule.MONTHLY:
		if len(opt.Byweekday) == 0 && len(opt.Bymonthday) == 1 {
			d := opt.Bymonthday[0]
			if d >= 1 && d <= 31 {
				return Rule{Shape: ShapeMonthly, MonthDay: d}, nil
			}
		}
	}
	return Rule{}, fmt.Errorf("%w: %s", ErrUnsupportedRule, rule)
}

// plainWeekdays converts rrule weekdays (0=MO … 6=SU) to time.Weekday and
// rejects ordinal forms such as 2MO.
func plainWeekdays(in []rrule.Weekday) ([]time.Weekday, bool) {
	out := make([]time.Weekday, 0, len(in))
	for i := range in {
		if in[i].N() != 0 {
			return nil, false
		}
		out = append(out, time.Weekday((in[i].Day()+1)%7))
	}
	return out, len(out) > 0
}

func isMonToFri(days []time.Weekday) bool {
	if len(days) != 5 {
		return false
	}
	seen := map[time.Weekday]bool{}
	for _, d := range days {
		if d == time.Saturday || d == time.Sunday || seen[d] {
			return false
		}
		seen[d] = true
	}
	return true
}

// Describe returns a human label for a stored rule, falling back to
// CustomLabel for anything it does not recognise.
func Describe(rule string) string {
	r, err := Parse(rule)
	if err != nil {
		return CustomLabel
	}
	return r.Label()
}

// Label is the display text for a decoded rule.
func (r Rule) Label() string {
	switch r.Shape {
	case ShapeDaily:
		return "Daily"
	case ShapeWeekdays:
		return "Weekdays"
	case ShapeWeekly:
		return "Weekly on " + r.Weekday.String()
	case ShapeMonthly:
		return "Monthly on the " + Ordinal(r.MonthDay)
	case ShapeNone:
		return "None"
	}
	return CustomLabel
}

// Ordinal formats n as 1st, 2nd, 3rd, 4th … with 11th-13th special-cased.
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

// Option is one entry of the repeat picker.
type Option struct {
	Shape Shape  `json:"shape"`
	Label string `json:"label"`
	Rule  string `json:"rule,omitempty"`
}

// Options lists the picker entries for a task anchored at anchor.
func Options(anchor Date) []Option {
	shapes := []Shape{ShapeNone, ShapeDaily, ShapeWeekdays, ShapeWeekly, ShapeMonthly}
	out := make([]Option, 0, len(shapes))
	for _, s := range shapes {
		rule, err := Encode(s, anchor)
		if err != nil {
			continue
		}
		label := "None"
		if rule != "" {
			label = Describe(rule)
		}
		out = append(out, Option{Shape: s, Label: label, Rule: rule})
	}
	return out
}
