package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	SecondsPerMinute  = 60
	SecondsPerHour    = 60 * SecondsPerMinute
	SecondsPerDay     = 24 * SecondsPerHour
	SecondsPerWeek    = 7 * SecondsPerDay
	SecondsPerYear    = 31557600 // 365.25 days
	SecondsPerMonth   = SecondsPerYear / 12
	SecondsPerDecade  = 10 * SecondsPerYear
	SecondsPerCentury = 100 * SecondsPerYear
)

type unitDef struct {
	name string
	size int64
	abbr string
}

var unitDefs = []unitDef{
	{"century", SecondsPerCentury, "c"},
	{"decade", SecondsPerDecade, "dec"},
	{"year", SecondsPerYear, "y"},
	{"month", SecondsPerMonth, "mo"},
	{"week", SecondsPerWeek, "w"},
	{"day", SecondsPerDay, "d"},
	{"hour", SecondsPerHour, "h"},
	{"minute", SecondsPerMinute, "m"},
	{"second", 1, "s"},
}

var unitAliases = map[string]string{
	"s": "second", "sec": "second", "secs": "second", "second": "second", "seconds": "second",
	"m": "minute", "min": "minute", "mins": "minute", "minute": "minute", "minutes": "minute",
	"h": "hour", "hr": "hour", "hrs": "hour", "hour": "hour", "hours": "hour",
	"d": "day", "day": "day", "days": "day",
	"w": "week", "wk": "week", "wks": "week", "week": "week", "weeks": "week",
	"mo": "month", "mon": "month", "mons": "month", "month": "month", "months": "month",
	"y": "year", "yr": "year", "yrs": "year", "year": "year", "years": "year",
	"dec": "decade", "decade": "decade", "decades": "decade",
	"c": "century", "cent": "century", "century": "century", "centuries": "century",
}

var sizeByName = func() map[string]int64 {
	m := make(map[string]int64, len(unitDefs))
	for _, u := range unitDefs {
		m[u.name] = u.size
	}
	return m
}()

var abbrByName = func() map[string]string {
	m := make(map[string]string, len(unitDefs))
	for _, u := range unitDefs {
		m[u.name] = u.abbr
	}
	return m
}()

// FormatOptions controls FormatDuration output.
type FormatOptions struct {
	MaxParts    int    // limit of non-zero parts, 0 means no limit
	Short       bool   // "2h" instead of "2 hours"
	Conjunction string // joins the last two long-style parts
	Separator   string
	IncludeZero bool
}

func defaultFormatOptions() FormatOptions {
	return FormatOptions{
		Conjunction: " and ",
		Separator:   ", ",
	}
}

func pluralize(name string, qty int64, short bool) string {
	if short {
		return abbrByName[name]
	}
	if qty == 1 {
		return name
	}
	return name + "s"
}

// FormatDuration renders a second count as a human-readable duration,
// largest unit first. Negative input is treated as zero.
func FormatDuration(seconds int64, opts ...FormatOptions) string {
	o := defaultFormatOptions()
	if len(opts) > 0 {
		o = opts[0]
		if o.Conjunction == "" {
			o.Conjunction = " and "
		}
		if o.Separator == "" {
			o.Separator = ", "
		}
	}

	total := seconds
	if total < 0 {
		total = 0
	}

	type part struct {
		name string
		qty  int64
	}
	var parts []part
	for _, u := range unitDefs {
		qty := total / u.size
		total %= u.size
		if qty != 0 || o.IncludeZero {
			parts = append(parts, part{u.name, qty})
		}
	}

	if len(parts) == 0 {
		label := pluralize("second", 0, o.Short)
		if o.Short {
			return "0" + label
		}
		return "0 " + label
	}

	if o.MaxParts > 0 && len(parts) > o.MaxParts {
		parts = parts[:o.MaxParts]
	}

	rendered := make([]string, 0, len(parts))
	for _, p := range parts {
		label := pluralize(p.name, p.qty, o.Short)
		if o.Short {
			rendered = append(rendered, fmt.Sprintf("%d%s", p.qty, label))
		} else {
			rendered = append(rendered, fmt.Sprintf("%d %s", p.qty, label))
		}
	}

	if o.Short || len(rendered) <= 1 {
		return strings.Join(rendered, o.Separator)
	}
	return strings.Join(rendered[:len(rendered)-1], o.Separator) + o.Conjunction + rendered[len(rendered)-1]
}

var (
	pureDigits  = regexp.MustCompile(`^\d+$`)
	durationSeg = regexp.MustCompile(`(\d+)\s*([a-zA-Z]+)?`)
)

// ParseDuration converts a human-readable duration like "1h 30m",
// "2w, 3d" or "1dec 5y" into total seconds. A bare integer is taken
// as seconds.
func ParseDuration(text string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.ReplaceAll(s, ",", " ")
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if pureDigits.MatchString(s) {
		return strconv.ParseInt(s, 10, 64)
	}

	var total int64
	matches := durationSeg.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("invalid duration: %q", text)
	}
	for _, m := range matches {
		qty, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid quantity %q: %w", m[1], err)
		}
		name := "second"
		if m[2] != "" {
			var ok bool
			name, ok = unitAliases[m[2]]
			if !ok {
				return 0, fmt.Errorf("unknown unit: %s", m[2])
			}
		}
		total += qty * sizeByName[name]
	}
	return total, nil
}
