// internal/engine/executor/period.go
package executor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativePeriod = regexp.MustCompile(`^(this|current|last|previous|next)\s+(fiscal year|quarter|month|year|week)$`)
	quarterPeriod  = regexp.MustCompile(`^q([1-4])(?:\s+(?:fy)?(\d{2,4}))?$`)
	fiscalPeriod   = regexp.MustCompile(`^fy\s?(\d{2,4})$`)
)

// Period is a half-open [From, To) window of close dates.
type Period struct {
	From time.Time
	To   time.Time
}

// ResolvePeriod turns a date_range entity into concrete bounds relative to
// now. Fiscal years follow the calendar year. Unrecognised text yields false.
func ResolvePeriod(text string, now time.Time) (Period, bool) {
	text = strings.Join(strings.Fields(strings.ToLower(text)), " ")
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if m := relativePeriod.FindStringSubmatch(text); m != nil {
		shift := 0
		switch m[1] {
		case "last", "previous":
			shift = -1
		case "next":
			shift = 1
		}
		switch m[2] {
		case "week":
			offset := (int(today.Weekday()) + 6) % 7
			start := today.AddDate(0, 0, -offset+7*shift)
			return Period{start, start.AddDate(0, 0, 7)}, true
		case "month":
			start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, shift, 0)
			return Period{start, start.AddDate(0, 1, 0)}, true
		case "quarter":
			start := quarterStart(now.Year(), quarterOf(now.Month())).AddDate(0, 3*shift, 0)
			return Period{start, start.AddDate(0, 3, 0)}, true
		default:
			start := time.Date(now.Year()+shift, 1, 1, 0, 0, 0, 0, time.UTC)
			return Period{start, start.AddDate(1, 0, 0)}, true
		}
	}

	if m := quarterPeriod.FindStringSubmatch(text); m != nil {
		q, _ := strconv.Atoi(m[1])
		year := now.Year()
		if m[2] != "" {
			year = expandYear(m[2])
		}
		start := quarterStart(year, q)
		return Period{start, start.AddDate(0, 3, 0)}, true
	}

	if m := fiscalPeriod.FindStringSubmatch(text); m != nil {
		start := time.Date(expandYear(m[1]), 1, 1, 0, 0, 0, 0, time.UTC)
		return Period{start, start.AddDate(1, 0, 0)}, true
	}

	tomorrow := today.AddDate(0, 0, 1)
	switch text {
	case "ytd", "year to date", "year-to-date":
		return Period{time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC), tomorrow}, true
	case "qtd", "quarter to date", "quarter-to-date":
		return Period{quarterStart(now.Year(), quarterOf(now.Month())), tomorrow}, true
	case "mtd":
		return Period{time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), tomorrow}, true
	}
	return Period{}, false
}

func quarterOf(m time.Month) int {
	return (int(m)-1)/3 + 1
}

func quarterStart(year, q int) time.Time {
	return time.Date(year, time.Month(3*(q-1)+1), 1, 0, 0, 0, 0, time.UTC)
}

func expandYear(s string) int {
	y, _ := strconv.Atoi(s)
	if len(s) == 2 {
		y += 2000
	}
	return y
}
