package analytics

import (
	"fmt"
	"strings"
	"time"
)

// Periodicity represents the size of an aggregation bucket
type Periodicity string

const (
	Daily     Periodicity = "daily"
	Weekly    Periodicity = "weekly"
	Monthly   Periodicity = "monthly"
	Quarterly Periodicity = "quarterly"
	Yearly    Periodicity = "yearly"
)

// Periodicities lists every supported periodicity, finest first.
var Periodicities = []Periodicity{Daily, Weekly, Monthly, Quarterly, Yearly}

// ParsePeriodicity parses a periodicity name, case-insensitively.
func ParsePeriodicity(s string) (Periodicity, error) {
	p := Periodicity(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown periodicity: %q", s)
	}
	return p, nil
}

// Valid reports whether p is one of the supported periodicities.
func (p Periodicity) Valid() bool {
	switch p {
	case Daily, Weekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

func (p Periodicity) String() string { return string(p) }

// DaysPerUnit returns the nominal number of days in one period.
func (p Periodicity) DaysPerUnit() int {
	switch p {
	case Weekly:
		return 7
	case Monthly:
		return 30
	case Quarterly:
		return 91
	case Yearly:
		return 365
	default:
		return 1
	}
}

// PeriodStart returns the first calendar day of the period containing t.
// Weeks start on Monday, matching ISO 8601.
func (p Periodicity) PeriodStart(t time.Time) time.Time {
	d := TruncateToDay(t)
	switch p {
	case Weekly:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case Monthly:
		return TruncateToMonth(d)
	case Quarterly:
		return TruncateToQuarter(d)
	case Yearly:
		return TruncateToYear(d)
	default:
		return d
	}
}

// PeriodKey returns the grouping key of the period containing t.
func (p Periodicity) PeriodKey(t time.Time) string {
	d := TruncateToDay(t)
	switch p {
	case Weekly:
		return p.PeriodStart(d).Format(DateLayout)
	case Monthly:
		return d.Format("2006-01")
	case Quarterly:
		return fmt.Sprintf("%04d-Q%d", d.Year(), Quarter(d))
	case Yearly:
		return d.Format("2006")
	default:
		return d.Format(DateLayout)
	}
}

// Step moves t forward by n periods using calendar arithmetic.
func (p Periodicity) Step(t time.Time, n int) time.Time {
	switch p {
	case Weekly:
		return t.AddDate(0, 0, 7*n)
	case Monthly:
		return t.AddDate(0, n, 0)
	case Quarterly:
		return t.AddDate(0, 3*n, 0)
	case Yearly:
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// Quarter returns the calendar quarter (1-4) of t.
func Quarter(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// TruncateToMonth truncates time to the start of the month
func TruncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// TruncateToQuarter truncates time to the start of the quarter
func TruncateToQuarter(t time.Time) time.Time {
	month := time.Month((Quarter(t)-1)*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, t.Location())
}

// TruncateToYear truncates time to the start of the year
func TruncateToYear(t time.Time) time.Time {
	return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
}
