package metric

import (
	"strings"
	"time"
)

// =============================================================================
// PERIOD - Symbolic date-range token
// =============================================================================

// Period is a symbolic token resolved into an absolute DateRange.
// It carries no data itself; `custom` takes its bounds from the caller.
type Period string

const (
	Period7Days    Period = "7d"
	Period30Days   Period = "30d"
	Period3Months  Period = "3m"
	Period6Months  Period = "6m"
	Period12Months Period = "12m"
	PeriodCustom   Period = "custom"
)

// DefaultPeriod is used by callers that omit the token.
const DefaultPeriod = Period30Days

var periodTTLs = map[Period]time.Duration{
	Period7Days:    3600 * time.Second,
	Period30Days:   7200 * time.Second,
	Period3Months:  14400 * time.Second,
	Period6Months:  28800 * time.Second,
	Period12Months: 86400 * time.Second,
	PeriodCustom:   3600 * time.Second,
}

// Periods returns every period token, custom last.
func Periods() []Period {
	return []Period{Period7Days, Period30Days, Period3Months, Period6Months, Period12Months, PeriodCustom}
}

// Validate is a pure membership check.
func (p Period) Validate() error {
	if _, ok := periodTTLs[p]; !ok {
		return &InvalidPeriodError{Period: string(p)}
	}
	return nil
}

// CacheTTL returns the fixed lifetime for the token. Unknown tokens get the
// shortest lifetime.
func (p Period) CacheTTL() time.Duration {
	if ttl, ok := periodTTLs[p]; ok {
		return ttl
	}
	return periodTTLs[Period7Days]
}

func (p Period) String() string { return string(p) }

// ParsePeriod validates s; an empty string yields DefaultPeriod.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultPeriod, nil
	}
	p := Period(s)
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// =============================================================================
// PERIOD RESOLVER - Symbolic token to absolute range
// =============================================================================

// PeriodResolver maps period tokens to absolute inclusive ranges using the
// injected clock as the default reference date.
type PeriodResolver struct {
	Clock Clock
}

func NewPeriodResolver(clock Clock) *PeriodResolver {
	return &PeriodResolver{Clock: clockOrSystem(clock)}
}

// Resolve resolves p against the resolver clock's current instant.
func (r *PeriodResolver) Resolve(p Period, customFrom, customTo *time.Time) (DateRange, error) {
	return r.ResolveAt(p, customFrom, customTo, clockOrSystem(r.Clock).Now())
}

// ResolveAt resolves p against the reference instant ref.
//
//	7d   [ref-6d, ref]
//	30d  [ref-29d, ref]
//	3m   [(ref-3 months)+1d, ref]
//	6m   [end-of-month(ref-6 months), ref]
//	12m  [end-of-month(ref-1 year), ref]
//
// Lower bounds are start-of-day, upper bounds end-of-day. Custom bounds are
// returned verbatim.
func (r *PeriodResolver) ResolveAt(p Period, customFrom, customTo *time.Time, ref time.Time) (DateRange, error) {
	if err := p.Validate(); err != nil {
		return DateRange{}, err
	}

	to := EndOfDay(ref)
	switch p {
	case Period7Days:
		return DateRange{From: StartOfDay(ref.AddDate(0, 0, -6)), To: to}, nil
	case Period30Days:
		return DateRange{From: StartOfDay(ref.AddDate(0, 0, -29)), To: to}, nil
	case Period3Months:
		return DateRange{From: StartOfDay(ref.AddDate(0, -3, 1)), To: to}, nil
	case Period6Months:
		return DateRange{From: StartOfDay(EndOfMonth(ref.AddDate(0, -6, 0))), To: to}, nil
	case Period12Months:
		return DateRange{From: StartOfDay(EndOfMonth(ref.AddDate(-1, 0, 0))), To: to}, nil
	default:
		return resolveCustom(customFrom, customTo)
	}
}

func resolveCustom(from, to *time.Time) (DateRange, error) {
	if from == nil || to == nil {
		return DateRange{}, &CustomRangeError{From: from, To: to, Reason: "both from and to are required"}
	}
	if from.After(*to) {
		return DateRange{}, &CustomRangeError{From: from, To: to, Reason: "from is after to"}
	}
	return DateRange{From: *from, To: *to}, nil
}
