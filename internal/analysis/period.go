// Package analysis is the aggregation and budget analysis engine. It buckets
// dated amounts into periods, joins income and expense streams, groups
// expenses by category and derives the budget report with its insights.
//
// Everything here is pure: no I/O, no shared state, safe for concurrent use.
package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

// Granularity selects the width of a period bucket.
type Granularity string

const (
	Day         Granularity = "day"
	Week        Granularity = "week"
	WeekOfMonth Granularity = "week-of-month"
	Month       Granularity = "month"
	Year        Granularity = "year"
)

// ParseGranularity maps a query-string value to a Granularity.
// An empty string selects Month.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return Month, nil
	case Day, Week, WeekOfMonth, Month, Year:
		return g, nil
	default:
		return "", &domain.ErrValidation{
			Field:   "granularity",
			Message: "must be one of day, week, week-of-month, month, year",
		}
	}
}

// PeriodKey is the canonical, sortable identity of a bucket. Start is the
// first day of the period at 00:00 UTC. Week is only set for WeekOfMonth.
type PeriodKey struct {
	Start time.Time
	Week  int
}

// Before orders keys chronologically.
func (k PeriodKey) Before(o PeriodKey) bool {
	if !k.Start.Equal(o.Start) {
		return k.Start.Before(o.Start)
	}
	return k.Week < o.Week
}

type bucketID struct {
	start int64
	week  int
}

func (k PeriodKey) id() bucketID { return bucketID{start: k.Start.Unix(), week: k.Week} }

// LabelFunc renders a display label for a bucket.
type LabelFunc func(PeriodKey) string

// MonthLabel renders "Jan 2024".
func MonthLabel(k PeriodKey) string { return k.Start.Format("Jan 2006") }

// ISOMonthLabel renders "2024-01".
func ISOMonthLabel(k PeriodKey) string { return k.Start.Format("2006-01") }

func dayLabel(k PeriodKey) string  { return k.Start.Format("2006-01-02") }
func yearLabel(k PeriodKey) string { return k.Start.Format("2006") }

var weekOrdinals = [...]string{"First", "Second", "Third", "Fourth", "Fifth"}

func weekOfMonthLabel(k PeriodKey) string {
	return fmt.Sprintf("%s-%s Week", k.Start.Format("2006-01"), weekOrdinals[k.Week-1])
}

// DefaultLabel returns the label renderer used when Bucket is given nil.
func DefaultLabel(g Granularity) LabelFunc {
	switch g {
	case Day, Week:
		return dayLabel
	case WeekOfMonth:
		return weekOfMonthLabel
	case Year:
		return yearLabel
	default:
		return MonthLabel
	}
}

// mondayIndex returns the weekday with Monday=0 ... Sunday=6.
func mondayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// WeekOfMonthIndex returns the 1-based week of the month for t:
// floor((day + weekday(first of month) - 1) / 7) + 1, clamped to [1,5].
func WeekOfMonthIndex(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	idx := (t.Day()+mondayIndex(first)-1)/7 + 1
	if idx < 1 {
		return 1
	}
	if idx > len(weekOrdinals) {
		return len(weekOrdinals)
	}
	return idx
}

// KeyFor returns the bucket key of date d at granularity g. Only the calendar
// date of d is considered; the clock and location are dropped.
func KeyFor(d time.Time, g Granularity) PeriodKey {
	y, m, day := d.Date()
	date := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)

	switch g {
	case Day:
		return PeriodKey{Start: date}
	case Week:
		return PeriodKey{Start: date.AddDate(0, 0, -mondayIndex(date))}
	case WeekOfMonth:
		return PeriodKey{
			Start: time.Date(y, m, 1, 0, 0, 0, 0, time.UTC),
			Week:  WeekOfMonthIndex(date),
		}
	case Year:
		return PeriodKey{Start: time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)}
	default:
		return PeriodKey{Start: time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)}
	}
}

// PeriodTotal is the sum of one stream inside one bucket.
type PeriodTotal struct {
	Key   PeriodKey
	Label string
	Total decimal.Decimal
}

// PeriodFlow is a bucket of the joined income and expense streams.
type PeriodFlow struct {
	Key     PeriodKey
	Label   string
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
}

// Bucket sums records per period. The result holds one entry per distinct
// key, in ascending chronological order regardless of input order. A nil
// label selects DefaultLabel(g).
func Bucket[T domain.DatedAmount](records []T, g Granularity, label LabelFunc) []PeriodTotal {
	if label == nil {
		label = DefaultLabel(g)
	}

	index := make(map[bucketID]int, len(records))
	out := make([]PeriodTotal, 0)
	for _, r := range records {
		key := KeyFor(r.RecordDate(), g)
		if i, ok := index[key.id()]; ok {
			out[i].Total = out[i].Total.Add(r.RecordAmount())
			continue
		}
		index[key.id()] = len(out)
		out = append(out, PeriodTotal{Key: key, Label: label(key), Total: r.RecordAmount()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key.Before(out[j].Key) })
	return out
}

// Join outer-joins two bucketed streams that share a keying scheme. Every
// key present on either side appears once; a missing side contributes zero.
// Ordering follows the chronological key, never the label.
func Join(incomes, expenses []PeriodTotal) []PeriodFlow {
	index := make(map[bucketID]int, len(incomes)+len(expenses))
	out := make([]PeriodFlow, 0, len(incomes)+len(expenses))

	slot := func(p PeriodTotal) *PeriodFlow {
		if i, ok := index[p.Key.id()]; ok {
			return &out[i]
		}
		index[p.Key.id()] = len(out)
		out = append(out, PeriodFlow{Key: p.Key, Label: p.Label, Income: decimal.Zero, Expense: decimal.Zero})
		return &out[len(out)-1]
	}

	for _, p := range incomes {
		f := slot(p)
		f.Income = f.Income.Add(p.Total)
	}
	for _, p := range expenses {
		f := slot(p)
		f.Expense = f.Expense.Add(p.Total)
	}
	for i := range out {
		out[i].Balance = out[i].Income.Sub(out[i].Expense)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key.Before(out[j].Key) })
	return out
}

// CategoryTotal is the expense sum of one category.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
}

// GroupByCategory sums expenses per category name, in first-encounter order.
// Expenses without a category land in domain.UncategorizedName.
func GroupByCategory(expenses []domain.Expense) []CategoryTotal {
	index := make(map[string]int)
	out := make([]CategoryTotal, 0)
	for _, e := range expenses {
		name := e.CategoryName()
		if i, ok := index[name]; ok {
			out[i].Total = out[i].Total.Add(e.Amount)
			continue
		}
		index[name] = len(out)
		out = append(out, CategoryTotal{Category: name, Total: e.Amount})
	}
	return out
}

// Sum totals the amounts of records.
func Sum[T domain.DatedAmount](records []T) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.RecordAmount())
	}
	return total
}
