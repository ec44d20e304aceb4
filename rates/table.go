package rates

import (
	"errors"

	"github.com/shopspring/decimal"
)

// DefaultBaseCurrency is the currency every feed rate is expressed against
const DefaultBaseCurrency = "UAH"

var (
	ErrUnknownCurrency = errors.New("unknown currency code")
	ErrZeroRate        = errors.New("division by zero rate")
)

// Entry is a single currency row from the feed
type Entry struct {
	Code         string
	Rate         decimal.Decimal
	NumericCode  string
	Name         string
	ExchangeDate string
}

// Table is an immutable snapshot of code -> rate for one session.
// The base currency is always present with rate exactly 1.
type Table struct {
	base    string
	entries []Entry
	index   map[string]int
}

// NewTable builds a table from parsed entries. The first entry for a code
// wins; the base currency is appended only when the feed did not carry it.
func NewTable(base string, entries []Entry) *Table {
	t := &Table{
		base:    base,
		entries: make([]Entry, 0, len(entries)+1),
		index:   make(map[string]int, len(entries)+1),
	}

	for _, e := range entries {
		if e.Code == "" {
			continue
		}
		if _, exists := t.index[e.Code]; exists {
			continue
		}
		t.index[e.Code] = len(t.entries)
		t.entries = append(t.entries, e)
	}

	if _, exists := t.index[base]; !exists {
		t.index[base] = len(t.entries)
		t.entries = append(t.entries, Entry{Code: base, Rate: decimal.NewFromInt(1)})
	}

	return t
}

// Base returns the base currency code
func (t *Table) Base() string { return t.base }

// Len returns the number of currencies, base included
func (t *Table) Len() int { return len(t.entries) }

// Rate looks up the rate for a code
func (t *Table) Rate(code string) (decimal.Decimal, bool) {
	i, ok := t.index[code]
	if !ok {
		return decimal.Zero, false
	}
	return t.entries[i].Rate, true
}

// Entries returns a copy of the table rows in feed order
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Codes returns the currency codes in feed order
func (t *Table) Codes() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Code
	}
	return out
}

// Exchange returns how many units of `to` one unit of `from` is worth.
// A zero result is always returned together with a non-nil error.
func (t *Table) Exchange(from, to string) (decimal.Decimal, error) {
	fromRate, okFrom := t.Rate(from)
	toRate, okTo := t.Rate(to)
	if !okFrom || !okTo {
		return decimal.Zero, ErrUnknownCurrency
	}

	switch {
	case from == t.base && to == t.base:
		return decimal.NewFromInt(1), nil
	case from == t.base:
		return divide(decimal.NewFromInt(1), toRate)
	case to == t.base:
		return fromRate, nil
	default:
		return divide(fromRate, toRate)
	}
}

func divide(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrZeroRate
	}
	return a.Div(b), nil
}
