package models

import (
	"fmt"
	"time"
)

// DateRange restricts a search to items posted within the trailing window
// ending now, e.g. {Unit: "month", Amount: 3} for the last three months.
type DateRange struct {
	Unit   string `json:"unit"`
	Amount int    `json:"amount"`
}

// Valid reports whether the range has a known unit and a positive amount.
func (r *DateRange) Valid() bool {
	if r == nil || r.Amount <= 0 {
		return false
	}
	switch normalizeUnit(r.Unit) {
	case "day", "week", "month", "year":
		return true
	}
	return false
}

// CutoffFrom returns the earliest post time included by the range, using
// calendar subtraction from now. Invalid ranges return the zero time, which
// excludes nothing.
func (r *DateRange) CutoffFrom(now time.Time) time.Time {
	if !r.Valid() {
		return time.Time{}
	}
	switch normalizeUnit(r.Unit) {
	case "day":
		return now.AddDate(0, 0, -r.Amount)
	case "week":
		return now.AddDate(0, 0, -7*r.Amount)
	case "month":
		return now.AddDate(0, -r.Amount, 0)
	case "year":
		return now.AddDate(-r.Amount, 0, 0)
	}
	return time.Time{}
}

// normalizeUnit accepts plural forms ("months") since LLM output is loose.
func normalizeUnit(unit string) string {
	switch unit {
	case "days":
		return "day"
	case "weeks":
		return "week"
	case "months":
		return "month"
	case "years":
		return "year"
	}
	return unit
}

// SearchParams is the structured form of a free-text question. Keywords may
// be empty but are never nil; the other fields are optional.
type SearchParams struct {
	Keywords  []string   `json:"keywords"`
	DateRange *DateRange `json:"date_range,omitempty"`
	Authors   []string   `json:"authors,omitempty"`
	Topics    []string   `json:"topics,omitempty"`
}

// Normalize ensures invariants hold after decoding from arbitrary sources:
// keywords non-nil, date range dropped when invalid.
func (p *SearchParams) Normalize() {
	if p.Keywords == nil {
		p.Keywords = []string{}
	}
	if p.DateRange != nil && !p.DateRange.Valid() {
		p.DateRange = nil
	}
}

func (p *SearchParams) String() string {
	return fmt.Sprintf("keywords=%v authors=%v topics=%v range=%v", p.Keywords, p.Authors, p.Topics, p.DateRange)
}
