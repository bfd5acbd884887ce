package fallback

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Row is one result row of an ad hoc query: column name (or positional
// alias) to string value. Lookups are case-insensitive since the query
// endpoint lower-cases column names.
type Row map[string]string

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/2006 3:04 pm",
	"1/2/2006 15:04",
	"1/2/2006",
	"02-Jan-2006",
}

func (r Row) lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
		for col, v := range r {
			if strings.EqualFold(col, k) && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
	}
	return "", false
}

// String returns the first non-empty value among keys, or def.
func (r Row) String(def string, keys ...string) string {
	if v, ok := r.lookup(keys...); ok {
		return v
	}
	return def
}

// Float returns the first value among keys parsed as a number, or 0 when
// absent or unparseable. Thousands separators and a leading currency sign are
// tolerated.
func (r Row) Float(keys ...string) float64 {
	v, ok := r.lookup(keys...)
	if !ok {
		return 0
	}
	v = strings.TrimLeft(strings.ReplaceAll(v, ",", ""), "$")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Time returns the first value among keys parsed as a date, or now when
// absent or unparseable.
func (r Row) Time(now time.Time, keys ...string) time.Time {
	v, ok := r.lookup(keys...)
	if !ok {
		return now
	}
	lv := strings.ToLower(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
		if t, err := time.Parse(layout, lv); err == nil {
			return t
		}
	}
	return now
}
