package sfrest

import (
	"strconv"
	"strings"
	"time"

	"github.com/docgen/docgen-sub000/internal/core/entity"
)

// field* helpers pull a typed value out of an already-decoded record
// object, tolerating the field's absence or an unexpected Kind the same
// way entity.Value.Get does — returning the zero value rather than
// erroring, since a missing optional column is routine (most columns
// here are nullable by admin configuration, not by mistake).

func fieldString(obj map[string]entity.Value, name string) string {
	v, ok := obj[name]
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

func fieldBool(obj map[string]entity.Value, name string) bool {
	v, ok := obj[name]
	if !ok {
		return false
	}
	b, _ := v.AsBool()
	return b
}

func fieldInt(obj map[string]entity.Value, name string) int {
	v, ok := obj[name]
	if !ok {
		return 0
	}
	n, _ := v.AsNumber()
	return int(n)
}

// fieldTime parses an ISO-8601/RFC3339 timestamp column, returning the
// zero time.Time when absent, null, or unparsable.
func fieldTime(obj map[string]entity.Value, name string) time.Time {
	s := fieldString(obj, name)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// fieldTimePtr is like fieldTime but distinguishes "absent" from "present
// and in the past" for nullable timestamp columns (LockedUntil__c,
// ScheduledRetryTime__c) whose nil-ness is itself meaningful.
func fieldTimePtr(obj map[string]entity.Value, name string) *time.Time {
	v, ok := obj[name]
	if !ok || v.IsNull() {
		return nil
	}
	s, ok := v.AsString()
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// formatTimeBind renders t for substitution into a SOQL literal via
// Client.Query's :name binding.
func formatTimeBind(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatIntBind(n int) string {
	return strconv.Itoa(n)
}

// soqlQuote escapes a value destined for a quoted SOQL string literal.
// Client.Query performs a raw textual substitution with no quoting of its
// own, so call sites that bind inside '...' are responsible for this.
func soqlQuote(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
