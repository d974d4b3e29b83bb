// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dates reduces the date values found in family tree records to
// their canonical persisted form.
//
// Records arrive with dates in several shapes: time.Time values from the
// CLI, full RFC 3339 timestamps written by older clients, the string form of
// a JavaScript Date ("Mon Jan 02 2006 15:04:05 GMT-0700 (...)") found in
// trees created by the original web front-end, and already-canonical
// YYYY-MM-DD strings. All of them normalize to YYYY-MM-DD in the local
// calendar. Anything unparseable normalizes to the empty string, which is
// the persisted form of "no date".
//
// Normalize is idempotent: Normalize(Normalize(v)) == Normalize(v).
package dates

import (
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

// Layout is the canonical persisted date layout.
const Layout = strfmt.RFC3339FullDate

// jsDateLayout matches the output of JavaScript's Date.prototype.toString
// once the trailing parenthesised zone name has been cut off.
const jsDateLayout = "Mon Jan 02 2006 15:04:05 GMT-0700"

// Normalizer converts date values to Layout in a fixed calendar location.
//
// The zero value uses time.Local.
type Normalizer struct {
	// Location is the calendar timestamps are projected into before the
	// date part is taken. Nil means time.Local.
	Location *time.Location
}

// Normalize converts v to its canonical form using time.Local.
//
// Accepted inputs are time.Time, *time.Time, string, strfmt.Date,
// strfmt.DateTime and nil. Named string types must be converted to string
// by the caller. Everything else yields "".
func Normalize(v any) string {
	return Normalizer{}.Normalize(v)
}

// Normalize converts v to its canonical form.
func (n Normalizer) Normalize(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return n.fromTime(t)
	case *time.Time:
		if t == nil {
			return ""
		}
		return n.fromTime(*t)
	case string:
		return n.fromString(t)
	case strfmt.Date:
		return n.fromTime(time.Time(t))
	case strfmt.DateTime:
		return n.fromTime(time.Time(t))
	default:
		return ""
	}
}

// Parse returns the calendar date held by a canonical or raw date string.
func (n Normalizer) Parse(s string) (time.Time, bool) {
	canonical := n.fromString(s)
	if canonical == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(Layout, canonical, n.location())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (n Normalizer) location() *time.Location {
	if n.Location == nil {
		return time.Local
	}
	return n.Location
}

func (n Normalizer) fromTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(n.location()).Format(Layout)
}

func (n Normalizer) fromString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// Calendar dates carry no zone and are never shifted.
	var d strfmt.Date
	if err := d.UnmarshalText([]byte(s)); err == nil {
		return d.String()
	}

	if dt, err := strfmt.ParseDateTime(s); err == nil && !time.Time(dt).IsZero() {
		return n.fromTime(time.Time(dt))
	}

	js := s
	if i := strings.Index(js, " ("); i > 0 {
		js = js[:i]
	}
	if t, err := time.Parse(jsDateLayout, js); err == nil {
		return n.fromTime(t)
	}

	return ""
}
