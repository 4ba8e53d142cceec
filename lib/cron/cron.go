// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression. Use Parse to create one, then
// Matches or Next to evaluate it.
type Schedule struct {
	minute     bitset64
	hour       bitset64
	dayOfMonth bitset64
	month      bitset64
	dayOfWeek  bitset64
}

// bitset64 uses a uint64 as a compact set of integers 0-63.
type bitset64 uint64

func (b bitset64) has(value int) bool { return b&(1<<uint(value)) != 0 }
func (b *bitset64) add(value int)     { *b |= 1 << uint(value) }

// fieldRanges defines the five cron fields in order.
var fieldRanges = []struct {
	name     string
	min, max int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// Parse parses a standard 5-field cron expression. Returns an error
// if the expression is malformed or contains out-of-range values.
func Parse(expression string) (Schedule, error) {
	fields := strings.Fields(expression)
	if len(fields) != len(fieldRanges) {
		return Schedule{}, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}

	var sets [5]bitset64
	for i, field := range fields {
		spec := fieldRanges[i]
		set, err := parseField(field, spec.min, spec.max)
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: %s field: %w", spec.name, err)
		}
		sets[i] = set
	}

	return Schedule{
		minute:     sets[0],
		hour:       sets[1],
		dayOfMonth: sets[2],
		month:      sets[3],
		dayOfWeek:  sets[4],
	}, nil
}

// Matches reports whether t (truncated to the minute, in UTC)
// satisfies the schedule.
func (s Schedule) Matches(t time.Time) bool {
	t = t.UTC()
	return s.minute.has(t.Minute()) &&
		s.hour.has(t.Hour()) &&
		s.dayOfMonth.has(t.Day()) &&
		s.month.has(int(t.Month())) &&
		s.dayOfWeek.has(int(t.Weekday()))
}

// Next returns the earliest time strictly after t that matches the
// schedule, in UTC. Returns an error if no matching time exists
// within 4 years of t (impossible schedules like Feb 31).
func (s Schedule) Next(t time.Time) (time.Time, error) {
	t = t.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		switch {
		case !s.month.has(int(t.Month())):
			// First day of the next month.
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		case !s.dayOfMonth.has(t.Day()) || !s.dayOfWeek.has(int(t.Weekday())):
			// Next day. Wildcard fields have all bits set, so a
			// wildcard day-of-week never blocks a day-of-month match
			// and vice versa.
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
		case !s.hour.has(t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
		case !s.minute.has(t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("cron: no matching time within 4 years of %s", t.Format(time.RFC3339))
}

// parseField parses one comma-separated cron field into a bitset.
func parseField(field string, minimum, maximum int) (bitset64, error) {
	var result bitset64
	for _, term := range strings.Split(field, ",") {
		bits, err := parseTerm(term, minimum, maximum)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	if result == 0 {
		return 0, fmt.Errorf("field %q produces empty set", field)
	}
	return result, nil
}

// parseTerm parses a single term: *, */N, V, V-V, or V-V/N.
func parseTerm(term string, minimum, maximum int) (bitset64, error) {
	rangeExpression, stepExpression, hasStep := strings.Cut(term, "/")

	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepExpression)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q: %w", stepExpression, err)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	start, end := minimum, maximum
	if rangeExpression != "*" {
		startExpression, endExpression, isRange := strings.Cut(rangeExpression, "-")
		value, err := strconv.Atoi(startExpression)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q: %w", startExpression, err)
		}
		start = value
		end = value
		if isRange {
			end, err = strconv.Atoi(endExpression)
			if err != nil {
				return 0, fmt.Errorf("invalid range end %q: %w", endExpression, err)
			}
			if start > end {
				return 0, fmt.Errorf("range start %d > end %d", start, end)
			}
		}
	}

	if start < minimum || end > maximum {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", minimum, maximum, start, end)
	}

	var result bitset64
	for value := start; value <= end; value += step {
		result.add(value)
	}
	return result, nil
}
