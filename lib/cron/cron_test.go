// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"testing"
	"time"
)

func TestParseErrors(t *testing.T) {
	t.Parallel()

	invalid := []struct {
		name       string
		expression string
	}{
		{"too few fields", "* * * *"},
		{"too many fields", "* * * * * *"},
		{"out of range minute", "60 * * * *"},
		{"out of range hour", "* 24 * * *"},
		{"out of range month", "* * * 13 *"},
		{"reversed range", "30-10 * * * *"},
		{"zero step", "*/0 * * * *"},
		{"garbage value", "x * * * *"},
	}

	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse(tc.expression); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", tc.expression)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expression string
		at         time.Time
		want       bool
	}{
		{"* * * * *", time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC), true},
		{"30 2 * * *", time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC), true},
		{"30 2 * * *", time.Date(2026, 3, 14, 2, 31, 0, 0, time.UTC), false},
		{"*/15 * * * *", time.Date(2026, 3, 14, 9, 45, 0, 0, time.UTC), true},
		{"*/15 * * * *", time.Date(2026, 3, 14, 9, 50, 0, 0, time.UTC), false},
		// 2026-03-15 is a Sunday.
		{"0 0 * * 0", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"0 0 * * 1-5", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tc := range tests {
		schedule, err := Parse(tc.expression)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.expression, err)
		}
		if got := schedule.Matches(tc.at); got != tc.want {
			t.Errorf("%q.Matches(%s) = %v, want %v", tc.expression, tc.at, got, tc.want)
		}
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expression string
		after      time.Time
		want       time.Time
	}{
		{
			"*/15 * * * *",
			time.Date(2026, 3, 14, 9, 7, 0, 0, time.UTC),
			time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC),
		},
		{
			"0 3 * * *",
			time.Date(2026, 3, 14, 4, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC),
		},
		{
			// Strictly after: an exact match at t moves to the next slot.
			"0 * * * *",
			time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		schedule, err := Parse(tc.expression)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.expression, err)
		}
		got, err := schedule.Next(tc.after)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("%q.Next(%s) = %s, want %s", tc.expression, tc.after, got, tc.want)
		}
	}
}

func TestNextImpossible(t *testing.T) {
	t.Parallel()

	schedule, err := Parse("0 0 31 2 *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := schedule.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("Next for Feb 31 succeeded, want error")
	}
}
