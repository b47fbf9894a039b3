package common

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{5368709120, "5.0 GB"},
		{-5, "0 B"},
	}
	for _, tc := range cases {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	if !IsValidation(ValidationError("bad input")) {
		t.Error("validation kind lost")
	}
	if !IsNotFound(NotFoundError("missing")) {
		t.Error("not-found kind lost")
	}
	wrapped := errors.Wrap(TransientError(errors.New("busy"), "store"), "outer")
	if !IsTransient(wrapped) {
		t.Error("transient kind should survive wrapping")
	}
	if Kind(errors.New("plain")) != KindUnknown {
		t.Error("plain errors should be unknown kind")
	}
}

func TestTimeBoundaries(t *testing.T) {
	ts := time.Date(2025, 6, 4, 15, 42, 31, 0, time.UTC) // a Wednesday

	if got := HourStart(ts); got != time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC) {
		t.Errorf("HourStart = %v", got)
	}
	if got := DayStart(ts); got != time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC) {
		t.Errorf("DayStart = %v", got)
	}
	if got := WeekStart(ts); got != time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) {
		t.Errorf("WeekStart = %v, want Monday June 2", got)
	}
	if got := MonthStart(ts); got != time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("MonthStart = %v", got)
	}

	// Sunday belongs to the week starting the prior Monday.
	sunday := time.Date(2025, 6, 8, 10, 0, 0, 0, time.UTC)
	if got := WeekStart(sunday); got != time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) {
		t.Errorf("WeekStart(sunday) = %v", got)
	}
}
