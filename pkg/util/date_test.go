package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	unix := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-10-10T10:10:10Z", unix},
		{"2024-10-10T10:10:10.5Z", unix.Add(500 * time.Millisecond)},
		{"2024-10-10 10:10:10", unix},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{strconv.FormatInt(unix.Unix(), 10), unix},
	}
	for _, tc := range cases {
		got, ok := ParseTime(tc.in)
		if !ok {
			t.Fatalf("%s: expected ok", tc.in)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%s: got %v want %v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "2023", "yesterday"} {
		if _, ok := ParseTime(bad); ok {
			t.Fatalf("%q: expected failure", bad)
		}
	}
}

func TestParseWindowStart(t *testing.T) {
	cases := map[string]time.Time{
		"2023":       time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		"2021-06":    time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
		"2018-02-15": time.Date(2018, 2, 15, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseWindowStart(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%s: got %v want %v", in, got, want)
		}
	}
	if _, err := ParseWindowStart("last-year"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWindowRange(t *testing.T) {
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	from, to, err := WindowRange("2023-06", end)
	if err != nil {
		t.Fatal(err)
	}
	if !from.Equal(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)) || !to.Equal(end) {
		t.Fatalf("unexpected range %v..%v", from, to)
	}

	if _, _, err := WindowRange("Q3", end); err == nil {
		t.Fatalf("expected error for bad window")
	}

	_, to, err = WindowRange("2001", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if to.Hour() != 0 || to.Location() != time.UTC {
		t.Fatalf("open end should be midnight UTC, got %v", to)
	}
}
