// internal/core/validation_test.go
package core

import (
	"strings"
	"testing"
)

func TestIsValidTableID(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    bool
		comment string
	}{
		{"valid simple", "census", true, ""},
		{"valid with numbers", "household_2024", true, ""},
		{"valid mixed case", "GeoPoints", true, ""},
		{"valid backup suffix", "census_2024_01_31", true, ""},
		{"valid long (64 chars)", "t" + strings.Repeat("a", 63), true, ""},
		{"invalid empty", "", false, "empty string"},
		{"invalid underscore start", "_census", false, "must start with a letter"},
		{"invalid number start", "1census", false, "must start with a letter"},
		{"invalid hyphen", "my-table", false, "contains hyphen"},
		{"invalid path separator", "table/name", false, "contains path separator"},
		{"invalid reserved", "row_etag", false, "reserved metadata name"},
		{"invalid too long", "t" + strings.Repeat("a", 64), false, "exceeds 64 chars"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := IsValidTableID(tc.input)
			if got != tc.want {
				t.Errorf("IsValidTableID(%q) = %v; want %v. %s", tc.input, got, tc.want, tc.comment)
			}
		})
	}
}

func TestIsValidAppID(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  bool
	}{
		{"default app", "default", true},
		{"dotted", "org.example.app", true},
		{"empty", "", false},
		{"slash", "default/tables", false},
		{"space", "my app", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidAppID(tc.input); got != tc.want {
				t.Errorf("IsValidAppID(%q) = %v; want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseFetchLimit(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"empty uses default", "", DefaultFetchLimit, false},
		{"valid", "200", 200, false},
		{"trimmed", " 75 ", 75, false},
		{"max", "5000", MaxFetchLimit, false},
		{"zero", "0", 0, true},
		{"negative", "-1", 0, true},
		{"too large", "5001", 0, true},
		{"not a number", "fifty", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFetchLimit(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseFetchLimit(%q) error = %v; wantErr %v", tc.input, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseFetchLimit(%q) = %d; want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestRowQuery(t *testing.T) {
	first := RowQuery(50, "")
	if first.Get(FetchLimitParam) != "50" || first.Has(CursorParam) {
		t.Errorf("first page query = %v; want fetchLimit=50 without cursor", first)
	}

	next := RowQuery(0, "abc")
	if next.Get(FetchLimitParam) != "50" || next.Get(CursorParam) != "abc" {
		t.Errorf("follow-up query = %v; want default limit and cursor", next)
	}
}
