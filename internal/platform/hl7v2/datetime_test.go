package hl7v2

import "testing"

func TestParseDateTime_Precision(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1970", "1970"},
		{"197001", "1970-01"},
		{"19700101", "1970-01-01"},
		{"199904140038", "1999-04-14T00:38:00Z"},
		{"20240115143025", "2024-01-15T14:30:25Z"},
		{"20240115143025-0500", "2024-01-15T14:30:25-05:00"},
		{"20240115143025.25+0130", "2024-01-15T14:30:25.25+01:30"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			dt, err := ParseDateTime(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := dt.FHIR(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseDateTime_Invalid(t *testing.T) {
	for _, in := range []string{"", "NOTADATE", "19701", "20241340", "20240101+05", "2024.5"} {
		if _, err := ParseDateTime(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestDateTime_FHIRDate(t *testing.T) {
	dt, _ := ParseDateTime("20240115143025")
	if got := dt.FHIRDate(); got != "2024-01-15" {
		t.Errorf("expected 2024-01-15, got %q", got)
	}
}

func TestFormatFHIR(t *testing.T) {
	tests := map[string]string{
		"1970":                      "1970",
		"1970-01":                   "197001",
		"1970-01-01":                "19700101",
		"2024-01-15T14:30:25Z":      "20240115143025+0000",
		"2024-01-15T14:30:25-05:00": "20240115143025-0500",
		"2024-01-15T14:30:25":       "20240115143025",
	}
	for in, want := range tests {
		got, err := FormatFHIR(in)
		if err != nil {
			t.Errorf("FormatFHIR(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("FormatFHIR(%q): expected %q, got %q", in, want, got)
		}
	}
	if _, err := FormatFHIR("yesterday"); err == nil {
		t.Error("expected error for free text")
	}
}
