package hl7v2

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Precision records how much of a DTM value was sent.
type Precision int

const (
	PrecisionYear Precision = iota + 1
	PrecisionMonth
	PrecisionDay
	PrecisionHour
	PrecisionMinute
	PrecisionSecond
)

// DateTime is a parsed HL7 DT/TS/DTM value.
type DateTime struct {
	Time      time.Time
	Precision Precision
	HasZone   bool
}

var dtmLayouts = map[int]struct {
	layout    string
	precision Precision
}{
	4:  {"2006", PrecisionYear},
	6:  {"200601", PrecisionMonth},
	8:  {"20060102", PrecisionDay},
	10: {"2006010215", PrecisionHour},
	12: {"200601021504", PrecisionMinute},
	14: {"20060102150405", PrecisionSecond},
}

// ParseDateTime parses YYYY[MM[DD[HH[MM[SS[.S+]]]]]][+/-ZZZZ]. Values without
// an offset are read as UTC.
func ParseDateTime(s string) (DateTime, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateTime{}, fmt.Errorf("hl7v2: empty timestamp")
	}

	loc := time.UTC
	hasZone := false
	if i := strings.LastIndexAny(s, "+-"); i >= 4 {
		zone := s[i:]
		if len(zone) != 5 {
			return DateTime{}, fmt.Errorf("hl7v2: invalid timezone offset in %q", s)
		}
		hh, err1 := strconv.Atoi(zone[1:3])
		mm, err2 := strconv.Atoi(zone[3:5])
		if err1 != nil || err2 != nil || hh > 14 || mm > 59 {
			return DateTime{}, fmt.Errorf("hl7v2: invalid timezone offset in %q", s)
		}
		offset := hh*3600 + mm*60
		if zone[0] == '-' {
			offset = -offset
		}
		loc = time.FixedZone(zone, offset)
		hasZone = true
		s = s[:i]
	}

	main := s
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		main = s[:dot]
		if dot != 14 {
			return DateTime{}, fmt.Errorf("hl7v2: fractional seconds without seconds in %q", s)
		}
	}
	l, ok := dtmLayouts[len(main)]
	if !ok {
		return DateTime{}, fmt.Errorf("hl7v2: unrecognized timestamp format: %q", s)
	}
	t, err := time.ParseInLocation(l.layout, s, loc)
	if err != nil {
		return DateTime{}, fmt.Errorf("hl7v2: unrecognized timestamp format: %q", s)
	}
	return DateTime{Time: t, Precision: l.precision, HasZone: hasZone}, nil
}

// FHIR renders the value as a FHIR date or dateTime, keeping the precision
// that was sent. Times carry their offset, or Z when none was sent.
func (dt DateTime) FHIR() string {
	switch dt.Precision {
	case PrecisionYear:
		return dt.Time.Format("2006")
	case PrecisionMonth:
		return dt.Time.Format("2006-01")
	case PrecisionDay:
		return dt.Time.Format("2006-01-02")
	}
	if dt.Time.Nanosecond() != 0 {
		return dt.Time.Format("2006-01-02T15:04:05.999999999Z07:00")
	}
	return dt.Time.Format(time.RFC3339)
}

// FHIRDate renders at most day precision.
func (dt DateTime) FHIRDate() string {
	if dt.Precision > PrecisionDay {
		return dt.Time.Format("2006-01-02")
	}
	return dt.FHIR()
}

// FormatFHIR converts a FHIR date, dateTime or instant into an HL7 DTM.
func FormatFHIR(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch len(s) {
	case 4:
		if _, err := time.Parse("2006", s); err == nil {
			return s, nil
		}
	case 7:
		if t, err := time.Parse("2006-01", s); err == nil {
			return t.Format("200601"), nil
		}
	case 10:
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t.Format("20060102"), nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.Format("20060102150405-0700"), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.Format("20060102150405"), nil
	}
	return "", fmt.Errorf("hl7v2: unrecognized FHIR date %q", s)
}
