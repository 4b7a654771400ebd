// Package dttm formats and parses the gateway timestamp YYYYMMDDHHmmss.
package dttm

import (
	"fmt"
	"time"
)

// Layout is the Go reference layout for YYYYMMDDHHmmss.
const Layout = "20060102150405"

// Format returns t as YYYYMMDDHHmmss in loc (UTC when nil).
func Format(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(Layout)
}

// Parse parses YYYYMMDDHHmmss in loc (UTC when nil).
func Parse(s string, loc *time.Location) (time.Time, error) {
	if err := Validate(s); err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(Layout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing dttm: %w", err)
	}
	return t, nil
}

// Validate checks that s is 14 digits with month 01..12.
func Validate(s string) error {
	if len(s) != len(Layout) {
		return fmt.Errorf("dttm must be YYYYMMDDHHmmss (14 digits)")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return fmt.Errorf("dttm must be digits: YYYYMMDDHHmmss")
		}
	}
	mm := int(s[4]-'0')*10 + int(s[5]-'0')
	if mm < 1 || mm > 12 {
		return fmt.Errorf("dttm month must be 01..12")
	}
	return nil
}

// IsStale reports whether dttm s, read in loc, lies more than maxAge
// before at.
func IsStale(s string, loc *time.Location, at time.Time, maxAge time.Duration) (bool, error) {
	t, err := Parse(s, loc)
	if err != nil {
		return false, err
	}
	return at.Sub(t) > maxAge, nil
}
