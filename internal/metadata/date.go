package metadata

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are tried in order. Values without a zone are UTC; observatory
// headers and the Helioviewer API both report UTC without saying so.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02T15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// ParseDate parses an observation timestamp. Fractional seconds are accepted
// after any layout's seconds field.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", s)
}
