package printer

import (
	"fmt"
	"time"
)

// TimeAgo renders a timestamp as a coarse relative age in UTC, e.g.
// "30 seconds ago (UTC)" or "3 days ago (UTC)".
func TimeAgo(t time.Time) string {
	diff := time.Now().UTC().Sub(t.UTC())
	if diff < 0 {
		return "in the future (UTC)"
	}

	units := []struct {
		limit time.Duration
		size  time.Duration
		name  string
	}{
		{limit: time.Minute, size: time.Second, name: "second"},
		{limit: time.Hour, size: time.Minute, name: "minute"},
		{limit: 24 * time.Hour, size: time.Hour, name: "hour"},
	}

	for _, u := range units {
		if diff < u.limit {
			return agoString(int(diff/u.size), u.name)
		}
	}

	return agoString(int(diff/(24*time.Hour)), "day")
}

func agoString(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago (UTC)", unit)
	}
	return fmt.Sprintf("%d %ss ago (UTC)", n, unit)
}

// FormatTimestamp renders an absolute timestamp in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
