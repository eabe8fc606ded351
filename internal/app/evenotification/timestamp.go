package evenotification

import (
	"log/slog"
	"time"

	"github.com/ErikKalkoken/structurewatch/internal/optional"
)

const (
	filetimeThreshold     = 1_000_000_000_000_000 // values at or above are filetimes
	unixSecondsThreshold  = 1_000_000_000_000     // unix values below are seconds
	offsetMinimum         = 1_000_000_000
	offsetMaximum         = 100_000_000_000_000
	filetimeEpochToUnix   = 11_644_473_600 // seconds between 1601-01-01 and 1970-01-01
	maxPlausibleYear      = 2100
	minPlausibleYear      = 2000
	maxRepresentableYear  = 9999
	microsecondsPerSecond = 1_000_000
)

// DecodeFiletime converts a Windows filetime (100 ns ticks since 1601-01-01 UTC)
// into a time and reports whether it was successful.
// Sub-microsecond ticks are truncated.
func DecodeFiletime(v int64) (time.Time, bool) {
	if v <= 0 {
		return time.Time{}, false
	}
	micro := v / 10
	sec := micro/microsecondsPerSecond - filetimeEpochToUnix
	nsec := (micro % microsecondsPerSecond) * 1000
	return checkRange(time.Unix(sec, nsec).UTC())
}

// DecodeTimestamp converts a raw timestamp from a notification into a time
// and reports whether it was successful.
//
// Two encodings are in use: Windows filetimes and Unix timestamps in seconds or milliseconds.
// Values from 10^15 are treated as filetime, smaller values as Unix time.
// Unix values below 10^12 are assumed to be seconds.
// When the Unix interpretation is beyond the year 2100,
// a filetime interpretation within 2000-2100 is preferred.
func DecodeTimestamp(v int64) (time.Time, bool) {
	if v <= 0 {
		return time.Time{}, false
	}
	if v >= filetimeThreshold {
		return DecodeFiletime(v)
	}
	ms := v
	if ms < unixSecondsThreshold {
		ms *= 1000
	}
	t, ok := checkRange(time.UnixMilli(ms).UTC())
	if !ok {
		return time.Time{}, false
	}
	if t.Year() > maxPlausibleYear && ms < filetimeThreshold {
		alt, ok := DecodeFiletime(ms)
		if ok && alt.Year() >= minPlausibleYear && alt.Year() <= maxPlausibleYear {
			return alt, true
		}
	}
	return t, true
}

// resolveTimerEnd returns the end of a reinforcement timer from the raw notification fields.
//
// The timer field is sometimes an offset in milliseconds from the notification's timestamp
// rather than an absolute time. Which encoding a notification uses is not documented,
// so this is a best-effort guess:
// when the timer looks like an offset (10^9 to 10^14) and the direct decoding
// is missing or implausible, the timer is interpreted relative to the notification timestamp.
func resolveTimerEnd(timer int64, notificationTimestamp optional.Optional[int64]) optional.Optional[time.Time] {
	var end optional.Optional[time.Time]
	if t, ok := DecodeTimestamp(timer); ok {
		end.Set(t)
	}
	ts, ok := notificationTimestamp.Value()
	if !ok || timer < offsetMinimum || timer > offsetMaximum {
		return end
	}
	if !end.IsEmpty() && end.ValueOrZero().Year() <= maxPlausibleYear {
		return end
	}
	base, ok := DecodeFiletime(ts)
	if !ok {
		return end
	}
	t, ok := checkRange(time.UnixMilli(base.UnixMilli() + timer).UTC())
	if !ok {
		return end
	}
	slog.Debug("Interpreted timer as offset from notification timestamp", "timer", timer, "timestamp", ts)
	return optional.New(t)
}

func checkRange(t time.Time) (time.Time, bool) {
	if t.Year() > maxRepresentableYear || t.Year() < 1 {
		return time.Time{}, false
	}
	return t, true
}
