package xgoesi

import (
	"time"
)

// Daily downtime of the game servers as offset from midnight UTC.
// ESI is unreliable during this period.
const (
	dailyDowntimeStart  = 11 * time.Hour
	dailyDowntimeFinish = 11*time.Hour + 15*time.Minute
)

var (
	TimeNow = time.Now
)

// IsDailyDowntime reports whether the daily downtime is currently planned to happen.
func IsDailyDowntime() bool {
	return DailyDowntimeCountdown() > 0
}

// DailyDowntime returns today's daily downtime period.
func DailyDowntime() (start, finish time.Time) {
	return calcTimePeriod(TimeNow(), dailyDowntimeStart, dailyDowntimeFinish)
}

// DailyDowntimeCountdown returns the time remaining until the end of the daily downtime.
// It returns 0 outside of the downtime.
func DailyDowntimeCountdown() time.Duration {
	now := TimeNow()
	start, finish := calcTimePeriod(now, dailyDowntimeStart, dailyDowntimeFinish)
	if !isInPeriod(now, start, finish) {
		return 0
	}
	return max(finish.Sub(now), time.Second)
}

func isInPeriod(t, start, finish time.Time) bool {
	return !t.Before(start) && !t.After(finish)
}

func calcTimePeriod(day time.Time, start, finish time.Duration) (time.Time, time.Time) {
	midnight := day.UTC().Truncate(24 * time.Hour)
	return midnight.Add(start), midnight.Add(finish)
}
