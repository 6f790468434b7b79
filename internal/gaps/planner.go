// Package gaps computes the fetch windows needed to bring a symbol's stored
// daily history up to date. Given the earliest and latest stored open times
// it plans at most two disjoint windows: a backfill window before the stored
// range and an update window after it.
package gaps

import (
	"fmt"
	"time"
)

// Day is the candle granularity. All window arithmetic happens in whole days.
const Day = 24 * time.Hour

// DefaultLookbackDays is the historical horizon: five years approximated as
// 5 x 365 days, with no leap-year adjustment.
const DefaultLookbackDays = 5 * 365

// Window is a time range to fetch, always satisfying From < To.
type Window struct {
	From time.Time
	To   time.Time
}

// String implements fmt.Stringer for log output.
func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.From.Format(time.RFC3339), w.To.Format(time.RFC3339))
}

// Duration returns the span covered by the window.
func (w Window) Duration() time.Duration {
	return w.To.Sub(w.From)
}

// GlobalStart returns the start of the lookback horizon relative to now.
func GlobalStart(now time.Time, lookbackDays int) time.Time {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return now.Add(-time.Duration(lookbackDays) * Day)
}

// Plan computes the windows that must be fetched for a symbol whose stored
// open times span [earliest, latest]. Nil pointers mean no rows exist.
//
// Rules, in order:
//  1. No data at all: one full-horizon window {globalStart, now}.
//  2. Earliest stored point lies more than one day after the horizon start:
//     a backfill window {globalStart, earliest - 1 day}.
//  3. Latest stored point lies more than one day behind now:
//     an update window {latest + 1 day, now}.
//
// A symbol with fully covered history yields no windows; that is a no-op,
// not an error. The returned windows never overlap and never include the
// already-covered interval (earliest, latest).
func Plan(earliest, latest *time.Time, now, globalStart time.Time) []Window {
	var windows []Window

	if earliest == nil {
		return []Window{{From: globalStart, To: now}}
	}

	if earliest.After(globalStart.Add(Day)) {
		windows = append(windows, Window{From: globalStart, To: earliest.Add(-Day)})
	}

	if latest != nil && latest.Add(Day).Before(now) {
		windows = append(windows, Window{From: latest.Add(Day), To: now})
	}

	return windows
}
