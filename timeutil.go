package mscfb

import "time"

// filetimeEpochOffset is the number of 100-ns ticks between the Windows
// FILETIME epoch (1601-01-01 UTC) and the Unix epoch (1970-01-01 UTC).
const filetimeEpochOffset = 116444736000000000

// filetimeToTime converts a Windows FILETIME (100-ns ticks since
// 1601-01-01 UTC) to a portable time.Time. A zero FILETIME maps to the
// zero time.Time, matching an unset timestamp field.
func filetimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	ticks := int64(ft) - filetimeEpochOffset
	return time.Unix(ticks/10000000, (ticks%10000000)*100).UTC()
}

// timeToFiletime converts a time.Time to a Windows FILETIME. The zero
// time.Time maps to a zero FILETIME.
func timeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	ticks := t.UTC().UnixNano()/100 + filetimeEpochOffset
	if ticks < 0 {
		return 0
	}
	return uint64(ticks)
}
