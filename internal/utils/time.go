package utils

import "time"

// Now returns the current time in UTC; every timestamp the engine writes
// goes through this so Run/Action/JobEvent rows are comparable across
// components regardless of local timezone.
func Now() time.Time {
	return time.Now().UTC()
}

func NowPtr() *time.Time {
	t := Now()
	return &t
}
