// Package window derives the active settlement window from the wall clock,
// resolves it to venue token identifiers and drives rollover.
package window

import (
	"fmt"
	"time"
)

// Bucket returns the start of the fixed-length bucket containing now.
func Bucket(now time.Time, length time.Duration) time.Time {
	secs := int64(length / time.Second)
	if secs <= 0 {
		secs = 1
	}
	ts := now.Unix()
	return time.Unix(ts-ts%secs, 0).UTC()
}

// Slug is the deterministic window identifier `<prefix>-<bucket unix>`.
func Slug(prefix string, now time.Time, length time.Duration) string {
	return fmt.Sprintf("%s-%d", prefix, Bucket(now, length).Unix())
}
