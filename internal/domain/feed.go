package domain

import (
	"math"
	"strconv"
	"time"
)

// feedLag is how far behind real time the feed publishes a 5-minute slot.
const feedLag = 5 * time.Minute

// TimeCodeFor returns the YYYYMMDDhhmm code of the latest published 5-minute
// slot at t: five minutes earlier, floored to a five-minute boundary. The code
// is expressed in t's location.
func TimeCodeFor(t time.Time) int64 {
	slot := t.Add(-feedLag)
	slot = slot.Add(-time.Duration(slot.Minute()%5)*time.Minute - time.Duration(slot.Second())*time.Second - time.Duration(slot.Nanosecond()))
	code, _ := strconv.ParseInt(slot.Format("200601021504"), 10, 64)
	return code
}

// Value ranges accepted from the feed. Anything outside becomes nil.
const (
	MaxPlausibleSpeed = 150.0 // km/h
)

// SanitizeSpeed returns v when it is a finite speed in [0, 150] km/h, otherwise nil.
func SanitizeSpeed(v *float64) *float64 {
	if v == nil || !finite(*v) || *v < 0 || *v > MaxPlausibleSpeed {
		return nil
	}
	return v
}

// SanitizeNonNegative returns v when it is finite and not negative, otherwise nil.
func SanitizeNonNegative(v *float64) *float64 {
	if v == nil || !finite(*v) || *v < 0 {
		return nil
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
