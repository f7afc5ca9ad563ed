// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package timespec converts between nanosecond-precision Unix timestamps
// and the (seconds, nanoseconds) pairs used on the wire by FUSE attribute
// and cache-expiration fields. See wire.go in the kernel package for
// where these pairs are finally serialized.
package timespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timespec is a lossless (seconds, nanoseconds) pair, matching struct
// timespec from <time.h>. Nsec is always in [0, 1e9).
type Timespec struct {
	Sec  int64
	Nsec uint32
}

const nanosPerSecond = int64(time.Second)

// FromNanos converts an integer count of nanoseconds since the Unix epoch
// into a Timespec. It is lossless and is the inverse of Timespec.Nanos.
func FromNanos(ns int64) Timespec {
	sec := ns / nanosPerSecond
	nsec := ns % nanosPerSecond
	if nsec < 0 {
		// Go's % can return a negative remainder; renormalize so Nsec stays
		// in [0, 1e9) as required by the wire format.
		nsec += nanosPerSecond
		sec--
	}
	return Timespec{Sec: sec, Nsec: uint32(nsec)}
}

// Nanos converts back to a single integer nanosecond count. For all
// representable int64 values n, FromNanos(n).Nanos() == n.
func (t Timespec) Nanos() int64 {
	return t.Sec*nanosPerSecond + int64(t.Nsec)
}

// FromTime converts a time.Time to a Timespec, preserving full nanosecond
// precision (time.Time is itself (sec, nsec) internally).
func FromTime(tm time.Time) Timespec {
	return Timespec{Sec: tm.Unix(), Nsec: uint32(tm.Nanosecond())}
}

// Time converts a Timespec back to a time.Time in UTC.
func (t Timespec) Time() time.Time {
	return time.Unix(t.Sec, int64(t.Nsec)).UTC()
}

// secondsHeuristicThreshold is the boundary spec.md uses to disambiguate a
// bare floating-point value as seconds (below) or milliseconds (at or
// above): 10^10 seconds is the year 2286, far past any value a real file
// system clock would produce, while 10^10 milliseconds is only April 1970,
// so any millisecond timestamp from a real clock (about 1.7*10^12 today)
// lands on the milliseconds side.
const secondsHeuristicThreshold = 1e10

// FromFloat applies spec.md's heuristic for a bare floating point
// timestamp: values less than 10^10 are interpreted as seconds (with
// fractional part as sub-second precision), values at or above are
// interpreted as milliseconds.
func FromFloat(v float64) Timespec {
	if v < secondsHeuristicThreshold {
		sec := int64(v)
		frac := v - float64(sec)
		return Timespec{Sec: sec, Nsec: uint32(frac * float64(nanosPerSecond))}
	}

	ms := int64(v)
	return FromNanos(ms * int64(time.Millisecond))
}

// ParseString parses either "<seconds>.<nanoseconds>" (e.g. "1672531200.123456789")
// or an RFC 3339 timestamp. RFC 3339 strings carry at most millisecond
// precision by convention of most producers, so nanoseconds beyond that are
// truncated to whole milliseconds.
func ParseString(s string) (Timespec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timespec{}, fmt.Errorf("timespec: empty string")
	}

	if looksLikeSecondsDotNanos(s) {
		return parseSecondsDotNanos(s)
	}

	tm, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timespec{}, fmt.Errorf("timespec: cannot parse %q as seconds.nanos or RFC3339: %w", s, err)
	}

	ts := FromTime(tm)
	ms := ts.Nanos() / int64(time.Millisecond)
	return FromNanos(ms * int64(time.Millisecond)), nil
}

func looksLikeSecondsDotNanos(s string) bool {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		_, err := strconv.ParseInt(s, 10, 64)
		return err == nil
	}
	intPart, fracPart := s[:dot], s[dot+1:]
	if intPart == "" || fracPart == "" {
		return false
	}
	if _, err := strconv.ParseInt(intPart, 10, 64); err != nil {
		return false
	}
	_, err := strconv.ParseUint(fracPart, 10, 64)
	return err == nil
}

func parseSecondsDotNanos(s string) (Timespec, error) {
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Timespec{}, fmt.Errorf("timespec: invalid integer seconds %q: %w", s, err)
		}
		return Timespec{Sec: sec}, nil
	}

	neg := strings.HasPrefix(s, "-")
	intPart, fracPart := s[:dot], s[dot+1:]

	sec, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Timespec{}, fmt.Errorf("timespec: invalid seconds part %q: %w", intPart, err)
	}

	// Right-pad or truncate the fractional part to exactly 9 digits so
	// "1.5" means 500ms, not 5ns.
	for len(fracPart) < 9 {
		fracPart += "0"
	}
	fracPart = fracPart[:9]

	nsec, err := strconv.ParseUint(fracPart, 10, 32)
	if err != nil {
		return Timespec{}, fmt.Errorf("timespec: invalid nanoseconds part %q: %w", fracPart, err)
	}

	if neg && nsec != 0 {
		// Seconds already carries the sign; nanoseconds must stay positive
		// and the second count is adjusted to keep Nanos() exact.
		return FromNanos(sec*nanosPerSecond - int64(nsec)), nil
	}

	return Timespec{Sec: sec, Nsec: uint32(nsec)}, nil
}

// Parse accepts the heterogeneous timestamp representations spec.md
// requires: an integer nanosecond count (pass-through), a time.Time, a
// float64 (seconds-or-milliseconds heuristic, see FromFloat), or a string
// (seconds.nanos or RFC 3339, see ParseString).
func Parse(v interface{}) (Timespec, error) {
	switch x := v.(type) {
	case Timespec:
		return x, nil
	case time.Time:
		return FromTime(x), nil
	case int64:
		return FromNanos(x), nil
	case int:
		return FromNanos(int64(x)), nil
	case uint64:
		return FromNanos(int64(x)), nil
	case float64:
		return FromFloat(x), nil
	case string:
		return ParseString(x)
	default:
		return Timespec{}, fmt.Errorf("timespec: unsupported input type %T", v)
	}
}

// AddNanos returns t advanced by the given signed number of nanoseconds.
func (t Timespec) AddNanos(ns int64) Timespec {
	return FromNanos(t.Nanos() + ns)
}

// AddMillis returns t advanced by the given signed number of milliseconds.
func (t Timespec) AddMillis(ms int64) Timespec {
	return t.AddNanos(ms * int64(time.Millisecond))
}

// AddSeconds returns t advanced by the given signed number of seconds.
func (t Timespec) AddSeconds(s int64) Timespec {
	return t.AddNanos(s * nanosPerSecond)
}

// DiffNanos returns t.Nanos() - other.Nanos(), preserving full precision;
// prefer this to subtracting two time.Time values when exact nanosecond
// accounting matters (e.g. write-queue and shutdown-phase latency stats).
func (t Timespec) DiffNanos(other Timespec) int64 {
	return t.Nanos() - other.Nanos()
}

// DiffMillis is DiffNanos truncated to whole milliseconds.
func (t Timespec) DiffMillis(other Timespec) int64 {
	return t.DiffNanos(other) / int64(time.Millisecond)
}

// DiffSeconds is DiffNanos truncated to whole seconds.
func (t Timespec) DiffSeconds(other Timespec) int64 {
	return t.DiffNanos(other) / nanosPerSecond
}

// IsZero reports whether t is the zero Timespec (as with fusetypes.Stat's
// Birthtime, where zero means "not supplied").
func (t Timespec) IsZero() bool {
	return t.Sec == 0 && t.Nsec == 0
}
