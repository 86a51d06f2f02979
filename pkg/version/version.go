package version

import (
	"math"
	"strconv"
)

// Version identifies one published dataset state. Every version minted by
// a producer strictly exceeds every version it minted before.
type Version int64

// None is the sentinel for "no version". It marks the origin of a delta
// chain and is the from-version of every snapshot.
const None Version = math.MinInt64

// IsNone reports whether v is the sentinel.
func (v Version) IsNone() bool {
	return v == None
}

func (v Version) String() string {
	if v == None {
		return "none"
	}
	return strconv.FormatInt(int64(v), 10)
}
