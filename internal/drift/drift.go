package drift

import "math"

// Decision is the corrector's verdict for one local/remote position pair.
type Decision struct {
	Resync bool
	Target float64
}

// ShouldResync compares a follower's position against the leader's last
// broadcast position, both in seconds. Positions are rounded up to whole
// seconds first; a gap of exactly one second is tolerated, anything wider
// forces a resync to the remote position. The tolerance absorbs peer-clock
// and buffering skew without visible stutter.
func ShouldResync(local, remote float64) Decision {
	l := math.Ceil(local)
	r := math.Ceil(remote)

	if l+1 < r || l-1 > r {
		return Decision{Resync: true, Target: remote}
	}

	return Decision{}
}
