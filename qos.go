package mixer

import "sync"

// qosState tracks the latest downstream deadline observation. It has its
// own lock so that feedback events never contend with an in-flight mix
// cycle; a one-frame-stale read during a cycle is acceptable.
type qosState struct {
	mu         sync.Mutex
	proportion float64
	earliest   int64 // running time before which frames are dropped, NoTimestamp = no observation
}

// update records a deadline observation. When we are late (diff > 0) the
// next permitted time is pushed out by twice the timing error plus one
// output frame duration, so the mixer overshoots the deadline instead of
// staying marginally late. When early, the observation time plus diff is
// used directly. An invalid timestamp clears the observation.
func (q *qosState) update(proportion float64, diff, timestamp, frameDuration int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.proportion = proportion
	switch {
	case timestamp == NoTimestamp:
		q.earliest = NoTimestamp
	case diff > 0:
		q.earliest = timestamp + 2*diff
		if frameDuration != NoTimestamp {
			q.earliest += frameDuration
		}
	default:
		q.earliest = timestamp + diff
	}
}

func (q *qosState) read() (proportion float64, earliest int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.proportion, q.earliest
}

func (q *qosState) reset() {
	q.update(0.5, 0, NoTimestamp, NoTimestamp)
}

// shouldProcess decides whether a candidate frame at the given running
// time is rendered or dropped. Frames without a timestamp, or without any
// observation yet, are always processed.
func (q *qosState) shouldProcess(runningTime int64) bool {
	if runningTime == NoTimestamp {
		return true
	}
	_, earliest := q.read()
	if earliest == NoTimestamp {
		return true
	}
	return runningTime > earliest
}
