package tracking

import (
	"time"

	"github.com/spaghettifunk/morphix/engine/math"
)

// TrackingReport is the per-target observation carried by a frame. Pose is
// the centre of the detected image and is only meaningful while tracking.
type TrackingReport struct {
	Target string
	State  TrackingState
	Pose   math.Pose
}

// Frame is one session update. A nil *Frame means no frame was ready.
type Frame struct {
	Number    uint64
	Timestamp time.Time
	Reports   []TrackingReport
}

// latestPerTarget keeps the last report of each target, ordered by the
// target's first appearance in the frame.
func latestPerTarget(reports []TrackingReport) []TrackingReport {
	pos := make(map[string]int, len(reports))
	out := make([]TrackingReport, 0, len(reports))
	for _, r := range reports {
		if i, ok := pos[r.Target]; ok {
			out[i] = r
			continue
		}
		pos[r.Target] = len(out)
		out = append(out, r)
	}
	return out
}
