package diarize

import (
	"github.com/voxnote/transcriber/internal/transcript"
)

// Align assigns a speaker to every closed segment from an out-of-band
// interval list. For each segment the interval containing its temporal
// midpoint wins; a miss carries the most recently assigned speaker
// forward. Segment text and times are never touched.
//
// Segment and interval boundaries come from independent processes; no
// sub-segment splitting is attempted.
func Align(segments []transcript.Segment, intervals []transcript.Interval) {
	if len(segments) == 0 || len(intervals) == 0 {
		return
	}

	var lastSpeaker transcript.SpeakerID
	var lastLabel string

	for i := range segments {
		mid := segments[i].Midpoint()
		assigned := false
		for _, iv := range intervals {
			if mid >= iv.Start && mid < iv.End {
				segments[i].Speaker = iv.Speaker
				segments[i].SpeakerLabel = iv.Label
				lastSpeaker = iv.Speaker
				lastLabel = iv.Label
				assigned = true
				break
			}
		}
		if !assigned && lastSpeaker != 0 {
			segments[i].Speaker = lastSpeaker
			segments[i].SpeakerLabel = lastLabel
		}
	}
}
