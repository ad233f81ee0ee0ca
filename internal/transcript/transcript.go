package transcript

import "time"

// SpeakerID is an opaque speaker identity assigned by diarization.
// Zero means no speaker has been assigned.
type SpeakerID int

// Segment is a closed, timestamped span of transcript text. Times are
// seconds from the start of the recording.
type Segment struct {
	Index        int       `json:"index"`
	Text         string    `json:"text"`
	Start        float64   `json:"start_time"`
	End          float64   `json:"end_time"`
	Speaker      SpeakerID `json:"speaker_tag,omitempty"`
	SpeakerLabel string    `json:"speaker_label,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s Segment) Duration() float64 { return s.End - s.Start }

func (s Segment) Midpoint() float64 { return (s.Start + s.End) / 2 }

// Word is a single recognized word with its time bounds.
type Word struct {
	Text    string    `json:"word"`
	Start   float64   `json:"start"`
	End     float64   `json:"end"`
	Speaker SpeakerID `json:"speaker_tag,omitempty"`
}

// RealtimeEvent is one transcript event received over the live-session
// socket, normalized from whichever wire schema produced it.
type RealtimeEvent struct {
	SessionID  string
	IsFinal    bool
	Transcript string
	Confidence float64
	Words      []Word
}

// ChapterMarker is a navigation marker derived from one or more segments.
// TimeSeconds equals the start time of the first segment it represents.
type ChapterMarker struct {
	ID          string  `json:"id"`
	TimeSeconds float64 `json:"time_seconds"`
	Title       string  `json:"title"`
}

// Interval is one speaker-labeled time span produced by diarization.
type Interval struct {
	Speaker SpeakerID `json:"speaker_tag"`
	Label   string    `json:"speaker_label"`
	Start   float64   `json:"start_time"`
	End     float64   `json:"end_time"`
}
