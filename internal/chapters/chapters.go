package chapters

import (
	"strings"

	"github.com/rs/xid"

	"github.com/voxnote/transcriber/internal/transcript"
)

// Pure derivation of navigation chapters from a closed segment list.
// Runs strictly after a recording stops, over an immutable snapshot.

const (
	maxTitleRunes = 20
	ellipsis      = "..."

	// DefaultMinDuration is the smallest segment duration that earns its
	// own chapter; shorter neighbors are merged.
	DefaultMinDuration = 60.0
)

// Mode selects the fallback label for untitleable content.
type Mode string

const (
	ModeLecture Mode = "lecture"
	ModeMeeting Mode = "meeting"
)

func fallbackTitle(mode Mode) string {
	if mode == ModeMeeting {
		return "meeting content"
	}
	return "lecture content"
}

// Title derives a short navigation title: text up to the first
// sentence-terminating punctuation mark, truncated to a fixed length.
func Title(text string, mode Mode) string {
	t := strings.TrimSpace(text)
	if i := strings.IndexAny(t, ".!?"); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(t)
	if t == "" {
		return fallbackTitle(mode)
	}
	r := []rune(t)
	if len(r) > maxTitleRunes {
		return string(r[:maxTitleRunes]) + ellipsis
	}
	return t
}

// Merge derives one chapter per long segment and folds runs of short
// consecutive segments into a single synthetic chapter. A segment is long
// when its own duration meets minDuration.
func Merge(segments []transcript.Segment, minDuration float64, mode Mode) []transcript.ChapterMarker {
	if minDuration <= 0 {
		minDuration = DefaultMinDuration
	}

	var out []transcript.ChapterMarker
	var pending []transcript.Segment

	flush := func() {
		if len(pending) == 0 {
			return
		}
		texts := make([]string, 0, len(pending))
		for _, s := range pending {
			if s.Text != "" {
				texts = append(texts, s.Text)
			}
		}
		out = append(out, transcript.ChapterMarker{
			ID:          xid.New().String(),
			TimeSeconds: pending[0].Start,
			Title:       Title(strings.Join(texts, " "), mode),
		})
		pending = pending[:0]
	}

	for _, s := range segments {
		if s.Duration() >= minDuration {
			flush()
			out = append(out, transcript.ChapterMarker{
				ID:          xid.New().String(),
				TimeSeconds: s.Start,
				Title:       Title(s.Text, mode),
			})
			continue
		}
		pending = append(pending, s)
	}
	flush()
	return out
}

// Resolve prefers backend-generated chapters: a non-empty remote list
// fully replaces the local heuristic output, never merges with it.
func Resolve(remote, local []transcript.ChapterMarker) []transcript.ChapterMarker {
	if len(remote) > 0 {
		return remote
	}
	return local
}
