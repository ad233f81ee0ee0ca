package chapters

import (
	"testing"

	"github.com/voxnote/transcriber/internal/transcript"
)

func TestTitle(t *testing.T) {
	cases := []struct {
		name string
		text string
		mode Mode
		want string
	}{
		{"first sentence", "Welcome everyone. Today we cover maps.", ModeLecture, "Welcome everyone"},
		{"question mark", "Any questions? None", ModeMeeting, "Any questions"},
		{"truncated", "This opening sentence just keeps on going without a stop", ModeLecture, "This opening sentenc..."},
		{"empty falls back lecture", "", ModeLecture, "lecture content"},
		{"empty falls back meeting", "   ", ModeMeeting, "meeting content"},
		{"only punctuation", "...", ModeLecture, "lecture content"},
		{"short kept whole", "Agenda review.", ModeMeeting, "Agenda review"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Title(tc.text, tc.mode); got != tc.want {
				t.Errorf("Title(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestMergeShortSegments(t *testing.T) {
	segments := []transcript.Segment{
		{Index: 0, Text: "Quick intro.", Start: 0, End: 10},
		{Index: 1, Text: "Housekeeping notes.", Start: 10, End: 25},
		{Index: 2, Text: "The main topic in depth.", Start: 25, End: 95},
	}

	got := Merge(segments, 60, ModeLecture)
	if len(got) != 2 {
		t.Fatalf("chapters = %d, want 2", len(got))
	}
	if got[0].TimeSeconds != 0 {
		t.Errorf("merged chapter time = %v, want 0", got[0].TimeSeconds)
	}
	if got[0].Title != "Quick intro" {
		t.Errorf("merged chapter title = %q", got[0].Title)
	}
	if got[1].TimeSeconds != 25 {
		t.Errorf("long chapter time = %v, want 25", got[1].TimeSeconds)
	}
	if got[0].ID == "" || got[1].ID == "" || got[0].ID == got[1].ID {
		t.Errorf("chapter ids = %q, %q", got[0].ID, got[1].ID)
	}
}

func TestMergeTrailingShortRun(t *testing.T) {
	segments := []transcript.Segment{
		{Index: 0, Text: "A full section here.", Start: 0, End: 70},
		{Index: 1, Text: "Wrap up.", Start: 70, End: 80},
		{Index: 2, Text: "Thanks.", Start: 80, End: 85},
	}

	got := Merge(segments, 60, ModeMeeting)
	if len(got) != 2 {
		t.Fatalf("chapters = %d, want 2", len(got))
	}
	if got[1].TimeSeconds != 70 {
		t.Errorf("trailing chapter time = %v, want 70", got[1].TimeSeconds)
	}
	if got[1].Title != "Wrap up" {
		t.Errorf("trailing chapter title = %q", got[1].Title)
	}
}

func TestMergeAllLong(t *testing.T) {
	segments := []transcript.Segment{
		{Index: 0, Text: "Part one.", Start: 0, End: 65},
		{Index: 1, Text: "Part two.", Start: 65, End: 130},
	}
	got := Merge(segments, 60, ModeLecture)
	if len(got) != 2 {
		t.Fatalf("chapters = %d, want 2", len(got))
	}
}

func TestMergeEmpty(t *testing.T) {
	if got := Merge(nil, 60, ModeLecture); len(got) != 0 {
		t.Errorf("chapters from empty input = %d", len(got))
	}
}

func TestResolve(t *testing.T) {
	local := []transcript.ChapterMarker{{ID: "l1", Title: "local"}}
	remote := []transcript.ChapterMarker{{ID: "r1", Title: "remote"}}

	if got := Resolve(remote, local); len(got) != 1 || got[0].ID != "r1" {
		t.Errorf("Resolve with remote = %+v", got)
	}
	if got := Resolve(nil, local); len(got) != 1 || got[0].ID != "l1" {
		t.Errorf("Resolve without remote = %+v", got)
	}
}
