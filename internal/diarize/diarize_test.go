package diarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/voxnote/transcriber/internal/transcript"
)

func TestAlignMidpoint(t *testing.T) {
	segments := []transcript.Segment{
		{Index: 0, Text: "first", Start: 0, End: 5},
		{Index: 1, Text: "second", Start: 5, End: 12},
	}
	intervals := []transcript.Interval{
		{Speaker: 1, Label: "A", Start: 0, End: 6},
		{Speaker: 2, Label: "B", Start: 6, End: 15},
	}

	Align(segments, intervals)

	// Midpoint 2.5 falls in [0,6) -> A; midpoint 8.5 falls in [6,15) -> B.
	if segments[0].SpeakerLabel != "A" || segments[0].Speaker != 1 {
		t.Errorf("segment 0 speaker = %d %q", segments[0].Speaker, segments[0].SpeakerLabel)
	}
	if segments[1].SpeakerLabel != "B" || segments[1].Speaker != 2 {
		t.Errorf("segment 1 speaker = %d %q", segments[1].Speaker, segments[1].SpeakerLabel)
	}
}

func TestAlignCarriesForwardOnMiss(t *testing.T) {
	segments := []transcript.Segment{
		{Index: 0, Start: 0, End: 4},
		{Index: 1, Start: 10, End: 20}, // midpoint 15, past every interval
	}
	intervals := []transcript.Interval{
		{Speaker: 1, Label: "A", Start: 0, End: 5},
	}

	Align(segments, intervals)

	if segments[1].Speaker != 1 || segments[1].SpeakerLabel != "A" {
		t.Errorf("miss not carried forward: %d %q", segments[1].Speaker, segments[1].SpeakerLabel)
	}
}

func TestAlignLeadingMissStaysUnlabeled(t *testing.T) {
	segments := []transcript.Segment{
		{Index: 0, Start: 0, End: 2}, // midpoint 1, before every interval
		{Index: 1, Start: 4, End: 8},
	}
	intervals := []transcript.Interval{
		{Speaker: 1, Label: "A", Start: 3, End: 10},
	}

	Align(segments, intervals)

	if segments[0].Speaker != 0 {
		t.Errorf("leading miss got speaker %d", segments[0].Speaker)
	}
	if segments[1].Speaker != 1 {
		t.Errorf("segment 1 speaker = %d", segments[1].Speaker)
	}
}

func TestAlignDoesNotMutateTextOrTimes(t *testing.T) {
	segments := []transcript.Segment{{Index: 0, Text: "keep", Start: 1, End: 3}}
	Align(segments, []transcript.Interval{{Speaker: 1, Label: "A", Start: 0, End: 10}})
	if segments[0].Text != "keep" || segments[0].Start != 1 || segments[0].End != 3 {
		t.Errorf("segment mutated: %+v", segments[0])
	}
}

func TestAlignEmptyIntervalsNoOp(t *testing.T) {
	segments := []transcript.Segment{{Index: 0, Start: 0, End: 5}}
	Align(segments, nil)
	if segments[0].Speaker != 0 || segments[0].SpeakerLabel != "" {
		t.Errorf("no-op align assigned %d %q", segments[0].Speaker, segments[0].SpeakerLabel)
	}
}

func TestClientDiarize(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "rec.raw")
	if err := os.WriteFile(audio, []byte{1, 2, 3, 4}, 0644); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/diarize" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("file part missing: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"segments": []map[string]any{
				{"speaker": "Speaker 1", "start": 0.0, "end": 6.0},
				{"speaker": "Speaker 2", "start": 6.0, "end": 15.0},
				{"speaker": "Speaker 1", "start": 15.0, "end": 20.0},
			},
			"num_speakers": 2,
		})
	}))
	defer srv.Close()

	intervals, err := NewClient(srv.URL).Diarize(context.Background(), audio)
	if err != nil {
		t.Fatalf("diarize: %v", err)
	}
	if len(intervals) != 3 {
		t.Fatalf("intervals = %d, want 3", len(intervals))
	}
	if intervals[0].Speaker != 1 || intervals[1].Speaker != 2 || intervals[2].Speaker != 1 {
		t.Errorf("tags = %d %d %d, want stable first-seen order", intervals[0].Speaker, intervals[1].Speaker, intervals[2].Speaker)
	}
	if intervals[0].Label != "Speaker 1" {
		t.Errorf("label = %q", intervals[0].Label)
	}
}

func TestClientDiarizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "rec.raw")
	if err := os.WriteFile(audio, []byte{1}, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewClient(srv.URL).Diarize(context.Background(), audio); err == nil {
		t.Error("expected error from failing service")
	}
}
