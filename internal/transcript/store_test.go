package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveAndLoadSegments(t *testing.T) {
	dir := t.TempDir()
	in := []Segment{
		{Index: 0, Text: "First part.", Start: 0, End: 12.5, Speaker: 1, SpeakerLabel: "spk_0", CreatedAt: time.Now().UTC().Truncate(time.Second)},
		{Index: 1, Text: "Second part.", Start: 12.5, End: 30},
	}

	path, err := SaveSegments(dir, "sess-1", in)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "sess-1_segments.json" {
		t.Errorf("path = %s", path)
	}

	out, err := LoadSegments(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("segments = %d", len(out))
	}
	if out[0].Text != "First part." || out[0].Speaker != 1 || out[0].SpeakerLabel != "spk_0" {
		t.Errorf("segment 0 = %+v", out[0])
	}
	if out[1].Start != 12.5 || out[1].End != 30 {
		t.Errorf("segment 1 times = %v %v", out[1].Start, out[1].End)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := SaveChapters(dir, "sess-2", []ChapterMarker{{ID: "c1", TimeSeconds: 0, Title: "Intro"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLoadSegmentsRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSegments(path); err == nil {
		t.Error("expected parse error")
	}
}
