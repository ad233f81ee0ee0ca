package notesapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxnote/transcriber/internal/transcript"
)

func TestGenerateChapters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions/sess-1/chapters" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer static-token" {
			t.Errorf("auth = %q", auth)
		}
		var req chapterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Segments) != 2 {
			t.Errorf("segments in request = %d", len(req.Segments))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"chapters": []map[string]any{
				{"time_seconds": 0.0, "title": "Opening"},
				{"time_seconds": 42.5, "title": "Main topic"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "static-token")
	segments := []transcript.Segment{
		{Index: 0, Text: "hello", Start: 0, End: 30},
		{Index: 1, Text: "world", Start: 30, End: 60},
	}

	chapters, err := c.GenerateChapters(context.Background(), "sess-1", segments)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(chapters))
	}
	if chapters[1].TimeSeconds != 42.5 || chapters[1].Title != "Main topic" {
		t.Errorf("chapter 1 = %+v", chapters[1])
	}
	if chapters[0].ID == "" {
		t.Error("chapter missing id")
	}
}

func TestGenerateChaptersEmptyMeansFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"chapters": []any{}})
	}))
	defer srv.Close()

	chapters, err := NewClient(srv.URL, "").GenerateChapters(context.Background(), "s", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if chapters != nil {
		t.Errorf("chapters = %+v, want nil", chapters)
	}
}

func TestGenerateChaptersServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, "").GenerateChapters(context.Background(), "s", nil); err == nil {
		t.Error("expected error from failing backend")
	}
}
