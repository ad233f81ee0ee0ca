package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Per-session cache files so a finished recording survives a lost backend.
// Files are written whole via temp-file + rename; readers never see a
// partial array.

func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SaveSegments writes the segment list for a session and returns the path.
func SaveSegments(dir, sessionID string, segments []Segment) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, sessionID+"_segments.json")
	if err := writeJSON(path, segments); err != nil {
		return "", err
	}
	return path, nil
}

// LoadSegments reads a segment list previously written by SaveSegments.
func LoadSegments(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var segments []Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return segments, nil
}

// SaveChapters writes the chapter list for a session and returns the path.
func SaveChapters(dir, sessionID string, chapters []ChapterMarker) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, sessionID+"_chapters.json")
	if err := writeJSON(path, chapters); err != nil {
		return "", err
	}
	return path, nil
}
