package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/voxnote/transcriber/internal/transcript"
)

// RecordingLog writes structured JSONL recording events to a file.
type RecordingLog struct {
	mu   sync.Mutex
	file *os.File
}

type logRecord struct {
	Timestamp string            `json:"ts"`
	Event     string            `json:"event"`
	SessionID string            `json:"session_id"`
	Index     int               `json:"segment_index,omitempty"`
	Text      string            `json:"text,omitempty"`
	Start     float64           `json:"start_time,omitempty"`
	End       float64           `json:"end_time,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewRecordingLog creates a logger under outputDir. Filename is timestamp
// plus a short session id.
func NewRecordingLog(outputDir, sessionID string, started time.Time) (*RecordingLog, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	shortID := sessionID
	if len(sessionID) > 8 {
		shortID = sessionID[:8]
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_recording_%s.jsonl", started.Format("20060102_150405"), shortID))
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &RecordingLog{file: f}, nil
}

func (rl *RecordingLog) Close() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.file != nil {
		err := rl.file.Close()
		rl.file = nil
		return err
	}
	return nil
}

func (rl *RecordingLog) write(rec logRecord) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.file == nil {
		return
	}
	rec.Text = strings.TrimSpace(rec.Text)
	enc := json.NewEncoder(rl.file)
	_ = enc.Encode(rec)
}

func (rl *RecordingLog) LogRecordingStart(sessionID, mode, sessionType string, started time.Time) {
	rl.write(logRecord{Timestamp: started.Format(time.RFC3339Nano), Event: "recording_start", SessionID: sessionID, Details: map[string]string{"mode": mode, "session_type": sessionType}})
}

func (rl *RecordingLog) LogRecordingEnd(sessionID, reason string, ended time.Time) {
	rl.write(logRecord{Timestamp: ended.Format(time.RFC3339Nano), Event: "recording_end", SessionID: sessionID, Details: map[string]string{"reason": reason}})
}

func (rl *RecordingLog) LogSegmentClosed(sessionID string, seg transcript.Segment) {
	rl.write(logRecord{Timestamp: time.Now().Format(time.RFC3339Nano), Event: "segment_closed", SessionID: sessionID, Index: seg.Index, Text: seg.Text, Start: seg.Start, End: seg.End})
}

func (rl *RecordingLog) LogDiarization(sessionID string, intervals, labeled int) {
	rl.write(logRecord{Timestamp: time.Now().Format(time.RFC3339Nano), Event: "diarization_applied", SessionID: sessionID, Details: map[string]string{
		"intervals": fmt.Sprintf("%d", intervals),
		"segments":  fmt.Sprintf("%d", labeled),
	}})
}

func (rl *RecordingLog) LogChapters(sessionID, source string, count int) {
	rl.write(logRecord{Timestamp: time.Now().Format(time.RFC3339Nano), Event: "chapters_generated", SessionID: sessionID, Details: map[string]string{
		"source": source,
		"count":  fmt.Sprintf("%d", count),
	}})
}

func (rl *RecordingLog) LogError(sessionID, stage string, err error) {
	rl.write(logRecord{Timestamp: time.Now().Format(time.RFC3339Nano), Event: "error", SessionID: sessionID, Details: map[string]string{"stage": stage, "error": err.Error()}})
}
