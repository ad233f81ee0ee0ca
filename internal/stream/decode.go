package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"

	"github.com/voxnote/transcriber/internal/transcript"
)

// Two wire schemas are in the field. The primary one is authoritative;
// the legacy loose-keyed one is tried only after a primary miss, and both
// normalize into the same transcript.RealtimeEvent.

type primaryFrame struct {
	Event      string        `json:"event"`
	SessionID  string        `json:"sessionId"`
	Transcript string        `json:"transcript"`
	Confidence float64       `json:"confidence"`
	Words      []primaryWord `json:"words"`
	Message    string        `json:"message"`
}

type primaryWord struct {
	Word    string  `json:"word"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker int     `json:"speakerTag"`
}

type legacyFrame struct {
	Event      string       `json:"event"`
	SessionID  string       `json:"session_id"`
	Text       string       `json:"text"`
	Transcript string       `json:"transcript"`
	Confidence float64      `json:"confidence"`
	Speaker    int          `json:"speaker"`
	SpeakerTag int          `json:"speakerTag"`
	Words      []legacyWord `json:"words"`
}

type legacyWord struct {
	Word       string  `json:"word"`
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Speaker    int     `json:"speaker"`
	SpeakerTag int     `json:"speakerTag"`
}

// decodeFrame returns the normalized event, nil for an app-level error
// frame, or an error when both schemas miss.
func decodeFrame(data []byte) (*transcript.RealtimeEvent, error) {
	if ev, err := decodePrimary(data); err == nil {
		return ev, nil
	}
	return decodeLegacy(data)
}

func decodePrimary(data []byte) (*transcript.RealtimeEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var f primaryFrame
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	switch f.Event {
	case "partial", "final":
	case "error":
		log.Printf("stream: server error: %s", f.Message)
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown event %q", f.Event)
	}

	ev := &transcript.RealtimeEvent{
		SessionID:  f.SessionID,
		IsFinal:    f.Event == "final",
		Transcript: f.Transcript,
		Confidence: f.Confidence,
	}
	for _, w := range f.Words {
		ev.Words = append(ev.Words, transcript.Word{
			Text:    w.Word,
			Start:   w.Start,
			End:     w.End,
			Speaker: transcript.SpeakerID(w.Speaker),
		})
	}
	return ev, nil
}

func decodeLegacy(data []byte) (*transcript.RealtimeEvent, error) {
	var f legacyFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("legacy decode: %w", err)
	}

	text := f.Text
	if text == "" {
		text = f.Transcript
	}
	if f.Event == "" && text == "" {
		return nil, fmt.Errorf("legacy frame has neither event nor text")
	}

	speaker := f.Speaker
	if speaker == 0 {
		speaker = f.SpeakerTag
	}

	ev := &transcript.RealtimeEvent{
		SessionID:  f.SessionID,
		IsFinal:    f.Event == "final",
		Transcript: text,
		Confidence: f.Confidence,
	}
	for _, w := range f.Words {
		wordText := w.Word
		if wordText == "" {
			wordText = w.Text
		}
		tag := w.Speaker
		if tag == 0 {
			tag = w.SpeakerTag
		}
		ev.Words = append(ev.Words, transcript.Word{
			Text:    wordText,
			Start:   w.Start,
			End:     w.End,
			Speaker: transcript.SpeakerID(tag),
		})
	}
	if len(ev.Words) == 0 && speaker != 0 {
		// Top-level speaker only matters when word detail is absent.
		ev.Words = []transcript.Word{{Text: text, Speaker: transcript.SpeakerID(speaker)}}
	}
	return ev, nil
}
