package metrics

import (
	"fmt"
	"sync"
	"time"
)

// RecordingMetrics tracks one recording's transcription throughput.
type RecordingMetrics struct {
	Mode            string
	SessionID       string
	SampleRate      int
	StartTime       time.Time
	EndTime         time.Time
	AudioBytes      int
	PartialCount    int
	FinalCount      int
	SegmentCount    int
	FirstResultTime *time.Time
	mu              sync.Mutex
}

func NewRecordingMetrics(mode, sessionID string, sampleRate int) *RecordingMetrics {
	return &RecordingMetrics{
		Mode:       mode,
		SessionID:  sessionID,
		SampleRate: sampleRate,
		StartTime:  time.Now(),
	}
}

func (m *RecordingMetrics) AddAudioBytes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AudioBytes += n
}

func (m *RecordingMetrics) AddResult(isFinal bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FirstResultTime == nil {
		now := time.Now()
		m.FirstResultTime = &now
	}
	if isFinal {
		m.FinalCount++
	} else {
		m.PartialCount++
	}
}

func (m *RecordingMetrics) AddSegment() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SegmentCount++
}

func (m *RecordingMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
}

func (m *RecordingMetrics) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.EndTime.Sub(m.StartTime)
	var latency time.Duration
	if m.FirstResultTime != nil {
		latency = m.FirstResultTime.Sub(m.StartTime)
	}

	sampleRate := m.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	audioDuration := float64(m.AudioBytes) / (float64(sampleRate) * 2) // 16-bit samples

	return fmt.Sprintf(
		"Mode: %s\n"+
			"Session: %s\n"+
			"Duration: %v\n"+
			"Audio Duration: %.2f seconds\n"+
			"Audio Bytes: %d\n"+
			"Segments: %d\n"+
			"First Result Latency: %v\n"+
			"Partial Results: %d\n"+
			"Final Results: %d\n",
		m.Mode,
		m.SessionID,
		duration,
		audioDuration,
		m.AudioBytes,
		m.SegmentCount,
		latency,
		m.PartialCount,
		m.FinalCount,
	)
}
