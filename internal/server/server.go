package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/google/uuid"

	"github.com/voxnote/transcriber/internal/chapters"
	"github.com/voxnote/transcriber/internal/diarize"
	"github.com/voxnote/transcriber/internal/engine"
	"github.com/voxnote/transcriber/internal/metrics"
	"github.com/voxnote/transcriber/internal/stream"
	"github.com/voxnote/transcriber/internal/transcript"
)

// Diarizer produces speaker intervals for a recorded audio file.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) ([]transcript.Interval, error)
}

// ChapterBackend asks the notes backend for AI-generated chapters.
type ChapterBackend interface {
	GenerateChapters(ctx context.Context, sessionID string, segments []transcript.Segment) ([]transcript.ChapterMarker, error)
}

type Config struct {
	Host string
	Port int

	Mode        string // "local" or "live"
	SessionType string // "lecture" or "meeting"
	SampleRate  int

	// local mode
	Recognizer engine.Recognizer
	Locale     string
	Thresholds engine.Thresholds

	// live mode
	Live stream.Config

	Diarizer Diarizer       // optional
	Backend  ChapterBackend // optional

	OutputDir         string
	SaveTranscripts   bool
	MinChapterSeconds float64
}

// Server accepts one AudioSocket connection per recording and runs the
// transcription pipeline over it.
type Server struct {
	config   Config
	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	shutdown chan struct{}
	stopOnce sync.Once
}

func New(config Config) (*Server, error) {
	switch config.Mode {
	case "local":
		if config.Recognizer == nil {
			return nil, fmt.Errorf("local mode requires a recognizer")
		}
	case "live":
		if config.Live.URL == "" {
			return nil, fmt.Errorf("live mode requires a session url")
		}
	default:
		return nil, fmt.Errorf("unknown mode: %s", config.Mode)
	}
	if config.OutputDir != "" {
		if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return &Server{
		config:   config,
		shutdown: make(chan struct{}),
	}, nil
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	log.Printf("Recording server listening on %s (mode: %s)", listener.Addr(), s.config.Mode)

	for {
		select {
		case <-s.shutdown:
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.shutdown:
					return nil
				default:
					log.Printf("Accept error: %v", err)
					continue
				}
			}

			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}
}

func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.shutdown)
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
	})
	s.wg.Wait()
}

// Addr returns the bound listen address once Start has run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	id, err := audiosocket.GetID(conn)
	if err != nil {
		log.Printf("Failed to get ID: %v", err)
		return
	}

	log.Printf("Recording %s started (mode: %s)", id, s.config.Mode)

	rec := newRecording(s, id)
	if err := rec.start(); err != nil {
		log.Printf("Recording %s: failed to start: %v", id, err)
		return
	}

	for {
		msg, err := audiosocket.NextMessage(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("Recording %s: failed to read message: %v", id, err)
			}
			break
		}

		if err := rec.handleMessage(msg); err != nil {
			log.Printf("Recording %s: %v", id, err)
			break
		}

		if msg.Kind() == audiosocket.KindHangup {
			log.Printf("Recording %s: received hangup", id)
			break
		}
	}

	rec.finalize()
	log.Printf("Recording %s ended (duration: %v)", id, time.Since(rec.startTime))
}

// recording is one connection's pipeline: a segmentation engine in local
// mode, a live-session client in live mode.
type recording struct {
	server    *Server
	id        uuid.UUID
	startTime time.Time
	audioPath string
	metrics   *metrics.RecordingMetrics
	logger    *RecordingLog

	eng *engine.Engine

	live *stream.Client
	mu   sync.Mutex // guards live-mode state below
	segs []transcript.Segment
	raw  []byte // live mode buffers audio for post-hoc diarization
}

func newRecording(s *Server, id uuid.UUID) *recording {
	return &recording{
		server:    s,
		id:        id,
		startTime: time.Now(),
		metrics:   metrics.NewRecordingMetrics(s.config.Mode, id.String(), s.config.SampleRate),
	}
}

func (r *recording) start() error {
	cfg := r.server.config

	if cfg.OutputDir != "" {
		logger, err := NewRecordingLog(cfg.OutputDir, r.id.String(), r.startTime)
		if err != nil {
			log.Printf("Recording %s: session log unavailable: %v", r.id, err)
		} else {
			r.logger = logger
			r.logger.LogRecordingStart(r.id.String(), cfg.Mode, cfg.SessionType, r.startTime)
		}
	}

	if cfg.Mode == "live" {
		live := cfg.Live
		live.SessionID = r.id.String()
		client, err := stream.Dial(live, r.onLiveEvent)
		if err != nil {
			return fmt.Errorf("dial live session: %w", err)
		}
		r.live = client
		return nil
	}

	if cfg.OutputDir != "" {
		r.audioPath = filepath.Join(cfg.OutputDir, fmt.Sprintf("%s_%s.raw",
			r.startTime.Format("20060102_150405"), r.id.String()[:8]))
	}
	r.eng = engine.New(engine.Config{
		Recognizer: cfg.Recognizer,
		Locale:     cfg.Locale,
		AudioPath:  r.audioPath,
		Thresholds: cfg.Thresholds,
		OnSegment:  r.onSegment,
	})
	if err := r.eng.Start(); err != nil {
		return err
	}
	return nil
}

func (r *recording) onSegment(seg transcript.Segment) {
	r.metrics.AddSegment()
	if r.logger != nil {
		r.logger.LogSegmentClosed(r.id.String(), seg)
	}
}

func (r *recording) onLiveEvent(ev transcript.RealtimeEvent) {
	r.metrics.AddResult(ev.IsFinal)
	if !ev.IsFinal {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seg := transcript.Segment{
		Index:     len(r.segs),
		Text:      ev.Transcript,
		CreatedAt: time.Now(),
	}
	if len(ev.Words) > 0 {
		seg.Start = ev.Words[0].Start
		seg.End = ev.Words[len(ev.Words)-1].End
		seg.Speaker = ev.Words[0].Speaker
	} else {
		if n := len(r.segs); n > 0 {
			seg.Start = r.segs[n-1].End
		}
		seg.End = time.Since(r.startTime).Seconds()
	}
	r.segs = append(r.segs, seg)
	r.metrics.AddSegment()
	if r.logger != nil {
		r.logger.LogSegmentClosed(r.id.String(), seg)
	}
}

func (r *recording) handleMessage(msg audiosocket.Message) error {
	switch msg.Kind() {
	case audiosocket.KindSlin:
		payload := msg.Payload()
		if len(payload) == 0 {
			return nil
		}
		r.metrics.AddAudioBytes(len(payload))
		if r.eng != nil {
			r.eng.Feed(payload)
			return nil
		}
		r.mu.Lock()
		r.raw = append(r.raw, payload...)
		r.mu.Unlock()
		if err := r.live.SendAudio(payload); err != nil {
			return fmt.Errorf("forward audio to live session: %w", err)
		}

	case audiosocket.KindError:
		return fmt.Errorf("received error code: %d", msg.ErrorCode())
	}

	return nil
}

func (r *recording) finalize() {
	cfg := r.server.config

	var segments []transcript.Segment
	audioPath := r.audioPath

	if r.eng != nil {
		if err := r.eng.Stop(); err != nil {
			log.Printf("Recording %s: engine stopped with error: %v", r.id, err)
			if r.logger != nil {
				r.logger.LogError(r.id.String(), "engine", err)
			}
		}
		segments = r.eng.Segments()
		if dropped := r.eng.DroppedBuffers(); dropped > 0 {
			log.Printf("Recording %s: %d audio buffers dropped", r.id, dropped)
		}
	} else {
		_ = r.live.Stop()
		_ = r.live.Close()
		r.mu.Lock()
		segments = append([]transcript.Segment(nil), r.segs...)
		raw := r.raw
		r.mu.Unlock()
		if cfg.OutputDir != "" && len(raw) > 0 {
			audioPath = filepath.Join(cfg.OutputDir, fmt.Sprintf("%s_%s.raw",
				r.startTime.Format("20060102_150405"), r.id.String()[:8]))
			if err := os.WriteFile(audioPath, raw, 0644); err != nil {
				log.Printf("Recording %s: failed to save audio: %v", r.id, err)
				audioPath = ""
			}
		}
	}

	// Downstream AI features never fail the session; they degrade.
	r.applyDiarization(segments, audioPath)
	chaptersOut := r.deriveChapters(segments)

	if cfg.SaveTranscripts && len(segments) > 0 {
		if path, err := transcript.SaveSegments(cfg.OutputDir, r.id.String(), segments); err != nil {
			log.Printf("Recording %s: failed to save segments: %v", r.id, err)
		} else {
			log.Printf("Recording %s: segments saved to %s", r.id, path)
		}
		if len(chaptersOut) > 0 {
			if _, err := transcript.SaveChapters(cfg.OutputDir, r.id.String(), chaptersOut); err != nil {
				log.Printf("Recording %s: failed to save chapters: %v", r.id, err)
			}
		}
	}

	r.metrics.Finalize()
	log.Printf("Recording %s metrics:\n%s", r.id, r.metrics.Summary())

	if r.logger != nil {
		r.logger.LogRecordingEnd(r.id.String(), "hangup", time.Now())
		_ = r.logger.Close()
	}
}

func (r *recording) applyDiarization(segments []transcript.Segment, audioPath string) {
	if r.server.config.Diarizer == nil || audioPath == "" || len(segments) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	intervals, err := r.server.config.Diarizer.Diarize(ctx, audioPath)
	if err != nil {
		log.Printf("Recording %s: diarization unavailable: %v", r.id, err)
		if r.logger != nil {
			r.logger.LogError(r.id.String(), "diarization", err)
		}
		return
	}
	diarize.Align(segments, intervals)

	labeled := 0
	for _, seg := range segments {
		if seg.Speaker != 0 {
			labeled++
		}
	}
	if r.logger != nil {
		r.logger.LogDiarization(r.id.String(), len(intervals), labeled)
	}
}

func (r *recording) deriveChapters(segments []transcript.Segment) []transcript.ChapterMarker {
	if len(segments) == 0 {
		return nil
	}
	cfg := r.server.config

	var remote []transcript.ChapterMarker
	if cfg.Backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		var err error
		remote, err = cfg.Backend.GenerateChapters(ctx, r.id.String(), segments)
		if err != nil {
			log.Printf("Recording %s: backend chapters unavailable: %v", r.id, err)
			if r.logger != nil {
				r.logger.LogError(r.id.String(), "chapters", err)
			}
			remote = nil
		}
	}

	mode := chapters.ModeLecture
	if cfg.SessionType == "meeting" {
		mode = chapters.ModeMeeting
	}
	local := chapters.Merge(segments, cfg.MinChapterSeconds, mode)

	out := chapters.Resolve(remote, local)
	source := "local"
	if len(remote) > 0 {
		source = "backend"
	}
	if r.logger != nil {
		r.logger.LogChapters(r.id.String(), source, len(out))
	}
	return out
}
