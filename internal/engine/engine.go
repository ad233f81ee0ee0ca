package engine

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/voxnote/transcriber/internal/transcript"
)

// ErrRecognitionCancelled is reported by a recognition session that was
// deliberately cancelled. The engine suppresses it; anything else coming
// out of a session is a real failure.
var ErrRecognitionCancelled = errors.New("recognition session cancelled")

// Hypothesis is one event from a recognition session: the full current
// best-guess text for that session, or a terminal error.
type Hypothesis struct {
	Text    string
	IsFinal bool
	Err     error
}

// Recognizer starts recognition sessions. A session cannot be segmented
// mid-stream, so the engine cancels and restarts sessions to bound segments.
type Recognizer interface {
	Start(locale string) (Session, error)
}

// Session is one active recognition session.
type Session interface {
	WriteAudio(p []byte) error
	Results() <-chan Hypothesis
	Cancel() error
}

// Thresholds controls when the open segment closes.
type Thresholds struct {
	MaxChars   int
	MinSplit   int
	MaxSeconds float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{MaxChars: 500, MinSplit: 50, MaxSeconds: 180}
}

type State int

const (
	StateIdle State = iota
	StateListening
	StateStopped
)

// Config wires an Engine to its collaborators.
type Config struct {
	Recognizer Recognizer
	Locale     string
	AudioPath  string // durable audio file for the recording; empty disables capture-to-file
	Thresholds Thresholds
	OnSegment  func(transcript.Segment) // called in close order from the engine goroutine
}

// Engine converts a stream of growing recognition hypotheses into closed,
// timestamped segments while teeing raw audio to one durable file.
//
// All segmentation state lives in seg and is mutated only by the run loop;
// Feed and the recognizer pump hand work to that loop through cmds. The
// audio path is fire-and-forget so the delivery context never blocks.
type Engine struct {
	recognizer Recognizer
	locale     string
	th         Thresholds
	onSegment  func(transcript.Segment)
	audioPath  string

	cmds      chan func()
	finished  chan struct{}
	stopAudio chan struct{}
	audioDone chan struct{}
	audioCh   chan []byte

	now func() time.Time

	// owned by the run loop
	seg     segState
	sess    Session
	gen     int
	started time.Time
	file    *os.File

	mu       sync.Mutex // guards the snapshot below, read by external callers
	state    State
	segments []transcript.Segment
	partial  string
	lastErr  error
	dropped  int
}

// segState is the mutable segmentation state for the open segment. It is an
// explicit value so the close policy and diffing can be exercised directly
// with synthetic hypotheses.
type segState struct {
	text      []byte
	delivered int     // hypothesis chars already appended this session
	index     int     // index of the open segment
	start     float64 // open segment start, seconds from recording start
}

// apply appends the suffix of the hypothesis beyond what was already
// delivered and returns it. A shrinking hypothesis yields an empty delta:
// that is a recognizer policy violation we tolerate, not an error.
func (s *segState) apply(text string) string {
	if len(text) <= s.delivered {
		return ""
	}
	delta := text[s.delivered:]
	s.text = append(s.text, delta...)
	s.delivered = len(text)
	return delta
}

// shouldClose reports whether the open segment must close short of true
// finality. A segment below MinSplit is never force-closed.
func (s *segState) shouldClose(now float64, th Thresholds) bool {
	n := len(s.text)
	if n < th.MinSplit {
		return false
	}
	if th.MaxChars > 0 && n >= th.MaxChars {
		return true
	}
	if th.MaxSeconds > 0 && now-s.start >= th.MaxSeconds {
		return true
	}
	return false
}

func New(cfg Config) *Engine {
	th := cfg.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	return &Engine{
		recognizer: cfg.Recognizer,
		locale:     cfg.Locale,
		th:         th,
		onSegment:  cfg.OnSegment,
		audioPath:  cfg.AudioPath,
		cmds:       make(chan func(), 64),
		finished:   make(chan struct{}),
		stopAudio:  make(chan struct{}),
		audioDone:  make(chan struct{}),
		audioCh:    make(chan []byte, 256),
		now:        time.Now,
		state:      StateIdle,
	}
}

// Start opens the audio file, starts the first recognition session and the
// engine goroutines. Failures here are fatal to the recording; there is no
// retry inside the engine.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.mu.Unlock()

	if e.audioPath != "" {
		// One recording owns the file; a second writer is a bug upstream.
		f, err := os.OpenFile(e.audioPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open audio file: %w", err)
		}
		e.file = f
	}

	sess, err := e.recognizer.Start(e.locale)
	if err != nil {
		if e.file != nil {
			e.file.Close()
		}
		return fmt.Errorf("start recognizer: %w", err)
	}

	e.started = e.now()
	e.seg = segState{}
	e.setSession(sess)
	e.setState(StateListening)

	go e.run()
	go e.writeAudio()
	go e.pump(sess, e.gen)
	return nil
}

// Feed hands one captured audio buffer to the engine. It is safe to call
// from the delivery context and never blocks: the buffer is copied and
// queued for the file writer and the active recognition session.
func (e *Engine) Feed(p []byte) {
	if e.State() != StateListening || len(p) == 0 {
		return
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case e.audioCh <- buf:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
	}
}

// Stop runs the shutdown sequence: close the open segment as final, stop
// capture, close the audio file, cancel the in-flight session. Each step
// tolerates failure of the previous one. Returns the engine's last error.
func (e *Engine) Stop() error {
	if e.State() == StateIdle {
		return nil
	}
	done := make(chan error, 1)
	fn := func() { done <- e.stopSequence() }
	select {
	case <-e.finished:
		return e.LastErr()
	default:
	}
	select {
	case e.cmds <- fn:
	case <-e.finished:
		return e.LastErr()
	}
	select {
	case err := <-done:
		return err
	case <-e.finished:
		return e.LastErr()
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Partial returns the live text of the open segment.
func (e *Engine) Partial() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.partial
}

// Segments returns a snapshot of the closed segments so far.
func (e *Engine) Segments() []transcript.Segment {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]transcript.Segment, len(e.segments))
	copy(out, e.segments)
	return out
}

func (e *Engine) LastErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// DroppedBuffers reports audio buffers discarded because the capture queue
// was full.
func (e *Engine) DroppedBuffers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

func (e *Engine) AudioPath() string { return e.audioPath }

// Done is closed once the engine has fully stopped.
func (e *Engine) Done() <-chan struct{} { return e.finished }

func (e *Engine) run() {
	for {
		select {
		case fn := <-e.cmds:
			fn()
		case <-e.finished:
			return
		}
	}
}

func (e *Engine) pump(sess Session, gen int) {
	for h := range sess.Results() {
		h := h
		select {
		case e.cmds <- func() { e.handleHypothesis(gen, h) }:
		case <-e.finished:
			return
		}
	}
}

func (e *Engine) handleHypothesis(gen int, h Hypothesis) {
	if e.State() != StateListening {
		return
	}
	if h.Err != nil {
		if errors.Is(h.Err, ErrRecognitionCancelled) {
			return // expected when we end a session ourselves
		}
		if gen != e.gen {
			return // a replaced session failing late is moot
		}
		e.fail(h.Err)
		return
	}
	if gen != e.gen {
		return // stale session, delivered counts no longer line up
	}

	if delta := e.seg.apply(h.Text); delta != "" {
		e.mu.Lock()
		e.partial = string(e.seg.text)
		e.mu.Unlock()
	}

	if h.IsFinal {
		// True finality: always closes and ends the recording.
		e.stopSequence()
		return
	}
	if e.seg.shouldClose(e.elapsed(), e.th) {
		e.closeSegment(e.elapsed())
		e.restart()
	}
}

// closeSegment closes the open segment at end and opens the next one.
func (e *Engine) closeSegment(end float64) transcript.Segment {
	seg := transcript.Segment{
		Index:     e.seg.index,
		Text:      string(e.seg.text),
		Start:     e.seg.start,
		End:       end,
		CreatedAt: e.now(),
	}
	e.mu.Lock()
	e.segments = append(e.segments, seg)
	e.partial = ""
	e.mu.Unlock()
	if e.onSegment != nil {
		e.onSegment(seg)
	}
	e.seg = segState{index: seg.Index + 1, start: end}
	return seg
}

// restart ends the current recognition session and starts a fresh one with
// a zero delivered count. Audio capture keeps running throughout.
func (e *Engine) restart() {
	old := e.sess
	e.gen++
	go func() { _ = old.Cancel() }()

	sess, err := e.recognizer.Start(e.locale)
	if err != nil {
		e.fail(fmt.Errorf("restart recognizer: %w", err))
		return
	}
	e.setSession(sess)
	go e.pump(sess, e.gen)
}

func (e *Engine) fail(err error) {
	e.mu.Lock()
	if e.lastErr == nil {
		e.lastErr = err
	}
	e.mu.Unlock()
	log.Printf("engine: %v", err)
	e.stopSequence()
}

func (e *Engine) stopSequence() error {
	if e.State() == StateStopped {
		return e.LastErr()
	}

	// 1. Force-close any open segment as the terminal segment.
	if len(e.seg.text) > 0 {
		e.closeSegment(e.elapsed())
	}

	// 2. Stop audio intake; Feed becomes a no-op.
	e.setState(StateStopped)
	close(e.stopAudio)

	// 3. Wait for the writer to drain and close the file.
	<-e.audioDone

	// 4. Cancel the in-flight recognition session.
	if e.sess != nil {
		if err := e.sess.Cancel(); err != nil && !errors.Is(err, ErrRecognitionCancelled) {
			log.Printf("engine: cancel recognition: %v", err)
		}
	}

	close(e.finished)
	return e.LastErr()
}

// writeAudio owns the durable file. It runs independently of recognition
// session lifecycle so no audio is lost across restarts.
func (e *Engine) writeAudio() {
	defer close(e.audioDone)
	for {
		select {
		case buf := <-e.audioCh:
			e.writeBuf(buf)
		case <-e.stopAudio:
			for {
				select {
				case buf := <-e.audioCh:
					e.writeBuf(buf)
				default:
					if e.file != nil {
						if err := e.file.Close(); err != nil {
							log.Printf("engine: close audio file: %v", err)
						}
					}
					return
				}
			}
		}
	}
}

func (e *Engine) writeBuf(buf []byte) {
	if e.file != nil {
		if _, err := e.file.Write(buf); err != nil {
			err = fmt.Errorf("write audio file: %w", err)
			select {
			case e.cmds <- func() { e.fail(err) }:
			default:
			}
		}
	}
	sess := e.currentSession()
	if sess == nil {
		return
	}
	if err := sess.WriteAudio(buf); err != nil && !errors.Is(err, ErrRecognitionCancelled) {
		// A session can reject audio while it is being replaced; the next
		// buffer lands on the new session.
		log.Printf("engine: forward audio: %v", err)
	}
}

func (e *Engine) setSession(sess Session) {
	e.mu.Lock()
	e.sess = sess
	e.mu.Unlock()
}

func (e *Engine) currentSession() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) elapsed() float64 {
	return e.now().Sub(e.started).Seconds()
}
