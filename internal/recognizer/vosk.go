package recognizer

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/voxnote/transcriber/internal/engine"
)

// Vosk adapts a Vosk-style websocket recognition server to the engine's
// recognizer contract. Each engine restart dials a fresh session.
type Vosk struct {
	serverURL  string
	sampleRate int
}

func NewVosk(serverURL string, sampleRate int) *Vosk {
	return &Vosk{serverURL: serverURL, sampleRate: sampleRate}
}

func (v *Vosk) Start(locale string) (engine.Session, error) {
	url := fmt.Sprintf("%s/ws?sample_rate=%d&lang=%s", v.serverURL, v.sampleRate, locale)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to recognition server: %w", err)
	}

	s := &voskSession{
		conn:    conn,
		results: make(chan engine.Hypothesis, 100),
	}
	go s.readLoop()
	return s, nil
}

type voskSession struct {
	conn    *websocket.Conn
	results chan engine.Hypothesis

	writeMu sync.Mutex

	mu        sync.Mutex
	committed strings.Builder // finalized utterances so far this session
	cancelled bool
}

// voskResult is the server's frame: "partial" while an utterance is in
// flight, "text" once it is finalized.
type voskResult struct {
	Text    string `json:"text"`
	Partial string `json:"partial"`
	Final   bool   `json:"final"`
}

func (s *voskSession) WriteAudio(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		if s.isCancelled() {
			return engine.ErrRecognitionCancelled
		}
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

func (s *voskSession) Results() <-chan engine.Hypothesis { return s.results }

// Cancel asks the server to flush and tears the connection down. The
// read loop reports the resulting close as ErrRecognitionCancelled.
func (s *voskSession) Cancel() error {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return nil
	}
	s.cancelled = true
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof": 1}`))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *voskSession) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// readLoop turns per-utterance results into a monotonically growing
// hypothesis: committed utterances plus the current partial.
func (s *voskSession) readLoop() {
	defer close(s.results)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.isCancelled() {
				s.results <- engine.Hypothesis{Err: engine.ErrRecognitionCancelled}
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("recognizer: read: %v", err)
			}
			s.results <- engine.Hypothesis{Err: fmt.Errorf("recognition read: %w", err)}
			return
		}

		var result voskResult
		if err := json.Unmarshal(message, &result); err != nil {
			log.Printf("recognizer: bad frame: %v", err)
			continue
		}

		switch {
		case result.Partial != "":
			s.results <- engine.Hypothesis{Text: s.hypothesis(result.Partial)}
		case result.Text != "":
			s.mu.Lock()
			if s.committed.Len() > 0 {
				s.committed.WriteString(" ")
			}
			s.committed.WriteString(result.Text)
			s.mu.Unlock()
			s.results <- engine.Hypothesis{Text: s.hypothesis(""), IsFinal: result.Final}
		}
	}
}

// hypothesis joins the committed text with the in-flight partial.
func (s *voskSession) hypothesis(partial string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed.Len() == 0 {
		return partial
	}
	if partial == "" {
		return s.committed.String()
	}
	return s.committed.String() + " " + partial
}
