package stream

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/voxnote/transcriber/internal/transcript"
)

// Config describes one live cloud transcription session.
type Config struct {
	URL       string // wss endpoint
	Token     string // bearer token
	SessionID string

	LanguageCode             string
	SampleRateHertz          int
	EnableSpeakerDiarization bool
	SpeakerCount             int
	Model                    string
}

// Subscriber receives decoded events in receive order. Repeated partials
// are delivered as-is; deduplication belongs to the consumer.
type Subscriber func(transcript.RealtimeEvent)

// Client is the duplex live-session connection: binary audio frames out,
// JSON transcript frames in. A failed receive ends the client for good;
// callers retry by dialing a new one.
type Client struct {
	conn *websocket.Conn
	sub  Subscriber

	writeMu  sync.Mutex
	stopOnce sync.Once
	done     chan struct{}
}

type startFrame struct {
	Event  string      `json:"event"`
	Config startConfig `json:"config"`
}

type startConfig struct {
	LanguageCode             string `json:"languageCode"`
	SampleRateHertz          int    `json:"sampleRateHertz"`
	EnableSpeakerDiarization bool   `json:"enableSpeakerDiarization"`
	SpeakerCount             int    `json:"speakerCount"`
	Model                    string `json:"model"`
}

type stopFrame struct {
	Event string `json:"event"`
}

// Dial connects, sends the start frame, and begins dispatching inbound
// events to sub.
func Dial(cfg Config, sub Subscriber) (*Client, error) {
	if sub == nil {
		return nil, fmt.Errorf("subscriber is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse live session url: %w", err)
	}
	q := u.Query()
	q.Set("session_id", cfg.SessionID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}

	c := &Client{conn: conn, sub: sub, done: make(chan struct{})}

	start := startFrame{
		Event: "start",
		Config: startConfig{
			LanguageCode:             cfg.LanguageCode,
			SampleRateHertz:          cfg.SampleRateHertz,
			EnableSpeakerDiarization: cfg.EnableSpeakerDiarization,
			SpeakerCount:             cfg.SpeakerCount,
			Model:                    cfg.Model,
		},
	}
	if err := c.writeJSON(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send start frame: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// SendAudio frames one audio chunk outward. The transport preserves
// message boundaries, so no extra framing is added.
func (c *Client) SendAudio(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

// Stop sends the stop frame once. Safe to call multiple times.
func (c *Client) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		err = c.writeJSON(stopFrame{Event: "stop"})
	})
	return err
}

// Close stops the session and tears down the connection.
func (c *Client) Close() error {
	_ = c.Stop()
	return c.conn.Close()
}

// Done is closed when the receive loop ends.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// readLoop decodes inbound frames off the delivery context and dispatches
// them in receive order. A receive failure terminates the loop; there is
// no automatic reconnection.
func (c *Client) readLoop() {
	defer close(c.done)
	for {
		kind, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("stream: read: %v", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		ev, err := decodeFrame(message)
		if err != nil {
			// Both schemas missed; drop without surfacing.
			log.Printf("stream: dropping frame: %v", err)
			continue
		}
		if ev == nil {
			continue // app-level error frame, logged in decodeFrame
		}
		c.sub(*ev)
	}
}
