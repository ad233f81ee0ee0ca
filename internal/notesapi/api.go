package notesapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"github.com/voxnote/transcriber/internal/transcript"
)

// Client talks to the notes backend. Only chapter generation matters to
// this pipeline; a failure or an empty answer falls back to the local
// heuristic, never failing the session.
type Client struct {
	baseURL string
	token   string

	httpClient *http.Client

	// Redis for session-scoped variables (per-session token, note id)
	redis       *redis.Client
	redisPrefix string
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetRedis attaches a Redis client used to resolve session variables.
func (c *Client) SetRedis(client *redis.Client, prefix string) {
	c.redis = client
	c.redisPrefix = prefix
}

func (c *Client) getVar(ctx context.Context, sessionID, key string) (string, error) {
	if c.redis == nil {
		return "", fmt.Errorf("redis client not configured")
	}
	redisKey := c.redisPrefix + sessionID
	val, err := c.redis.HGet(ctx, redisKey, key).Result()
	if err != nil {
		return "", fmt.Errorf("redis HGET %s %s: %w", redisKey, key, err)
	}
	if val == "" {
		return "", fmt.Errorf("redis HGET %s %s: empty", redisKey, key)
	}
	return val, nil
}

// sessionToken prefers a per-session token from Redis over the static one.
func (c *Client) sessionToken(ctx context.Context, sessionID string) string {
	rctx, cancel := context.WithTimeout(ctx, 800*time.Millisecond)
	defer cancel()
	if tok, err := c.getVar(rctx, sessionID, "token"); err == nil {
		return tok
	}
	return c.token
}

type chapterRequest struct {
	SessionID string               `json:"session_id"`
	Segments  []transcript.Segment `json:"segments"`
}

type chapterResponse struct {
	Chapters []struct {
		TimeSeconds float64 `json:"time_seconds"`
		Title       string  `json:"title"`
	} `json:"chapters"`
}

// GenerateChapters asks the backend for AI-generated chapters over the
// finalized segment list. An empty answer returns nil so the caller can
// fall back to the local heuristic.
func (c *Client) GenerateChapters(ctx context.Context, sessionID string, segments []transcript.Segment) ([]transcript.ChapterMarker, error) {
	body, err := json.Marshal(chapterRequest{SessionID: sessionID, Segments: segments})
	if err != nil {
		return nil, fmt.Errorf("encode chapter request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions/"+sessionID+"/chapters", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.sessionToken(ctx, sessionID); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chapter request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		const maxErr = 4096
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErr))
		return nil, fmt.Errorf("chapter request %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out chapterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chapter response: %w", err)
	}
	if len(out.Chapters) == 0 {
		return nil, nil
	}

	markers := make([]transcript.ChapterMarker, 0, len(out.Chapters))
	for _, ch := range out.Chapters {
		markers = append(markers, transcript.ChapterMarker{
			ID:          xid.New().String(),
			TimeSeconds: ch.TimeSeconds,
			Title:       ch.Title,
		})
	}
	return markers, nil
}
