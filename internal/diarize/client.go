package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voxnote/transcriber/internal/transcript"
)

// Client calls the diarization service with a recorded audio file and
// returns speaker intervals. Diarization runs post-hoc and may fail; the
// caller degrades to speaker-less output.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

type wireSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type wireResponse struct {
	Segments    []wireSegment `json:"segments"`
	NumSpeakers int           `json:"num_speakers"`
}

// Diarize uploads the audio file and decodes the interval list. Speaker
// identity is an opaque integer tag assigned in first-seen order; the
// service's display label rides along untouched.
func (c *Client) Diarize(ctx context.Context, audioPath string) ([]transcript.Interval, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	fd, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", audioPath, err)
	}
	defer fd.Close()
	if _, err = io.Copy(fw, fd); err != nil {
		return nil, fmt.Errorf("copy audio: %w", err)
	}
	if err = w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/diarize", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		const maxErr = 4096
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErr))
		return nil, fmt.Errorf("diarize %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("diarize decode: %w", err)
	}

	tags := make(map[string]transcript.SpeakerID, out.NumSpeakers)
	intervals := make([]transcript.Interval, 0, len(out.Segments))
	for _, s := range out.Segments {
		tag, ok := tags[s.Speaker]
		if !ok {
			tag = transcript.SpeakerID(len(tags) + 1)
			tags[s.Speaker] = tag
		}
		intervals = append(intervals, transcript.Interval{
			Speaker: tag,
			Label:   s.Speaker,
			Start:   s.Start,
			End:     s.End,
		})
	}
	return intervals, nil
}
