package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Segmentation holds the close-policy thresholds for one session type.
type Segmentation struct {
	MaxChars   int     `yaml:"max_chars"`
	MinSplit   int     `yaml:"min_split"`
	MaxSeconds float64 `yaml:"max_seconds"`
}

var defaultSegmentation = Segmentation{MaxChars: 500, MinSplit: 50, MaxSeconds: 180}

type Root struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	// Mode selects the pipeline: "local" (on-device style recognizer +
	// segmentation engine) or "live" (cloud streaming socket).
	Mode string `yaml:"mode"`

	// SessionType selects titles and thresholds: "lecture" or "meeting".
	SessionType string `yaml:"session_type"`

	Recognizer struct {
		ServerURL  string `yaml:"server_url"`
		SampleRate int    `yaml:"sample_rate"`
		Locale     string `yaml:"locale"`
	} `yaml:"recognizer"`

	Live struct {
		URL                      string `yaml:"url"`
		Token                    string `yaml:"token"`
		LanguageCode             string `yaml:"language_code"`
		SampleRate               int    `yaml:"sample_rate"`
		EnableSpeakerDiarization bool   `yaml:"enable_speaker_diarization"`
		SpeakerCount             int    `yaml:"speaker_count"`
		Model                    string `yaml:"model"`
	} `yaml:"live"`

	Diarization struct {
		URL string `yaml:"url"`
	} `yaml:"diarization"`

	Backend struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"backend"`

	Redis struct {
		Addr   string `yaml:"addr"`
		Prefix string `yaml:"prefix"`
	} `yaml:"redis"`

	Output struct {
		Dir             string  `yaml:"dir"`
		SaveTranscripts bool    `yaml:"save_transcripts"`
		MinChapterSecs  float64 `yaml:"min_chapter_seconds"`
	} `yaml:"output"`

	// Segmentation thresholds keyed by session type; missing entries and
	// missing fields fall back to the historical defaults.
	Segmentation map[string]Segmentation `yaml:"segmentation"`
}

func Load(path string) (*Root, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Root
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (r *Root) applyDefaults() {
	if r.Mode == "" {
		r.Mode = "local"
	}
	if r.SessionType == "" {
		r.SessionType = "lecture"
	}
	if r.Recognizer.SampleRate == 0 {
		r.Recognizer.SampleRate = 16000
	}
	if r.Recognizer.Locale == "" {
		r.Recognizer.Locale = "en-US"
	}
	if r.Output.Dir == "" {
		r.Output.Dir = "./recordings"
	}
	if r.Output.MinChapterSecs == 0 {
		r.Output.MinChapterSecs = 60
	}
}

// Thresholds resolves the segmentation thresholds for a session type.
func (r *Root) Thresholds(sessionType string) Segmentation {
	s, ok := r.Segmentation[sessionType]
	if !ok {
		return defaultSegmentation
	}
	if s.MaxChars == 0 {
		s.MaxChars = defaultSegmentation.MaxChars
	}
	if s.MinSplit == 0 {
		s.MinSplit = defaultSegmentation.MinSplit
	}
	if s.MaxSeconds == 0 {
		s.MaxSeconds = defaultSegmentation.MaxSeconds
	}
	return s
}
