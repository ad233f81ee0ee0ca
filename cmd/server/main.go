package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/voxnote/transcriber/internal/config"
	"github.com/voxnote/transcriber/internal/diarize"
	"github.com/voxnote/transcriber/internal/engine"
	"github.com/voxnote/transcriber/internal/notesapi"
	"github.com/voxnote/transcriber/internal/recognizer"
	"github.com/voxnote/transcriber/internal/server"
	"github.com/voxnote/transcriber/internal/stream"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	srv, err := server.New(buildServerConfig(cfg))
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	srv.Stop()
}

func buildServerConfig(cfg *config.Root) server.Config {
	sc := server.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		Mode:              cfg.Mode,
		SessionType:       cfg.SessionType,
		SampleRate:        cfg.Recognizer.SampleRate,
		OutputDir:         cfg.Output.Dir,
		SaveTranscripts:   cfg.Output.SaveTranscripts,
		MinChapterSeconds: cfg.Output.MinChapterSecs,
	}

	thresholds := cfg.Thresholds(cfg.SessionType)
	sc.Thresholds = engine.Thresholds{
		MaxChars:   thresholds.MaxChars,
		MinSplit:   thresholds.MinSplit,
		MaxSeconds: thresholds.MaxSeconds,
	}

	switch cfg.Mode {
	case "local":
		sc.Recognizer = recognizer.NewVosk(cfg.Recognizer.ServerURL, cfg.Recognizer.SampleRate)
		sc.Locale = cfg.Recognizer.Locale
	case "live":
		sc.Live = stream.Config{
			URL:                      cfg.Live.URL,
			Token:                    cfg.Live.Token,
			LanguageCode:             cfg.Live.LanguageCode,
			SampleRateHertz:          cfg.Live.SampleRate,
			EnableSpeakerDiarization: cfg.Live.EnableSpeakerDiarization,
			SpeakerCount:             cfg.Live.SpeakerCount,
			Model:                    cfg.Live.Model,
		}
	}

	if cfg.Diarization.URL != "" {
		sc.Diarizer = diarize.NewClient(cfg.Diarization.URL)
	}
	if cfg.Backend.URL != "" {
		backend := notesapi.NewClient(cfg.Backend.URL, cfg.Backend.Token)
		if cfg.Redis.Addr != "" {
			backend.SetRedis(redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr}), cfg.Redis.Prefix)
		}
		sc.Backend = backend
	}
	return sc
}
