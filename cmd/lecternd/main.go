package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/docstore"
	"github.com/lectern-ai/lectern/internal/httpapi"
	"github.com/lectern-ai/lectern/internal/observability"
	"github.com/lectern-ai/lectern/internal/session"
	"github.com/lectern-ai/lectern/internal/voice"
)

func main() {
	// Local development keeps credentials in a .env file; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := docstore.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("document store init failed: %v", err)
	}
	defer store.Close()

	adapter, err := chat.NewAdapter(chat.Config{
		Mode:    cfg.ChatAdapterMode,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		log.Fatalf("chat adapter init failed: %v", err)
	}

	var synth voice.Synthesizer
	synthMode := strings.ToLower(strings.TrimSpace(cfg.SynthProvider))
	if synthMode == "" {
		synthMode = "auto"
	}
	switch synthMode {
	case "elevenlabs":
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
			log.Fatalf("SYNTH_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
		synth = voice.NewElevenLabsSynthesizer(cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL, cfg.ElevenLabsTTSModel)
		log.Printf("synthesizer: elevenlabs")
	case "mock":
		synth = voice.NewMockSynthesizer()
		log.Printf("synthesizer: mock")
	case "auto":
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) != "" {
			synth = voice.NewElevenLabsSynthesizer(cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL, cfg.ElevenLabsTTSModel)
			log.Printf("synthesizer: elevenlabs")
		} else {
			synth = voice.NewMockSynthesizer()
			log.Printf("synthesizer: mock (no elevenlabs key)")
		}
	default:
		log.Fatalf("invalid SYNTH_PROVIDER: %q (expected auto|elevenlabs|mock)", cfg.SynthProvider)
	}

	bridge := httpapi.NewAudioBridge()
	sched := voice.NewScheduler(voice.NewStreamDevice(bridge.Emit))
	pipeline := voice.NewPipeline(synth, sched, metrics, cfg.ElevenLabsTTSVoice, cfg.PlaybackChunkBound, cfg.SynthSampleRate)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		log.Printf("session %s expired after inactivity", s.ID)
		metrics.ActiveVoiceSessions.Set(float64(sessions.ActiveCount()))
	})

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go sessions.RunExpiry(runCtx, 15*time.Second)

	api := httpapi.New(cfg, httpapi.Deps{
		BaseContext: runCtx,
		Sessions:    sessions,
		Store:       store,
		Extractor:   docstore.NewPlainTextExtractor(),
		Adapter:     adapter,
		Synth:       synth,
		Pipeline:    pipeline,
		Scheduler:   sched,
		Bridge:      bridge,
		Metrics:     metrics,
	})

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	pipeline.StopAll()
	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
