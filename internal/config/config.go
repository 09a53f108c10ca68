package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the document voice service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	SynthProvider   string
	SynthSampleRate int

	ElevenLabsAPIKey   string
	ElevenLabsBaseURL  string
	ElevenLabsTTSVoice string
	ElevenLabsTTSModel string

	ChatAdapterMode string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string

	PlaybackChunkBound      int
	VoiceErrorRecoveryDelay time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "lectern"),
		AllowAnyOrigin:   false,
		SynthProvider:    envOrDefault("SYNTH_PROVIDER", "auto"),
		// The playback pipeline decodes raw PCM; keep one fixed rate end to end.
		SynthSampleRate:    24000,
		ElevenLabsBaseURL:  envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsTTSVoice: envOrDefault("ELEVENLABS_TTS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsTTSModel: envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsAPIKey:   trimmedEnv("ELEVENLABS_API_KEY"),
		ChatAdapterMode:    envOrDefault("CHAT_ADAPTER_MODE", "auto"),
		OpenAIAPIKey:       trimmedEnv("OPENAI_API_KEY"),
		OpenAIModel:        envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:      trimmedEnv("OPENAI_BASE_URL"),
		// Soft bound on a speakable chunk; a single longer sentence is still spoken whole.
		PlaybackChunkBound:       500,
		VoiceErrorRecoveryDelay:  3 * time.Second,
		DatabaseURL:              trimmedEnv("DATABASE_URL"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.VoiceErrorRecoveryDelay, err = durationFromEnv("VOICE_ERROR_RECOVERY_DELAY", cfg.VoiceErrorRecoveryDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.PlaybackChunkBound, err = intFromEnv("PLAYBACK_CHUNK_BOUND", cfg.PlaybackChunkBound)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthSampleRate, err = intFromEnv("SYNTH_SAMPLE_RATE", cfg.SynthSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.PlaybackChunkBound < 50 {
		return Config{}, fmt.Errorf("PLAYBACK_CHUNK_BOUND must be at least 50")
	}
	if cfg.SynthSampleRate <= 0 {
		return Config{}, fmt.Errorf("SYNTH_SAMPLE_RATE must be positive")
	}
	if cfg.VoiceErrorRecoveryDelay <= 0 {
		return Config{}, fmt.Errorf("VOICE_ERROR_RECOVERY_DELAY must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
