package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultPersonaPrompt = `You are Mitesh, a transformational leadership coach and Law of Attraction expert.
Speaking style: high-energy, warm, and deeply human.
Rules:
1. Base your advice on the provided knowledge when it is present.
2. Keep responses concise and short for voice.
3. Never invent links or facts.`

// App holds everything the voice server reads from the environment. Required
// credentials are validated once at startup; a missing key is a process-level
// failure, never a per-request error.
type App struct {
	Port string

	MaxSessions     int
	MaxIdle         time.Duration
	SweepInterval   time.Duration
	ContextMaxTurns int
	AugmentDeadline time.Duration

	DailyAPIKey string
	DailyAPIURL string

	CartesiaAPIKey  string
	CartesiaVoiceID string
	CartesiaWSURL   string

	GoogleProjectID string
	GoogleLocation  string
	GeminiModel     string
	EmbeddingModel  string

	PersonaPrompt string
	JWTSecret     string

	// RedisAddr is optional; without it the retrieval cache is disabled.
	RedisAddr string
}

func Load() (*App, error) {
	a := &App{
		Port:            getenv("PORT", "8080"),
		MaxSessions:     getenvInt("MAX_CONCURRENT_SESSIONS", 20),
		MaxIdle:         getenvDuration("SESSION_IDLE_TIMEOUT", 5*time.Minute),
		SweepInterval:   getenvDuration("SESSION_SWEEP_INTERVAL", 30*time.Second),
		ContextMaxTurns: getenvInt("CONTEXT_MAX_TURNS", 20),
		AugmentDeadline: getenvDuration("KB_AUGMENT_DEADLINE", 4*time.Second),

		DailyAPIKey: os.Getenv("DAILY_API_KEY"),
		DailyAPIURL: getenv("DAILY_API_URL", "https://api.daily.co/v1"),

		CartesiaAPIKey:  os.Getenv("CARTESIA_API_KEY"),
		CartesiaVoiceID: os.Getenv("CARTESIA_VOICE_ID"),
		CartesiaWSURL:   getenv("CARTESIA_WS_URL", "wss://api.cartesia.ai/tts/websocket"),

		GoogleProjectID: os.Getenv("GOOGLE_PROJECT_ID"),
		GoogleLocation:  getenv("GOOGLE_LOCATION", "us-central1"),
		GeminiModel:     getenv("GEMINI_MODEL", "gemini-1.5-flash"),
		EmbeddingModel:  getenv("EMBEDDING_MODEL", "text-embedding-004"),

		PersonaPrompt: getenv("PERSONA_PROMPT", defaultPersonaPrompt),
		JWTSecret:     os.Getenv("JWT_SECRET"),

		RedisAddr: firstenv("REDIS_ADDR", "REDIS_URI", "REDIS_URL"),
	}

	var missing []string
	for _, kv := range []struct{ key, val string }{
		{"DAILY_API_KEY", a.DailyAPIKey},
		{"CARTESIA_API_KEY", a.CartesiaAPIKey},
		{"CARTESIA_VOICE_ID", a.CartesiaVoiceID},
		{"GOOGLE_PROJECT_ID", a.GoogleProjectID},
		{"POSTGRES_URI", os.Getenv("POSTGRES_URI")},
		{"JWT_SECRET", a.JWTSecret},
	} {
		if kv.val == "" {
			missing = append(missing, kv.key)
		}
	}
	if len(missing) > 0 {
		return nil, errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}
	return a, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstenv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		fmt.Fprintf(os.Stderr, "config: ignoring invalid %s=%q\n", key, v)
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "config: ignoring invalid %s=%q\n", key, v)
		return def
	}
	return d
}
