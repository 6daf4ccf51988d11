package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core/live"
)

type Config struct {
	Addr string

	GeminiAPIKey string

	// DatabaseURL selects the Postgres history store. Empty keeps history in memory.
	DatabaseURL      string
	DatabaseMaxConns int
	MigrateOnStart   bool

	// AgentCatalogPath overrides the embedded agent catalog.
	AgentCatalogPath string

	// CORS and the /v1/live origin check. Empty disables browser origins.
	CORSAllowedOrigins map[string]struct{}

	MaxBodyBytes       int64
	MaxAttachmentBytes int64

	// Live WebSocket mode (/v1/live).
	LiveModel               string
	LiveVoice               string
	LiveMaxAudioFrameBytes  int
	LiveMaxJSONMessageBytes int64
	LiveHandshakeTimeout    time.Duration
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration
	LiveWSReadTimeout       time.Duration
	LiveStoreTimeout        time.Duration
	// Inbound audio budget per relay. Zero disables the matching bound.
	LiveMaxAudioFPS            int
	LiveMaxAudioBytesPerSecond int64
	LiveInboundBurstSeconds    int
	LiveMaxSessionDuration     time.Duration
	LiveVADThreshold           float64
	LiveBargeInThreshold       float64
	LiveStopCaptureOnError     bool
	LiveStopPlaybackOnError    bool

	// Per-client limits. Zero disables.
	ChatRPS           float64
	ChatBurst         int
	MaxLiveSessions   int
	TrustProxyHeaders bool

	// Text chat (/v1/chat).
	ChatModel                string
	ProgrammerThinkingBudget int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                       envOr("HYPLEY_ADDR", ":8080"),
		GeminiAPIKey:               envOr("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
		DatabaseURL:                envOr("HYPLEY_DATABASE_URL", ""),
		DatabaseMaxConns:           envIntOr("HYPLEY_DATABASE_MAX_CONNS", 10),
		MigrateOnStart:             envBoolOr("HYPLEY_MIGRATE_ON_START", true),
		AgentCatalogPath:           envOr("HYPLEY_AGENT_CATALOG", ""),
		CORSAllowedOrigins:         make(map[string]struct{}),
		MaxBodyBytes:               envInt64Or("HYPLEY_MAX_BODY_BYTES", 16<<20),
		MaxAttachmentBytes:         envInt64Or("HYPLEY_MAX_ATTACHMENT_BYTES", 12<<20),
		LiveModel:                  envOr("HYPLEY_LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
		LiveVoice:                  envOr("HYPLEY_LIVE_VOICE", "Kore"),
		LiveMaxAudioFrameBytes:     envIntOr("HYPLEY_LIVE_MAX_AUDIO_FRAME_BYTES", 16384),
		LiveMaxJSONMessageBytes:    envInt64Or("HYPLEY_LIVE_MAX_JSON_MESSAGE_BYTES", 64*1024),
		LiveHandshakeTimeout:       envDurationOr("HYPLEY_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LiveWSPingInterval:         envDurationOr("HYPLEY_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:         envDurationOr("HYPLEY_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveWSReadTimeout:          envDurationOr("HYPLEY_LIVE_WS_READ_TIMEOUT", 60*time.Second),
		LiveStoreTimeout:           envDurationOr("HYPLEY_LIVE_STORE_TIMEOUT", 10*time.Second),
		LiveMaxAudioFPS:            envIntOr("HYPLEY_LIVE_MAX_AUDIO_FPS", 120),
		LiveMaxAudioBytesPerSecond: envInt64Or("HYPLEY_LIVE_MAX_AUDIO_BPS", 128*1024),
		LiveInboundBurstSeconds:    envIntOr("HYPLEY_LIVE_INBOUND_BURST_SECONDS", 2),
		LiveMaxSessionDuration:     envDurationOr("HYPLEY_LIVE_MAX_DURATION", 2*time.Hour),
		LiveVADThreshold:           envFloat64Or("HYPLEY_LIVE_VAD_THRESHOLD", 0),
		LiveBargeInThreshold:       envFloat64Or("HYPLEY_LIVE_BARGE_IN_THRESHOLD", 0),
		LiveStopCaptureOnError:     envBoolOr("HYPLEY_LIVE_STOP_CAPTURE_ON_ERROR", false),
		LiveStopPlaybackOnError:    envBoolOr("HYPLEY_LIVE_STOP_PLAYBACK_ON_ERROR", false),
		ChatRPS:                    envFloat64Or("HYPLEY_CHAT_RPS", 2),
		ChatBurst:                  envIntOr("HYPLEY_CHAT_BURST", 5),
		MaxLiveSessions:            envIntOr("HYPLEY_MAX_LIVE_SESSIONS_PER_CLIENT", 2),
		TrustProxyHeaders:          envBoolOr("HYPLEY_TRUST_PROXY_HEADERS", false),
		ChatModel:                  envOr("HYPLEY_CHAT_MODEL", "gemini-2.5-flash"),
		ProgrammerThinkingBudget:   envIntOr("HYPLEY_PROGRAMMER_THINKING_BUDGET", 1024),
		ReadHeaderTimeout:          envDurationOr("HYPLEY_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                envDurationOr("HYPLEY_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:             envDurationOr("HYPLEY_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod:        envDurationOr("HYPLEY_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("HYPLEY_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the limits and timeouts. The API key is not required here
// so that health endpoints can run without one.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("HYPLEY_ADDR must not be empty")
	}
	if cfg.MaxBodyBytes <= 0 {
		return fmt.Errorf("HYPLEY_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MaxAttachmentBytes <= 0 || cfg.MaxAttachmentBytes > cfg.MaxBodyBytes {
		return fmt.Errorf("HYPLEY_MAX_ATTACHMENT_BYTES must be > 0 and <= HYPLEY_MAX_BODY_BYTES")
	}
	if cfg.DatabaseMaxConns <= 0 {
		return fmt.Errorf("HYPLEY_DATABASE_MAX_CONNS must be > 0")
	}
	if strings.TrimSpace(cfg.LiveModel) == "" {
		return fmt.Errorf("HYPLEY_LIVE_MODEL must not be empty")
	}
	if cfg.LiveMaxAudioFrameBytes <= 0 {
		return fmt.Errorf("HYPLEY_LIVE_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return fmt.Errorf("HYPLEY_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return fmt.Errorf("HYPLEY_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return fmt.Errorf("HYPLEY_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return fmt.Errorf("HYPLEY_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSReadTimeout < 0 || (cfg.LiveWSReadTimeout > 0 && cfg.LiveWSReadTimeout <= cfg.LiveWSPingInterval) {
		return fmt.Errorf("HYPLEY_LIVE_WS_READ_TIMEOUT must be 0 or longer than HYPLEY_LIVE_WS_PING_INTERVAL")
	}
	if cfg.LiveStoreTimeout <= 0 {
		return fmt.Errorf("HYPLEY_LIVE_STORE_TIMEOUT must be > 0")
	}
	if cfg.LiveMaxAudioFPS < 0 || cfg.LiveMaxAudioBytesPerSecond < 0 || cfg.LiveInboundBurstSeconds < 0 {
		return fmt.Errorf("HYPLEY_LIVE_MAX_AUDIO_FPS, HYPLEY_LIVE_MAX_AUDIO_BPS and HYPLEY_LIVE_INBOUND_BURST_SECONDS must be >= 0")
	}
	if cfg.LiveMaxSessionDuration <= 0 {
		return fmt.Errorf("HYPLEY_LIVE_MAX_DURATION must be > 0")
	}
	if cfg.LiveVADThreshold < 0 || cfg.LiveVADThreshold >= 1 {
		return fmt.Errorf("HYPLEY_LIVE_VAD_THRESHOLD must be in [0, 1)")
	}
	if cfg.LiveBargeInThreshold < 0 || cfg.LiveBargeInThreshold >= 1 {
		return fmt.Errorf("HYPLEY_LIVE_BARGE_IN_THRESHOLD must be in [0, 1)")
	}
	if cfg.ChatRPS < 0 || cfg.ChatBurst < 0 || cfg.MaxLiveSessions < 0 {
		return fmt.Errorf("HYPLEY_CHAT_RPS, HYPLEY_CHAT_BURST and HYPLEY_MAX_LIVE_SESSIONS_PER_CLIENT must be >= 0")
	}
	if cfg.ProgrammerThinkingBudget < 0 {
		return fmt.Errorf("HYPLEY_PROGRAMMER_THINKING_BUDGET must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("HYPLEY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("HYPLEY_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return fmt.Errorf("HYPLEY_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("HYPLEY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return strings.TrimSpace(def)
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// LiveSessionConfig is the live session setup before a persona is applied.
func (cfg Config) LiveSessionConfig() live.SessionConfig {
	sc := live.DefaultSessionConfig()
	if cfg.LiveModel != "" {
		sc.Model = cfg.LiveModel
	}
	if cfg.LiveVoice != "" {
		sc.Voice = cfg.LiveVoice
	}
	sc.Capture.VADThreshold = cfg.LiveVADThreshold
	sc.BargeInThreshold = cfg.LiveBargeInThreshold
	sc.OnError = live.ErrorPolicy{
		StopCapture:  cfg.LiveStopCaptureOnError,
		StopPlayback: cfg.LiveStopPlaybackOnError,
	}
	return sc
}
