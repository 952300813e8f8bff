package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/falabot/server/domain/entities"
)

// Config holds every runtime setting of the bot
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string
	LogFile   string
	Language  string

	ProviderMode            entities.ProviderMode
	MaxAudioDurationSeconds int
	EnableAudioReply        bool
	ProbeTimeout            time.Duration
	ConvertTimeout          time.Duration
	DefaultDurationSeconds  int
	StatsReportInterval     time.Duration

	OpenAI     OpenAIConfig
	DeepSeek   DeepSeekConfig
	Gemini     GeminiConfig
	Speech     GoogleSpeechConfig
	ElevenLabs ElevenLabsConfig
	AWS        AWSConfig
	Storage    StorageConfig
	Inflight   InflightConfig
	Bridge     BridgeConfig
	Audio      AudioToolsConfig
}

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	WhisperModel string
	GPTModel     string
	TTSModel     string
	TTSVoice     string
}

type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type GoogleSpeechConfig struct {
	Enabled  bool
	Language string
}

type ElevenLabsConfig struct {
	APIKey  string
	VoiceID string
}

type AWSConfig struct {
	Region string
	// PollyEnabled registers Polly; credentials come from the default AWS chain
	PollyEnabled bool
	PollyVoice   string
	AccessKey    string
	SecretKey    string
	S3Endpoint   string
	S3Bucket     string
	UsePathHost  bool
}

// StorageConfig selects where users and audio records live
type StorageConfig struct {
	Backend       string // memory | mongo
	ObjectBackend string // memory | s3
	MongoURI      string
	MongoDatabase string
}

// InflightConfig selects the dedup set backend
type InflightConfig struct {
	Backend   string // memory | redis
	RedisAddr string
	TTL       time.Duration
}

type BridgeConfig struct {
	SharedSecret string
	JWTSecret    string
	TokenTTL     time.Duration
}

type AudioToolsConfig struct {
	FFmpegPath  string
	FFprobePath string
}

// Load reads configuration from the environment. Call godotenv first to honour a .env file.
func Load() (*Config, error) {
	mode, err := entities.ParseProviderMode(getEnv("PROVIDER_MODE", getEnv("AI_MODE", "hybrid")))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogFile:   getEnv("LOG_FILE", ""),
		Language:  getEnv("LANGUAGE", "pt"),

		ProviderMode:            mode,
		MaxAudioDurationSeconds: getEnvAsInt("MAX_AUDIO_DURATION_SECONDS", getEnvAsInt("MAX_AUDIO_DURATION", 120)),
		EnableAudioReply:        getEnvAsBool("ENABLE_AUDIO_REPLY", getEnvAsBool("ENABLE_AUDIO_RESPONSE", false)),
		ProbeTimeout:            getEnvAsDuration("PROBE_TIMEOUT", 5*time.Second),
		ConvertTimeout:          getEnvAsDuration("CONVERT_TIMEOUT", 30*time.Second),
		DefaultDurationSeconds:  getEnvAsInt("DEFAULT_AUDIO_DURATION_SECONDS", 10),
		StatsReportInterval:     getEnvAsDuration("STATS_REPORT_INTERVAL", 5*time.Minute),

		OpenAI: OpenAIConfig{
			APIKey:       getEnv("OPENAI_API_KEY", ""),
			BaseURL:      getEnv("OPENAI_BASE_URL", ""),
			WhisperModel: getEnv("WHISPER_MODEL", "whisper-1"),
			GPTModel:     getEnv("GPT_MODEL", "gpt-3.5-turbo"),
			TTSModel:     getEnv("TTS_MODEL", "tts-1"),
			TTSVoice:     getEnv("TTS_VOICE", "nova"),
		},
		DeepSeek: DeepSeekConfig{
			APIKey:  getEnv("DEEPSEEK_API_KEY", ""),
			BaseURL: getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1"),
			Model:   getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Speech: GoogleSpeechConfig{
			Enabled:  getEnvAsBool("GOOGLE_SPEECH_ENABLED", false),
			Language: getEnv("GOOGLE_SPEECH_LANGUAGE", "pt-BR"),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:  getEnv("ELEVEN_LABS_API_KEY", ""),
			VoiceID: getEnv("ELEVEN_LABS_VOICE_ID", ""),
		},
		AWS: AWSConfig{
			Region:       getEnv("AWS_REGION", "us-east-1"),
			PollyEnabled: getEnvAsBool("POLLY_ENABLED", getEnv("AWS_ACCESS_KEY_ID", "") != ""),
			PollyVoice:   getEnv("POLLY_VOICE_ID", "Camila"),
			AccessKey:    getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Endpoint:   getEnv("S3_ENDPOINT", ""),
			S3Bucket:     getEnv("S3_BUCKET", "audio-messages"),
			UsePathHost:  getEnvAsBool("S3_USE_PATH_STYLE", false),
		},
		Storage: StorageConfig{
			Backend:       strings.ToLower(getEnv("STORAGE_BACKEND", "memory")),
			ObjectBackend: strings.ToLower(getEnv("OBJECT_STORE_BACKEND", "memory")),
			MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			MongoDatabase: getEnv("MONGODB_DATABASE", "falabot"),
		},
		Inflight: InflightConfig{
			Backend:   strings.ToLower(getEnv("INFLIGHT_BACKEND", "memory")),
			RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
			TTL:       getEnvAsDuration("INFLIGHT_TTL", 10*time.Minute),
		},
		Bridge: BridgeConfig{
			SharedSecret: getEnv("BRIDGE_SHARED_SECRET", ""),
			JWTSecret:    getEnv("JWT_SECRET", ""),
			TokenTTL:     getEnvAsDuration("BRIDGE_TOKEN_TTL", 24*time.Hour),
		},
		Audio: AudioToolsConfig{
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected mode has the credentials it needs
func (c *Config) Validate() error {
	if c.MaxAudioDurationSeconds <= 0 {
		return fmt.Errorf("MAX_AUDIO_DURATION_SECONDS must be positive, got %d", c.MaxAudioDurationSeconds)
	}
	if c.OpenAI.APIKey == "" && c.DeepSeek.APIKey == "" && c.Gemini.APIKey == "" {
		return fmt.Errorf("at least one of OPENAI_API_KEY, DEEPSEEK_API_KEY or GEMINI_API_KEY is required")
	}
	if c.OpenAI.APIKey == "" && !c.Speech.Enabled {
		return fmt.Errorf("speech-to-text needs OPENAI_API_KEY or GOOGLE_SPEECH_ENABLED=true")
	}
	switch c.Storage.Backend {
	case "memory", "mongo":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	switch c.Storage.ObjectBackend {
	case "memory", "s3":
	default:
		return fmt.Errorf("unknown OBJECT_STORE_BACKEND %q", c.Storage.ObjectBackend)
	}
	switch c.Inflight.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown INFLIGHT_BACKEND %q", c.Inflight.Backend)
	}
	if c.Bridge.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Bridge.SharedSecret == "" {
		return fmt.Errorf("BRIDGE_SHARED_SECRET is required")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
