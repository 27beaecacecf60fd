// Package config loads the typed process configuration from flags, the
// environment, an optional discute.yaml and a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "DISCUTE"

// Config is the whole process configuration
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	LLM       LLMConfig       `mapstructure:"llm"`
	STT       STTConfig       `mapstructure:"stt"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig locates the seeded prompt store
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type SessionsConfig struct {
	// Backend is memory or redis
	Backend         string        `mapstructure:"backend"`
	MaxIdle         time.Duration `mapstructure:"max_idle"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAudioBytes   int           `mapstructure:"max_audio_bytes"`
	Language        string        `mapstructure:"language"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type AuthConfig struct {
	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

type LLMConfig struct {
	// Provider is groq, gemini or mock
	Provider       string  `mapstructure:"provider"`
	GroqAPIKey     string  `mapstructure:"groq_api_key"`
	GroqBaseURL    string  `mapstructure:"groq_base_url"`
	GroqModel      string  `mapstructure:"groq_model"`
	GeminiAPIKey   string  `mapstructure:"gemini_api_key"`
	GeminiModel    string  `mapstructure:"gemini_model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int64   `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

type STTConfig struct {
	// Provider is groq, google or mock
	Provider          string `mapstructure:"provider"`
	WhisperModel      string `mapstructure:"whisper_model"`
	GoogleCredentials string `mapstructure:"google_credentials"`
	GoogleModel       string `mapstructure:"google_model"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

type TTSConfig struct {
	// Provider is elevenlabs, openai or mock
	Provider         string        `mapstructure:"provider"`
	ElevenLabsAPIKey string        `mapstructure:"elevenlabs_api_key"`
	VoiceID          string        `mapstructure:"voice_id"`
	ModelID          string        `mapstructure:"model_id"`
	OutputFormat     string        `mapstructure:"output_format"`
	OpenAIAPIKey     string        `mapstructure:"openai_api_key"`
	OpenAIVoice      string        `mapstructure:"openai_voice"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Exporter is stdout or otlp
	Exporter    string `mapstructure:"exporter"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// SetDefaults registers every key so environment variables can override it
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.path", "prompts.db")

	v.SetDefault("sessions.backend", "memory")
	v.SetDefault("sessions.max_idle", 30*time.Minute)
	v.SetDefault("sessions.cleanup_interval", time.Minute)
	v.SetDefault("sessions.max_audio_bytes", 10<<20)
	v.SetDefault("sessions.language", "en-US")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "discute")

	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_ttl", 2*time.Hour)

	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.groq_api_key", "")
	v.SetDefault("llm.groq_base_url", "")
	v.SetDefault("llm.groq_model", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.gemini_model", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout_seconds", 30)

	v.SetDefault("stt.provider", "groq")
	v.SetDefault("stt.whisper_model", "")
	v.SetDefault("stt.google_credentials", "")
	v.SetDefault("stt.google_model", "")
	v.SetDefault("stt.timeout_seconds", 30)

	v.SetDefault("tts.provider", "elevenlabs")
	v.SetDefault("tts.elevenlabs_api_key", "")
	v.SetDefault("tts.voice_id", "")
	v.SetDefault("tts.model_id", "")
	v.SetDefault("tts.output_format", "")
	v.SetDefault("tts.openai_api_key", "")
	v.SetDefault("tts.openai_voice", "")
	v.SetDefault("tts.timeout", 30*time.Second)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "stdout")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "discute")
}

// Load reads .env, the config file and the environment into a Config. An
// empty cfgFile searches for discute.yaml in the working directory and $HOME.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("discute")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyProviderKeys()
	return &cfg, nil
}

// applyProviderKeys falls back to the providers' conventional variables
func (c *Config) applyProviderKeys() {
	fallback := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}
	fallback(&c.LLM.GroqAPIKey, "GROQ_API_KEY")
	fallback(&c.LLM.GeminiAPIKey, "GEMINI_API_KEY")
	fallback(&c.TTS.ElevenLabsAPIKey, "ELEVEN_LABS_API_KEY")
	fallback(&c.TTS.OpenAIAPIKey, "OPENAI_API_KEY")
	fallback(&c.STT.GoogleCredentials, "GOOGLE_APPLICATION_CREDENTIALS")
}

// Validate checks the settings the serve command depends on
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}

	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis session backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sessions.backend %q", c.Sessions.Backend))
	}
	if c.Sessions.MaxAudioBytes <= 0 {
		errs = append(errs, errors.New("sessions.max_audio_bytes must be positive"))
	}

	if len(c.Auth.TokenSecret) < 16 {
		errs = append(errs, errors.New("auth.token_secret must be at least 16 characters"))
	}

	switch c.LLM.Provider {
	case "groq", "mock":
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}

	switch c.STT.Provider {
	case "groq", "google", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown stt.provider %q", c.STT.Provider))
	}

	switch c.TTS.Provider {
	case "mock":
	case "elevenlabs":
		if c.TTS.ElevenLabsAPIKey == "" {
			errs = append(errs, errors.New("ELEVEN_LABS_API_KEY is required for the elevenlabs provider"))
		}
	case "openai":
		if c.TTS.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tts.provider %q", c.TTS.Provider))
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "stdout", "otlp":
		default:
			errs = append(errs, fmt.Errorf("unknown telemetry.exporter %q", c.Telemetry.Exporter))
		}
	}

	return errors.Join(errs...)
}
