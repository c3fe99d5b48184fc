package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	StdoutTraces   bool   `yaml:"stdout_traces"`
	PrometheusPath string `yaml:"prometheus_path"`
}

type HTTPConfig struct {
	Bind         string `yaml:"bind"`
	Port         int    `yaml:"port"`
	MaxImageSize int64  `yaml:"max_image_bytes"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Gemini      GeminiConfig    `yaml:"gemini"`
	Vision      VisionConfig    `yaml:"vision"`
	Speech      SpeechConfig    `yaml:"speech"`
	Playback    PlaybackConfig  `yaml:"playback"`
	MealPlan    MealPlanConfig  `yaml:"meal_plan"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// GeminiConfig points at the hosted generative model API shared by vision and speech.
type GeminiConfig struct {
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type VisionConfig struct {
	Mode  string `yaml:"mode"` // mock, gemini
	Model string `yaml:"model"`
}

type SpeechConfig struct {
	Mode          string `yaml:"mode"` // mock, gemini, exec
	Model         string `yaml:"model"`
	Command       string `yaml:"command"`
	Voice         string `yaml:"voice"`
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
	MockWordMS    int    `yaml:"mock_word_ms"`
	RequestTimeMS int    `yaml:"request_timeout_ms"`
}

type PlaybackConfig struct {
	Sink            string `yaml:"sink"` // clock, wav, bus
	OutputDir       string `yaml:"output_dir"`
	Target          string `yaml:"target"`
	ChunkDurationMS int    `yaml:"chunk_duration_ms"`
}

type MealPlanConfig struct {
	Mode string `yaml:"mode"` // sqlite, ephemeral
	Path string `yaml:"path"`
}

func Default() Config {
	return Config{
		RuntimeName: "culinascan",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:         "0.0.0.0",
			Port:         8080,
			MaxImageSize: 10 << 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPInsecure:   true,
			PrometheusPath: "/metrics",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Gemini: GeminiConfig{
			Endpoint:  "https://generativelanguage.googleapis.com",
			TimeoutMS: 60000,
		},
		Vision: VisionConfig{
			Mode:  "mock",
			Model: "gemini-3-flash-preview",
		},
		Speech: SpeechConfig{
			Mode:          "mock",
			Model:         "gemini-2.5-flash-preview-tts",
			Voice:         "Kore",
			SampleRate:    24000,
			Channels:      1,
			MockWordMS:    60,
			RequestTimeMS: 45000,
		},
		Playback: PlaybackConfig{
			Sink:            "clock",
			OutputDir:       "./data/narration",
			Target:          "default",
			ChunkDurationMS: 400,
		},
		MealPlan: MealPlanConfig{
			Mode: "sqlite",
			Path: "./data/culinascan.db",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "CULINA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "CULINA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "CULINA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CULINA_HTTP_PORT")
	overrideInt64(&cfg.HTTP.MaxImageSize, "CULINA_HTTP_MAX_IMAGE_BYTES")
	overrideString(&cfg.Telemetry.LogLevel, "CULINA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CULINA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CULINA_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "CULINA_TELEMETRY_STDOUT_TRACES")
	overrideString(&cfg.Telemetry.PrometheusPath, "CULINA_TELEMETRY_PROMETHEUS_PATH")
	overrideBool(&cfg.Bus.Enabled, "CULINA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "CULINA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CULINA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "CULINA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "CULINA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CULINA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CULINA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CULINA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CULINA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CULINA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Gemini.Endpoint, "CULINA_GEMINI_ENDPOINT")
	overrideString(&cfg.Gemini.APIKey, "API_KEY")
	overrideString(&cfg.Gemini.APIKey, "CULINA_API_KEY")
	overrideInt(&cfg.Gemini.TimeoutMS, "CULINA_GEMINI_TIMEOUT_MS")
	overrideString(&cfg.Vision.Mode, "CULINA_VISION_MODE")
	overrideString(&cfg.Vision.Model, "CULINA_VISION_MODEL")
	overrideString(&cfg.Speech.Mode, "CULINA_SPEECH_MODE")
	overrideString(&cfg.Speech.Model, "CULINA_SPEECH_MODEL")
	overrideString(&cfg.Speech.Command, "CULINA_SPEECH_COMMAND")
	overrideString(&cfg.Speech.Voice, "CULINA_SPEECH_VOICE")
	overrideInt(&cfg.Speech.SampleRate, "CULINA_SPEECH_SAMPLE_RATE")
	overrideInt(&cfg.Speech.Channels, "CULINA_SPEECH_CHANNELS")
	overrideInt(&cfg.Speech.MockWordMS, "CULINA_SPEECH_MOCK_WORD_MS")
	overrideInt(&cfg.Speech.RequestTimeMS, "CULINA_SPEECH_REQUEST_TIMEOUT_MS")
	overrideString(&cfg.Playback.Sink, "CULINA_PLAYBACK_SINK")
	overrideString(&cfg.Playback.OutputDir, "CULINA_PLAYBACK_OUTPUT_DIR")
	overrideString(&cfg.Playback.Target, "CULINA_PLAYBACK_TARGET")
	overrideInt(&cfg.Playback.ChunkDurationMS, "CULINA_PLAYBACK_CHUNK_DURATION_MS")
	overrideString(&cfg.MealPlan.Mode, "CULINA_MEAL_PLAN_MODE")
	overrideString(&cfg.MealPlan.Path, "CULINA_MEAL_PLAN_PATH")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.MaxImageSize <= 0 {
		return errors.New("http.max_image_bytes must be positive")
	}
	if !strings.HasPrefix(cfg.Telemetry.PrometheusPath, "/") {
		return errors.New("telemetry.prometheus_path must start with /")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	usesGemini := cfg.Vision.Mode == "gemini" || cfg.Speech.Mode == "gemini"
	if usesGemini {
		if cfg.Gemini.Endpoint == "" {
			return errors.New("gemini.endpoint must be set when a gemini backend is used")
		}
		if cfg.Gemini.APIKey == "" {
			return errors.New("gemini.api_key (or CULINA_API_KEY) must be set when a gemini backend is used")
		}
	}
	switch cfg.Vision.Mode {
	case "mock":
	case "gemini":
		if cfg.Vision.Model == "" {
			return errors.New("vision.model must be set when mode=gemini")
		}
	default:
		return errors.New("vision.mode must be one of mock|gemini")
	}
	switch cfg.Speech.Mode {
	case "mock":
	case "gemini":
		if cfg.Speech.Model == "" {
			return errors.New("speech.model must be set when mode=gemini")
		}
	case "exec":
		if cfg.Speech.Command == "" {
			return errors.New("speech.command must be set when mode=exec")
		}
	default:
		return errors.New("speech.mode must be one of mock|gemini|exec")
	}
	if cfg.Speech.SampleRate <= 0 {
		return errors.New("speech.sample_rate must be positive")
	}
	if cfg.Speech.Channels <= 0 {
		return errors.New("speech.channels must be positive")
	}
	if cfg.Speech.Voice == "" {
		return errors.New("speech.voice must not be empty")
	}
	switch cfg.Playback.Sink {
	case "clock":
	case "wav":
		if cfg.Playback.OutputDir == "" {
			return errors.New("playback.output_dir must be set when sink=wav")
		}
	case "bus":
		if !cfg.Bus.Enabled {
			return errors.New("playback.sink=bus requires bus.enabled")
		}
		if cfg.Playback.Target == "" {
			return errors.New("playback.target must be set when sink=bus")
		}
	default:
		return errors.New("playback.sink must be one of clock|wav|bus")
	}
	switch cfg.MealPlan.Mode {
	case "ephemeral":
	case "sqlite":
		if cfg.MealPlan.Path == "" {
			return errors.New("meal_plan.path must not be empty when mode=sqlite")
		}
	default:
		return errors.New("meal_plan.mode must be one of sqlite|ephemeral")
	}
	return nil
}
