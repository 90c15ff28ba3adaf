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
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName   string              `yaml:"runtime_name"`
	Environment   string              `yaml:"environment"`
	HTTP          HTTPConfig          `yaml:"http"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Bus           BusConfig           `yaml:"bus"`
	EventStore    EventStoreConfig    `yaml:"event_store"`
	Capture       CaptureConfig       `yaml:"capture"`
	Silence       SilenceConfig       `yaml:"silence"`
	Transcription TranscriptionConfig `yaml:"transcription"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// CaptureConfig controls the microphone capture engine.
type CaptureConfig struct {
	Driver         string `yaml:"driver"` // mock, portaudio
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	ChunkFrames    int    `yaml:"chunk_frames"`
	MinDurationMS  int    `yaml:"min_duration_ms"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	SpoolDir       string `yaml:"spool_dir"`
}

// SilenceConfig controls the auto-stop silence policy. PaddingMS is the
// trailing audio the consumer retains before the detected boundary; the
// detector itself never evaluates it.
type SilenceConfig struct {
	AutoStop   bool    `yaml:"auto_stop"`
	Threshold  float64 `yaml:"threshold"`
	DurationMS int     `yaml:"duration_ms"`
	PaddingMS  int     `yaml:"padding_ms"`
}

type TranscriptionConfig struct {
	Mode           string `yaml:"mode"` // mock, openai, exec
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	ResponseFormat string `yaml:"response_format"`
	TimeoutMS      int    `yaml:"timeout_ms"`
	Command        string `yaml:"command"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxd",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/voxd-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Capture: CaptureConfig{
			Driver:         "portaudio",
			SampleRate:     16000,
			Channels:       1,
			ChunkFrames:    1024,
			MinDurationMS:  500,
			PollIntervalMS: 50,
			SpoolDir:       os.TempDir(),
		},
		Silence: SilenceConfig{
			AutoStop:   true,
			Threshold:  0.02,
			DurationMS: 1500,
			PaddingMS:  200,
		},
		Transcription: TranscriptionConfig{
			Mode:           "openai",
			Endpoint:       "https://api.openai.com/v1/audio/transcriptions",
			Model:          "whisper-1",
			ResponseFormat: "json",
			TimeoutMS:      30000,
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
	overrideString(&cfg.RuntimeName, "VOXD_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXD_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXD_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXD_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXD_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOXD_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "VOXD_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXD_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXD_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXD_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXD_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXD_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXD_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXD_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "VOXD_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "VOXD_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "VOXD_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "VOXD_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "VOXD_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Capture.Driver, "VOXD_CAPTURE_DRIVER")
	overrideInt(&cfg.Capture.SampleRate, "VOXD_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "VOXD_CAPTURE_CHANNELS")
	overrideInt(&cfg.Capture.ChunkFrames, "VOXD_CAPTURE_CHUNK_FRAMES")
	overrideInt(&cfg.Capture.MinDurationMS, "VOXD_CAPTURE_MIN_DURATION_MS")
	overrideInt(&cfg.Capture.PollIntervalMS, "VOXD_CAPTURE_POLL_INTERVAL_MS")
	overrideString(&cfg.Capture.SpoolDir, "VOXD_CAPTURE_SPOOL_DIR")
	overrideBool(&cfg.Silence.AutoStop, "VOXD_SILENCE_AUTO_STOP")
	overrideFloat(&cfg.Silence.Threshold, "VOXD_SILENCE_THRESHOLD")
	overrideInt(&cfg.Silence.DurationMS, "VOXD_SILENCE_DURATION_MS")
	overrideInt(&cfg.Silence.PaddingMS, "VOXD_SILENCE_PADDING_MS")
	overrideString(&cfg.Transcription.Mode, "VOXD_TRANSCRIPTION_MODE")
	overrideString(&cfg.Transcription.Endpoint, "VOXD_TRANSCRIPTION_ENDPOINT")
	overrideString(&cfg.Transcription.APIKey, "VOXD_TRANSCRIPTION_API_KEY")
	overrideString(&cfg.Transcription.Model, "VOXD_TRANSCRIPTION_MODEL")
	overrideString(&cfg.Transcription.Language, "VOXD_TRANSCRIPTION_LANGUAGE")
	overrideString(&cfg.Transcription.ResponseFormat, "VOXD_TRANSCRIPTION_RESPONSE_FORMAT")
	overrideInt(&cfg.Transcription.TimeoutMS, "VOXD_TRANSCRIPTION_TIMEOUT_MS")
	overrideString(&cfg.Transcription.Command, "VOXD_TRANSCRIPTION_COMMAND")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
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
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Capture.Driver {
	case "mock", "portaudio":
	default:
		return errors.New("capture.driver must be one of mock|portaudio")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.Channels != 1 {
		return errors.New("capture.channels must be 1 (mono capture only)")
	}
	if cfg.Capture.ChunkFrames <= 0 {
		return errors.New("capture.chunk_frames must be positive")
	}
	if cfg.Capture.MinDurationMS < 0 {
		return errors.New("capture.min_duration_ms must be >= 0")
	}
	if cfg.Capture.PollIntervalMS <= 0 {
		return errors.New("capture.poll_interval_ms must be positive")
	}
	if cfg.Capture.SpoolDir == "" {
		return errors.New("capture.spool_dir must not be empty")
	}
	if cfg.Silence.Threshold < 0 || cfg.Silence.Threshold > 1 {
		return errors.New("silence.threshold must be between 0 and 1")
	}
	if cfg.Silence.DurationMS <= 0 {
		return errors.New("silence.duration_ms must be positive")
	}
	if cfg.Silence.PaddingMS < 0 {
		return errors.New("silence.padding_ms must be >= 0")
	}
	switch cfg.Transcription.Mode {
	case "mock", "openai", "exec":
	default:
		return errors.New("transcription.mode must be one of mock|openai|exec")
	}
	if cfg.Transcription.Mode == "openai" {
		if cfg.Transcription.Endpoint == "" {
			return errors.New("transcription.endpoint must be set when mode=openai")
		}
		if cfg.Transcription.Model == "" {
			return errors.New("transcription.model must be set when mode=openai")
		}
	}
	if cfg.Transcription.Mode == "exec" && cfg.Transcription.Command == "" {
		return errors.New("transcription.command must be set when mode=exec")
	}
	if cfg.Transcription.TimeoutMS <= 0 {
		return errors.New("transcription.timeout_ms must be positive")
	}
	return nil
}
