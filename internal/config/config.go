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
	RuntimeName string                `yaml:"runtime_name"`
	Environment string                `yaml:"environment"`
	HTTP        HTTPConfig            `yaml:"http"`
	Telemetry   TelemetryConfig       `yaml:"telemetry"`
	Bus         BusConfig             `yaml:"bus"`
	Listener    ListenerConfig        `yaml:"listener"`
	Mic         MicConfig             `yaml:"mic"`
	STT         STTConfig             `yaml:"stt"`
	Transcripts TranscriptStoreConfig `yaml:"transcripts"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type ListenerConfig struct {
	WaitTimeoutMS int `yaml:"wait_timeout_ms"`
	PhraseLimitMS int `yaml:"phrase_limit_ms"`
	CalibrationMS int `yaml:"calibration_ms"`
	StopJoinMS    int `yaml:"stop_join_ms"`
}

type MicConfig struct {
	Mode              string  `yaml:"mode"` // exec, mock
	Command           string  `yaml:"command"`
	SampleRate        int     `yaml:"sample_rate"`
	Channels          int     `yaml:"channels"`
	FrameDurationMS   int     `yaml:"frame_duration_ms"`
	SilenceMultiplier float64 `yaml:"silence_multiplier"`
	TrailingSilenceMS int     `yaml:"trailing_silence_ms"`
	MinPhraseMS       int     `yaml:"min_phrase_ms"`
}

type STTConfig struct {
	Mode      string `yaml:"mode"` // google, exec, mock
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	Language  string `yaml:"language"`
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
}

type TranscriptStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "earshot",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Listener: ListenerConfig{
			WaitTimeoutMS: 1000,
			PhraseLimitMS: 5000,
			CalibrationMS: 1000,
			StopJoinMS:    2000,
		},
		Mic: MicConfig{
			Mode:              "exec",
			Command:           "arecord -q -f S16_LE -r 16000 -c 1 -t raw",
			SampleRate:        16000,
			Channels:          1,
			FrameDurationMS:   20,
			SilenceMultiplier: 1.5,
			TrailingSilenceMS: 600,
			MinPhraseMS:       200,
		},
		STT: STTConfig{
			Mode:     "google",
			Endpoint: "https://speech.googleapis.com/v1",
			Language: "en-US",
		},
		Transcripts: TranscriptStoreConfig{
			Path:          "./data/earshot-transcripts.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
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
	overrideString(&cfg.RuntimeName, "EARSHOT_RUNTIME_NAME")
	overrideString(&cfg.Environment, "EARSHOT_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "EARSHOT_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "EARSHOT_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "EARSHOT_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "EARSHOT_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "EARSHOT_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "EARSHOT_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "EARSHOT_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "EARSHOT_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "EARSHOT_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "EARSHOT_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "EARSHOT_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "EARSHOT_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "EARSHOT_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "EARSHOT_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "EARSHOT_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Listener.WaitTimeoutMS, "EARSHOT_LISTENER_WAIT_TIMEOUT_MS")
	overrideInt(&cfg.Listener.PhraseLimitMS, "EARSHOT_LISTENER_PHRASE_LIMIT_MS")
	overrideInt(&cfg.Listener.CalibrationMS, "EARSHOT_LISTENER_CALIBRATION_MS")
	overrideInt(&cfg.Listener.StopJoinMS, "EARSHOT_LISTENER_STOP_JOIN_MS")
	overrideString(&cfg.Mic.Mode, "EARSHOT_MIC_MODE")
	overrideString(&cfg.Mic.Command, "EARSHOT_MIC_COMMAND")
	overrideInt(&cfg.Mic.SampleRate, "EARSHOT_MIC_SAMPLE_RATE")
	overrideInt(&cfg.Mic.Channels, "EARSHOT_MIC_CHANNELS")
	overrideInt(&cfg.Mic.FrameDurationMS, "EARSHOT_MIC_FRAME_DURATION_MS")
	overrideFloat(&cfg.Mic.SilenceMultiplier, "EARSHOT_MIC_SILENCE_MULTIPLIER")
	overrideInt(&cfg.Mic.TrailingSilenceMS, "EARSHOT_MIC_TRAILING_SILENCE_MS")
	overrideInt(&cfg.Mic.MinPhraseMS, "EARSHOT_MIC_MIN_PHRASE_MS")
	overrideString(&cfg.STT.Mode, "EARSHOT_STT_MODE")
	overrideString(&cfg.STT.Endpoint, "EARSHOT_STT_ENDPOINT")
	overrideString(&cfg.STT.APIKey, "EARSHOT_STT_API_KEY")
	overrideString(&cfg.STT.Language, "EARSHOT_STT_LANGUAGE")
	overrideString(&cfg.STT.Command, "EARSHOT_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "EARSHOT_STT_MODEL_PATH")
	overrideString(&cfg.Transcripts.Path, "EARSHOT_TRANSCRIPTS_PATH")
	overrideString(&cfg.Transcripts.RetentionMode, "EARSHOT_TRANSCRIPTS_RETENTION_MODE")
	overrideInt(&cfg.Transcripts.RetentionDays, "EARSHOT_TRANSCRIPTS_RETENTION_DAYS")
	overrideInt(&cfg.Transcripts.MaxSessions, "EARSHOT_TRANSCRIPTS_MAX_SESSIONS")
	overrideBool(&cfg.Transcripts.VacuumOnStart, "EARSHOT_TRANSCRIPTS_VACUUM_ON_START")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
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
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
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
	if cfg.Listener.WaitTimeoutMS <= 0 {
		return errors.New("listener.wait_timeout_ms must be positive")
	}
	if cfg.Listener.PhraseLimitMS <= 0 {
		return errors.New("listener.phrase_limit_ms must be positive")
	}
	if cfg.Listener.CalibrationMS <= 0 {
		return errors.New("listener.calibration_ms must be positive")
	}
	if cfg.Listener.StopJoinMS < 0 {
		return errors.New("listener.stop_join_ms must be >= 0")
	}
	switch cfg.Mic.Mode {
	case "exec", "mock":
	default:
		return errors.New("mic.mode must be one of exec|mock")
	}
	if cfg.Mic.Mode == "exec" && cfg.Mic.Command == "" {
		return errors.New("mic.command must be set when mode=exec")
	}
	if cfg.Mic.SampleRate <= 0 {
		return errors.New("mic.sample_rate must be positive")
	}
	if cfg.Mic.Channels <= 0 {
		return errors.New("mic.channels must be positive")
	}
	if cfg.Mic.FrameDurationMS <= 0 {
		return errors.New("mic.frame_duration_ms must be positive")
	}
	if cfg.Mic.SilenceMultiplier <= 1.0 {
		return errors.New("mic.silence_multiplier must be greater than 1.0")
	}
	if cfg.Mic.TrailingSilenceMS <= 0 {
		return errors.New("mic.trailing_silence_ms must be positive")
	}
	switch cfg.STT.Mode {
	case "google", "exec", "mock":
	default:
		return errors.New("stt.mode must be one of google|exec|mock")
	}
	if cfg.STT.Mode == "google" && cfg.STT.Endpoint == "" {
		return errors.New("stt.endpoint must be set when mode=google")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.STT.Language == "" {
		return errors.New("stt.language must not be empty")
	}
	if cfg.Transcripts.Path == "" {
		return errors.New("transcripts.path must not be empty")
	}
	switch cfg.Transcripts.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("transcripts.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Transcripts.RetentionDays < 0 {
		return errors.New("transcripts.retention_days must be >= 0")
	}
	return nil
}
