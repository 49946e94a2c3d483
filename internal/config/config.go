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
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"` // json, text
	TraceExporter string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
	Metrics       bool   `yaml:"metrics"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Node        NodeConfig        `yaml:"node"`
	Bus         BusConfig         `yaml:"bus"`
	EventStore  EventStoreConfig  `yaml:"event_store"`
	Session     SessionConfig     `yaml:"session"`
	Capture     CaptureConfig     `yaml:"capture"`
	STT         STTConfig         `yaml:"stt"`
	Dictionary  DictionaryConfig  `yaml:"dictionary"`
	Rewrite     RewriteConfig     `yaml:"rewrite"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	Notify      NotifyConfig      `yaml:"notify"`
	Permissions PermissionsConfig `yaml:"permissions"`
}

// NodeConfig identifies this daemon in presence announcements on the bus.
type NodeConfig struct {
	ID                string `yaml:"id"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// SessionConfig holds the defaults snapshotted into every capture session.
type SessionConfig struct {
	Language              string  `yaml:"language"`
	AutoPaste             bool    `yaml:"auto_paste"`
	Sensitivity           string  `yaml:"sensitivity"` // relaxed, balanced, strict, very_strict
	MinSpeechSeconds      float64 `yaml:"min_speech_seconds"`
	SilencePollIntervalMS int     `yaml:"silence_poll_interval_ms"`
	SilencePromptAfterMS  int     `yaml:"silence_prompt_after_ms"`
	PromptCommand         string  `yaml:"prompt_command"`
}

type CaptureConfig struct {
	Mode          string `yaml:"mode"` // exec, portaudio
	Command       string `yaml:"command"`
	RecordingsDir string `yaml:"recordings_dir"`
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
	StopTimeoutMS int    `yaml:"stop_timeout_ms"`
}

type STTConfig struct {
	Mode           string  `yaml:"mode"` // mock, exec, whispercpp
	Command        string  `yaml:"command"`
	ModelPath      string  `yaml:"model_path"`
	InitialPrompt  string  `yaml:"initial_prompt"`
	BeamSize       int     `yaml:"beam_size"`
	BestOf         int     `yaml:"best_of"`
	Temperature    float64 `yaml:"temperature"`
	TemperatureInc float64 `yaml:"temperature_inc"`
	NoFallback     bool    `yaml:"no_fallback"`
	Threads        int     `yaml:"threads"`
	ChunkSeconds   float64 `yaml:"chunk_seconds"`
}

type DictionaryConfig struct {
	Path       string `yaml:"path"`
	Watch      bool   `yaml:"watch"`
	DebounceMS int    `yaml:"debounce_ms"`
}

type RewriteConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Mode         string `yaml:"mode"` // mock, openai, exec
	Endpoint     string `yaml:"endpoint"`
	Command      string `yaml:"command"`
	Model        string `yaml:"model"`
	APIKeyEnv    string `yaml:"api_key_env"`
	Instructions string `yaml:"instructions"`
	TimeoutMS    int    `yaml:"timeout_ms"`
}

type DeliveryConfig struct {
	PasteCommand string `yaml:"paste_command"`
	PasteDelayMS int    `yaml:"paste_delay_ms"`
}

type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Title   string `yaml:"title"`
}

type PermissionsConfig struct {
	MicrophoneCheck string `yaml:"microphone_check"`
}

// DefaultInstructions is the user addition appended after the built-in
// rewrite instruction unless the user replaces it.
const DefaultInstructions = "日本語で正確に書き起こしてください。プログラミング関連の用語、関数名、クラス名、ファイルパス、コマンド、コード断片は原文のまま保持し、勝手に言い換えないでください。英数字や記号は省略せず、必要なら記号も含めて書き起こしてください。"

func Default() Config {
	return Config{
		RuntimeName: "tonevoice",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: true,
			Bind:    "127.0.0.1",
			Port:    8765,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			LogFormat:     "json",
			TraceExporter: "none",
			OTLPInsecure:  true,
			Metrics:       true,
		},
		Node: NodeConfig{
			ID:                "tonevoice-local",
			HeartbeatInterval: 5000,
			HeartbeatTimeout:  15000,
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Host:           "127.0.0.1",
			Port:           4322,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://127.0.0.1:4322"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "tonevoice",
		},
		EventStore: EventStoreConfig{
			Path:          "./data/tonevoice.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		Session: SessionConfig{
			Language:              "ja",
			AutoPaste:             true,
			Sensitivity:           "balanced",
			MinSpeechSeconds:      0.35,
			SilencePollIntervalMS: 1000,
			SilencePromptAfterMS:  90000,
		},
		Capture: CaptureConfig{
			Mode:          "exec",
			Command:       "arecord -q -f S16_LE -r 16000 -c 1 -t wav {output}",
			RecordingsDir: "./data/recordings",
			SampleRate:    16000,
			Channels:      1,
			StopTimeoutMS: 3000,
		},
		STT: STTConfig{
			Mode:           "exec",
			Command:        "whisper-cli",
			ModelPath:      "./data/models/ggml-large-v3-turbo-q8_0.bin",
			BeamSize:       8,
			BestOf:         8,
			Temperature:    0.0,
			TemperatureInc: 0.2,
		},
		Dictionary: DictionaryConfig{
			Path:       "./data/dictionary.txt",
			Watch:      true,
			DebounceMS: 200,
		},
		Rewrite: RewriteConfig{
			Enabled:      false,
			Mode:         "openai",
			Endpoint:     "https://api.openai.com/v1/responses",
			Model:        "gpt-5-mini",
			APIKeyEnv:    "OPENAI_API_KEY",
			Instructions: DefaultInstructions,
			TimeoutMS:    30000,
		},
		Delivery: DeliveryConfig{
			PasteCommand: "",
			PasteDelayMS: 50,
		},
		Notify: NotifyConfig{
			Enabled: true,
			Title:   "Usual Tone of Voice",
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
	overrideString(&cfg.RuntimeName, "TONEVOICE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "TONEVOICE_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "TONEVOICE_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "TONEVOICE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "TONEVOICE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "TONEVOICE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "TONEVOICE_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.TraceExporter, "TONEVOICE_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TONEVOICE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TONEVOICE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.Metrics, "TONEVOICE_TELEMETRY_METRICS")
	overrideString(&cfg.Node.ID, "TONEVOICE_NODE_ID")
	overrideInt(&cfg.Node.HeartbeatInterval, "TONEVOICE_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "TONEVOICE_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideBool(&cfg.Bus.Enabled, "TONEVOICE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "TONEVOICE_BUS_EMBEDDED")
	overrideString(&cfg.Bus.Host, "TONEVOICE_BUS_HOST")
	overrideInt(&cfg.Bus.Port, "TONEVOICE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "TONEVOICE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "TONEVOICE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "TONEVOICE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TONEVOICE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TONEVOICE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TONEVOICE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TONEVOICE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "TONEVOICE_BUS_SUBJECT_PREFIX")
	overrideString(&cfg.EventStore.Path, "TONEVOICE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "TONEVOICE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "TONEVOICE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "TONEVOICE_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "TONEVOICE_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Session.Language, "TONEVOICE_SESSION_LANGUAGE")
	overrideBool(&cfg.Session.AutoPaste, "TONEVOICE_SESSION_AUTO_PASTE")
	overrideString(&cfg.Session.Sensitivity, "TONEVOICE_SESSION_SENSITIVITY")
	overrideFloat(&cfg.Session.MinSpeechSeconds, "TONEVOICE_SESSION_MIN_SPEECH_SECONDS")
	overrideInt(&cfg.Session.SilencePollIntervalMS, "TONEVOICE_SESSION_SILENCE_POLL_INTERVAL_MS")
	overrideInt(&cfg.Session.SilencePromptAfterMS, "TONEVOICE_SESSION_SILENCE_PROMPT_AFTER_MS")
	overrideString(&cfg.Session.PromptCommand, "TONEVOICE_SESSION_PROMPT_COMMAND")
	overrideString(&cfg.Capture.Mode, "TONEVOICE_CAPTURE_MODE")
	overrideString(&cfg.Capture.Command, "TONEVOICE_CAPTURE_COMMAND")
	overrideString(&cfg.Capture.RecordingsDir, "TONEVOICE_CAPTURE_RECORDINGS_DIR")
	overrideInt(&cfg.Capture.SampleRate, "TONEVOICE_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "TONEVOICE_CAPTURE_CHANNELS")
	overrideInt(&cfg.Capture.StopTimeoutMS, "TONEVOICE_CAPTURE_STOP_TIMEOUT_MS")
	overrideString(&cfg.STT.Mode, "TONEVOICE_STT_MODE")
	overrideString(&cfg.STT.Command, "TONEVOICE_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "TONEVOICE_STT_MODEL_PATH")
	overrideString(&cfg.STT.InitialPrompt, "TONEVOICE_STT_INITIAL_PROMPT")
	overrideInt(&cfg.STT.BeamSize, "TONEVOICE_STT_BEAM_SIZE")
	overrideInt(&cfg.STT.BestOf, "TONEVOICE_STT_BEST_OF")
	overrideFloat(&cfg.STT.Temperature, "TONEVOICE_STT_TEMPERATURE")
	overrideFloat(&cfg.STT.TemperatureInc, "TONEVOICE_STT_TEMPERATURE_INC")
	overrideBool(&cfg.STT.NoFallback, "TONEVOICE_STT_NO_FALLBACK")
	overrideInt(&cfg.STT.Threads, "TONEVOICE_STT_THREADS")
	overrideFloat(&cfg.STT.ChunkSeconds, "TONEVOICE_STT_CHUNK_SECONDS")
	overrideString(&cfg.Dictionary.Path, "TONEVOICE_DICTIONARY_PATH")
	overrideBool(&cfg.Dictionary.Watch, "TONEVOICE_DICTIONARY_WATCH")
	overrideInt(&cfg.Dictionary.DebounceMS, "TONEVOICE_DICTIONARY_DEBOUNCE_MS")
	overrideBool(&cfg.Rewrite.Enabled, "TONEVOICE_REWRITE_ENABLED")
	overrideString(&cfg.Rewrite.Mode, "TONEVOICE_REWRITE_MODE")
	overrideString(&cfg.Rewrite.Endpoint, "TONEVOICE_REWRITE_ENDPOINT")
	overrideString(&cfg.Rewrite.Command, "TONEVOICE_REWRITE_COMMAND")
	overrideString(&cfg.Rewrite.Model, "TONEVOICE_REWRITE_MODEL")
	overrideString(&cfg.Rewrite.APIKeyEnv, "TONEVOICE_REWRITE_API_KEY_ENV")
	overrideString(&cfg.Rewrite.Instructions, "TONEVOICE_REWRITE_INSTRUCTIONS")
	overrideInt(&cfg.Rewrite.TimeoutMS, "TONEVOICE_REWRITE_TIMEOUT_MS")
	overrideString(&cfg.Delivery.PasteCommand, "TONEVOICE_DELIVERY_PASTE_COMMAND")
	overrideInt(&cfg.Delivery.PasteDelayMS, "TONEVOICE_DELIVERY_PASTE_DELAY_MS")
	overrideBool(&cfg.Notify.Enabled, "TONEVOICE_NOTIFY_ENABLED")
	overrideString(&cfg.Notify.Title, "TONEVOICE_NOTIFY_TITLE")
	overrideString(&cfg.Permissions.MicrophoneCheck, "TONEVOICE_PERMISSIONS_MICROPHONE_CHECK")
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
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty")
		}
		if cfg.Node.ID == "" {
			return errors.New("node.id must not be empty")
		}
		if cfg.Node.HeartbeatInterval <= 0 {
			return errors.New("node.heartbeat_interval_ms must be positive")
		}
		if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
			return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat_interval_ms")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral":
	case "session", "persistent":
		if cfg.EventStore.Path == "" {
			return errors.New("event_store.path must not be empty")
		}
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.Session.Sensitivity {
	case "relaxed", "balanced", "strict", "very_strict":
	default:
		return errors.New("session.sensitivity must be one of relaxed|balanced|strict|very_strict")
	}
	if cfg.Session.MinSpeechSeconds <= 0 {
		return errors.New("session.min_speech_seconds must be positive")
	}
	if cfg.Session.SilencePollIntervalMS <= 0 {
		return errors.New("session.silence_poll_interval_ms must be positive")
	}
	if cfg.Session.SilencePromptAfterMS < cfg.Session.SilencePollIntervalMS {
		return errors.New("session.silence_prompt_after_ms must be >= poll interval")
	}
	switch cfg.Capture.Mode {
	case "exec":
		if cfg.Capture.Command == "" {
			return errors.New("capture.command must be set when mode=exec")
		}
	case "portaudio":
	default:
		return errors.New("capture.mode must be one of exec|portaudio")
	}
	if cfg.Capture.RecordingsDir == "" {
		return errors.New("capture.recordings_dir must not be empty")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.Channels <= 0 {
		return errors.New("capture.channels must be positive")
	}
	switch cfg.STT.Mode {
	case "mock":
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	case "whispercpp":
		if cfg.STT.ModelPath == "" {
			return errors.New("stt.model_path must be set when mode=whispercpp")
		}
	default:
		return errors.New("stt.mode must be one of mock|exec|whispercpp")
	}
	if cfg.STT.ChunkSeconds < 0 {
		return errors.New("stt.chunk_seconds must be >= 0")
	}
	if cfg.Dictionary.Path == "" {
		return errors.New("dictionary.path must not be empty")
	}
	if cfg.Rewrite.Enabled {
		switch cfg.Rewrite.Mode {
		case "mock":
		case "openai":
			if cfg.Rewrite.Endpoint == "" {
				return errors.New("rewrite.endpoint must be set when mode=openai")
			}
		case "exec":
			if cfg.Rewrite.Command == "" {
				return errors.New("rewrite.command must be set when mode=exec")
			}
		default:
			return errors.New("rewrite.mode must be one of mock|openai|exec")
		}
		if strings.TrimSpace(cfg.Rewrite.Model) == "" {
			return errors.New("rewrite.model must not be empty when rewrite is enabled")
		}
		if cfg.Rewrite.TimeoutMS < 0 {
			return errors.New("rewrite.timeout_ms must be >= 0")
		}
	}
	return nil
}
