// Package config provides configuration management for handscore
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/go-handscore/internal/glove"
	"github.com/teslashibe/go-handscore/internal/remote"
	"github.com/teslashibe/go-handscore/internal/scoring"
	"github.com/teslashibe/go-handscore/internal/session"
)

// Source kinds
const (
	SourceSerial = "serial"
	SourceRemote = "remote"
	SourceMock   = "mock"
)

// Config is the root configuration structure
type Config struct {
	Server    ServerConfig    `mapstructure:"server" json:"server"`
	Session   SessionConfig   `mapstructure:"session" json:"session"`
	Scoring   ScoringConfig   `mapstructure:"scoring" json:"scoring"`
	Reference ReferenceConfig `mapstructure:"reference" json:"reference"`
	Source    SourceConfig    `mapstructure:"source" json:"source"`
	Output    OutputConfig    `mapstructure:"output" json:"output"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Port            int           `mapstructure:"port" json:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout" json:"graceful_timeout"`
}

// SessionConfig configures the per-episode pipeline and the runner around it
type SessionConfig struct {
	BufferLen              int     `mapstructure:"buffer_len" json:"buffer_len"`
	CalibFrames            int     `mapstructure:"calib_frames" json:"calib_frames"`
	SmoothAlpha            float64 `mapstructure:"smooth_alpha" json:"smooth_alpha"`
	WindowLen              int     `mapstructure:"window_len" json:"window_len"`
	ScoreEvery             int     `mapstructure:"score_every" json:"score_every"`
	ReferenceLocalBaseline bool    `mapstructure:"reference_local_baseline" json:"reference_local_baseline"`
	HistorySize            int     `mapstructure:"history_size" json:"history_size"`
	QueueSize              int     `mapstructure:"queue_size" json:"queue_size"`
}

// ScoringConfig configures the scorer thresholds
type ScoringConfig struct {
	ToleranceDeg     float64 `mapstructure:"tolerance_deg" json:"tolerance_deg"`
	HardFailDeg      float64 `mapstructure:"hard_fail_deg" json:"hard_fail_deg"`
	SequenceWeight   float64 `mapstructure:"w_seq" json:"w_seq"`
	TolerancePolicy  string  `mapstructure:"tolerance_policy" json:"tolerance_policy"`
	JointDiagnostics bool    `mapstructure:"joint_diagnostics" json:"joint_diagnostics"`
}

// ReferenceConfig locates the reference motion
type ReferenceConfig struct {
	Path       string `mapstructure:"path" json:"path"`
	FrameCount int    `mapstructure:"frame_count" json:"frame_count"` // resample target, 0 keeps the file length
}

// SourceConfig selects and configures the angle extractor
type SourceConfig struct {
	Kind   string       `mapstructure:"kind" json:"kind"` // serial, remote, mock
	PollHz int          `mapstructure:"poll_hz" json:"poll_hz"`
	Serial SerialConfig `mapstructure:"serial" json:"serial"`
	Remote RemoteConfig `mapstructure:"remote" json:"remote"`
}

// SerialConfig configures the flex glove port
type SerialConfig struct {
	Port        string        `mapstructure:"port" json:"port"`
	BaudRate    int           `mapstructure:"baud_rate" json:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
}

// RemoteConfig configures the WebSocket extractor connection
type RemoteConfig struct {
	URL              string        `mapstructure:"url" json:"url"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff" json:"reconnect_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff" json:"max_backoff"`
}

// OutputConfig configures score sinks. Empty values disable a sink.
type OutputConfig struct {
	CSVPath string     `mapstructure:"csv_path" json:"csv_path"`
	DBPath  string     `mapstructure:"db_path" json:"db_path"`
	MQTT    MQTTConfig `mapstructure:"mqtt" json:"mqtt"`
}

// MQTTConfig configures the score publisher
type MQTTConfig struct {
	Broker   string `mapstructure:"broker" json:"broker"`
	Topic    string `mapstructure:"topic" json:"topic"`
	ClientID string `mapstructure:"client_id" json:"client_id"`
	Username string `mapstructure:"username" json:"username,omitempty"`
	Password string `mapstructure:"password" json:"-"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // json, text
}

// Default returns the default configuration
func Default() *Config {
	sess := session.DefaultConfig()
	run := session.DefaultRunnerConfig()
	sc := scoring.DefaultConfig()
	ser := glove.DefaultSerialConfig()
	rem := remote.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Port:            9000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			GracefulTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			BufferLen:              sess.BufferLen,
			CalibFrames:            sess.CalibFrames,
			SmoothAlpha:            sess.SmoothAlpha,
			WindowLen:              sess.WindowLen,
			ScoreEvery:             sess.ScoreEvery,
			ReferenceLocalBaseline: sess.ReferenceLocalBaseline,
			HistorySize:            run.HistorySize,
			QueueSize:              run.QueueSize,
		},
		Scoring: ScoringConfig{
			ToleranceDeg:     sc.ToleranceDeg,
			HardFailDeg:      sc.HardFailDeg,
			SequenceWeight:   sc.SequenceWeight,
			TolerancePolicy:  sc.Policy.String(),
			JointDiagnostics: sc.JointDiagnostics,
		},
		Source: SourceConfig{
			Kind:   SourceSerial,
			PollHz: 30,
			Serial: SerialConfig{
				Port:        ser.Port,
				BaudRate:    ser.BaudRate,
				ReadTimeout: ser.ReadTimeout,
			},
			Remote: RemoteConfig{
				URL:              rem.URL,
				ReconnectBackoff: rem.ReconnectBackoff,
				MaxBackoff:       rem.MaxBackoff,
			},
		},
		Output: OutputConfig{
			MQTT: MQTTConfig{
				Topic:    "handscore/scores",
				ClientID: "handscore",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from file and environment
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			// a missing file falls back to defaults, a broken one is fatal
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			fmt.Printf("Warning: config file not found at %s, using defaults\n", path)
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("HANDSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	// Server defaults
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.graceful_timeout", d.Server.GracefulTimeout)

	// Session defaults
	v.SetDefault("session.buffer_len", d.Session.BufferLen)
	v.SetDefault("session.calib_frames", d.Session.CalibFrames)
	v.SetDefault("session.smooth_alpha", d.Session.SmoothAlpha)
	v.SetDefault("session.window_len", d.Session.WindowLen)
	v.SetDefault("session.score_every", d.Session.ScoreEvery)
	v.SetDefault("session.reference_local_baseline", d.Session.ReferenceLocalBaseline)
	v.SetDefault("session.history_size", d.Session.HistorySize)
	v.SetDefault("session.queue_size", d.Session.QueueSize)

	// Scoring defaults
	v.SetDefault("scoring.tolerance_deg", d.Scoring.ToleranceDeg)
	v.SetDefault("scoring.hard_fail_deg", d.Scoring.HardFailDeg)
	v.SetDefault("scoring.w_seq", d.Scoring.SequenceWeight)
	v.SetDefault("scoring.tolerance_policy", d.Scoring.TolerancePolicy)
	v.SetDefault("scoring.joint_diagnostics", d.Scoring.JointDiagnostics)

	v.SetDefault("reference.path", d.Reference.Path)
	v.SetDefault("reference.frame_count", d.Reference.FrameCount)

	// Source defaults
	v.SetDefault("source.kind", d.Source.Kind)
	v.SetDefault("source.poll_hz", d.Source.PollHz)
	v.SetDefault("source.serial.port", d.Source.Serial.Port)
	v.SetDefault("source.serial.baud_rate", d.Source.Serial.BaudRate)
	v.SetDefault("source.serial.read_timeout", d.Source.Serial.ReadTimeout)
	v.SetDefault("source.remote.url", d.Source.Remote.URL)
	v.SetDefault("source.remote.reconnect_backoff", d.Source.Remote.ReconnectBackoff)
	v.SetDefault("source.remote.max_backoff", d.Source.Remote.MaxBackoff)

	// Output defaults
	v.SetDefault("output.csv_path", d.Output.CSVPath)
	v.SetDefault("output.db_path", d.Output.DBPath)
	v.SetDefault("output.mqtt.broker", d.Output.MQTT.Broker)
	v.SetDefault("output.mqtt.topic", d.Output.MQTT.Topic)
	v.SetDefault("output.mqtt.client_id", d.Output.MQTT.ClientID)
	v.SetDefault("output.mqtt.username", d.Output.MQTT.Username)
	v.SetDefault("output.mqtt.password", d.Output.MQTT.Password)

	// Logging defaults
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Source.PollHz < 1 || c.Source.PollHz > 1000 {
		return fmt.Errorf("poll_hz must be between 1 and 1000, got %d", c.Source.PollHz)
	}

	switch c.Source.Kind {
	case SourceSerial:
		if c.Source.Serial.Port == "" {
			return fmt.Errorf("source.serial.port is required for the serial source")
		}
		if c.Source.Serial.BaudRate <= 0 {
			return fmt.Errorf("baud_rate must be positive, got %d", c.Source.Serial.BaudRate)
		}
	case SourceRemote:
		if c.Source.Remote.URL == "" {
			return fmt.Errorf("source.remote.url is required for the remote source")
		}
	case SourceMock:
	default:
		return fmt.Errorf("invalid source kind: %q (must be serial, remote or mock)", c.Source.Kind)
	}

	if c.Session.HistorySize < 1 {
		return fmt.Errorf("history_size must be at least 1, got %d", c.Session.HistorySize)
	}
	if c.Session.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", c.Session.QueueSize)
	}
	if err := c.SessionParams().Validate(); err != nil {
		return err
	}

	if _, err := c.ScoringParams(); err != nil {
		return err
	}

	if c.Reference.FrameCount < 0 {
		return fmt.Errorf("reference.frame_count must not be negative, got %d", c.Reference.FrameCount)
	}

	if c.Output.MQTT.Broker != "" && c.Output.MQTT.Topic == "" {
		return fmt.Errorf("output.mqtt.topic is required when a broker is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// SessionParams converts the session section for the controller
func (c *Config) SessionParams() session.Config {
	return session.Config{
		BufferLen:              c.Session.BufferLen,
		CalibFrames:            c.Session.CalibFrames,
		SmoothAlpha:            c.Session.SmoothAlpha,
		WindowLen:              c.Session.WindowLen,
		ScoreEvery:             c.Session.ScoreEvery,
		ReferenceLocalBaseline: c.Session.ReferenceLocalBaseline,
	}
}

// RunnerParams converts the runner knobs
func (c *Config) RunnerParams() session.RunnerConfig {
	rc := session.DefaultRunnerConfig()
	if c.Source.PollHz > 0 {
		rc.PollInterval = time.Second / time.Duration(c.Source.PollHz)
	}
	rc.HistorySize = c.Session.HistorySize
	rc.QueueSize = c.Session.QueueSize
	return rc
}

// ScoringParams converts and validates the scoring section
func (c *Config) ScoringParams() (scoring.Config, error) {
	policy, err := scoring.ParsePolicy(c.Scoring.TolerancePolicy)
	if err != nil {
		return scoring.Config{}, err
	}
	sc := scoring.Config{
		ToleranceDeg:     c.Scoring.ToleranceDeg,
		HardFailDeg:      c.Scoring.HardFailDeg,
		SequenceWeight:   c.Scoring.SequenceWeight,
		Policy:           policy,
		JointDiagnostics: c.Scoring.JointDiagnostics,
	}
	if err := sc.Validate(); err != nil {
		return scoring.Config{}, err
	}
	return sc, nil
}

// SerialParams converts the serial section, keeping driver defaults for
// the reconnect knobs
func (c *Config) SerialParams() glove.SerialConfig {
	sc := glove.DefaultSerialConfig()
	sc.Port = c.Source.Serial.Port
	sc.BaudRate = c.Source.Serial.BaudRate
	if c.Source.Serial.ReadTimeout > 0 {
		sc.ReadTimeout = c.Source.Serial.ReadTimeout
	}
	return sc
}

// RemoteParams converts the remote section
func (c *Config) RemoteParams() remote.Config {
	rc := remote.DefaultConfig()
	rc.URL = c.Source.Remote.URL
	if c.Source.Remote.ReconnectBackoff > 0 {
		rc.ReconnectBackoff = c.Source.Remote.ReconnectBackoff
	}
	if c.Source.Remote.MaxBackoff > 0 {
		rc.MaxBackoff = c.Source.Remote.MaxBackoff
	}
	return rc
}
