// Package config provides configuration management for OrangeAvatar
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Backend  BackendConfig  `mapstructure:"backend"`
	Session  SessionConfig  `mapstructure:"session"`
	Media    MediaConfig    `mapstructure:"media"`
	Avatar   AvatarConfig   `mapstructure:"avatar"`
	LoopSync LoopSyncConfig `mapstructure:"loop_sync"`
	Render   RenderConfig   `mapstructure:"render"`
}

// BackendConfig configures the speech backend client
type BackendConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Language  string        `mapstructure:"language"`
	TTSVoice  string        `mapstructure:"tts_voice"`
	TTSEngine string        `mapstructure:"tts_engine"`
}

// SessionConfig identifies the user and project for media routing
type SessionConfig struct {
	UserID      string `mapstructure:"user_id"`
	ProjectName string `mapstructure:"project_name"`
}

// MediaConfig configures resource probing, fetching and caching
type MediaConfig struct {
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	FrameExt         string        `mapstructure:"frame_ext"`
	PoseExt          string        `mapstructure:"pose_ext"`
}

// BehaviorConfig configures one animated behavior (thinking or talking)
type BehaviorConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	FrameCount   int           `mapstructure:"frame_count"`
	LoopDuration time.Duration `mapstructure:"loop_duration"`
	PoseNames    []string      `mapstructure:"pose_names"`
	CueName      string        `mapstructure:"cue_name"`
}

// AvatarConfig configures the avatar behaviors
type AvatarConfig struct {
	Idle            BehaviorConfig `mapstructure:"idle"`
	Thinking        BehaviorConfig `mapstructure:"thinking"`
	Talking         BehaviorConfig `mapstructure:"talking"`
	AudioStartDelay time.Duration  `mapstructure:"audio_start_delay"`
}

// LoopSyncConfig tunes the loop-boundary detection heuristic.
// Thresholds are fractions of the sequence length, not absolute frame
// numbers, so the detection bands scale with frame count.
type LoopSyncConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	NearStartFrac float64       `mapstructure:"near_start_frac"`
	NearEndFrac   float64       `mapstructure:"near_end_frac"`
}

// RenderConfig configures the rendering adapter connection
type RenderConfig struct {
	WSURL            string        `mapstructure:"ws_url"`
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay"`
	MeshRetryDelay   time.Duration `mapstructure:"mesh_retry_delay"`
	MeshRetryMax     int           `mapstructure:"mesh_retry_max"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			ServerURL: "http://localhost:5000",
			Timeout:   120 * time.Second,
			Language:  "en",
			TTSVoice:  "default",
			TTSEngine: "auto",
		},
		Session: SessionConfig{
			UserID:      "talking-orange",
			ProjectName: "default",
		},
		Media: MediaConfig{
			ProbeTimeout:     5 * time.Second,
			FetchTimeout:     30 * time.Second,
			FetchConcurrency: 8,
			FrameExt:         "png",
			PoseExt:          "png",
		},
		Avatar: AvatarConfig{
			Idle: BehaviorConfig{
				PoseNames: []string{"talking-orange-smile"},
			},
			Thinking: BehaviorConfig{
				FrameCount:   145,
				LoopDuration: 3 * time.Second,
				PoseNames:    []string{"talking-orange-smile"},
				CueName:      "thinking-hmm",
			},
			Talking: BehaviorConfig{
				FrameCount:   145,
				LoopDuration: 6 * time.Second,
				PoseNames: []string{
					"talking-orange-smile",
					"talking-orange-half-open-mouth",
					"talking-orange-open-mouth",
				},
				CueName: "talking-intro",
			},
			AudioStartDelay: 500 * time.Millisecond,
		},
		LoopSync: LoopSyncConfig{
			PollInterval:  100 * time.Millisecond,
			NearStartFrac: 0.07,
			NearEndFrac:   0.035,
		},
		Render: RenderConfig{
			WSURL:            "ws://localhost:8765/render",
			ReconnectDelay:   5 * time.Second,
			MeshRetryDelay:   200 * time.Millisecond,
			MeshRetryMax:     25,
			WriteTimeout:     10 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".orangeavatar")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("ORANGEAVATAR")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".orangeavatar")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("backend", cfg.Backend)
	viper.Set("session", cfg.Session)
	viper.Set("media", cfg.Media)
	viper.Set("avatar", cfg.Avatar)
	viper.Set("loop_sync", cfg.LoopSync)
	viper.Set("render", cfg.Render)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".orangeavatar"), nil
}
