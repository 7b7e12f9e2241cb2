package rtmfp

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config bundles the tunables a host may want to override. It is
// yaml-serializable so a host application can load it from disk the
// same way it loads any other subsystem's config block, even though
// the engine itself never reads a config file on its own.
type Config struct {
	AvailabilityUpdatePeriod time.Duration `yaml:"availability_update_period"`
	WindowDuration           time.Duration `yaml:"window_duration"`
	IsPublisher              bool          `yaml:"is_publisher"`
	AudioReliable            bool          `yaml:"audio_reliable"`
	VideoReliable            bool          `yaml:"video_reliable"`
	SocketRecvBuffer         int           `yaml:"socket_receive_buffer"`
	SocketSendBuffer         int           `yaml:"socket_send_buffer"`
}

// DefaultConfig returns reasonable defaults for a fresh engine.
func DefaultConfig() Config {
	return Config{
		AvailabilityUpdatePeriod: 100 * time.Millisecond,
		WindowDuration:           8 * time.Second,
		AudioReliable:            false,
		VideoReliable:            false,
	}
}

// LoadConfig reads and parses a YAML config file, starting from
// DefaultConfig so a file that only overrides a few fields still
// yields sane values for the rest.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("rtmfp: reading config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("rtmfp: parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("rtmfp: marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
