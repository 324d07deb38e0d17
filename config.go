package sealink

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the client settings.
type Config struct {
	// DataDir is where the sqlite database lives.
	DataDir string `yaml:"dataDir"`
	// Relay is the relay address, host:port.
	Relay string `yaml:"relay"`
	// APIPort is the local HTTP API port. Zero disables the API.
	APIPort int `yaml:"apiPort"`
	// LogLevel is 0 (warnings) through 2 (debug).
	LogLevel int `yaml:"logLevel"`
	// AckTimeoutMS bounds how long a publish waits for relay confirmation.
	AckTimeoutMS int `yaml:"ackTimeoutMS"`
	// EventBuffer is the event queue capacity.
	EventBuffer int `yaml:"eventBuffer"`
}

// RelayConfig holds the relay daemon settings.
type RelayConfig struct {
	Port        int `yaml:"port"`
	RetainLimit int `yaml:"retainLimit"`
	LogLevel    int `yaml:"logLevel"`
}

// DefaultConfig returns a config with sane local defaults.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:      filepath.Join(home, "."+progName),
		Relay:        "localhost:10187",
		APIPort:      0,
		LogLevel:     1,
		AckTimeoutMS: 10000,
		EventBuffer:  128,
	}
}

// LoadConfig reads a yaml client config, filling in defaults for
// anything the file leaves unset.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return config, err
	}
	return config, nil
}

// LoadRelayConfig reads a yaml relay config.
func LoadRelayConfig(path string) (RelayConfig, error) {
	config := RelayConfig{
		Port:        10187,
		RetainLimit: defaultRetainLimit,
		LogLevel:    1,
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return config, err
	}
	return config, nil
}
