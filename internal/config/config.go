// Package config loads the agent configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EnvConfig names the environment variable holding a config file path.
const EnvConfig = "BUILDSWAP_CONFIG"

// ErrNotFound is returned by Find when no configuration file exists.
var ErrNotFound = errors.New("no buildswap config found in standard locations")

// Config is the agent configuration.
type Config struct {
	// InstallRoot is the live install directory that gets swapped.
	InstallRoot string `yaml:"install_root" toml:"install_root" json:"install_root"`
	// ScratchDir receives the downloaded version marker and build archive.
	ScratchDir string `yaml:"scratch_dir" toml:"scratch_dir" json:"scratch_dir"`
	// UserDataDir is copied into every new build before it is installed.
	UserDataDir string `yaml:"userdata_dir" toml:"userdata_dir" json:"userdata_dir"`
	// LaunchFile holds the launch blob when none is passed on the command line.
	LaunchFile string `yaml:"launch_file" toml:"launch_file" json:"launch_file"`

	Feed    FeedConfig    `yaml:"feed" toml:"feed" json:"feed"`
	Archive ArchiveConfig `yaml:"archive" toml:"archive" json:"archive"`
	HTTP    HTTPConfig    `yaml:"http" toml:"http" json:"http"`
	TLS     TLSConfig     `yaml:"tls" toml:"tls" json:"tls"`
	Reboot  RebootConfig  `yaml:"reboot" toml:"reboot" json:"reboot"`
	History HistoryConfig `yaml:"history" toml:"history" json:"history"`
}

// FeedConfig locates the release feed.
type FeedConfig struct {
	APIHost      string `yaml:"api_host" toml:"api_host" json:"api_host"`
	Owner        string `yaml:"owner" toml:"owner" json:"owner"`
	Repo         string `yaml:"repo" toml:"repo" json:"repo"`
	Channel      string `yaml:"channel" toml:"channel" json:"channel"`
	MarkerAsset  string `yaml:"marker_asset" toml:"marker_asset" json:"marker_asset"`
	ArchiveAsset string `yaml:"archive_asset" toml:"archive_asset" json:"archive_asset"`
}

// ArchiveConfig tunes extraction.
type ArchiveConfig struct {
	StripPrefix string `yaml:"strip_prefix" toml:"strip_prefix" json:"strip_prefix"`
	ChunkSize   int    `yaml:"chunk_size" toml:"chunk_size" json:"chunk_size"`
}

// HTTPConfig tunes the release client.
type HTTPConfig struct {
	UserAgent      string `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	MaxRedirects   int    `yaml:"max_redirects" toml:"max_redirects" json:"max_redirects"`
	ReadSize       int    `yaml:"read_size" toml:"read_size" json:"read_size"`
	MaxHeaderBytes int    `yaml:"max_header_bytes" toml:"max_header_bytes" json:"max_header_bytes"`
}

// TLSConfig selects the trust anchor. An empty CAFile uses the bundled one.
type TLSConfig struct {
	CAFile string `yaml:"ca_file" toml:"ca_file" json:"ca_file"`
}

// RebootConfig is what happens after a successful run.
type RebootConfig struct {
	Command []string `yaml:"command" toml:"command" json:"command"`
	Delay   string   `yaml:"delay" toml:"delay" json:"delay"`
}

// HistoryConfig controls the run history.
type HistoryConfig struct {
	Dir  string `yaml:"dir" toml:"dir" json:"dir"`
	Keep int    `yaml:"keep" toml:"keep" json:"keep"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		ScratchDir: filepath.Join(os.TempDir(), "buildswap"),
		Feed: FeedConfig{
			APIHost:      "api.github.com",
			MarkerAsset:  "version.txt",
			ArchiveAsset: "build.tar",
		},
		Archive: ArchiveConfig{
			StripPrefix: "BUILD",
			ChunkSize:   4096,
		},
		HTTP: HTTPConfig{
			MaxRedirects:   5,
			ReadSize:       4096,
			MaxHeaderBytes: 64 << 10,
		},
		Reboot: RebootConfig{
			Command: []string{"systemctl", "reboot"},
			Delay:   "5s",
		},
		History: HistoryConfig{
			Dir:  defaultHistoryDir(),
			Keep: 20,
		},
	}
}

// RebootDelay parses Reboot.Delay. Validate has already rejected bad values.
func (c *Config) RebootDelay() time.Duration {
	d, err := time.ParseDuration(c.Reboot.Delay)
	if err != nil {
		return 0
	}
	return d
}

// defaultHistoryDir returns $XDG_STATE_HOME/buildswap/history or its
// ~/.local/state fallback.
func defaultHistoryDir() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "buildswap", "history")
		}
		stateDir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateDir, "buildswap", "history")
}

// fileNames are tried in order inside each search directory.
var fileNames = []string{
	"buildswap.yaml",
	"buildswap.yml",
	"buildswap.toml",
	"buildswap.json",
	"buildswap.jsonc",
}

// Find returns the configuration file to load: explicitPath when set, then
// $BUILDSWAP_CONFIG, then the first match under $XDG_CONFIG_HOME/buildswap
// and /etc/buildswap. It returns ErrNotFound when nothing matches.
func Find(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv(EnvConfig); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	return findIn(searchDirs())
}

func searchDirs() []string {
	var dirs []string
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		if home, err := os.UserHomeDir(); err == nil {
			xdgConfig = filepath.Join(home, ".config")
		}
	}
	if xdgConfig != "" {
		dirs = append(dirs, filepath.Join(xdgConfig, "buildswap"))
	}
	return append(dirs, "/etc/buildswap")
}

func findIn(dirs []string) (string, error) {
	for _, dir := range dirs {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}
	return "", ErrNotFound
}

// Load reads, parses and validates the file at path. Values the file
// leaves out keep their defaults.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	cfg, err := parse(content, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads the file Find selects, or returns defaults when
// there is none. The returned path is empty in that case.
func LoadOrDefault(explicitPath string) (*Config, string, error) {
	path, err := Find(explicitPath)
	if errors.Is(err, ErrNotFound) {
		return Default(), "", nil
	}
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}
