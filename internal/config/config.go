package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the SFTP port used when the config does not set one.
const DefaultPort = 22

// SelectionMode defines how remote entries are chosen for download
type SelectionMode string

const (
	ModeFlat            SelectionMode = "flat"
	ModeRecursiveClone  SelectionMode = "recursive-clone"
	ModeExactDirectory  SelectionMode = "exact-directory"
	ModePatternFiltered SelectionMode = "pattern-filtered"
)

// Config represents the complete sftpsync configuration
type Config struct {
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	Username   string `json:"username" yaml:"username"`
	Password   string `json:"password" yaml:"password"`
	PrivateKey string `json:"private_key" yaml:"private_key"`
	KnownHosts string `json:"known_hosts" yaml:"known_hosts"`

	PathPrefix string   `json:"path_prefix" yaml:"path_prefix"`
	Files      []string `json:"files" yaml:"files"`
	TargetDir  string   `json:"target_dir" yaml:"target_dir"`

	RecursiveClone bool     `json:"recursive_clone" yaml:"recursive_clone"`
	ExactDirectory bool     `json:"exact_directory" yaml:"exact_directory"`
	Tables         []string `json:"tables" yaml:"tables"`

	DeleteAfterSync bool `json:"delete_after_sync" yaml:"delete_after_sync"`
	MaxFileCount    int  `json:"max_file_count" yaml:"max_file_count"`
	IncrementalMode bool `json:"incremental_mode" yaml:"incremental_mode"`
}

// Load reads and parses the configuration file. JSON is the canonical
// format; files with a .yaml or .yml extension are parsed as YAML.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse by extension
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Host = os.ExpandEnv(c.Host)
	c.Username = os.ExpandEnv(c.Username)
	c.Password = os.ExpandEnv(c.Password)
	c.PrivateKey = os.ExpandEnv(c.PrivateKey)
	c.KnownHosts = os.ExpandEnv(c.KnownHosts)
	c.PathPrefix = os.ExpandEnv(c.PathPrefix)
	c.TargetDir = os.ExpandEnv(c.TargetDir)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate connection settings
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535: %d", c.Port)
	}

	// Validate credentials
	if c.Password == "" && c.PrivateKey == "" {
		return fmt.Errorf("either password or private_key is required")
	}

	// Validate selection settings
	if len(c.Files) == 0 && c.PathPrefix == "" {
		return fmt.Errorf("either files or path_prefix must be set")
	}
	if c.TargetDir == "" {
		return fmt.Errorf("target_dir is required")
	}

	// Validate deletion settings. A deletion limit only makes sense when
	// remote pruning is enabled, and must be caught before any connection
	// is attempted.
	if c.MaxFileCount < 0 {
		return fmt.Errorf("max_file_count must be a positive integer: %d", c.MaxFileCount)
	}
	if c.MaxFileCount > 0 && !c.DeleteAfterSync {
		return fmt.Errorf("max_file_count requires delete_after_sync to be enabled")
	}

	return nil
}

// Mode returns the selection mode resolved from the configured fields.
// An explicit file list wins over everything; table prefixes switch to
// pattern filtering; otherwise the directory flags decide, falling back
// to a recursive clone of the remote root.
func (c *Config) Mode() SelectionMode {
	if len(c.Files) > 0 {
		return ModeFlat
	}
	if len(c.Tables) > 0 {
		return ModePatternFiltered
	}
	if c.RecursiveClone {
		return ModeRecursiveClone
	}
	if c.ExactDirectory {
		return ModeExactDirectory
	}
	return ModeRecursiveClone
}

// AuthMethod returns a description of the configured auth method
func (c *Config) AuthMethod() string {
	if c.Password != "" {
		return "password"
	}
	if c.PrivateKey != "" {
		return "private-key"
	}
	return "none"
}

// Addr returns the host:port dial address for the remote store
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
