package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go_secure_send/constants"
	"go_secure_send/logging"

	"github.com/BurntSushi/toml"
)

var ErrInvalid = errors.New("config: invalid setting")

// Config is the resolved client configuration
type Config struct {
	RegistrationFile string
	CredentialFile   string
	MaxErrors        int
	FrameSize        int
	DialTimeout      time.Duration
	DSCP             int
	MetricsAddr      string
	LogLevel         string
}

// client config.toml key mapping
type fileConfig struct {
	RegistrationFile string `toml:"registration_file"`
	CredentialFile   string `toml:"credential_file"`
	MaxErrors        int    `toml:"max_errors"`
	FrameSize        int    `toml:"frame_size"`
	DialTimeout      string `toml:"dial_timeout"`
	DSCP             int    `toml:"dscp"`
	MetricsAddr      string `toml:"metrics_addr"`
	LogLevel         string `toml:"log_level"`
}

// Default returns the settings used without a config file
func Default() Config {
	return Config{
		RegistrationFile: constants.REGISTRATION_FILE,
		CredentialFile:   constants.CREDENTIAL_FILE,
		MaxErrors:        constants.MAX_ERRORS,
		FrameSize:        constants.MAX_FRAME_SIZE,
		DialTimeout:      10 * time.Second,
		DSCP:             constants.DEFAULT_DSCP,
	}
}

// Load overlays the keys present in the TOML file at path on the defaults
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load client config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}

	if meta.IsDefined("registration_file") {
		cfg.RegistrationFile = strings.TrimSpace(raw.RegistrationFile)
	}
	if meta.IsDefined("credential_file") {
		cfg.CredentialFile = strings.TrimSpace(raw.CredentialFile)
	}
	if meta.IsDefined("max_errors") {
		cfg.MaxErrors = raw.MaxErrors
	}
	if meta.IsDefined("frame_size") {
		cfg.FrameSize = raw.FrameSize
	}
	if meta.IsDefined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("%w: dial_timeout: %v", ErrInvalid, err)
		}
		cfg.DialTimeout = d
	}
	if meta.IsDefined("dscp") {
		cfg.DSCP = raw.DSCP
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the protocol cannot work with
func (c Config) Validate() error {
	if c.RegistrationFile == "" {
		return fmt.Errorf("%w: registration_file is empty", ErrInvalid)
	}
	if c.CredentialFile == "" {
		return fmt.Errorf("%w: credential_file is empty", ErrInvalid)
	}
	if c.MaxErrors < 1 {
		return fmt.Errorf("%w: max_errors must be at least 1, got %d", ErrInvalid, c.MaxErrors)
	}
	// The first packet has to carry at least one content byte.
	minFrame := constants.REQUEST_HEADER_SIZE + constants.FILE_HEADER_SIZE + 1
	if c.FrameSize < minFrame {
		return fmt.Errorf("%w: frame_size must be at least %d, got %d", ErrInvalid, minFrame, c.FrameSize)
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("%w: dial_timeout is negative", ErrInvalid)
	}
	if c.DSCP < 0 || c.DSCP > 63 {
		return fmt.Errorf("%w: dscp must be in 0..63, got %d", ErrInvalid, c.DSCP)
	}
	if c.LogLevel != "" {
		if _, ok := logging.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("%w: unknown log_level %q", ErrInvalid, c.LogLevel)
		}
	}
	return nil
}
