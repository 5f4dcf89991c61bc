package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeHook  = "hook"
	ModeStdio = "stdio"

	// Default values
	DefaultAPIURL      = "http://localhost:8000/api"
	DefaultTimeout     = 30 * time.Second
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB

	// EnvPrefix is shared with the other post-consume scripts of the host
	EnvPrefix = "PNGX_POSTPROCESSOR"

	// Variables set by Paperless for every post-consume script
	EnvDocumentID = "DOCUMENT_ID"
	EnvSourcePath = "DOCUMENT_SOURCE_PATH"
)

// Config holds all configuration for the post-consume hook
type Config struct {
	Mode string // "hook" or "stdio"

	// Document handed over by Paperless
	DocumentID string
	SourcePath string

	// Paperless API
	APIURL   string
	Token    string
	Username string
	Password string
	Timeout  time.Duration

	// Behavior
	DryRun            bool
	ValidateStructure bool

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes
	EnvFile     string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:              ModeHook,
		APIURL:            DefaultAPIURL,
		Timeout:           DefaultTimeout,
		ValidateStructure: true,
		Version:           "1.0.0",
		ServerName:        "paperless-pdf-meta",
		LogLevel:          DefaultLogLevel,
		MaxFileSize:       DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and the environment and returns a
// configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	// viper reads the environment lazily, so variables from the env file are
	// visible as long as they are loaded before populating
	if err := loadEnvFile(viper.GetString("env-file")); err != nil {
		return nil, err
	}

	populateConfigFromViper(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// Paperless sets these without the prefix
	_ = viper.BindEnv("document-id", EnvDocumentID)
	_ = viper.BindEnv("source-path", EnvSourcePath)

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("paperless-api-url", cfg.APIURL)
	viper.SetDefault("timeout", cfg.Timeout)
	viper.SetDefault("validate-structure", cfg.ValidateStructure)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Run mode: 'hook' for a single post-consume run, 'stdio' for an MCP server")
	pflag.String("document-id", "", "Paperless document id (defaults to $DOCUMENT_ID)")
	pflag.String("source-path", "", "Path of the consumed file (defaults to $DOCUMENT_SOURCE_PATH)")
	pflag.String("paperless-api-url", cfg.APIURL, "Paperless API root URL")
	pflag.String("auth-token", "", "Paperless API token")
	pflag.String("username", "", "Paperless username for basic auth")
	pflag.String("password", "", "Paperless password for basic auth")
	pflag.Duration("timeout", cfg.Timeout, "Timeout of each API request")
	pflag.Bool("dry-run", false, "Log the update without writing it")
	pflag.Bool("validate-structure", cfg.ValidateStructure, "Validate the PDF structure before reading metadata")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	pflag.String("env-file", "", "Optional dotenv file loaded before reading the environment")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range []string{
		"mode",
		"document-id",
		"source-path",
		"paperless-api-url",
		"auth-token",
		"username",
		"password",
		"timeout",
		"dry-run",
		"validate-structure",
		"loglevel",
		"maxfilesize",
		"env-file",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nPaperless PDF metadata - backfill document fields from embedded PDF metadata\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                  "+
			"# post-consume hook, reads DOCUMENT_ID and DOCUMENT_SOURCE_PATH\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dry-run --loglevel=debug        # log what would change\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=stdio                     # MCP server over stdio\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %-40s Document id set by Paperless\n", EnvDocumentID)
		fmt.Fprintf(os.Stderr, "  %-40s Consumed file set by Paperless\n", EnvSourcePath)
		fmt.Fprintf(os.Stderr, "  %-40s Paperless API root URL\n", EnvPrefix+"_PAPERLESS_API_URL")
		fmt.Fprintf(os.Stderr, "  %-40s Paperless API token\n", EnvPrefix+"_AUTH_TOKEN")
		fmt.Fprintf(os.Stderr, "  %-40s Basic auth username\n", EnvPrefix+"_USERNAME")
		fmt.Fprintf(os.Stderr, "  %-40s Basic auth password\n", EnvPrefix+"_PASSWORD")
		fmt.Fprintf(os.Stderr, "  %-40s Dry run\n", EnvPrefix+"_DRY_RUN")
		fmt.Fprintf(os.Stderr, "  %-40s Log level\n", EnvPrefix+"_LOGLEVEL")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// loadEnvFile loads a dotenv file without overriding variables that are
// already set
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("cannot load env file %s: %w", path, err)
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.DocumentID = strings.TrimSpace(viper.GetString("document-id"))
	cfg.SourcePath = viper.GetString("source-path")
	cfg.APIURL = viper.GetString("paperless-api-url")
	cfg.Token = viper.GetString("auth-token")
	cfg.Username = viper.GetString("username")
	cfg.Password = viper.GetString("password")
	cfg.Timeout = viper.GetDuration("timeout")
	cfg.DryRun = viper.GetBool("dry-run")
	cfg.ValidateStructure = viper.GetBool("validate-structure")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.EnvFile = viper.GetString("env-file")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeHook && c.Mode != ModeStdio {
		return errors.New("mode must be either 'hook' or 'stdio'")
	}

	if c.Mode == ModeHook {
		if c.DocumentID == "" {
			return fmt.Errorf("document id is required (set %s or --document-id)", EnvDocumentID)
		}
		if c.SourcePath == "" {
			return fmt.Errorf("source path is required (set %s or --source-path)", EnvSourcePath)
		}
		// a non-PDF source is skipped before any API call
		if isPDFPath(c.SourcePath) && !c.HasCredentials() {
			return fmt.Errorf("an API token or username is required (set %s_AUTH_TOKEN)", EnvPrefix)
		}
	}

	if c.APIURL == "" {
		return errors.New("paperless API URL cannot be empty")
	}

	if c.Password != "" && c.Username == "" {
		return errors.New("password given without a username")
	}

	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// HasCredentials reports whether a token or a username is configured
func (c *Config) HasCredentials() bool {
	return c.Token != "" || c.Username != ""
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration with secrets masked
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, DocumentID: %s, SourcePath: %s, APIURL: %s, Token: %s, Username: %s, "+
		"Password: %s, Timeout: %s, DryRun: %t, ValidateStructure: %t, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.DocumentID, c.SourcePath, c.APIURL, mask(c.Token), c.Username,
		mask(c.Password), c.Timeout, c.DryRun, c.ValidateStructure, c.LogLevel, c.MaxFileSize)
}

// IsHookMode returns true for a single post-consume run
func (c *Config) IsHookMode() bool {
	return c.Mode == ModeHook
}

// IsStdioMode returns true if running as an MCP server over stdio
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

func isPDFPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
