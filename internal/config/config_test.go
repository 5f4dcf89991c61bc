package config

import (
	"strings"
	"testing"
	"time"
)

func validHookConfig() *Config {
	cfg := DefaultConfig()
	cfg.DocumentID = "42"
	cfg.SourcePath = "/usr/src/paperless/consume/scan.pdf"
	cfg.Token = "secret-token"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != "hook" {
		t.Errorf("Expected default mode to be 'hook', got '%s'", cfg.Mode)
	}

	if cfg.APIURL != "http://localhost:8000/api" {
		t.Errorf("Expected default API URL to be 'http://localhost:8000/api', got '%s'", cfg.APIURL)
	}

	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout to be 30s, got %s", cfg.Timeout)
	}

	if !cfg.ValidateStructure {
		t.Error("Expected structure validation to be enabled by default")
	}

	if cfg.DryRun {
		t.Error("Expected dry run to be disabled by default")
	}

	if cfg.ServerName != "paperless-pdf-meta" {
		t.Errorf("Expected default server name to be 'paperless-pdf-meta', got '%s'", cfg.ServerName)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level to be 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("Expected default max file size to be 100MB, got %d", cfg.MaxFileSize)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid hook config",
			modify: func(*Config) {},
		},
		{
			name: "valid hook config with basic auth",
			modify: func(c *Config) {
				c.Token = ""
				c.Username = "admin"
				c.Password = "secret"
			},
		},
		{
			name: "stdio mode needs no document",
			modify: func(c *Config) {
				c.Mode = ModeStdio
				c.DocumentID = ""
				c.SourcePath = ""
				c.Token = ""
			},
		},
		{
			name:    "invalid mode",
			modify:  func(c *Config) { c.Mode = "server" },
			wantErr: "mode must be",
		},
		{
			name:    "missing document id",
			modify:  func(c *Config) { c.DocumentID = "" },
			wantErr: "DOCUMENT_ID",
		},
		{
			name:    "missing source path",
			modify:  func(c *Config) { c.SourcePath = "" },
			wantErr: "DOCUMENT_SOURCE_PATH",
		},
		{
			name:    "missing credentials",
			modify:  func(c *Config) { c.Token = "" },
			wantErr: "token or username",
		},
		{
			name: "missing credentials with upper case extension",
			modify: func(c *Config) {
				c.Token = ""
				c.SourcePath = "/consume/SCAN.PDF"
			},
			wantErr: "token or username",
		},
		{
			name: "non pdf source needs no credentials",
			modify: func(c *Config) {
				c.Token = ""
				c.SourcePath = "/usr/src/paperless/consume/photo.jpg"
			},
		},
		{
			name:    "empty API URL",
			modify:  func(c *Config) { c.APIURL = "" },
			wantErr: "API URL",
		},
		{
			name:    "password without username",
			modify:  func(c *Config) { c.Password = "secret" },
			wantErr: "without a username",
		},
		{
			name:    "zero timeout",
			modify:  func(c *Config) { c.Timeout = 0 },
			wantErr: "timeout must be positive",
		},
		{
			name:    "zero max file size",
			modify:  func(c *Config) { c.MaxFileSize = 0 },
			wantErr: "maximum file size",
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validHookConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigModes(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.IsHookMode() || cfg.IsStdioMode() {
		t.Error("Expected default config to be in hook mode")
	}

	cfg.Mode = ModeStdio
	if cfg.IsHookMode() || !cfg.IsStdioMode() {
		t.Error("Expected stdio mode")
	}
}

func TestConfigIsDebug(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.IsDebug() {
		t.Error("Expected IsDebug to be false for info level")
	}

	cfg.LogLevel = "debug"
	if !cfg.IsDebug() {
		t.Error("Expected IsDebug to be true for debug level")
	}
}

func TestConfigString(t *testing.T) {
	cfg := validHookConfig()
	cfg.Username = "admin"
	cfg.Password = "hunter2"

	s := cfg.String()

	for _, secret := range []string{"secret-token", "hunter2"} {
		if strings.Contains(s, secret) {
			t.Errorf("String() leaked secret %q: %s", secret, s)
		}
	}
	for _, want := range []string{"Mode: hook", "DocumentID: 42", "Username: admin", "Token: ****"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %s, want it to contain %q", s, want)
		}
	}
}
