// Package config loads optional daemon settings from a JSON file. Every
// field is a pointer so an absent key is distinguishable from a zero value
// and leaves the compiled-in default untouched.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxFileSize bounds how large a config file we will read.
const maxFileSize = 1 << 20

// Config holds the daemon's tunable settings.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":8080".
	Listen *string `json:"listen,omitempty"`

	// DataDir is the root directory for project files.
	DataDir *string `json:"data_dir,omitempty"`

	// ResultWaitSeconds bounds how long a stop waits for captured room data.
	ResultWaitSeconds *float64 `json:"result_wait_seconds,omitempty"`

	// JournalPath is the sqlite activity log location. Empty disables it.
	JournalPath *string `json:"journal_path,omitempty"`
}

// Load reads and decodes the config file at path.
func Load(path string) (*Config, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return nil, fmt.Errorf("config file %s must have a .json extension", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file %s too large (%d bytes)", path, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// ResultWait converts the configured wait to a duration, or def when unset.
func (c *Config) ResultWait(def time.Duration) time.Duration {
	if c == nil || c.ResultWaitSeconds == nil || *c.ResultWaitSeconds <= 0 {
		return def
	}
	return time.Duration(*c.ResultWaitSeconds * float64(time.Second))
}

// StringOr returns *v when set, otherwise def.
func StringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}
