// Package config loads and normalizes the project's site.yaml and
// derives the build-context fingerprint that gates the persisted caches.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the project configuration file next to the source
// tree.
const DefaultFileName = "site.yaml"

// Config is the normalized project configuration.
type Config struct {
	Title       string       `yaml:"title"`
	BaseURL     string       `yaml:"base_url,omitempty"`
	OutputDir   string       `yaml:"output_dir,omitempty"`
	BuildDrafts bool         `yaml:"build_drafts,omitempty"`
	Minify      MinifyConfig `yaml:"minify,omitempty"`
	HashWorkers int          `yaml:"hash_workers,omitempty"`
}

// MinifyConfig selects which output kinds get minified. In site.yaml it
// accepts either a plain bool ("minify: true" enables everything) or a
// per-kind mapping.
type MinifyConfig struct {
	HTML bool `yaml:"html"`
	CSS  bool `yaml:"css"`
	JS   bool `yaml:"js"`
}

// Enabled reports whether any minification is on.
func (m MinifyConfig) Enabled() bool { return m.HTML || m.CSS || m.JS }

// UnmarshalYAML accepts the bool shorthand alongside the structured form.
func (m *MinifyConfig) UnmarshalYAML(value *yaml.Node) error {
	var all bool
	if err := value.Decode(&all); err == nil {
		*m = MinifyConfig{HTML: all, CSS: all, JS: all}
		return nil
	}

	type plain MinifyConfig
	var p plain
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("minify must be a bool or a mapping: %w", err)
	}
	*m = MinifyConfig(p)
	return nil
}

// Load reads and normalizes the configuration at configPath. A .env file
// next to the working directory is loaded first (without overriding the
// process environment), and ${VAR} references in the YAML expand against
// the resulting environment.
func Load(configPath string) (*Config, error) {
	// Missing .env is the common case and not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", configPath, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Title == "" {
		c.Title = "Site"
	}
	if c.OutputDir == "" {
		c.OutputDir = "public"
	}
	if c.HashWorkers <= 0 {
		c.HashWorkers = runtime.NumCPU()
	}
}

func (c *Config) validate() error {
	if c.OutputDir == "." || c.OutputDir == ".." {
		return fmt.Errorf("output_dir must name a directory, got %q", c.OutputDir)
	}
	return nil
}
