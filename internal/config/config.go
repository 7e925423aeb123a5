// Package config reads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"

	"pageoverlay/internal/logging"
	"pageoverlay/internal/overlay"
	"pageoverlay/internal/siterules"
)

var (
	ErrInvalidConcurrency = errors.New("max concurrency must be >= 1")
	ErrInvalidRetries     = errors.New("max retries must be >= 0")
	ErrInvalidTimeout     = errors.New("timeout must be > 0")
)

type Config struct {
	Mode            string `env:"OVERLAY_MODE" envDefault:"bilingual"`
	SourceLang      string `env:"OVERLAY_SOURCE_LANG" envDefault:"und"`
	TargetLang      string `env:"OVERLAY_TARGET_LANG" envDefault:"zh-CN"`
	MainContentOnly bool   `env:"OVERLAY_MAIN_CONTENT_ONLY"`
	SiteRules       string `env:"OVERLAY_SITE_RULES"`
	StylePreset     string `env:"OVERLAY_STYLE_PRESET" envDefault:"default"`
	CustomCSS       string `env:"OVERLAY_CUSTOM_CSS"`
	MaxConcurrency  int    `env:"OVERLAY_MAX_CONCURRENCY" envDefault:"4"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	OpenAI OpenAI `envPrefix:"OPENAI_"`
}

// OpenAI holds the translation backend settings.
type OpenAI struct {
	APIKey     string        `env:"API_KEY"`
	BaseURL    string        `env:"BASE_URL"`
	Model      string        `env:"MODEL" envDefault:"gpt-5.2"`
	MaxRetries int           `env:"MAX_RETRIES" envDefault:"5"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"90s"`
}

// Load parses the process environment.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if _, err := overlay.ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseTag(c.SourceLang); err != nil {
		errs = append(errs, fmt.Errorf("source language: %w", err))
	}
	if _, err := parseTag(c.TargetLang); err != nil {
		errs = append(errs, fmt.Errorf("target language: %w", err))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, ErrInvalidConcurrency)
	}
	if c.OpenAI.MaxRetries < 0 {
		errs = append(errs, ErrInvalidRetries)
	}
	if c.OpenAI.Timeout <= 0 {
		errs = append(errs, ErrInvalidTimeout)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Settings builds the engine settings for pages served from host. A nil rules set
// yields no site overrides.
func (c Config) Settings(rules *siterules.Rules, host string) (overlay.Settings, error) {
	mode, err := overlay.ParseMode(c.Mode)
	if err != nil {
		return overlay.Settings{}, err
	}
	source, err := parseTag(c.SourceLang)
	if err != nil {
		return overlay.Settings{}, fmt.Errorf("source language: %w", err)
	}
	target, err := parseTag(c.TargetLang)
	if err != nil {
		return overlay.Settings{}, fmt.Errorf("target language: %w", err)
	}

	settings := overlay.DefaultSettings()
	settings.Mode = mode
	settings.SourceLang = source
	settings.TargetLang = target
	settings.MainContentOnly = c.MainContentOnly
	settings.Overrides = rules.For(host)
	if preset := strings.TrimSpace(c.StylePreset); preset != "" {
		settings.StylePreset = preset
	}
	settings.CustomCSS = c.CustomCSS
	return settings, nil
}

func parseTag(s string) (language.Tag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return language.Und, nil
	}
	return language.Parse(s)
}
