// Package config loads and validates the farol.yaml configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/felixgeelhaar/farol/pkg/domain/analytics"
	"github.com/felixgeelhaar/farol/pkg/domain/stage"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up when no path is given.
const DefaultFile = "farol.yaml"

var (
	ErrMissingCredentials = errors.New("trello key and token are required")
	ErrNoBoards           = errors.New("at least one trello board is required")
)

// Config is the full farol configuration.
type Config struct {
	Trello         TrelloConfig    `yaml:"trello"`
	Lists          ListsConfig     `yaml:"lists"`
	AgingDays      int             `yaml:"aging_days"`
	MaxActionCards int             `yaml:"max_action_cards"`
	ThrottleMS     int             `yaml:"throttle_ms"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	Concurrency    int             `yaml:"concurrency"`
	TopAged        int             `yaml:"top_aged"`
	TopAssignees   int             `yaml:"top_assignees"`
	DataDir        string          `yaml:"data_dir"`
	Dashboard      DashboardConfig `yaml:"dashboard"`
	Webhook        WebhookConfig   `yaml:"webhook"`
	Notify         []NotifyConfig  `yaml:"notify,omitempty"`
	Log            LogConfig       `yaml:"log"`
}

type TrelloConfig struct {
	Key     string   `yaml:"key"`
	Token   string   `yaml:"token"`
	Boards  []string `yaml:"boards"`
	BaseURL string   `yaml:"base_url,omitempty"`
}

// ListsConfig maps board list names to workflow stages.
type ListsConfig struct {
	Backlog []string `yaml:"backlog"`
	Doing   []string `yaml:"doing"`
	Waiting []string `yaml:"waiting"`
	Done    []string `yaml:"done"`
	Ignored []string `yaml:"ignored,omitempty"`
}

type DashboardConfig struct {
	Addr string `yaml:"addr"`
	// RefreshInterval re-fetches the boards periodically. Zero disables it.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// WebhookConfig enables the Trello webhook receiver on the dashboard server.
// Secret is the Trello application secret used to verify callbacks; an empty
// secret accepts unsigned callbacks.
type WebhookConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Secret      string `yaml:"secret,omitempty"`
	CallbackURL string `yaml:"callback_url,omitempty"`
}

// NotifyConfig is an outgoing webhook endpoint fed from published snapshots.
type NotifyConfig struct {
	Name       string        `yaml:"name"`
	URL        string        `yaml:"url"`
	Secret     string        `yaml:"secret,omitempty"`
	Events     []string      `yaml:"events,omitempty"`
	MinHealth  int           `yaml:"min_health,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty"`
	RetryDelay time.Duration `yaml:"retry_delay,omitempty"`
	Disabled   bool          `yaml:"disabled,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a config with every optional field filled in.
func Default() *Config {
	return &Config{
		Lists: ListsConfig{
			Backlog: []string{"Backlog", "To Do"},
			Doing:   []string{"Doing", "In Progress"},
			Waiting: []string{"Waiting", "Blocked"},
			Done:    []string{"Done"},
		},
		AgingDays:      analytics.DefaultAgingThresholdDays,
		ThrottleMS:     300,
		RequestTimeout: 30 * time.Second,
		Concurrency:    4,
		TopAged:        analytics.DefaultTopAged,
		TopAssignees:   analytics.DefaultTopAssignees,
		DataDir:        ".",
		Dashboard:      DashboardConfig{Addr: ":8080"},
		Log:            LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment fallbacks.
// A missing file is not an error; the defaults and environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 -- path is chosen by the operator
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := validateSchema(data); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// applyEnv fills credentials and boards left empty by the file.
func (c *Config) applyEnv() {
	if c.Trello.Key == "" {
		c.Trello.Key = firstEnv("TRELLO_KEY", "TRELLO_API_KEY")
	}
	if c.Trello.Token == "" {
		c.Trello.Token = os.Getenv("TRELLO_TOKEN")
	}
	if c.Webhook.Secret == "" {
		c.Webhook.Secret = os.Getenv("TRELLO_WEBHOOK_SECRET")
	}
	if len(c.Trello.Boards) == 0 {
		for _, b := range strings.Split(firstEnv("TRELLO_BOARD_IDS", "TRELLO_BOARD_ID"), ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Trello.Boards = append(c.Trello.Boards, b)
			}
		}
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate reports every semantic problem with the config.
func (c *Config) Validate() error {
	var errs []error
	if c.Trello.Key == "" || c.Trello.Token == "" {
		errs = append(errs, ErrMissingCredentials)
	}
	if len(c.Trello.Boards) == 0 {
		errs = append(errs, ErrNoBoards)
	}
	if len(c.Lists.Doing) == 0 || len(c.Lists.Done) == 0 {
		errs = append(errs, errors.New("lists.doing and lists.done must name at least one list"))
	}
	if c.AgingDays < 1 {
		errs = append(errs, fmt.Errorf("aging_days must be positive, got %d", c.AgingDays))
	}
	if c.MaxActionCards < 0 || c.ThrottleMS < 0 || c.Concurrency < 0 {
		errs = append(errs, errors.New("max_action_cards, throttle_ms and concurrency must not be negative"))
	}
	if c.Webhook.Secret != "" && c.Webhook.CallbackURL == "" {
		errs = append(errs, errors.New("webhook.callback_url is required to verify signed callbacks"))
	}
	for i, n := range c.Notify {
		if n.URL == "" {
			errs = append(errs, fmt.Errorf("notify[%d]: url is required", i))
		}
	}
	if _, err := charmlog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// Classification builds the immutable stage classification.
func (c *Config) Classification() stage.Classification {
	return stage.NewClassification(stage.Aliases{
		Backlog: c.Lists.Backlog,
		Doing:   c.Lists.Doing,
		Waiting: c.Lists.Waiting,
		Done:    c.Lists.Done,
		Ignored: c.Lists.Ignored,
	})
}

// AnalyticsOptions returns the aggregator options.
func (c *Config) AnalyticsOptions() analytics.Options {
	return analytics.Options{
		AgingThresholdDays: c.AgingDays,
		TopAged:            c.TopAged,
		TopAssignees:       c.TopAssignees,
	}
}

// Throttle is the minimum spacing between Trello requests.
func (c *Config) Throttle() time.Duration {
	return time.Duration(c.ThrottleMS) * time.Millisecond
}
