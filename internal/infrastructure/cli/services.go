package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	charmlog "github.com/charmbracelet/log"
	"github.com/felixgeelhaar/farol/internal/infrastructure/config"
	"github.com/felixgeelhaar/farol/internal/infrastructure/logging"
	"github.com/felixgeelhaar/farol/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/farol/pkg/application"
	"github.com/felixgeelhaar/farol/pkg/domain/analytics"
	"github.com/felixgeelhaar/farol/pkg/domain/board"
	"github.com/felixgeelhaar/farol/pkg/storage"
	"github.com/felixgeelhaar/farol/pkg/trello"
)

// services is the wired application for one command invocation.
type services struct {
	cfgPath   string
	cfg       *config.Config
	logger    *charmlog.Logger
	store     *storage.FilesystemRepository
	loader    *switchLoader
	dashboard *application.DashboardService
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("FAROL_CONFIG"); env != "" {
		return env
	}
	return config.DefaultFile
}

// loadConfig reads and validates the config. Offline commands tolerate
// missing credentials and boards.
func loadConfig(path string, online bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	err = cfg.Validate()
	if !online {
		err = withoutUpstreamErrors(err)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func withoutUpstreamErrors(err error) error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		if errors.Is(err, config.ErrMissingCredentials) || errors.Is(err, config.ErrNoBoards) {
			return nil
		}
		return err
	}
	var keep []error
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, config.ErrMissingCredentials) && !errors.Is(e, config.ErrNoBoards) {
			keep = append(keep, e)
		}
	}
	return errors.Join(keep...)
}

func newBoardService(cfg *config.Config, logger *charmlog.Logger) (*application.BoardService, error) {
	client, err := trello.NewClient(trello.Config{
		APIKey:   cfg.Trello.Key,
		Token:    cfg.Trello.Token,
		BaseURL:  cfg.Trello.BaseURL,
		Throttle: cfg.Throttle(),
		Timeout:  cfg.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	return application.NewBoardService(client, cfg.Classification(), application.BoardOptions{
		Boards:         cfg.Trello.Boards,
		MaxActionCards: cfg.MaxActionCards,
		Concurrency:    cfg.Concurrency,
	}, logger), nil
}

func newAggregator(cfg *config.Config) *analytics.Aggregator {
	return analytics.NewAggregator(cfg.Classification(), cfg.AnalyticsOptions())
}

func buildServices(online bool) (*services, error) {
	path := resolveConfigPath()
	cfg, err := loadConfig(path, online)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	loader := &switchLoader{}
	if online {
		boards, err := newBoardService(cfg, logger)
		if err != nil {
			return nil, err
		}
		loader.Set(boards)
	}

	store := storage.NewFilesystemRepository(cfg.DataDir)
	dashboard, err := application.NewDashboardService(loader, store, newAggregator(cfg), logger)
	if err != nil {
		return nil, err
	}

	return &services{
		cfgPath:   path,
		cfg:       cfg,
		logger:    logger,
		store:     store,
		loader:    loader,
		dashboard: dashboard,
	}, nil
}

// DeadLetterFile collects notifications that could not be delivered.
const DeadLetterFile = "deadletter.jsonl"

// newNotifier returns nil when no endpoint is enabled.
func (s *services) newNotifier() (*webhook.Notifier, error) {
	var endpoints []webhook.Endpoint
	for _, n := range s.cfg.Notify {
		if n.Disabled {
			continue
		}
		endpoints = append(endpoints, webhook.Endpoint{
			Name:       n.Name,
			URL:        n.URL,
			Secret:     n.Secret,
			Events:     n.Events,
			MinHealth:  n.MinHealth,
			MaxRetries: n.MaxRetries,
			RetryDelay: n.RetryDelay,
		})
	}
	if len(endpoints) == 0 {
		return nil, nil
	}
	path, err := s.store.ResolvePath(DeadLetterFile)
	if err != nil {
		return nil, err
	}
	return webhook.NewNotifier(endpoints, webhook.NewDeadLetterStore(path), s.logger), nil
}

// load publishes the first snapshot: saved data when offline, fresh data
// otherwise.
func (s *services) load(ctx context.Context, offline bool) (*application.Snapshot, error) {
	if offline {
		return s.dashboard.LoadSaved(ctx)
	}
	return s.dashboard.Refresh(ctx)
}

// reload re-reads the config file and applies it to the running dashboard.
// An invalid file is logged and the previous config stays in force.
func (s *services) reload(ctx context.Context) {
	cfg, err := loadConfig(s.cfgPath, true)
	if err != nil {
		s.logger.Error("config reload rejected", "path", s.cfgPath, "err", err)
		return
	}
	boards, err := newBoardService(cfg, s.logger)
	if err != nil {
		s.logger.Error("config reload rejected", "path", s.cfgPath, "err", err)
		return
	}
	if lvl, err := charmlog.ParseLevel(cfg.Log.Level); err == nil {
		s.logger.SetLevel(lvl)
	}

	s.cfg = cfg
	s.loader.Set(boards)
	s.dashboard.Reconfigure(newAggregator(cfg))
	s.logger.Info("config reloaded", "path", s.cfgPath, "boards", len(cfg.Trello.Boards))

	if _, err := s.dashboard.Refresh(ctx); err != nil && !errors.Is(err, application.ErrStaleRefresh) {
		s.logger.Warn("refresh after reload failed", "err", err)
	}
}

// switchLoader lets the board source be replaced while the dashboard runs.
type switchLoader struct {
	mu     sync.RWMutex
	loader application.Loader
}

func (l *switchLoader) Set(loader application.Loader) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loader = loader
}

func (l *switchLoader) Load(ctx context.Context) (*board.Export, error) {
	l.mu.RLock()
	loader := l.loader
	l.mu.RUnlock()
	if loader == nil {
		return nil, config.ErrMissingCredentials
	}
	return loader.Load(ctx)
}
