package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/oklog/run"

	"github.com/stockd/stockd/internal/apiserver"
	"github.com/stockd/stockd/internal/app/taskctl"
	"github.com/stockd/stockd/internal/config"
	"github.com/stockd/stockd/internal/handlers/marketsync"
	"github.com/stockd/stockd/internal/provider"
	providerfake "github.com/stockd/stockd/internal/provider/fake"
	"github.com/stockd/stockd/internal/scheduler"
	"github.com/stockd/stockd/internal/storage/sqlite"
	"github.com/stockd/stockd/internal/worker"
)

type ServerCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	configPath string
	listenAddr string
	noAPI      bool
}

// NewServerCommand returns the server command.
func NewServerCommand(rootCmd *RootCommand, app *kingpin.Application) *ServerCommand {
	c := &ServerCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("server", "Run the sync worker, scheduler and HTTP API.")
	c.Cmd.Flag("config", "Path to the server configuration file.").Envar("STOCKD_CONFIG").StringVar(&c.configPath)
	c.Cmd.Flag("listen", "HTTP API listen address, overrides the config file.").StringVar(&c.listenAddr)
	c.Cmd.Flag("no-api", "Disable the HTTP API.").BoolVar(&c.noAPI)

	return c
}

func (c ServerCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServerCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Local env files override nothing already exported.
	_ = godotenv.Load()

	cfg := config.Server{ListenAddr: ":8080"}
	if c.configPath != "" {
		repo := config.NewYAMLRepository(os.DirFS(filepath.Dir(c.configPath)))
		loaded, err := repo.GetServerConfig(ctx, filepath.Base(c.configPath))
		if err != nil {
			return fmt.Errorf("could not load config: %w", err)
		}
		cfg = loaded
	}
	if c.listenAddr != "" {
		cfg.ListenAddr = c.listenAddr
	}

	// Storage.
	db, err := sqlite.Open(ctx, sqlite.OpenConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not open database: %w", err)
	}
	defer db.Close()

	taskRepo, err := sqlite.NewTaskRepository(sqlite.TaskRepositoryConfig{
		DB:     db,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create task repository: %w", err)
	}

	marketRepo, err := sqlite.NewMarketRepository(sqlite.MarketRepositoryConfig{
		DB:     db,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create market repository: %w", err)
	}

	// Market data provider.
	var prov provider.Provider
	if cfg.Provider.Fake {
		logger.Warningf("Using fake market data provider")
		prov = &providerfake.Provider{}
	} else {
		apiKey := cfg.Provider.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("STOCKD_API_KEY")
		}
		prov, err = provider.NewHTTPClient(provider.HTTPClientConfig{
			BaseURL: cfg.Provider.BaseURL,
			APIKey:  apiKey,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("could not create provider: %w", err)
		}
	}

	// Task handlers.
	registry := worker.NewRegistry()
	err = marketsync.Register(registry, marketsync.Config{
		Provider:        prov,
		Market:          marketRepo,
		Logger:          logger,
		CheckpointEvery: cfg.CheckpointEvery,
	})
	if err != nil {
		return fmt.Errorf("could not register handlers: %w", err)
	}

	// Worker.
	wrk, err := worker.New(worker.Config{
		Repository:    taskRepo,
		Registry:      registry,
		Logger:        logger,
		PollInterval:  cfg.PollInterval,
		MaxConcurrent: cfg.MaxConcurrent,
		DrainTimeout:  cfg.DrainTimeout,
	})
	if err != nil {
		return fmt.Errorf("could not create worker: %w", err)
	}

	var g run.Group

	// Worker loop.
	{
		ctx, cancel := context.WithCancel(ctx)

		g.Add(
			func() error {
				return wrk.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Scheduler.
	if len(cfg.Schedules) > 0 {
		schedules := make([]scheduler.Schedule, 0, len(cfg.Schedules))
		for _, s := range cfg.Schedules {
			schedules = append(schedules, scheduler.Schedule{
				Name:     s.Name,
				Cron:     s.Cron,
				TaskType: s.TaskType,
				Params:   s.Params,
			})
		}

		sched, err := scheduler.New(scheduler.Config{
			Repository: taskRepo,
			Schedules:  schedules,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("could not create scheduler: %w", err)
		}

		ctx, cancel := context.WithCancel(ctx)

		g.Add(
			func() error {
				return sched.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// HTTP API.
	if !c.noAPI {
		svc, err := taskctl.NewService(taskctl.ServiceConfig{
			Repository: taskRepo,
			KnownTypes: registry.Types(),
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("could not create task service: %w", err)
		}

		api, err := apiserver.New(apiserver.Config{
			ListenAddr: cfg.ListenAddr,
			Service:    svc,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("could not create API server: %w", err)
		}

		g.Add(
			func() error {
				return api.ListenAndServe()
			},
			func(_ error) {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = api.Shutdown(shutdownCtx)
			},
		)
	}

	logger.Infof("Server started")
	return g.Run()
}
