package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/storage/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DBPath     string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDBPath := filepath.Join(homedir.HomeDir(), ".stockd", "stockd.db")
	app.Flag("db-path", "Path to the SQLite database file.").Envar("STOCKD_DB_PATH").Default(defaultDBPath).StringVar(&c.DBPath)

	return c
}

// newTaskRepository opens the SQLite database and wires a task repository,
// shared by every command that touches the store.
func (c *RootCommand) newTaskRepository(ctx context.Context) (*sqlite.TaskRepository, error) {
	db, err := sqlite.Open(ctx, sqlite.OpenConfig{
		DBPath: c.DBPath,
		Logger: c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	repo, err := sqlite.NewTaskRepository(sqlite.TaskRepositoryConfig{
		DB:     db,
		Logger: c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create task repository: %w", err)
	}

	return repo, nil
}
