package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/stockd/stockd/internal/app/taskctl"
	"github.com/stockd/stockd/internal/handlers/marketsync"
	"github.com/stockd/stockd/internal/printer"
)

type CreateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskType string
	params   string
	metadata string
}

// NewCreateCommand returns the create command.
func NewCreateCommand(rootCmd *RootCommand, app *kingpin.Application) *CreateCommand {
	c := &CreateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("create", "Submit a new task.")
	c.Cmd.Arg("type", "Task type (sync_prices, sync_industry, sync_reports).").Required().StringVar(&c.taskType)
	c.Cmd.Flag("params", "Task parameters as a JSON object.").StringVar(&c.params)
	c.Cmd.Flag("metadata", "Task metadata as a JSON object.").StringVar(&c.metadata)

	return c
}

func (c CreateCommand) Name() string { return c.Cmd.FullCommand() }

func (c CreateCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := c.rootCmd.newTaskRepository(ctx)
	if err != nil {
		return err
	}

	svc, err := taskctl.NewService(taskctl.ServiceConfig{
		Repository: repo,
		KnownTypes: []string{marketsync.TaskTypePrices, marketsync.TaskTypeIndustry, marketsync.TaskTypeReports},
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	var params, metadata json.RawMessage
	if c.params != "" {
		params = json.RawMessage(c.params)
	}
	if c.metadata != "" {
		metadata = json.RawMessage(c.metadata)
	}

	task, err := svc.Create(ctx, c.taskType, params, metadata)
	if err != nil {
		return fmt.Errorf("could not create task: %w", err)
	}

	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	if err := p.PrintMessage(fmt.Sprintf("Created task: %s", task.ID)); err != nil {
		return fmt.Errorf("could not print message: %w", err)
	}

	return nil
}
